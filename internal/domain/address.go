package domain

import (
	"math"
	"time"
)

// Coordinate is a WGS84 latitude/longitude pair.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether both components are finite and inside their ranges.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

// IsZero reports whether the coordinate was never set.
func (c Coordinate) IsZero() bool {
	return c.Latitude == 0 && c.Longitude == 0
}

// Provenance records which source last set a selection's coordinate.
type Provenance string

// Provenance values.
const (
	ProvenanceManual            Provenance = "manual"
	ProvenanceSavedAddress      Provenance = "from_saved_address"
	ProvenanceDeviceGeolocation Provenance = "from_device_geolocation"
	ProvenanceIPApproximation   Provenance = "from_ip_approximation"
	ProvenanceDefault           Provenance = "default"
)

// Address is an entry of a user's address book.
type Address struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Text       string     `json:"text"`
	Phone      string     `json:"phone"`
	Coordinate Coordinate `json:"coordinate"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Validate checks the invariant every persisted address must satisfy.
func (a *Address) Validate() error {
	if !ValidPhone(a.Phone) {
		return ErrInvalidPhone
	}
	if isBlank(a.Text) {
		return ErrMissingAddress
	}
	if !a.Coordinate.Valid() {
		return ErrInvalidCoordinate
	}
	return nil
}
