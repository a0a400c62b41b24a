package geolocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/utafrali/storefront-shipping/internal/domain"
)

// PositionOptions mirrors the options of a platform position request.
type PositionOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
	// MaxAge is the oldest cached position the caller accepts. Zero demands a
	// fresh fix.
	MaxAge time.Duration
}

// DefaultPositionOptions asks for a fresh high-accuracy fix within 10s.
func DefaultPositionOptions() PositionOptions {
	return PositionOptions{
		HighAccuracy: true,
		Timeout:      10 * time.Second,
		MaxAge:       0,
	}
}

// DeviceLocator is the device's own location capability.
type DeviceLocator interface {
	CurrentPosition(ctx context.Context, opts PositionOptions) (domain.Coordinate, error)
}

// DeviceErrorCode is the failure reported by a device position request.
type DeviceErrorCode string

// Device error codes.
const (
	DevicePermissionDenied DeviceErrorCode = "permission-denied"
	DeviceTimeout          DeviceErrorCode = "timeout"
	DeviceUnavailable      DeviceErrorCode = "unavailable"
)

// ErrDeviceUnsupported is returned when the device has no location capability.
var ErrDeviceUnsupported = errors.New("device geolocation is not supported")

// DeviceError is a failed device position request.
type DeviceError struct {
	Code DeviceErrorCode
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device geolocation failed: %s", e.Code)
}

// DeviceReport is what a client observed when it asked its platform for a
// position: either a fix or an error code.
type DeviceReport struct {
	Latitude   *float64   `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude  *float64   `json:"longitude,omitempty" validate:"omitempty,longitude"`
	Accuracy   *float64   `json:"accuracy,omitempty" validate:"omitempty,gte=0"`
	CapturedAt *time.Time `json:"captured_at,omitempty"`
	Error      string     `json:"error,omitempty" validate:"omitempty,oneof=permission-denied timeout unavailable"`
}

// ReportedDevice is a DeviceLocator that replays a client's report. A nil
// report means the client has no location capability.
type ReportedDevice struct {
	report *DeviceReport
	now    func() time.Time
}

// NewReportedDevice wraps a client report.
func NewReportedDevice(report *DeviceReport) *ReportedDevice {
	return &ReportedDevice{report: report, now: time.Now}
}

// CurrentPosition returns the reported fix. A fix captured before the
// request window (Timeout plus MaxAge) is stale and reported as a timeout.
func (d *ReportedDevice) CurrentPosition(ctx context.Context, opts PositionOptions) (domain.Coordinate, error) {
	if d.report == nil {
		return domain.Coordinate{}, ErrDeviceUnsupported
	}
	if err := ctx.Err(); err != nil {
		return domain.Coordinate{}, &DeviceError{Code: DeviceTimeout}
	}

	r := d.report
	if r.Error != "" {
		return domain.Coordinate{}, &DeviceError{Code: DeviceErrorCode(r.Error)}
	}
	if r.Latitude == nil || r.Longitude == nil {
		return domain.Coordinate{}, &DeviceError{Code: DeviceUnavailable}
	}

	c := domain.Coordinate{Latitude: *r.Latitude, Longitude: *r.Longitude}
	if !c.Valid() {
		return domain.Coordinate{}, &DeviceError{Code: DeviceUnavailable}
	}
	if r.CapturedAt != nil && d.now().Sub(*r.CapturedAt) > opts.Timeout+opts.MaxAge {
		return domain.Coordinate{}, &DeviceError{Code: DeviceTimeout}
	}
	return c, nil
}
