package domain

import (
	"errors"
	"regexp"
	"strings"
)

// Validation and availability errors.
var (
	ErrInvalidPhone           = errors.New("phone must be exactly 10 digits")
	ErrMissingAddress         = errors.New("address is required")
	ErrInvalidCoordinate      = errors.New("coordinate out of range")
	ErrLocationUnavailable    = errors.New("location unavailable")
	ErrAddressBookUnavailable = errors.New("address book unavailable")
)

// MaxPhoneLength is the number of digits in a valid phone number.
const MaxPhoneLength = 10

var phonePattern = regexp.MustCompile(`^[0-9]{10}$`)

// ValidPhone reports whether phone is exactly ten ASCII digits.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// ShippingSelection is the in-progress shipping data of one checkout session.
// Fields may be incomplete while the user edits them.
type ShippingSelection struct {
	Text       string     `json:"text"`
	Phone      string     `json:"phone"`
	Coordinate Coordinate `json:"coordinate"`
	Provenance Provenance `json:"provenance"`
}

// SetText replaces the address text.
func (s *ShippingSelection) SetText(text string) {
	s.Text = text
}

// SetPhone accepts value only if it is made of ASCII digits and no longer
// than MaxPhoneLength. Anything else leaves the selection untouched and
// returns false.
func (s *ShippingSelection) SetPhone(value string) bool {
	if len(value) > MaxPhoneLength {
		return false
	}
	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return false
		}
	}
	s.Phone = value
	return true
}

// ApplyAddress replaces every field with the given ones.
func (s *ShippingSelection) ApplyAddress(fields ShippingSelection) {
	*s = fields
}

// ApplyCoordinate replaces the coordinate and its provenance only.
func (s *ShippingSelection) ApplyCoordinate(c Coordinate, p Provenance) {
	s.Coordinate = c
	s.Provenance = p
}

// Validate applies the submission rules in order and returns the first
// failure. The coordinate is not checked.
func (s *ShippingSelection) Validate() error {
	if !ValidPhone(s.Phone) {
		return ErrInvalidPhone
	}
	if isBlank(s.Text) {
		return ErrMissingAddress
	}
	return nil
}

// SelectionFromAddress projects a saved address into selection fields.
func SelectionFromAddress(a *Address) ShippingSelection {
	return ShippingSelection{
		Text:       a.Text,
		Phone:      a.Phone,
		Coordinate: a.Coordinate,
		Provenance: ProvenanceSavedAddress,
	}
}
