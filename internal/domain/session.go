package domain

import (
	"time"

	"github.com/google/uuid"
)

// Step is the position of a shipping session in its submission state machine.
type Step string

// Session steps. Committed is terminal.
const (
	StepEditing    Step = "editing"
	StepValidating Step = "validating"
	StepCommitted  Step = "committed"
)

// ShippingSession owns one ShippingSelection for the duration of a checkout.
type ShippingSession struct {
	ID                 string            `json:"id"`
	UserID             string            `json:"user_id,omitempty"`
	CheckoutID         string            `json:"checkout_id,omitempty"`
	Step               Step              `json:"step"`
	Selection          ShippingSelection `json:"selection"`
	Revision           int64             `json:"revision"`
	CoordinateRevision int64             `json:"coordinate_revision"`
	LastError          string            `json:"last_error,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
	ExpiresAt          time.Time         `json:"expires_at"`
}

// NewShippingSession creates an editing session centred on the default
// coordinate and prefilled from the user's last confirmed info, if any.
func NewShippingSession(userID, checkoutID string, def Coordinate, seed *ConfirmedShippingInfo, ttl time.Duration) *ShippingSession {
	now := time.Now().UTC()
	sel := ShippingSelection{
		Coordinate: def,
		Provenance: ProvenanceDefault,
	}
	if seed != nil {
		sel.Text = seed.Text
		sel.Phone = seed.Phone
		if seed.Coordinate.Valid() && !seed.Coordinate.IsZero() {
			sel.ApplyCoordinate(seed.Coordinate, ProvenanceSavedAddress)
		}
	}
	return &ShippingSession{
		ID:         uuid.New().String(),
		UserID:     userID,
		CheckoutID: checkoutID,
		Step:       StepEditing,
		Selection:  sel,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
}

// IsExpired checks whether the session has passed its expiry time.
func (s *ShippingSession) IsExpired() bool {
	return time.Now().UTC().After(s.ExpiresAt)
}

// IsEditable reports whether the selection may still be changed.
func (s *ShippingSession) IsEditable() bool {
	return s.Step == StepEditing
}

// OwnedBy reports whether userID may access the session. Anonymous sessions
// are open to anyone holding their id.
func (s *ShippingSession) OwnedBy(userID string) bool {
	return s.UserID == "" || s.UserID == userID
}

// SetCoordinate updates the coordinate and bumps the coordinate revision.
func (s *ShippingSession) SetCoordinate(c Coordinate, p Provenance) {
	s.Selection.ApplyCoordinate(c, p)
	s.CoordinateRevision++
}

// ApplyAddress replaces the whole selection and bumps the coordinate revision.
func (s *ShippingSession) ApplyAddress(fields ShippingSelection) {
	s.Selection.ApplyAddress(fields)
	s.CoordinateRevision++
}

// Touch records a mutation and slides the expiry window.
func (s *ShippingSession) Touch(ttl time.Duration) {
	now := time.Now().UTC()
	s.Revision++
	s.UpdatedAt = now
	s.ExpiresAt = now.Add(ttl)
}

// Confirm builds the record handed to the checkout flow on commit.
func (s *ShippingSession) Confirm() *ConfirmedShippingInfo {
	return &ConfirmedShippingInfo{
		Text:        s.Selection.Text,
		Phone:       s.Selection.Phone,
		Coordinate:  s.Selection.Coordinate,
		SessionID:   s.ID,
		UserID:      s.UserID,
		CheckoutID:  s.CheckoutID,
		ConfirmedAt: time.Now().UTC(),
	}
}

// ConfirmedShippingInfo is the committed result of a shipping session.
type ConfirmedShippingInfo struct {
	Text        string     `json:"text"`
	Phone       string     `json:"phone"`
	Coordinate  Coordinate `json:"coordinate"`
	SessionID   string     `json:"session_id"`
	UserID      string     `json:"user_id,omitempty"`
	CheckoutID  string     `json:"checkout_id,omitempty"`
	ConfirmedAt time.Time  `json:"confirmed_at"`
}

// NoticeLevel is the severity of a user-facing notice.
type NoticeLevel string

// Notice levels.
const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient message shown to the user after an operation.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

// Notices accumulates the notices emitted while handling one request.
type Notices []Notice

// Add appends a notice.
func (n *Notices) Add(level NoticeLevel, message string) {
	*n = append(*n, Notice{Level: level, Message: message})
}
