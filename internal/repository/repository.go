package repository

import (
	"context"

	"github.com/utafrali/storefront-shipping/internal/domain"
)

// AddressRepository persists the users' address books.
type AddressRepository interface {
	// ListByUser returns a user's addresses, oldest first.
	ListByUser(ctx context.Context, userID string) ([]domain.Address, error)

	// GetByID returns one address of the user.
	GetByID(ctx context.Context, userID, id string) (*domain.Address, error)

	// Create inserts a new address.
	Create(ctx context.Context, address *domain.Address) error

	// Delete removes an address. It reports whether a row was removed.
	Delete(ctx context.Context, userID, id string) (bool, error)
}

// SessionRepository stores shipping sessions.
type SessionRepository interface {
	// Create stores a new session with its expiry.
	Create(ctx context.Context, session *domain.ShippingSession) error

	// Get returns a live session.
	Get(ctx context.Context, id string) (*domain.ShippingSession, error)

	// Update runs fn on the current session and stores the result atomically.
	// fn may run more than once when a concurrent write wins the race; it must
	// not have side effects outside the session. Returning an error from fn
	// aborts the update without writing.
	Update(ctx context.Context, id string, fn func(*domain.ShippingSession) error) (*domain.ShippingSession, error)
}

// ConfirmedRepository keeps the latest confirmed shipping info per user.
type ConfirmedRepository interface {
	// GetLatest returns the user's last confirmed info, or nil when none exists.
	GetLatest(ctx context.Context, userID string) (*domain.ConfirmedShippingInfo, error)

	// SaveLatest replaces the user's last confirmed info.
	SaveLatest(ctx context.Context, info *domain.ConfirmedShippingInfo) error
}
