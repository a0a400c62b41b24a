package addressbook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/storefront-shipping/internal/domain"
	"github.com/utafrali/storefront-shipping/internal/metrics"
	"github.com/utafrali/storefront-shipping/internal/repository"
	apperrors "github.com/utafrali/storefront-shipping/pkg/errors"
	"github.com/utafrali/storefront-shipping/pkg/logger"
)

// Notice messages emitted by the address book.
const (
	MsgAddressSelected = "Address Selected"
	MsgAddressDeleted  = "Address deleted"
	MsgDeleteFailed    = "Could not delete address. Please try again."
	MsgLoadFailed      = "Could not load this address. Please try again."
	MsgDeletePrompt    = "Are you sure you want to delete this address?"
)

// Confirmer is the yes/no gate asked before a destructive operation.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// Acknowledged is a Confirmer answering with a decision the caller already
// made, such as an explicit confirm flag on a request.
type Acknowledged bool

// Confirm returns the recorded decision.
func (a Acknowledged) Confirm(context.Context, string) bool {
	return bool(a)
}

// Adapter exposes a user's address book to the shipping flow.
type Adapter struct {
	repo   repository.AddressRepository
	logger *slog.Logger
}

// NewAdapter creates an address book adapter over repo.
func NewAdapter(repo repository.AddressRepository, logger *slog.Logger) *Adapter {
	return &Adapter{repo: repo, logger: logger}
}

// List returns the user's addresses. Anonymous callers have an empty book.
func (a *Adapter) List(ctx context.Context, userID string) ([]domain.Address, error) {
	if userID == "" {
		return []domain.Address{}, nil
	}
	addresses, err := a.repo.ListByUser(ctx, userID)
	metrics.ObserveAddressBook("list", err)
	if err != nil {
		return nil, unavailable("list addresses", err)
	}
	return addresses, nil
}

// Get returns one address of the user.
func (a *Adapter) Get(ctx context.Context, userID, id string) (*domain.Address, error) {
	if userID == "" {
		return nil, apperrors.NotFound("address", id)
	}
	addr, err := a.repo.GetByID(ctx, userID, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
		return nil, unavailable("get address", err)
	}
	return addr, nil
}

// Select projects an address into selection fields. The address is copied.
func (a *Adapter) Select(addr *domain.Address) domain.ShippingSelection {
	return domain.SelectionFromAddress(addr)
}

// Save stores the selection as a new address of the user.
func (a *Adapter) Save(ctx context.Context, userID string, fields domain.ShippingSelection) (*domain.Address, error) {
	if userID == "" {
		return nil, apperrors.Unauthorized("sign in to save addresses")
	}

	addr := &domain.Address{
		ID:         uuid.New().String(),
		UserID:     userID,
		Text:       fields.Text,
		Phone:      fields.Phone,
		Coordinate: fields.Coordinate,
		CreatedAt:  time.Now().UTC(),
	}
	if err := addr.Validate(); err != nil {
		return nil, apperrors.Unprocessable("INVALID_ADDRESS", err.Error(), err)
	}

	err := a.repo.Create(ctx, addr)
	metrics.ObserveAddressBook("save", err)
	if err != nil {
		return nil, unavailable("save address", err)
	}

	logger.WithContext(ctx, a.logger).Info("address saved", slog.String("address_id", addr.ID))
	return addr, nil
}

// Delete removes an address after the confirmer agreed and returns the
// address book as stored afterwards. Deleting an absent id is not an error.
// When the store fails, the list is re-read so no entry disappears
// speculatively, and the error is returned alongside it.
func (a *Adapter) Delete(ctx context.Context, userID, id string, confirmer Confirmer) ([]domain.Address, domain.Notices, error) {
	if confirmer == nil || !confirmer.Confirm(ctx, MsgDeletePrompt) {
		return nil, nil, apperrors.ConfirmationRequired(MsgDeletePrompt)
	}
	if userID == "" {
		return []domain.Address{}, nil, nil
	}

	var notices domain.Notices
	log := logger.WithContext(ctx, a.logger)

	deleted, err := a.repo.Delete(ctx, userID, id)
	metrics.ObserveAddressBook("delete", err)
	if err != nil {
		log.Error("delete address failed",
			slog.String("address_id", id),
			slog.String("error", err.Error()),
		)
		notices.Add(domain.NoticeError, MsgDeleteFailed)

		addresses, listErr := a.repo.ListByUser(ctx, userID)
		if listErr != nil {
			addresses = nil
		}
		return addresses, notices, unavailable("delete address", err)
	}

	if deleted {
		notices.Add(domain.NoticeSuccess, MsgAddressDeleted)
		log.Info("address deleted", slog.String("address_id", id))
	}

	addresses, err := a.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, notices, unavailable("list addresses", err)
	}
	return addresses, notices, nil
}

func unavailable(op string, err error) *apperrors.AppError {
	return &apperrors.AppError{
		Code:    "ADDRESS_BOOK_UNAVAILABLE",
		Message: "address book is temporarily unavailable",
		Status:  http.StatusServiceUnavailable,
		Err:     fmt.Errorf("%s: %w: %w", op, domain.ErrAddressBookUnavailable, err),
	}
}
