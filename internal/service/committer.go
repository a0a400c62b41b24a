package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/utafrali/storefront-shipping/internal/domain"
	"github.com/utafrali/storefront-shipping/internal/metrics"
	"github.com/utafrali/storefront-shipping/internal/repository"
	apperrors "github.com/utafrali/storefront-shipping/pkg/errors"
	"github.com/utafrali/storefront-shipping/pkg/logger"
)

// Submission notices.
const (
	MsgInvalidPhone   = "Invalid Phone Number! Please enter a valid 10-digit mobile number."
	MsgMissingAddress = "Address is required"
	MsgSaveFailed     = "Could not save this address to your address book."
)

// NextStepConfirmOrder is the checkout step that follows a commit.
const NextStepConfirmOrder = "confirm_order"

// Submission result codes.
const (
	CodeInvalidPhone   = "INVALID_PHONE"
	CodeMissingAddress = "MISSING_ADDRESS"
	resultCommitted    = "committed"
)

// AddressSaver persists a selection into the user's address book.
type AddressSaver interface {
	Save(ctx context.Context, userID string, fields domain.ShippingSelection) (*domain.Address, error)
}

// EventPublisher hands confirmed shipping info to the checkout flow.
type EventPublisher interface {
	PublishShippingConfirmed(ctx context.Context, info *domain.ConfirmedShippingInfo) error
}

// SubmitInput carries the options of a submission.
type SubmitInput struct {
	SaveAddress bool
}

// SubmitResult is the outcome of a submission. Info and NextStep are set
// only when the session was committed.
type SubmitResult struct {
	Session  *domain.ShippingSession       `json:"session"`
	Info     *domain.ConfirmedShippingInfo `json:"info,omitempty"`
	NextStep string                        `json:"next_step,omitempty"`
	Notices  domain.Notices                `json:"notices"`
}

// Committer validates a session's selection and commits it.
type Committer struct {
	sessions  repository.SessionRepository
	confirmed repository.ConfirmedRepository
	book      AddressSaver
	events    EventPublisher
	logger    *slog.Logger
	ttl       time.Duration
}

// NewCommitter creates a new committer.
func NewCommitter(
	sessions repository.SessionRepository,
	confirmed repository.ConfirmedRepository,
	book AddressSaver,
	events EventPublisher,
	logger *slog.Logger,
	sessionTTL time.Duration,
) *Committer {
	return &Committer{
		sessions:  sessions,
		confirmed: confirmed,
		book:      book,
		events:    events,
		logger:    logger,
		ttl:       sessionTTL,
	}
}

// Submit validates the selection and, when it passes, commits the session.
// A failed validation returns the session back in editing together with a
// 422 error; the result is non-nil in both cases.
func (c *Committer) Submit(ctx context.Context, userID, id string, in SubmitInput) (*SubmitResult, error) {
	ctx = logger.WithSessionID(ctx, id)
	log := logger.WithContext(ctx, c.logger)

	var invalid error
	session, err := c.sessions.Update(ctx, id, func(s *domain.ShippingSession) error {
		if err := checkEditable(s, userID); err != nil {
			return err
		}
		s.Step = domain.StepValidating
		invalid = s.Selection.Validate()
		if invalid != nil {
			s.Step = domain.StepEditing
			s.LastError = validationCode(invalid)
		} else {
			s.LastError = ""
		}
		s.Touch(c.ttl)
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &SubmitResult{Session: session, Notices: domain.Notices{}}
	if invalid != nil {
		code := validationCode(invalid)
		msg := validationMessage(invalid)
		metrics.ObserveSubmission(code)
		result.Notices.Add(domain.NoticeError, msg)
		log.Info("shipping submission rejected", slog.String("code", code))
		return result, apperrors.Unprocessable(code, msg, invalid)
	}

	if in.SaveAddress && userID != "" {
		if _, err := c.book.Save(ctx, userID, session.Selection); err != nil {
			log.Warn("failed to save address", slog.String("error", err.Error()))
			result.Notices.Add(domain.NoticeWarning, MsgSaveFailed)
		}
	}

	session, err = c.sessions.Update(ctx, id, func(s *domain.ShippingSession) error {
		if s.Step != domain.StepValidating {
			return apperrors.Conflict("SESSION_COMMITTED", "shipping details were already submitted")
		}
		s.Step = domain.StepCommitted
		s.Touch(c.ttl)
		return nil
	})
	if err != nil {
		c.release(ctx, id)
		return nil, err
	}
	result.Session = session

	info := session.Confirm()
	if err := c.events.PublishShippingConfirmed(ctx, info); err != nil {
		log.Error("failed to publish shipping confirmed event",
			slog.String("error", err.Error()),
		)
	}
	if userID != "" {
		if err := c.confirmed.SaveLatest(ctx, info); err != nil {
			log.Warn("failed to store last confirmed shipping info",
				slog.String("error", err.Error()),
			)
		}
	}

	metrics.ObserveSubmission(resultCommitted)
	log.Info("shipping details committed", slog.String("checkout_id", session.CheckoutID))

	result.Info = info
	result.NextStep = NextStepConfirmOrder
	return result, nil
}

// release puts a session stuck in validating back into editing.
func (c *Committer) release(ctx context.Context, id string) {
	_, err := c.sessions.Update(context.WithoutCancel(ctx), id, func(s *domain.ShippingSession) error {
		if s.Step != domain.StepValidating {
			return nil
		}
		s.Step = domain.StepEditing
		s.Touch(c.ttl)
		return nil
	})
	if err != nil {
		logger.WithContext(ctx, c.logger).Error("failed to release shipping session",
			slog.String("error", err.Error()),
		)
	}
}

func validationCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidPhone):
		return CodeInvalidPhone
	case errors.Is(err, domain.ErrMissingAddress):
		return CodeMissingAddress
	default:
		return "INVALID_SELECTION"
	}
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidPhone):
		return MsgInvalidPhone
	case errors.Is(err, domain.ErrMissingAddress):
		return MsgMissingAddress
	default:
		return err.Error()
	}
}
