package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/utafrali/storefront-shipping/internal/addressbook"
	"github.com/utafrali/storefront-shipping/internal/domain"
	"github.com/utafrali/storefront-shipping/internal/geolocation"
	"github.com/utafrali/storefront-shipping/internal/metrics"
	"github.com/utafrali/storefront-shipping/internal/repository"
	apperrors "github.com/utafrali/storefront-shipping/pkg/errors"
	"github.com/utafrali/storefront-shipping/pkg/logger"
)

// MsgResolutionDiscarded is shown when a location result arrives after the
// selection's coordinate was changed by another action.
const MsgResolutionDiscarded = "Location result discarded because the selection changed."

var (
	errPhoneRejected   = errors.New("phone input rejected")
	errStaleResolution = errors.New("stale location resolution")
)

// AddressBook is the address book surface used by the shipping flow.
type AddressBook interface {
	List(ctx context.Context, userID string) ([]domain.Address, error)
	Get(ctx context.Context, userID, id string) (*domain.Address, error)
	Select(addr *domain.Address) domain.ShippingSelection
	Save(ctx context.Context, userID string, fields domain.ShippingSelection) (*domain.Address, error)
	Delete(ctx context.Context, userID, id string, confirmer addressbook.Confirmer) ([]domain.Address, domain.Notices, error)
}

// LocationResolver runs the device-then-IP fallback chain.
type LocationResolver interface {
	Resolve(ctx context.Context, req geolocation.ResolveRequest) (*geolocation.Resolution, error)
}

// Result is a session together with the notices an operation emitted.
type Result struct {
	Session *domain.ShippingSession `json:"session"`
	Notices domain.Notices          `json:"notices"`
}

func newResult(s *domain.ShippingSession, notices domain.Notices) *Result {
	if notices == nil {
		notices = domain.Notices{}
	}
	return &Result{Session: s, Notices: notices}
}

// Options configures session defaults.
type Options struct {
	DefaultCoordinate domain.Coordinate
	SessionTTL        time.Duration
}

// ShippingService drives shipping sessions from creation until submission.
type ShippingService struct {
	sessions  repository.SessionRepository
	confirmed repository.ConfirmedRepository
	book      AddressBook
	resolver  LocationResolver
	logger    *slog.Logger
	opts      Options
}

// NewShippingService creates a new shipping service.
func NewShippingService(
	sessions repository.SessionRepository,
	confirmed repository.ConfirmedRepository,
	book AddressBook,
	resolver LocationResolver,
	logger *slog.Logger,
	opts Options,
) *ShippingService {
	return &ShippingService{
		sessions:  sessions,
		confirmed: confirmed,
		book:      book,
		resolver:  resolver,
		logger:    logger,
		opts:      opts,
	}
}

// Start opens a shipping session for the user, prefilled from the user's
// last confirmed shipping info when there is one.
func (s *ShippingService) Start(ctx context.Context, userID, checkoutID string) (*Result, error) {
	var seed *domain.ConfirmedShippingInfo
	if userID != "" {
		info, err := s.confirmed.GetLatest(ctx, userID)
		if err != nil {
			logger.WithContext(ctx, s.logger).Warn("could not load last confirmed shipping info",
				slog.String("error", err.Error()),
			)
		}
		seed = info
	}

	session := domain.NewShippingSession(userID, checkoutID, s.opts.DefaultCoordinate, seed, s.opts.SessionTTL)
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	ctx = logger.WithSessionID(ctx, session.ID)
	logger.WithContext(ctx, s.logger).Info("shipping session started",
		slog.String("checkout_id", checkoutID),
		slog.Bool("seeded", seed != nil),
	)
	return newResult(session, nil), nil
}

// Get returns a session the user may access.
func (s *ShippingService) Get(ctx context.Context, userID, id string) (*domain.ShippingSession, error) {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkAccess(session, userID); err != nil {
		return nil, err
	}
	return session, nil
}

// SetText replaces the address text.
func (s *ShippingService) SetText(ctx context.Context, userID, id, text string) (*Result, error) {
	session, err := s.mutate(ctx, userID, id, func(sess *domain.ShippingSession) error {
		sess.Selection.SetText(text)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newResult(session, nil), nil
}

// SetPhone replaces the phone number. Input that is not made of at most ten
// digits is ignored and the session is returned unchanged.
func (s *ShippingService) SetPhone(ctx context.Context, userID, id, phone string) (*Result, error) {
	session, err := s.mutate(ctx, userID, id, func(sess *domain.ShippingSession) error {
		if !sess.Selection.SetPhone(phone) {
			return errPhoneRejected
		}
		return nil
	})
	if errors.Is(err, errPhoneRejected) {
		session, err = s.Get(ctx, userID, id)
	}
	if err != nil {
		return nil, err
	}
	return newResult(session, nil), nil
}

// Select copies a saved address of the user into the selection.
func (s *ShippingService) Select(ctx context.Context, userID, id, addressID string) (*Result, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}

	addr, err := s.book.Get(ctx, userID, addressID)
	if errors.Is(err, domain.ErrAddressBookUnavailable) {
		logger.WithContext(ctx, s.logger).Warn("saved address unavailable",
			slog.String("address_id", addressID),
			slog.String("error", err.Error()),
		)
		var notices domain.Notices
		notices.Add(domain.NoticeError, addressbook.MsgLoadFailed)
		return s.current(ctx, userID, id, notices)
	}
	if err != nil {
		return nil, err
	}
	fields := s.book.Select(addr)

	session, err := s.mutate(ctx, userID, id, func(sess *domain.ShippingSession) error {
		sess.ApplyAddress(fields)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var notices domain.Notices
	notices.Add(domain.NoticeInfo, addressbook.MsgAddressSelected)
	return newResult(session, notices), nil
}

// Pin sets the coordinate from a direct map interaction.
func (s *ShippingService) Pin(ctx context.Context, userID, id string, c domain.Coordinate) (*Result, error) {
	if !c.Valid() {
		return nil, apperrors.InvalidInput("coordinate out of range")
	}
	session, err := s.mutate(ctx, userID, id, func(sess *domain.ShippingSession) error {
		sess.SetCoordinate(c, domain.ProvenanceManual)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newResult(session, nil), nil
}

// LocateInput carries what the client knows about its own location.
type LocateInput struct {
	// Device is the client's device report. Nil means no capability.
	Device   *geolocation.DeviceReport
	ClientIP string
}

// Locate resolves the caller's location and applies it to the session,
// unless the coordinate was changed while the resolution ran. Location
// failures are not errors: the unchanged session is returned with notices.
func (s *ShippingService) Locate(ctx context.Context, userID, id string, in LocateInput) (*Result, error) {
	ctx = logger.WithSessionID(ctx, id)
	log := logger.WithContext(ctx, s.logger)

	session, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := checkEditable(session, userID); err != nil {
		return nil, err
	}
	generation := session.CoordinateRevision

	req := geolocation.ResolveRequest{ClientIP: in.ClientIP}
	if in.Device != nil {
		req.Device = geolocation.NewReportedDevice(in.Device)
	}
	res, err := s.resolver.Resolve(ctx, req)
	if err != nil {
		log.Info("location unavailable", slog.String("reason", err.Error()))
		var notices domain.Notices
		if res != nil {
			notices = res.Notices
		}
		return s.current(ctx, userID, id, notices)
	}
	notices := res.Notices

	updated, err := s.mutate(ctx, userID, id, func(sess *domain.ShippingSession) error {
		if sess.CoordinateRevision != generation {
			return errStaleResolution
		}
		sess.SetCoordinate(res.Coordinate, res.Provenance)
		return nil
	})
	if errors.Is(err, errStaleResolution) {
		metrics.ObserveResolution(resolutionSource(res.Provenance), metrics.OutcomeDiscarded)
		log.Info("discarding stale location result", slog.Int64("generation", generation))
		notices.Add(domain.NoticeInfo, MsgResolutionDiscarded)
		return s.current(ctx, userID, id, notices)
	}
	if err != nil {
		return nil, err
	}
	return newResult(updated, notices), nil
}

// ListAddresses returns the caller's address book.
func (s *ShippingService) ListAddresses(ctx context.Context, userID string) ([]domain.Address, error) {
	return s.book.List(ctx, userID)
}

// DeleteAddress removes an address once confirmed and returns the book.
func (s *ShippingService) DeleteAddress(ctx context.Context, userID, addressID string, confirmed bool) ([]domain.Address, domain.Notices, error) {
	return s.book.Delete(ctx, userID, addressID, addressbook.Acknowledged(confirmed))
}

func (s *ShippingService) current(ctx context.Context, userID, id string, notices domain.Notices) (*Result, error) {
	session, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return newResult(session, notices), nil
}

// mutate applies fn to an editable session and records the change.
func (s *ShippingService) mutate(ctx context.Context, userID, id string, fn func(*domain.ShippingSession) error) (*domain.ShippingSession, error) {
	return s.sessions.Update(ctx, id, func(sess *domain.ShippingSession) error {
		if err := checkEditable(sess, userID); err != nil {
			return err
		}
		if err := fn(sess); err != nil {
			return err
		}
		sess.Touch(s.opts.SessionTTL)
		return nil
	})
}

func checkAccess(session *domain.ShippingSession, userID string) error {
	if !session.OwnedBy(userID) {
		return apperrors.Forbidden("shipping session belongs to another user")
	}
	return nil
}

func checkEditable(session *domain.ShippingSession, userID string) error {
	if err := checkAccess(session, userID); err != nil {
		return err
	}
	switch session.Step {
	case domain.StepCommitted:
		return apperrors.Conflict("SESSION_COMMITTED", "shipping details were already submitted")
	case domain.StepValidating:
		return apperrors.Conflict("SUBMISSION_IN_PROGRESS", "shipping details are being submitted")
	}
	return nil
}

func resolutionSource(p domain.Provenance) string {
	if p == domain.ProvenanceDeviceGeolocation {
		return "device"
	}
	return "ip"
}
