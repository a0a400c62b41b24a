package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront-shipping/internal/addressbook"
	"github.com/utafrali/storefront-shipping/internal/domain"
	"github.com/utafrali/storefront-shipping/internal/geolocation"
	apperrors "github.com/utafrali/storefront-shipping/pkg/errors"
)

// --- In-memory Session Repository ---

type memSessionRepository struct {
	mu       sync.Mutex
	sessions map[string]domain.ShippingSession
}

func newMemSessionRepository() *memSessionRepository {
	return &memSessionRepository{sessions: make(map[string]domain.ShippingSession)}
}

func (r *memSessionRepository) Create(_ context.Context, s *domain.ShippingSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return apperrors.Conflict("SESSION_EXISTS", "exists")
	}
	r.sessions[s.ID] = *s
	return nil
}

func (r *memSessionRepository) Get(_ context.Context, id string) (*domain.ShippingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, apperrors.NotFound("shipping session", id)
	}
	return &s, nil
}

func (r *memSessionRepository) Update(_ context.Context, id string, fn func(*domain.ShippingSession) error) (*domain.ShippingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, apperrors.NotFound("shipping session", id)
	}
	if err := fn(&s); err != nil {
		return nil, err
	}
	r.sessions[id] = s
	out := s
	return &out, nil
}

// --- Mock Confirmed Repository ---

type mockConfirmedRepository struct {
	mock.Mock
}

func (m *mockConfirmedRepository) GetLatest(ctx context.Context, userID string) (*domain.ConfirmedShippingInfo, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ConfirmedShippingInfo), args.Error(1)
}

func (m *mockConfirmedRepository) SaveLatest(ctx context.Context, info *domain.ConfirmedShippingInfo) error {
	args := m.Called(ctx, info)
	return args.Error(0)
}

// --- Mock Address Book ---

type mockAddressBook struct {
	mock.Mock
}

func (m *mockAddressBook) List(ctx context.Context, userID string) ([]domain.Address, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Address), args.Error(1)
}

func (m *mockAddressBook) Get(ctx context.Context, userID, id string) (*domain.Address, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Address), args.Error(1)
}

func (m *mockAddressBook) Select(addr *domain.Address) domain.ShippingSelection {
	return domain.SelectionFromAddress(addr)
}

func (m *mockAddressBook) Save(ctx context.Context, userID string, fields domain.ShippingSelection) (*domain.Address, error) {
	args := m.Called(ctx, userID, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Address), args.Error(1)
}

func (m *mockAddressBook) Delete(ctx context.Context, userID, id string, confirmer addressbook.Confirmer) ([]domain.Address, domain.Notices, error) {
	args := m.Called(ctx, userID, id, confirmer)
	var list []domain.Address
	if v := args.Get(0); v != nil {
		list = v.([]domain.Address)
	}
	var notices domain.Notices
	if v := args.Get(1); v != nil {
		notices = v.(domain.Notices)
	}
	return list, notices, args.Error(2)
}

// --- Mock Resolver ---

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, req geolocation.ResolveRequest) (*geolocation.Resolution, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geolocation.Resolution), args.Error(1)
}

// --- Mock Event Publisher ---

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishShippingConfirmed(ctx context.Context, info *domain.ConfirmedShippingInfo) error {
	args := m.Called(ctx, info)
	return args.Error(0)
}

// --- Test Helpers ---

const (
	testUserID   = "user-123"
	testTTL      = 30 * time.Minute
	validPhone   = "9876543210"
	validAddress = "12 Park Rd"
)

var defaultCoordinate = domain.Coordinate{Latitude: 23.0225, Longitude: 72.5714}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	sessions  *memSessionRepository
	confirmed *mockConfirmedRepository
	book      *mockAddressBook
	resolver  *mockResolver
	events    *mockPublisher
	svc       *ShippingService
	committer *Committer
}

func newFixture() *fixture {
	f := &fixture{
		sessions:  newMemSessionRepository(),
		confirmed: new(mockConfirmedRepository),
		book:      new(mockAddressBook),
		resolver:  new(mockResolver),
		events:    new(mockPublisher),
	}
	logger := newTestLogger()
	f.svc = NewShippingService(f.sessions, f.confirmed, f.book, f.resolver, logger, Options{
		DefaultCoordinate: defaultCoordinate,
		SessionTTL:        testTTL,
	})
	f.committer = NewCommitter(f.sessions, f.confirmed, f.book, f.events, logger, testTTL)
	return f
}

// startSession opens an unseeded session for userID.
func (f *fixture) startSession(t *testing.T, userID string) *domain.ShippingSession {
	t.Helper()
	if userID != "" {
		f.confirmed.On("GetLatest", mock.Anything, userID).Return(nil, nil).Once()
	}
	res, err := f.svc.Start(context.Background(), userID, "checkout-1")
	require.NoError(t, err)
	return res.Session
}

func assertAppError(t *testing.T, err error, status int, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T", err)
	assert.Equal(t, status, appErr.Status)
	if code != "" {
		assert.Equal(t, code, appErr.Code)
	}
}

func noticeMessages(notices domain.Notices) []string {
	out := make([]string, 0, len(notices))
	for _, n := range notices {
		out = append(out, n.Message)
	}
	return out
}
