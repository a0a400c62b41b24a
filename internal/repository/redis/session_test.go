package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront-shipping/internal/domain"
	apperrors "github.com/utafrali/storefront-shipping/pkg/errors"
)

func setupTestRedis(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func sampleSession() *domain.ShippingSession {
	return domain.NewShippingSession("user-001", "chk-001",
		domain.Coordinate{Latitude: 23.0225, Longitude: 72.5714}, nil, 30*time.Minute)
}

// ---------------------------------------------------------------------------
// Create / Get
// ---------------------------------------------------------------------------

func TestSessionRepository_CreateAndGet(t *testing.T) {
	client, mr := setupTestRedis(t)
	repo := NewSessionRepository(client)
	s := sampleSession()

	require.NoError(t, repo.Create(context.Background(), s))

	got, err := repo.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, s.Selection, got.Selection)
	assert.Equal(t, domain.StepEditing, got.Step)

	ttl := mr.TTL(sessionKey(s.ID))
	assert.True(t, ttl > 29*time.Minute && ttl <= 30*time.Minute, "ttl = %s", ttl)
}

func TestSessionRepository_Create_Duplicate(t *testing.T) {
	client, _ := setupTestRedis(t)
	repo := NewSessionRepository(client)
	s := sampleSession()

	require.NoError(t, repo.Create(context.Background(), s))
	err := repo.Create(context.Background(), s)

	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

func TestSessionRepository_Get_NotFound(t *testing.T) {
	client, _ := setupTestRedis(t)
	repo := NewSessionRepository(client)

	_, err := repo.Get(context.Background(), "missing")

	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestSessionRepository_Get_ExpiredKey(t *testing.T) {
	client, mr := setupTestRedis(t)
	repo := NewSessionRepository(client)
	s := sampleSession()
	require.NoError(t, repo.Create(context.Background(), s))

	mr.FastForward(31 * time.Minute)

	_, err := repo.Get(context.Background(), s.ID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestSessionRepository_Get_CorruptedJSON(t *testing.T) {
	client, mr := setupTestRedis(t)
	repo := NewSessionRepository(client)
	require.NoError(t, mr.Set(sessionKey("bad"), "{not json"))

	_, err := repo.Get(context.Background(), "bad")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal session")
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

func TestSessionRepository_Update_Persists(t *testing.T) {
	client, _ := setupTestRedis(t)
	repo := NewSessionRepository(client)
	s := sampleSession()
	require.NoError(t, repo.Create(context.Background(), s))

	updated, err := repo.Update(context.Background(), s.ID, func(sess *domain.ShippingSession) error {
		sess.Selection.SetText("12 Park Rd")
		sess.Touch(30 * time.Minute)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.Revision)

	got, err := repo.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, "12 Park Rd", got.Selection.Text)
	assert.Equal(t, int64(1), got.Revision)
}

func TestSessionRepository_Update_FnErrorAborts(t *testing.T) {
	client, _ := setupTestRedis(t)
	repo := NewSessionRepository(client)
	s := sampleSession()
	require.NoError(t, repo.Create(context.Background(), s))

	fnErr := apperrors.Conflict("SESSION_COMMITTED", "done")
	_, err := repo.Update(context.Background(), s.ID, func(sess *domain.ShippingSession) error {
		sess.Selection.SetText("should not persist")
		return fnErr
	})
	assert.ErrorIs(t, err, fnErr)

	got, err := repo.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Selection.Text)
}

func TestSessionRepository_Update_NotFound(t *testing.T) {
	client, _ := setupTestRedis(t)
	repo := NewSessionRepository(client)

	called := false
	_, err := repo.Update(context.Background(), "missing", func(*domain.ShippingSession) error {
		called = true
		return nil
	})

	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.False(t, called)
}

func TestSessionRepository_Update_ConcurrentWritersDoNotLoseUpdates(t *testing.T) {
	client, _ := setupTestRedis(t)
	repo := NewSessionRepository(client)
	s := sampleSession()
	require.NoError(t, repo.Create(context.Background(), s))

	const writers = 5
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Update(context.Background(), s.ID, func(sess *domain.ShippingSession) error {
				sess.Touch(30 * time.Minute)
				return nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	got, err := repo.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(writers), got.Revision)
}

func TestTTLUntil(t *testing.T) {
	assert.Equal(t, time.Second, ttlUntil(time.Now().Add(-time.Minute)))
	assert.InDelta(t, float64(10*time.Minute), float64(ttlUntil(time.Now().Add(10*time.Minute))), float64(time.Second))
}
