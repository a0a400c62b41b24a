package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront-shipping/internal/domain"
	apperrors "github.com/utafrali/storefront-shipping/pkg/errors"
)

const (
	sessionKeyPrefix = "shipping:session:"

	// maxUpdateAttempts bounds the optimistic retry loop of Update.
	maxUpdateAttempts = 10
)

// SessionRepository implements repository.SessionRepository using Redis.
// Each session is one JSON value whose key expires with the session.
type SessionRepository struct {
	client *redis.Client
}

// NewSessionRepository creates a new Redis-backed session repository.
func NewSessionRepository(client *redis.Client) *SessionRepository {
	return &SessionRepository{client: client}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

// Create stores a new session. It fails if the id is already taken.
func (r *SessionRepository) Create(ctx context.Context, session *domain.ShippingSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ok, err := r.client.SetNX(ctx, sessionKey(session.ID), data, ttlUntil(session.ExpiresAt)).Result()
	if err != nil {
		return fmt.Errorf("redis create session: %w", err)
	}
	if !ok {
		return apperrors.Conflict("SESSION_EXISTS", fmt.Sprintf("shipping session %s already exists", session.ID))
	}
	return nil
}

// Get returns a live session.
func (r *SessionRepository) Get(ctx context.Context, id string) (*domain.ShippingSession, error) {
	return r.load(ctx, r.client, id)
}

// Update applies fn inside a WATCH/MULTI transaction and retries when the
// key changed underneath it.
func (r *SessionRepository) Update(ctx context.Context, id string, fn func(*domain.ShippingSession) error) (*domain.ShippingSession, error) {
	key := sessionKey(id)
	var updated *domain.ShippingSession

	txf := func(tx *redis.Tx) error {
		session, err := r.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(session); err != nil {
			return err
		}

		data, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, ttlUntil(session.ExpiresAt))
			return nil
		})
		if err != nil {
			return err
		}
		updated = session
		return nil
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, apperrors.Conflict("SESSION_BUSY", "shipping session is being modified concurrently, please retry")
}

func (r *SessionRepository) load(ctx context.Context, c redis.Cmdable, id string) (*domain.ShippingSession, error) {
	data, err := c.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("shipping session", id)
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var session domain.ShippingSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	if session.IsExpired() {
		return nil, apperrors.NotFound("shipping session", id)
	}
	return &session, nil
}

// ttlUntil converts an absolute expiry into a Redis TTL. Redis rejects
// non-positive expirations on SET, so a past deadline maps to one second.
func ttlUntil(deadline time.Time) time.Duration {
	ttl := time.Until(deadline)
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}
