package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront-shipping/internal/domain"
)

const confirmedKeyPrefix = "shipping:confirmed:"

// ConfirmedRepository implements repository.ConfirmedRepository using Redis.
type ConfirmedRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewConfirmedRepository creates a repository whose entries expire after ttl.
// A zero ttl keeps them forever.
func NewConfirmedRepository(client *redis.Client, ttl time.Duration) *ConfirmedRepository {
	return &ConfirmedRepository{client: client, ttl: ttl}
}

// GetLatest returns the user's last confirmed shipping info, or nil.
func (r *ConfirmedRepository) GetLatest(ctx context.Context, userID string) (*domain.ConfirmedShippingInfo, error) {
	data, err := r.client.Get(ctx, confirmedKeyPrefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get confirmed info: %w", err)
	}

	var info domain.ConfirmedShippingInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("unmarshal confirmed info: %w", err)
	}
	return &info, nil
}

// SaveLatest replaces the user's last confirmed shipping info.
func (r *ConfirmedRepository) SaveLatest(ctx context.Context, info *domain.ConfirmedShippingInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal confirmed info: %w", err)
	}

	if err := r.client.Set(ctx, confirmedKeyPrefix+info.UserID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set confirmed info: %w", err)
	}
	return nil
}
