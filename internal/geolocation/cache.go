package geolocation

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront-shipping/internal/domain"
	"github.com/utafrali/storefront-shipping/internal/metrics"
	"github.com/utafrali/storefront-shipping/pkg/logger"
)

const ipCacheKeyPrefix = "shipping:ipgeo:"

// CachedIPLocator caches successful lookups of another IPLocator in Redis.
// Cache failures are logged and bypassed.
type CachedIPLocator struct {
	next   IPLocator
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedIPLocator wraps next with a Redis cache holding entries for ttl.
func NewCachedIPLocator(next IPLocator, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedIPLocator {
	return &CachedIPLocator{next: next, client: client, ttl: ttl, logger: logger}
}

func ipCacheKey(ip string) string {
	if ip = PublicIP(ip); ip == "" {
		return ipCacheKeyPrefix + "self"
	}
	return ipCacheKeyPrefix + ip
}

// Lookup serves ip from the cache or delegates to the wrapped locator.
func (c *CachedIPLocator) Lookup(ctx context.Context, ip string) (domain.Coordinate, error) {
	key := ipCacheKey(ip)
	log := logger.WithContext(ctx, c.logger)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var coord domain.Coordinate
		if jsonErr := json.Unmarshal(data, &coord); jsonErr == nil && coord.Valid() {
			metrics.ObserveIPCache(true)
			return coord, nil
		}
		log.Warn("discarding corrupt ip location cache entry", slog.String("key", key))
	case !errors.Is(err, redis.Nil):
		log.Warn("ip location cache read failed", slog.String("error", err.Error()))
	}
	metrics.ObserveIPCache(false)

	coord, err := c.next.Lookup(ctx, ip)
	if err != nil {
		return domain.Coordinate{}, err
	}

	if data, err := json.Marshal(coord); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			log.Warn("ip location cache write failed", slog.String("error", err.Error()))
		}
	}
	return coord, nil
}
