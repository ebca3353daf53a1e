package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/crowdsale-engine/internal/config"
	apperrors "github.com/crowdsale-engine/internal/errors"
	"github.com/crowdsale-engine/internal/sale"
	"github.com/redis/go-redis/v9"
)

// RedisCache wraps the Redis client
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache connection
func NewRedisCache(cfg *config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheWithClient wraps an existing client; tests use this with
// miniredis.
func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Client returns the underlying Redis client
func (r *RedisCache) Client() *redis.Client {
	return r.client
}

// Ping checks if Redis is reachable
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// StatusCache caches the time-dependent crowdsale status projection with a
// short TTL. Cached entries are invalidated on every purchase, so a cached
// projection is never older than the TTL and never predates the latest
// state change.
type StatusCache struct {
	cache *RedisCache
	ttl   time.Duration
}

// NewStatusCache creates a status cache with the given TTL.
func NewStatusCache(cache *RedisCache, ttl time.Duration) *StatusCache {
	return &StatusCache{cache: cache, ttl: ttl}
}

// statusKey builds the cache key for one sale's status projection.
func statusKey(saleID string) string {
	return fmt.Sprintf("sale:%s:status", saleID)
}

// Get returns the cached status for a sale, or (nil, nil) on a miss.
func (c *StatusCache) Get(ctx context.Context, saleID string) (*sale.CrowdsaleStatus, error) {
	data, err := c.cache.client.Get(ctx, statusKey(saleID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, apperrors.NewCacheError("get status", err)
	}

	var status sale.CrowdsaleStatus
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		return nil, apperrors.NewCacheError("decode status", err)
	}
	return &status, nil
}

// Set caches the status for a sale.
func (c *StatusCache) Set(ctx context.Context, saleID string, status *sale.CrowdsaleStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return apperrors.NewCacheError("encode status", err)
	}

	if err := c.cache.client.Set(ctx, statusKey(saleID), data, c.ttl).Err(); err != nil {
		return apperrors.NewCacheError("set status", err)
	}
	return nil
}

// Invalidate drops the cached status for a sale; called after every
// successful purchase and administrative change.
func (c *StatusCache) Invalidate(ctx context.Context, saleID string) error {
	if err := c.cache.client.Del(ctx, statusKey(saleID)).Err(); err != nil {
		return apperrors.NewCacheError("invalidate status", err)
	}
	return nil
}
