package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"example.com/pxr/services/ctoken/config"
)

// unsentCountKey caches the unsent-row count between ledger forwards.
const unsentCountKey = "ledger:unsent_count"

// unsentCountTTL keeps the cached count short-lived; the count is only a
// read-side convenience and the database stays authoritative.
const unsentCountTTL = 30 * time.Second

// RedisCache provides caching using Redis
type RedisCache struct {
	client  *redis.Client
	enabled bool
}

// NewRedisCache creates a new Redis cache
func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	if !cfg.Enabled {
		return &RedisCache{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return &RedisCache{
		client:  client,
		enabled: true,
	}, nil
}

// Get retrieves a value from cache
func (c *RedisCache) Get(ctx context.Context, key string, value interface{}) error {
	if !c.enabled {
		return errors.New("cache is disabled")
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return errors.Wrap(err, "key not found in cache")
		}
		return errors.Wrap(err, "failed to get value from Redis")
	}

	err = json.Unmarshal(data, value)
	if err != nil {
		return errors.Wrap(err, "failed to unmarshal cached value")
	}

	return nil
}

// Set stores a value in cache with optional expiration
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if !c.enabled {
		return errors.New("cache is disabled")
	}

	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to marshal value for caching")
	}

	err = c.client.Set(ctx, key, data, expiration).Err()
	if err != nil {
		return errors.Wrap(err, "failed to set value in Redis")
	}

	return nil
}

// GetUnsentCount returns the cached unsent-row count, if present.
func (c *RedisCache) GetUnsentCount(ctx context.Context) (int64, bool) {
	if !c.enabled {
		return 0, false
	}
	var count int64
	if err := c.Get(ctx, unsentCountKey, &count); err != nil {
		return 0, false
	}
	return count, true
}

// SetUnsentCount caches the unsent-row count.
func (c *RedisCache) SetUnsentCount(ctx context.Context, count int64) error {
	if !c.enabled {
		return nil
	}
	return c.Set(ctx, unsentCountKey, count, unsentCountTTL)
}

// InvalidateUnsentCount drops the cached count after a forward changes it.
func (c *RedisCache) InvalidateUnsentCount(ctx context.Context) error {
	if !c.enabled {
		return nil
	}
	return c.client.Del(ctx, unsentCountKey).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	if !c.enabled || c.client == nil {
		return nil
	}

	return c.client.Close()
}
