package verification

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// recordTTL bounds how long a verified record stays cached. Records are
// immutable once written (first write wins), so a short TTL only trades an
// occasional repository read for bounded Redis memory.
const recordTTL = 5 * time.Minute

// Cache abstracts the Redis operations used by the service to make testing
// easier.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache is a concrete implementation backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a new Redis-backed cache adapter.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Set writes a value to Redis. A zero expiration falls back to recordTTL so
// callers cannot accidentally pin a record forever.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if expiration == 0 {
		expiration = recordTTL
	}
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a cached value from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}
