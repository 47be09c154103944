package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/crossborder-liquidity/internal/observability"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache is a JSON read-through cache over Redis. Redis failures are logged
// and treated as misses so callers always fall back to the loader.
type Cache struct {
	redis  redis.Cmdable
	prefix string
}

type envelope struct {
	Value    json.RawMessage `json:"value"`
	StoredAt time.Time       `json:"stored_at"`
}

func New(client redis.Cmdable, prefix string) *Cache {
	return &Cache{redis: client, prefix: prefix}
}

// Get decodes the cached value for key into dst and reports whether it was found.
func (c *Cache) Get(ctx context.Context, key string, dst any) bool {
	if c == nil || c.redis == nil {
		return false
	}
	val, err := c.redis.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("redis cache lookup failed", zap.String("key", c.key(key)), zap.Error(err))
		}
		observability.IncrementCacheEvent(c.prefix, "miss")
		return false
	}

	var env envelope
	if err := json.Unmarshal(val, &env); err != nil {
		zap.L().Warn("discarding malformed cache entry", zap.String("key", c.key(key)), zap.Error(err))
		observability.IncrementCacheEvent(c.prefix, "miss")
		return false
	}
	if err := json.Unmarshal(env.Value, dst); err != nil {
		zap.L().Warn("decode cache entry", zap.String("key", c.key(key)), zap.Error(err))
		observability.IncrementCacheEvent(c.prefix, "miss")
		return false
	}
	observability.IncrementCacheEvent(c.prefix, "hit")
	return true
}

// Set stores v under key for ttl.
func (c *Cache) Set(ctx context.Context, key string, v any, ttl time.Duration) {
	if c == nil || c.redis == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		zap.L().Warn("marshal cache value", zap.Error(err))
		return
	}
	payload, err := json.Marshal(envelope{Value: raw, StoredAt: time.Now().UTC()})
	if err != nil {
		zap.L().Warn("marshal cache envelope", zap.Error(err))
		return
	}
	if err := c.redis.Set(ctx, c.key(key), payload, ttl).Err(); err != nil {
		zap.L().Warn("redis cache set failed", zap.String("key", c.key(key)), zap.Error(err))
	}
}

// Delete removes keys from the cache.
func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if c == nil || c.redis == nil || len(keys) == 0 {
		return
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	if err := c.redis.Del(ctx, full...).Err(); err != nil {
		zap.L().Warn("redis cache delete failed", zap.Strings("keys", full), zap.Error(err))
	}
}

// GetOrLoad returns the cached value for key, or calls load and caches its
// result. Load errors are returned unchanged and never cached.
func GetOrLoad[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var cached T
	if c.Get(ctx, key, &cached) {
		return cached, nil
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	c.Set(ctx, key, v, ttl)
	return v, nil
}

func (c *Cache) key(key string) string {
	return fmt.Sprintf("%s:%s", c.prefix, key)
}
