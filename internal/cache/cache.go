// Package cache wraps go-redis for the two read-through caches the
// HTTP surface uses: the market/latest feed and, eventually, the
// candidate-set lookups already memoized in persistence.CandidatesRepo.
// Grounded on the teacher's infrastructure/cache.RedisCache (single
// client, fixed default TTL, JSON-at-the-edge) rather than the
// in-memory internal/data/cache.TTLCache — a multi-process HTTP
// deployment needs a shared cache, not a per-process one.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a JSON-at-the-edge read-through cache over a single redis
// client. A nil *Cache is valid and behaves as an always-miss cache, so
// callers can wire it unconditionally and let config.CacheConfig.Addr
// == "" disable it without an if-cache-enabled branch at every call site.
type Cache struct {
	client     *redis.Client
	defaultTTL time.Duration
}

// New connects to addr/db. Connectivity is not verified here; the first
// Get/Set failure surfaces as a cache miss, never a caller-visible error.
func New(addr string, db int, tls bool, defaultTTL time.Duration) *Cache {
	if addr == "" {
		return nil
	}
	opts := &redis.Options{Addr: addr, DB: db}
	client := redis.NewClient(opts)
	return &Cache{client: client, defaultTTL: defaultTTL}
}

// Get unmarshals the cached value for key into dest. ok is false on a
// miss, a disabled cache, or a redis/unmarshal error — all three are
// equally "go compute it yourself" to the caller.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (ok bool) {
	if c == nil {
		return false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false
	}
	return true
}

// Set marshals value and stores it with ttl (0 uses the configured
// default). Errors are swallowed: a cache write failure must never
// fail the request that is about to serve a correct answer anyway.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if c == nil {
		return
	}
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, key, raw, ttl).Err()
}

// InvalidatePrefix scans and deletes every key starting with prefix.
// Used by the rebuild-materialized admin endpoint: there is no actual
// Postgres materialized view backing the market feed in this schema,
// so "rebuild" means "drop the cached rows and let the next read
// recompute them", which is the behavior this method provides.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) (int, error) {
	if c == nil {
		return 0, nil
	}
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := c.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("cache: scan failed: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("cache: del failed: %w", err)
	}
	return len(keys), nil
}

// Ping reports whether the cache is reachable; used by the /ready probe.
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache: ping failed: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
