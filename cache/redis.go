// Package cache stores computed summaries in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/warp/costing-engine/costing"
)

// DefaultPrefix namespaces summary keys.
const DefaultPrefix = "costing:summary:"

// purgeBatch is the SCAN page size used when purging.
const purgeBatch = 500

// RedisCache keeps one JSON-encoded summary per (method, window, scope).
// Summaries are immutable for a given audit trail, so the only invalidation
// is Purge after new events are appended.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache creates a cache on client. A zero ttl keeps entries until
// the next purge.
func NewRedisCache(client *redis.Client, ttl time.Duration, prefix string) *RedisCache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisCache{client: client, ttl: ttl, prefix: prefix}
}

// Key is the Redis key for a computation.
func (c *RedisCache) Key(method costing.Method, w costing.Window) string {
	return fmt.Sprintf("%s%s:%s:%s:%s",
		c.prefix,
		method,
		w.Start().Format(costing.DateLayout),
		costing.Truncate(w.To).Format(costing.DateLayout),
		w.Scope.String(),
	)
}

// Get returns the cached summary, or false on a miss.
func (c *RedisCache) Get(ctx context.Context, method costing.Method, w costing.Window) (costing.Summary, bool, error) {
	data, err := c.client.Get(ctx, c.Key(method, w)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return costing.Summary{}, false, nil
		}
		return costing.Summary{}, false, fmt.Errorf("redis get summary: %w", err)
	}

	var s costing.Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return costing.Summary{}, false, fmt.Errorf("unmarshal summary: %w", err)
	}
	return s, true, nil
}

// Set stores s under the key of its own method and window.
func (c *RedisCache) Set(ctx context.Context, s costing.Summary) error {
	w := costing.Window{From: s.From, To: s.To, Scope: s.Scope}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := c.client.Set(ctx, c.Key(s.Method, w), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set summary: %w", err)
	}
	return nil
}

// Purge deletes every summary under the prefix and returns how many went.
func (c *RedisCache) Purge(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", purgeBatch).Result()
		if err != nil {
			return deleted, fmt.Errorf("redis scan summaries: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("redis del summaries: %w", err)
			}
			deleted += int(n)
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

// Ping checks the connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
