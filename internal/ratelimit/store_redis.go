package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

// RedisStore implements Store with a fixed window per key, shared across
// replicas. The window starts at a key's first hit and is never refreshed by
// later ones, so a throttled caller cannot keep itself locked out.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an externally managed client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	redisKey := redisKeyPrefix + key

	pipe := s.client.Pipeline()
	count := pipe.Incr(ctx, redisKey)
	// NX keeps the expiry anchored to the window's first hit.
	pipe.ExpireNX(ctx, redisKey, window)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("rate limit check for %q: %w", key, err)
	}

	reset := ttl.Val()
	if reset < 0 {
		reset = window
	}

	remaining := limit - int(count.Val())
	if remaining < 0 {
		remaining = 0
	}

	return &Result{
		Allowed:   count.Val() <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.Now().Add(reset),
	}, nil
}
