package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Limiter shared by every instance pointing at the same Redis.
// Each window is a counter key created with INCR and given a TTL on first use.
type Redis struct {
	rdb      redis.UniversalClient
	prefix   string
	limit    int
	duration time.Duration
}

// NewRedis creates a Redis-backed limiter allowing limit attempts per duration.
func NewRedis(rdb redis.UniversalClient, prefix string, limit int, duration time.Duration) *Redis {
	if prefix == "" {
		prefix = "boardhub:ratelimit:"
	}
	return &Redis{rdb: rdb, prefix: prefix, limit: limit, duration: duration}
}

// Allow increments the window counter for key.
func (l *Redis) Allow(ctx context.Context, key string) (bool, error) {
	k := l.prefix + key

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	// NX keeps the TTL of an existing window.
	pipe.ExpireNX(ctx, k, l.duration)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= int64(l.limit), nil
}
