package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter is a fixed-window counter kept in Redis. Each key may be hit
// Limit times per Window; the window starts with the first hit.
type Limiter struct {
	client *redis.Client
	prefix string
	Limit  int
	Window time.Duration
}

func NewLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *Limiter {
	return &Limiter{client: client, prefix: prefix, Limit: limit, Window: window}
}

// Result describes one counted hit.
type Result struct {
	Allowed   bool
	Remaining int
	RetryIn   time.Duration
}

// Allow counts a hit against key.
func (l *Limiter) Allow(ctx context.Context, key string) (Result, error) {
	k := fmt.Sprintf("%s:%s", l.prefix, key)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, l.Window)
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{Allowed: true}, fmt.Errorf("rate limit %s: %w", k, err)
	}

	count := int(incr.Val())
	res := Result{
		Allowed:   count <= l.Limit,
		Remaining: l.Limit - count,
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed {
		res.RetryIn = ttl.Val()
		if res.RetryIn <= 0 {
			res.RetryIn = l.Window
		}
	}
	return res, nil
}

// Reset forgets the counter for key. The login handler calls it on success.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, fmt.Sprintf("%s:%s", l.prefix, key)).Err()
}
