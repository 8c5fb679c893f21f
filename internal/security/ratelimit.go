// Package security holds the abuse controls for the public intake
// surface: a Redis-backed rate limiter and captcha verification.
package security

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter enforces a fixed-window limit per key.
type RateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// NewRateLimiter returns a limiter allowing limit hits per window.
func NewRateLimiter(client *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, limit: limit, window: window, prefix: "ratelimit"}
}

// Allow consumes one hit for key. When the limit is exceeded it returns
// false with the time to wait before the window resets. Redis failures
// fail open so the public endpoint stays usable.
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)
	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return true, 0, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return true, 0, err
		}
	}
	if count <= int64(l.limit) {
		return true, 0, nil
	}
	ttl, err := l.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl < 0 {
		ttl = l.window
	}
	return false, ttl, nil
}
