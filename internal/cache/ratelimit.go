package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter per key.
type RateLimiter struct {
	store  store
	prefix string
	limit  int64
	window time.Duration
}

func NewRateLimiter(client redis.Cmdable, prefix string, limit int, window time.Duration) *RateLimiter {
	return newRateLimiter(redisStore{client: client}, prefix, limit, window)
}

func newRateLimiter(s store, prefix string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{store: s, prefix: prefix, limit: int64(limit), window: window}
}

// Allow counts one attempt for key and reports whether it is within the limit.
// Rejected attempts are not counted against the window.
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := l.prefix + key
	count, err := l.store.IncrWindow(ctx, k, l.window)
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count > l.limit {
		_ = l.store.Decr(ctx, k)
		return false, nil
	}

	return true, nil
}
