package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const denylistPrefix = "denylist:"

// TokenDenylist remembers revoked access token ids until the token would have expired anyway.
type TokenDenylist struct {
	store store
}

func NewTokenDenylist(client redis.Cmdable) *TokenDenylist {
	return &TokenDenylist{store: redisStore{client: client}}
}

func (d *TokenDenylist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	return d.store.SetEx(ctx, denylistPrefix+jti, "1", ttl)
}

func (d *TokenDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	return d.store.Exists(ctx, denylistPrefix+jti)
}
