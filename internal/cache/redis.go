package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		slog.Error("Redis ping failed", "addr", addr, "error", err)
		return nil, err
	}

	slog.Info("Redis connected successfully", "addr", addr)
	return rdb, nil
}

// store is the subset of redis commands used here.
type store interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
	Decr(ctx context.Context, key string) error
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
}

type redisStore struct {
	client redis.Cmdable
}

// IncrWindow increments key and gives it a TTL when it has none, in one
// MULTI/EXEC so a counter can never be left without expiry.
func (s redisStore) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (s redisStore) Decr(ctx context.Context, key string) error {
	return s.client.Decr(ctx, key).Err()
}

func (s redisStore) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s redisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	return n > 0, nil
}
