package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSendLimiter counts OTP sends per phone in a fixed window using
// INCR and EXPIRE in one MULTI block.
type RedisSendLimiter struct {
	rdb    *redis.Client
	prefix string
	max    int64
	window time.Duration
}

func NewRedisSendLimiter(rdb *redis.Client, max int, window time.Duration) *RedisSendLimiter {
	return &RedisSendLimiter{rdb: rdb, prefix: "ssam:otp:sends:", max: int64(max), window: window}
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (l *RedisSendLimiter) Allow(ctx context.Context, phone string) (time.Duration, bool, error) {
	key := l.prefix + phone
	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, l.window)
		ttl = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("redis send limiter: %w", err)
	}
	if incr.Val() > l.max {
		retry := ttl.Val()
		if retry <= 0 {
			retry = l.window
		}
		return retry, false, nil
	}
	return 0, true, nil
}

// Undo gives back a send that never reached the phone.
func (l *RedisSendLimiter) Undo(ctx context.Context, phone string) error {
	if err := l.rdb.Decr(ctx, l.prefix+phone).Err(); err != nil {
		return fmt.Errorf("redis send limiter undo: %w", err)
	}
	return nil
}
