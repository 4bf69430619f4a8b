// Package ratelimit throttles login failures and recovery requests with
// fixed windows kept in Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps failures of the backing store.
var ErrUnavailable = errors.New("rate limiter unavailable")

// Limiter counts events per key inside a fixed window.
type Limiter interface {
	// Check reports common.ErrRateLimited once the key reached its limit.
	Check(ctx context.Context, key string) error
	// Hit records one event and reports common.ErrRateLimited when the
	// window now holds more than the limit.
	Hit(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

// RedisLimiter implements Limiter with INCR + EXPIRE: the window starts at
// the first event for a key and the counter vanishes when it closes.
type RedisLimiter struct {
	redis  redis.Cmdable
	prefix string
	max    int64
	window time.Duration
}

func NewRedisLimiter(client redis.Cmdable, prefix string, max int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{redis: client, prefix: prefix, max: int64(max), window: window}
}

func (l *RedisLimiter) key(k string) string {
	return l.prefix + ":" + k
}

func (l *RedisLimiter) Check(ctx context.Context, key string) error {
	count, err := l.redis.Get(ctx, l.key(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count >= l.max {
		return common.ErrRateLimited
	}
	return nil
}

func (l *RedisLimiter) Hit(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, l.key(key)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, l.key(key), l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if count > l.max {
		return common.ErrRateLimited
	}
	return nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Noop never limits. It is used when no Redis address is configured.
type Noop struct{}

func (Noop) Check(context.Context, string) error { return nil }
func (Noop) Hit(context.Context, string) error   { return nil }
func (Noop) Reset(context.Context, string) error { return nil }
