// Package ratelimitsvc throttles sensitive endpoints (sign in, password reset)
// with fixed-window counters kept in redis, or in memory when redis is not configured.
package ratelimitsvc

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/academia/core"
)

const keyPrefix = "ratelimit:"

// New returns the limiter matching conf: a no-op one when the limit is disabled,
// a redis one when an address is configured, an in-memory one otherwise.
func New(ctx context.Context, conf *core.Config) (core.RateLimiter, error) {
	switch {
	case conf.RateLimit.Requests <= 0 || conf.RateLimit.Window <= 0:
		return noLimit{}, nil
	case conf.Redis.Addr != "":
		client := redis.NewClient(&redis.Options{
			Addr:        conf.Redis.Addr,
			Password:    conf.Redis.Password,
			DB:          conf.Redis.DB,
			DialTimeout: 5 * time.Second,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, errors.Wrap(err, "pinging redis")
		}
		return NewRedisLimiter(client, conf.RateLimit.Requests, conf.RateLimit.Window), nil
	default:
		return NewMemoryLimiter(conf.RateLimit.Requests, conf.RateLimit.Window), nil
	}
}

type noLimit struct{}

func (noLimit) Allow(context.Context, string) (bool, error) { return true, nil }

type redisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

var _ core.RateLimiter = (*redisLimiter)(nil) // interface compliance check

func NewRedisLimiter(client *redis.Client, limit int, win time.Duration) *redisLimiter {
	return &redisLimiter{client: client, limit: limit, window: win}
}

func (l *redisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	key = keyPrefix + key
	n, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, errors.Wrap(err, "counting attempt")
	}
	if n == 1 {
		// first attempt of the window starts its clock
		if err = l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, errors.Wrap(err, "starting window")
		}
	}
	return n <= int64(l.limit), nil
}

func (l *redisLimiter) Close() error {
	return l.client.Close()
}

type window struct {
	start time.Time
	count int
}

type memoryLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows map[string]window
}

var _ core.RateLimiter = (*memoryLimiter)(nil) // interface compliance check

func NewMemoryLimiter(limit int, win time.Duration) *memoryLimiter {
	return &memoryLimiter{limit: limit, window: win, windows: make(map[string]window)}
}

func (l *memoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := core.Now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.window {
		l.sweep(now)
		w = window{start: now}
	}
	w.count++
	l.windows[key] = w
	return w.count <= l.limit, nil
}

// sweep drops expired windows. The caller holds the lock.
func (l *memoryLimiter) sweep(now time.Time) {
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.window {
			delete(l.windows, key)
		}
	}
}
