// Package ratelimit throttles upload slot requests per connection.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// slidingWindow trims entries older than the window, then admits the call
// when fewer than limit remain. Scores are milliseconds; members carry the
// full nanosecond timestamp so calls within one millisecond stay distinct.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_start = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl_ms = tonumber(ARGV[4])
local member = ARGV[5]

redis.call('ZREMRANGEBYSCORE', key, 0, window_start)
if redis.call('ZCARD', key) < limit then
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, ttl_ms)
	return 1
end
return 0
`)

// RedisLimiter is a sliding-window limiter shared by every gateway instance.
type RedisLimiter struct {
	client redis.Scripter
	limit  int64
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisLimiter admits at most limit calls per key within window.
func NewRedisLimiter(client redis.Scripter, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
		prefix: "ratelimit:slots:",
		now:    time.Now,
	}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := l.now()
	windowStart := now.Add(-l.window).UnixMilli()

	res, err := slidingWindow.Run(ctx, l.client, []string{l.prefix + key},
		now.UnixMilli(), windowStart, l.limit, l.window.Milliseconds(), strconv.FormatInt(now.UnixNano(), 10)).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	return res == 1, nil
}

// NoOp always allows.
type NoOp struct{}

func (NoOp) Allow(context.Context, string) (bool, error) {
	return true, nil
}
