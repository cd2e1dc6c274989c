package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, limit int, window time.Duration) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLimiter(client, limit, window), mr
}

func TestNoOp(t *testing.T) {
	var l Limiter = NoOp{}
	for i := 0; i < 10; i++ {
		allowed, err := l.Allow(context.Background(), "conn-1")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
}

func TestRedisLimiter_Allow(t *testing.T) {
	l, _ := newTestLimiter(t, 3, time.Minute)
	ctx := context.Background()

	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}

	for i := 0; i < 3; i++ {
		allowed, err := l.Allow(ctx, "conn-1")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i+1)
	}

	allowed, err := l.Allow(ctx, "conn-1")
	require.NoError(t, err)
	assert.False(t, allowed)

	// Keys are independent.
	allowed, err = l.Allow(ctx, "conn-2")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisLimiter_WindowSlides(t *testing.T) {
	l, _ := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	allowed, err := l.Allow(ctx, "conn-1")
	require.NoError(t, err)
	assert.True(t, allowed)

	clock = clock.Add(30 * time.Second)
	allowed, err = l.Allow(ctx, "conn-1")
	require.NoError(t, err)
	assert.False(t, allowed)

	clock = clock.Add(31 * time.Second)
	allowed, err = l.Allow(ctx, "conn-1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisLimiter_KeyExpires(t *testing.T) {
	l, mr := newTestLimiter(t, 5, time.Minute)

	_, err := l.Allow(context.Background(), "conn-1")
	require.NoError(t, err)
	require.True(t, mr.Exists("ratelimit:slots:conn-1"))

	mr.FastForward(61 * time.Second)
	assert.False(t, mr.Exists("ratelimit:slots:conn-1"))
}

func TestRedisLimiter_Unavailable(t *testing.T) {
	l, mr := newTestLimiter(t, 5, time.Minute)
	mr.Close()

	_, err := l.Allow(context.Background(), "conn-1")
	assert.ErrorContains(t, err, "rate limit check failed")
}
