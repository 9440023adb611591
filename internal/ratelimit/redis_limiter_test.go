package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func newTestRedisLimiter(t *testing.T, now *time.Time) *RedisLimiter {
	t.Helper()

	client, _ := setupTestRedis(t)
	limiter := NewRedisLimiter(client, testLogger())
	limiter.now = func() time.Time { return *now }
	return limiter
}

func TestRedisLimiter_AllowsWithinLimit(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := newTestRedisLimiter(t, &now)

	for i := 0; i < 3; i++ {
		result, err := limiter.Check(context.Background(), "user:1", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, 5-(i+1), result.Remaining)
	}
}

func TestRedisLimiter_RejectedRequestsDoNotConsumeSlots(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := newTestRedisLimiter(t, &now)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := limiter.Check(ctx, "cmd:/send:1", 2, time.Minute)
		require.NoError(t, err)
		now = now.Add(10 * time.Second)
	}

	for i := 0; i < 3; i++ {
		result, err := limiter.Check(ctx, "cmd:/send:1", 2, time.Minute)
		assert.ErrorIs(t, err, ErrLimitExceeded)
		assert.False(t, result.Allowed)
		assert.Zero(t, result.Remaining)
	}

	// The first request leaves the window one minute after it was made.
	now = time.Unix(1_700_000_060, 0)
	result, err := limiter.Check(ctx, "cmd:/send:1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestRedisLimiter_ResetFollowsOldestEntry(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	now := start
	limiter := newTestRedisLimiter(t, &now)
	ctx := context.Background()

	_, err := limiter.Check(ctx, "user:2", 1, time.Minute)
	require.NoError(t, err)

	now = start.Add(45 * time.Second)
	result, err := limiter.Check(ctx, "user:2", 1, time.Minute)
	require.ErrorIs(t, err, ErrLimitExceeded)
	assert.True(t, start.Add(time.Minute).Equal(result.ResetAt))
	assert.Equal(t, 15, result.RetryAfter(now))
}

func TestRedisLimiter_KeysAreIndependent(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := newTestRedisLimiter(t, &now)
	ctx := context.Background()

	_, err := limiter.Check(ctx, "user:1", 1, time.Minute)
	require.NoError(t, err)

	result, err := limiter.Check(ctx, "user:2", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestRedisLimiter_ZeroLimitRejects(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := newTestRedisLimiter(t, &now)

	result, err := limiter.Check(context.Background(), "user:1", 0, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.False(t, result.Allowed)
}

func TestRedisLimiter_ServerDown(t *testing.T) {
	client, mr := setupTestRedis(t)
	limiter := NewRedisLimiter(client, testLogger())
	mr.Close()

	_, err := limiter.Check(context.Background(), "user:1", 1, time.Minute)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrLimitExceeded)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
