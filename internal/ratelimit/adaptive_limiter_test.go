package ratelimit

import (
	"context"
	stdErrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errors "github.com/Proton-105/guildbank/internal/errors"
	"github.com/Proton-105/guildbank/pkg/config"
)

type failingLimiter struct {
	calls int
}

func (f *failingLimiter) Check(context.Context, string, int, time.Duration) (*Result, error) {
	f.calls++
	return nil, stdErrors.New("connection refused")
}

func TestAdaptiveLimiter_UsesPrimary(t *testing.T) {
	client, _ := setupTestRedis(t)

	limiter := NewAdaptiveLimiter(NewRedisLimiter(client, testLogger()), nil, nil, testLogger())
	ctx := context.Background()

	result, err := limiter.Check(ctx, "user:1", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	result, err = limiter.Check(ctx, "user:1", 1, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.False(t, result.Allowed)
}

func TestAdaptiveLimiter_FallsBackAndOpensBreaker(t *testing.T) {
	primary := &failingLimiter{}
	breaker := errors.NewCircuitBreaker(errors.BreakerSettings{
		ErrorThreshold: 0.5,
		MinRequests:    2,
		OpenTimeout:    time.Hour,
	})
	limiter := NewAdaptiveLimiter(primary, NewMemoryLimiter(testLogger()), breaker, testLogger())
	ctx := context.Background()

	// limit 4 halves to 2 on the fallback
	for i := 0; i < 2; i++ {
		result, err := limiter.Check(ctx, "user:1", 4, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}
	assert.Equal(t, errors.StateOpen, breaker.State())

	result, err := limiter.Check(ctx, "user:1", 4, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.False(t, result.Allowed)
	assert.Equal(t, 2, primary.calls)
}

func TestMemoryLimiter_SlidingWindow(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	now := start
	limiter := NewMemoryLimiter(testLogger())
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := limiter.Check(ctx, "user:1", 2, time.Minute)
		require.NoError(t, err)
		now = now.Add(20 * time.Second)
	}

	result, err := limiter.Check(ctx, "user:1", 2, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.True(t, start.Add(time.Minute).Equal(result.ResetAt))

	now = start.Add(time.Minute)
	result, err = limiter.Check(ctx, "user:1", 2, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Remaining)
}

func TestMemoryLimiter_CleanupDropsIdleWindows(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := NewMemoryLimiter(testLogger())
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := limiter.Check(ctx, "user:1", 1, time.Minute)
	require.NoError(t, err)

	assert.Equal(t, 0, limiter.Cleanup(time.Hour))
	now = now.Add(2 * time.Hour)
	assert.Equal(t, 1, limiter.Cleanup(time.Hour))
	assert.Equal(t, 0, limiter.Cleanup(time.Hour))
}

func TestRules(t *testing.T) {
	rules, err := NewRules(config.RateLimitConfig{
		Enabled: true,
		PerUser: config.RateLimitRule{Limit: 30, Window: "1m"},
		Commands: config.RateLimitCommands{
			Send:   config.RateLimitRule{Limit: 10, Window: "1m"},
			Create: config.RateLimitRule{Limit: 3, Window: "1h"},
		},
		Whitelist: []int64{42},
	})
	require.NoError(t, err)

	assert.True(t, rules.Enabled())
	assert.True(t, rules.Exempt(42))
	assert.False(t, rules.Exempt(7))
	assert.Equal(t, Rule{Limit: 30, Window: time.Minute}, rules.PerUser())

	rule, ok := rules.ForCommand("create")
	assert.True(t, ok)
	assert.Equal(t, Rule{Limit: 3, Window: time.Hour}, rule)

	_, ok = rules.ForCommand("balance")
	assert.False(t, ok)
}

func TestNewRules_RejectsBadWindow(t *testing.T) {
	_, err := NewRules(config.RateLimitConfig{
		Enabled: true,
		PerUser: config.RateLimitRule{Limit: 30, Window: "1m"},
		Commands: config.RateLimitCommands{
			Create: config.RateLimitRule{Limit: 3, Window: "bogus"},
		},
	})
	assert.ErrorContains(t, err, "rate_limit.commands.create")

	_, err = NewRules(config.RateLimitConfig{Enabled: true, PerUser: config.RateLimitRule{Limit: 1}})
	assert.ErrorContains(t, err, "window is not set")
}

func TestNewRules_DisabledSkipsParsing(t *testing.T) {
	rules, err := NewRules(config.RateLimitConfig{PerUser: config.RateLimitRule{Window: "bogus"}})
	require.NoError(t, err)
	assert.False(t, rules.Enabled())

	var nilRules *Rules
	assert.False(t, nilRules.Enabled())
}

func TestResult_RetryAfter(t *testing.T) {
	now := time.Now()

	assert.Equal(t, 30, (&Result{ResetAt: now.Add(30 * time.Second)}).RetryAfter(now))
	assert.Equal(t, 1, (&Result{ResetAt: now.Add(-time.Second)}).RetryAfter(now))
}
