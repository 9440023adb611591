package ratelimit

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	errors "github.com/Proton-105/guildbank/internal/errors"
)

var (
	rateLimitChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ratelimit_checks_total",
		Help: "Total number of rate limit checks by backend and result.",
	}, []string{"backend", "result"})

	rateLimitRedisErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ratelimit_redis_errors_total",
		Help: "Total number of Redis errors encountered by the limiter.",
	})
)

func init() {
	prometheus.MustRegister(rateLimitChecksTotal, rateLimitRedisErrorsTotal)
}

const fallbackIdleTTL = 10 * time.Minute

// AdaptiveLimiter delegates to a primary (Redis) limiter behind a circuit
// breaker and falls back to a stricter in-memory limiter while the primary
// fails or the breaker is open.
type AdaptiveLimiter struct {
	primary  Limiter
	fallback *MemoryLimiter
	breaker  *errors.CircuitBreaker
	log      *slog.Logger
}

// NewAdaptiveLimiter creates a limiter that adapts between Redis and in-memory backends.
func NewAdaptiveLimiter(primary Limiter, fallback *MemoryLimiter, breaker *errors.CircuitBreaker, log *slog.Logger) Limiter {
	if log == nil {
		log = slog.Default()
	}
	if fallback == nil {
		fallback = NewMemoryLimiter(log)
	}
	if breaker == nil {
		breaker = errors.NewCircuitBreaker(errors.DefaultBreakerSettings())
	}

	return &AdaptiveLimiter{
		primary:  primary,
		fallback: fallback,
		breaker:  breaker,
		log:      log,
	}
}

// Check evaluates the limit using the primary backend, falling back to memory on errors.
func (a *AdaptiveLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	var result *Result
	err := a.breaker.Call(func() error {
		var checkErr error
		result, checkErr = a.primary.Check(ctx, key, limit, window)
		if stdErrors.Is(checkErr, ErrLimitExceeded) {
			return nil
		}
		return checkErr
	})
	if err == nil {
		rateLimitChecksTotal.WithLabelValues("redis", boolLabel(result.Allowed)).Inc()
		if !result.Allowed {
			return result, ErrLimitExceeded
		}
		return result, nil
	}

	if !stdErrors.Is(err, errors.ErrCircuitOpen) && !stdErrors.Is(err, errors.ErrHalfOpenTooManyRequests) {
		rateLimitRedisErrorsTotal.Inc()
	}
	a.log.Warn("redis limiter unavailable, falling back to in-memory",
		slog.String("key", key),
		slog.String("breaker", a.breaker.State().String()),
		slog.Any("error", err),
	)

	fallbackLimit := limit / 2
	if fallbackLimit <= 0 {
		fallbackLimit = 1
	}

	a.fallback.Cleanup(fallbackIdleTTL)

	fallbackResult, fallbackErr := a.fallback.Check(ctx, key, fallbackLimit, window)
	if fallbackErr != nil && !stdErrors.Is(fallbackErr, ErrLimitExceeded) {
		return nil, fallbackErr
	}

	rateLimitChecksTotal.WithLabelValues("fallback", boolLabel(fallbackResult.Allowed)).Inc()
	if !fallbackResult.Allowed {
		return fallbackResult, ErrLimitExceeded
	}

	return fallbackResult, nil
}

func boolLabel(value bool) string {
	if value {
		return "allowed"
	}
	return "rejected"
}
