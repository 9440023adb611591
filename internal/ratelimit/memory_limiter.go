package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MemoryLimiter is a process-local Limiter used when Redis is disabled or
// unavailable. Each key keeps the timestamps of its accepted requests.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	log     *slog.Logger
	now     func() time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter returns an in-memory limiter implementation.
func NewMemoryLimiter(log *slog.Logger) *MemoryLimiter {
	if log == nil {
		log = slog.Default()
	}

	return &MemoryLimiter{
		windows: make(map[string][]time.Time),
		log:     log,
		now:     time.Now,
	}
}

// Check enforces a sliding-window limit for key.
func (m *MemoryLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	requests := trimWindow(m.windows[key], now.Add(-window))

	allowed := len(requests) < limit
	if allowed {
		requests = append(requests, now)
	}
	m.windows[key] = requests

	resetAt := now.Add(window)
	if len(requests) > 0 {
		resetAt = requests[0].Add(window)
	}

	result := &Result{
		Allowed:   allowed,
		Remaining: max(limit-len(requests), 0),
		ResetAt:   resetAt,
	}
	if !allowed {
		return result, ErrLimitExceeded
	}

	return result, nil
}

// Cleanup drops keys whose newest request is older than maxAge and reports
// how many were dropped.
func (m *MemoryLimiter) Cleanup(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxAge)
	removed := 0
	for key, requests := range m.windows {
		if len(requests) == 0 || requests[len(requests)-1].Before(cutoff) {
			delete(m.windows, key)
			removed++
		}
	}

	if removed > 0 {
		m.log.Debug("rate limit windows evicted", slog.Int("count", removed))
	}

	return removed
}

// trimWindow drops requests at or before start. requests is ordered oldest first.
func trimWindow(requests []time.Time, start time.Time) []time.Time {
	i := 0
	for i < len(requests) && !requests[i].After(start) {
		i++
	}

	return append(requests[:0], requests[i:]...)
}
