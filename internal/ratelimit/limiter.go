// Package ratelimit enforces sliding-window limits on chat commands.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Result captures the outcome of a rate-limit evaluation.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns the whole seconds until the window resets, at least one.
func (r *Result) RetryAfter(now time.Time) int {
	if r == nil {
		return 1
	}

	seconds := int(r.ResetAt.Sub(now).Seconds())
	if seconds < 1 {
		return 1
	}
	return seconds
}

// Limiter describes a rate-limiting strategy interface. A rejected check
// returns a Result with Allowed false and ErrLimitExceeded.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// ErrLimitExceeded indicates the rate limit has been reached for the key.
var ErrLimitExceeded = errors.New("rate limit exceeded")
