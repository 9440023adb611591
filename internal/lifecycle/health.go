// Package lifecycle reports process health and orders shutdown.
package lifecycle

import (
	"context"
	"log/slog"
)

// HealthChecker answers liveness and readiness checks.
type HealthChecker interface {
	Liveness(ctx context.Context) error
	Readiness(ctx context.Context) error
}

// DependencyChecker is satisfied by health.Checker.
type DependencyChecker interface {
	Ready(ctx context.Context) error
}

// Health answers liveness unconditionally and readiness from the dependency checks.
type Health struct {
	log  *slog.Logger
	deps DependencyChecker
}

// NewHealth creates a new Health instance. A nil deps makes the process
// ready as soon as it is alive.
func NewHealth(deps DependencyChecker, log *slog.Logger) *Health {
	if log == nil {
		log = slog.Default()
	}
	return &Health{log: log, deps: deps}
}

func (h *Health) Liveness(context.Context) error {
	return nil
}

func (h *Health) Readiness(ctx context.Context) error {
	if h.deps == nil {
		return nil
	}

	if err := h.deps.Ready(ctx); err != nil {
		h.log.WarnContext(ctx, "readiness check failed", slog.Any("error", err))
		return err
	}
	return nil
}
