// Package api exposes the membership synchronizer and ledger reads over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Proton-105/guildbank/internal/domain"
	errors "github.com/Proton-105/guildbank/internal/errors"
	"github.com/Proton-105/guildbank/internal/idempotency"
	"github.com/Proton-105/guildbank/internal/ledger"
	"github.com/Proton-105/guildbank/internal/lifecycle"
	"github.com/Proton-105/guildbank/internal/membership"
	"github.com/Proton-105/guildbank/internal/middleware"
	"github.com/Proton-105/guildbank/pkg/logger"
)

// Ledger is the read side of ledger.Service.
type Ledger interface {
	GetAllCurrenciesForGuild(ctx context.Context, guild string) ([]string, error)
	GetBalances(ctx context.Context, req ledger.GetBalancesRequest) ([]domain.BalanceLine, error)
}

// Membership is implemented by membership.Service.
type Membership interface {
	AddUserRole(ctx context.Context, req membership.AddRoleRequest) (*domain.Role, error)
	GetUserRoles(ctx context.Context, externalUserID, guild string) ([]string, error)
	UpdateUserRoles(ctx context.Context, req membership.UpdateRoleRequest) (*membership.SyncResult, error)
	SetRoleMentionable(ctx context.Context, externalRoleID string, state domain.MentionableState) error
}

// Deps groups the collaborators of the HTTP handler. Idempotency may be nil,
// in which case Idempotency-Key headers are ignored.
type Deps struct {
	Ledger         Ledger
	Membership     Membership
	Health         lifecycle.HealthChecker
	Idempotency    idempotency.Manager
	IdempotencyTTL time.Duration
	RateLimit      *middleware.RateLimitMiddleware
	ErrHandler     *errors.Handler
	Log            *slog.Logger
}

type server struct {
	ledger     Ledger
	membership Membership
	health     lifecycle.HealthChecker
	errHandler *errors.Handler
	log        *slog.Logger
}

// NewHandler builds the routed, instrumented HTTP handler.
func NewHandler(deps Deps) http.Handler {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	errHandler := deps.ErrHandler
	if errHandler == nil {
		errHandler = errors.NewHandler(log, false)
	}
	health := deps.Health
	if health == nil {
		health = lifecycle.NewHealth(nil, log)
	}

	s := &server{
		ledger:     deps.Ledger,
		membership: deps.Membership,
		health:     health,
		errHandler: errHandler,
		log:        log,
	}

	idem := middleware.HTTPIdempotency(deps.Idempotency, deps.IdempotencyTTL, log)
	limited := func(h http.HandlerFunc) http.Handler {
		if deps.RateLimit == nil {
			return h
		}
		return deps.RateLimit.HTTP(h)
	}
	mutating := func(h http.HandlerFunc) http.Handler {
		return limited(idem(h).ServeHTTP)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.liveness)
	mux.HandleFunc("GET /readyz", s.readiness)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("POST /v1/guilds/{guild}/roles", mutating(s.addRole))
	mux.Handle("PUT /v1/guilds/{guild}/roles/{role}/members", mutating(s.updateRoleMembers))
	mux.Handle("PUT /v1/roles/{role}/mentionable", mutating(s.setRoleMentionable))
	mux.Handle("GET /v1/guilds/{guild}/users/{user}/roles", limited(s.userRoles))
	mux.Handle("GET /v1/guilds/{guild}/currencies", limited(s.currencies))
	mux.Handle("GET /v1/guilds/{guild}/balances", limited(s.balances))

	return logger.Middleware(recoverer(log, middleware.New(log)(mux)))
}

func recoverer(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.ErrorContext(r.Context(), "panic recovered in http handler",
					slog.Any("panic", rec),
					slog.String("path", r.URL.Path),
				)
				writeJSON(w, http.StatusInternalServerError, errorBody{Code: "INTERNAL", Message: http.StatusText(http.StatusInternalServerError)})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *server) liveness(w http.ResponseWriter, r *http.Request) {
	if err := s.health.Liveness(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "down", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) readiness(w http.ResponseWriter, r *http.Request) {
	if err := s.health.Readiness(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unready", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
