package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/guildbank/internal/bot/handlers"
	apperrors "github.com/Proton-105/guildbank/internal/errors"
	"github.com/Proton-105/guildbank/internal/i18n"
	"github.com/Proton-105/guildbank/internal/ratelimit"
)

// RateLimitMiddleware enforces per-user and per-command limits for bot commands.
type RateLimitMiddleware struct {
	limiter  ratelimit.Limiter
	rules    *ratelimit.Rules
	messages *i18n.Manager
	log      *slog.Logger
	now      func() time.Time
}

// NewRateLimitMiddleware constructs a rate-limit middleware component.
func NewRateLimitMiddleware(limiter ratelimit.Limiter, rules *ratelimit.Rules, messages *i18n.Manager, log *slog.Logger) *RateLimitMiddleware {
	if log == nil {
		log = slog.Default()
	}

	return &RateLimitMiddleware{
		limiter:  limiter,
		rules:    rules,
		messages: messages,
		log:      log,
		now:      time.Now,
	}
}

// Handle wraps next with the per-user rule, then the command's own rule.
// Limiter failures let the command through.
func (m *RateLimitMiddleware) Handle(next handlers.Handler) handlers.Handler {
	if next == nil {
		return nil
	}

	return func(c telebot.Context) error {
		if m.limiter == nil || !m.rules.Enabled() {
			return next(c)
		}

		sender := c.Sender()
		if sender == nil || m.rules.Exempt(sender.ID) {
			return next(c)
		}

		if result, limited := m.check(c, fmt.Sprintf("user:%d", sender.ID), m.rules.PerUser()); limited {
			return m.reject(c, result)
		}

		cmd, _ := handlers.ParseCommand(c.Text())
		cmd = strings.TrimPrefix(cmd, "/")
		if rule, ok := m.rules.ForCommand(cmd); ok {
			if result, limited := m.check(c, fmt.Sprintf("cmd:%s:%d", cmd, sender.ID), rule); limited {
				return m.reject(c, result)
			}
		}

		return next(c)
	}
}

func (m *RateLimitMiddleware) check(c telebot.Context, key string, rule ratelimit.Rule) (*ratelimit.Result, bool) {
	ctx := handlers.RequestContext(c)

	result, err := m.limiter.Check(ctx, key, rule.Limit, rule.Window)
	if err != nil && !errors.Is(err, ratelimit.ErrLimitExceeded) {
		m.log.WarnContext(ctx, "rate limiter error", slog.String("key", key), slog.Any("error", err))
		return nil, false
	}
	if result == nil || result.Allowed {
		return result, false
	}

	m.log.WarnContext(ctx, "rate limit exceeded", slog.String("key", key))
	return result, true
}

func (m *RateLimitMiddleware) reject(c telebot.Context, result *ratelimit.Result) error {
	lang := ""
	if sender := c.Sender(); sender != nil {
		lang = sender.LanguageCode
	}

	return c.Reply(m.messages.Translator(lang).Tf("errors.rate_limited", result.RetryAfter(m.now())))
}

// HTTP applies the per-user rule to API callers keyed by remote address.
func (m *RateLimitMiddleware) HTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limiter == nil || !m.rules.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}

		rule := m.rules.PerUser()
		result, err := m.limiter.Check(r.Context(), "ip:"+host, rule.Limit, rule.Window)
		if err != nil && !errors.Is(err, ratelimit.ErrLimitExceeded) {
			m.log.WarnContext(r.Context(), "rate limiter error", slog.String("remote", host), slog.Any("error", err))
			next.ServeHTTP(w, r)
			return
		}
		if result == nil || result.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		retryAfter := result.RetryAfter(m.now())
		appErr := apperrors.NewRateLimitError(retryAfter)

		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{"code": appErr.Code, "message": appErr.UserMessage})
	})
}
