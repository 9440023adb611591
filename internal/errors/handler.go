package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"

	"github.com/Proton-105/guildbank/pkg/logger"
	"github.com/Proton-105/guildbank/pkg/metrics"
)

const (
	genericUserMessage = "Something went wrong. Please try again later"
	unknownCode        = "unknown"
)

// Handler logs errors, reports severe ones to Sentry and picks the message shown to users.
type Handler struct {
	log           *slog.Logger
	sentryEnabled bool
}

func NewHandler(log *slog.Logger, sentryEnabled bool) *Handler {
	if log == nil {
		log = slog.Default()
	}

	return &Handler{
		log:           log,
		sentryEnabled: sentryEnabled,
	}
}

// Handle reports err and returns the user-facing message plus whether the caller may retry.
func (h *Handler) Handle(ctx context.Context, err error) (string, bool) {
	if err == nil {
		return "", false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	appErr := classify(err)
	metrics.RecordError(appErr.Code, string(appErr.Severity))

	level, msg := slog.LevelError, "application error"
	switch {
	case appErr.Code == unknownCode:
		msg = "unknown error"
	case appErr.Severity == SeverityLow:
		level = slog.LevelWarn
	}
	h.log.LogAttrs(ctx, level, msg, errorAttrs(ctx, appErr, err)...)

	if h.sentryEnabled && (appErr.Severity == SeverityCritical || appErr.Severity == SeverityHigh) {
		report(err, appErr)
	}

	if appErr.UserMessage == "" {
		return genericUserMessage, appErr.Retryable
	}
	return appErr.UserMessage, appErr.Retryable
}

// classify returns the AppError in err's chain, or a high-severity stand-in
// for errors outside the taxonomy.
func classify(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr
	}

	return &AppError{
		Code:     unknownCode,
		Message:  err.Error(),
		Severity: SeverityHigh,
	}
}

func errorAttrs(ctx context.Context, appErr *AppError, err error) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("code", appErr.Code),
		slog.String("message", appErr.Message),
		slog.String("severity", string(appErr.Severity)),
		slog.Bool("retryable", appErr.Retryable),
	}

	for _, field := range []struct{ key, value string }{
		{"emoji", appErr.Emoji},
		{"actor", appErr.Actor},
		{"role_id", appErr.RoleID},
	} {
		if field.value != "" {
			attrs = append(attrs, slog.String(field.key, field.value))
		}
	}

	if cause := appErr.Cause(); cause != nil {
		attrs = append(attrs, slog.String("cause", cause.Error()))
	} else if appErr.Code == unknownCode {
		attrs = append(attrs, slog.String("type", fmt.Sprintf("%T", err)))
	}

	if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
		attrs = append(attrs, slog.String("correlation_id", correlationID))
	}

	return attrs
}

func report(err error, appErr *AppError) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("code", appErr.Code)
		scope.SetTag("severity", string(appErr.Severity))
		if appErr.Emoji != "" {
			scope.SetTag("emoji", appErr.Emoji)
		}
		if appErr.RoleID != "" {
			scope.SetTag("role_id", appErr.RoleID)
		}
		if appErr.Actor != "" {
			scope.SetUser(sentry.User{ID: appErr.Actor})
		}

		sentry.CaptureException(err)
	})
}
