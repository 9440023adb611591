package logger

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

const mask = "***"

var sensitiveKeys = []string{
	"password",
	"token",
	"secret",
	"api_key",
	"authorization",
	"dsn",
	"idempotency_key",
}

var (
	// Telegram bot tokens, also when embedded in api.telegram.org/bot<token>/ URLs.
	botTokenPattern = regexp.MustCompile(`\d{6,}:[A-Za-z0-9_-]{30,}`)

	// user:password@ in connection URLs such as postgres:// and redis://.
	urlCredentialsPattern = regexp.MustCompile(`(://[^:/@\s]+):[^@\s]+@`)
)

// MaskingHandler wraps a slog.Handler and masks sensitive attributes before delegating.
type MaskingHandler struct {
	next slog.Handler
}

// NewMaskingHandler creates a handler that masks sensitive fields before passing records downstream.
func NewMaskingHandler(next slog.Handler) *MaskingHandler {
	return &MaskingHandler{next: next}
}

// Enabled reports whether the handler handles records at the given level.
func (h *MaskingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// WithAttrs returns a new handler with additional attributes, masked.
func (h *MaskingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		masked = append(masked, maskAttr(attr))
	}
	return &MaskingHandler{next: h.next.WithAttrs(masked)}
}

// WithGroup returns a new handler with an appended group name.
func (h *MaskingHandler) WithGroup(name string) slog.Handler {
	return &MaskingHandler{next: h.next.WithGroup(name)}
}

// Handle applies masking to sensitive attributes and delegates to the wrapped handler.
func (h *MaskingHandler) Handle(ctx context.Context, record slog.Record) error {
	masked := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)

	record.Attrs(func(attr slog.Attr) bool {
		masked.AddAttrs(maskAttr(attr))
		return true
	})

	return h.next.Handle(ctx, masked)
}

func maskAttr(attr slog.Attr) slog.Attr {
	if isSensitiveKey(attr.Key) {
		return slog.String(attr.Key, mask)
	}

	switch attr.Value.Kind() {
	case slog.KindGroup:
		group := attr.Value.Group()
		maskedGroup := make([]any, 0, len(group))
		for _, inner := range group {
			maskedGroup = append(maskedGroup, maskAttr(inner))
		}
		return slog.Group(attr.Key, maskedGroup...)
	case slog.KindString:
		return slog.String(attr.Key, scrub(attr.Value.String()))
	case slog.KindAny:
		if err, ok := attr.Value.Any().(error); ok && err != nil {
			return slog.String(attr.Key, scrub(err.Error()))
		}
	}

	return attr
}

// scrub removes secrets that leak into free text such as error messages.
func scrub(value string) string {
	value = botTokenPattern.ReplaceAllString(value, mask)
	return urlCredentialsPattern.ReplaceAllString(value, "$1:"+mask+"@")
}

func isSensitiveKey(key string) bool {
	for _, sensitive := range sensitiveKeys {
		if strings.EqualFold(key, sensitive) {
			return true
		}
	}
	return false
}
