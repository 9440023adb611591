package middleware

import (
	stdErrors "errors"
	"strings"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/guildbank/internal/bot/handlers"
	errors "github.com/Proton-105/guildbank/internal/errors"
	"github.com/Proton-105/guildbank/pkg/metrics"
)

// Metrics records each command's latency under its name and outcome. It sits
// innermost so domain errors are seen before they are turned into replies.
func Metrics(next handlers.Handler) handlers.Handler {
	if next == nil {
		return nil
	}

	return func(c telebot.Context) error {
		start := time.Now()
		err := next(c)
		metrics.RecordCommand(commandName(c), commandStatus(err), time.Since(start))
		return err
	}
}

func commandName(c telebot.Context) string {
	if c == nil {
		return "unknown"
	}
	if cmd, _ := handlers.ParseCommand(c.Text()); cmd != "" {
		return strings.TrimPrefix(cmd, "/")
	}
	return "unknown"
}

// commandStatus is "ok", the AppError code, or "error" for anything else.
func commandStatus(err error) string {
	if err == nil {
		return "ok"
	}
	var appErr *errors.AppError
	if stdErrors.As(err, &appErr) {
		return appErr.Code
	}
	return "error"
}
