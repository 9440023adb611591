package bot

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/guildbank/internal/bot/handlers"
	errors "github.com/Proton-105/guildbank/internal/errors"
	"github.com/Proton-105/guildbank/pkg/logger"
)

const fallbackUserMessage = "⚠️ Something went wrong. Please try again later."

// RecoveryMiddleware turns a panicking handler into a logged error and a
// generic reply so one bad update cannot stop the poller.
func RecoveryMiddleware(log *slog.Logger, errHandler *errors.Handler) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		return func(c telebot.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}

				ctx := handlers.RequestContext(c)
				log.ErrorContext(ctx, "panic recovered in handler",
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				replyWithError(c, errHandler, fmt.Errorf("panic recovered: %v", r), log)
				err = nil
			}()

			return next(c)
		}
	}
}

// ErrorHandlingMiddleware turns handler errors into a reply built from the
// error's user message.
func ErrorHandlingMiddleware(errHandler *errors.Handler) handlers.Middleware {
	return func(next handlers.Handler) handlers.Handler {
		return func(c telebot.Context) error {
			if err := next(c); err != nil {
				replyWithError(c, errHandler, err, nil)
			}
			return nil
		}
	}
}

func replyWithError(c telebot.Context, errHandler *errors.Handler, err error, log *slog.Logger) {
	if c == nil {
		return
	}

	msg := fallbackUserMessage
	if errHandler != nil {
		if userMsg, _ := errHandler.Handle(handlers.RequestContext(c), err); userMsg != "" {
			msg = userMsg
		}
	}

	if sendErr := c.Reply(msg); sendErr != nil && log != nil {
		log.Error("failed to send error reply", slog.Any("error", sendErr))
	}
}

// LoggingMiddleware attaches a correlation id to the update and logs its handling.
func LoggingMiddleware(log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		return func(c telebot.Context) error {
			ctx := logger.NewCorrelationID(handlers.RequestContext(c))
			c.Set(handlers.ContextKey, ctx)

			start := time.Now()
			userID := int64(0)
			if sender := c.Sender(); sender != nil {
				userID = sender.ID
			}
			chatID := int64(0)
			if chat := c.Chat(); chat != nil {
				chatID = chat.ID
			}
			cmd, _ := handlers.ParseCommand(c.Text())

			log.InfoContext(ctx, "handling update",
				slog.Int64("user_id", userID),
				slog.Int64("chat_id", chatID),
				slog.String("command", cmd),
			)
			err := next(c)
			log.InfoContext(ctx, "handled update",
				slog.Int64("user_id", userID),
				slog.String("command", cmd),
				slog.Duration("duration", time.Since(start)),
				slog.Any("error", err),
			)

			return err
		}
	}
}
