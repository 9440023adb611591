package middleware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/guildbank/internal/bot/handlers"
	"github.com/Proton-105/guildbank/internal/idempotency"
)

// IdempotencyKeyHeader carries the client supplied idempotency key.
const IdempotencyKeyHeader = "Idempotency-Key"

// Idempotency ensures handlers execute at most once per Telegram update key.
func Idempotency(manager idempotency.Manager, ttl time.Duration, log *slog.Logger) handlers.Middleware {
	if manager == nil {
		return func(next handlers.Handler) handlers.Handler {
			return next
		}
	}
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			key := extractIdempotencyKey(c)
			if key == "" {
				return next(c)
			}

			ctx := handlers.RequestContext(c)

			ran := false
			var handlerErr error
			result, err := manager.Execute(ctx, key, ttl, func(context.Context) (*idempotency.Response, error) {
				ran = true
				if handlerErr = next(c); handlerErr != nil {
					return nil, handlerErr
				}
				return &idempotency.Response{StatusCode: http.StatusOK}, nil
			})
			switch {
			case handlerErr != nil:
				return handlerErr
			case errors.Is(err, idempotency.ErrRequestInProgress):
				log.DebugContext(ctx, "duplicate update still in progress", slog.String("key", key))
				return nil
			case err != nil && ran:
				log.WarnContext(ctx, "idempotency record not stored", slog.String("key", key), slog.Any("error", err))
				return nil
			case err != nil:
				// Without the store a redelivered update may run twice.
				log.WarnContext(ctx, "idempotency store unavailable, handling update unguarded",
					slog.String("key", key), slog.Any("error", err))
				return next(c)
			}

			if result.FromCache {
				log.InfoContext(ctx, "duplicate update skipped", slog.String("key", key))
			}

			return nil
		}
	}
}

func extractIdempotencyKey(c telebot.Context) string {
	if c == nil {
		return ""
	}

	if msg := c.Message(); msg != nil {
		chatID := int64(0)
		if msg.Chat != nil {
			chatID = msg.Chat.ID
		}
		if msg.ID != 0 {
			return fmt.Sprintf("msg:%d:%d", chatID, msg.ID)
		}
	}

	return ""
}

// HTTPIdempotency replays the stored response for requests repeating an
// Idempotency-Key header. Requests without the header pass through. Only
// 2xx responses are stored.
func HTTPIdempotency(manager idempotency.Manager, ttl time.Duration, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		if manager == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := r.Header.Get(IdempotencyKeyHeader)
			if clientKey == "" || r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := idempotency.GenerateKey(r.Method, r.URL.Path, clientKey)
			var passthrough *bufferedResponse

			result, err := manager.Execute(r.Context(), key, ttl, func(ctx context.Context) (*idempotency.Response, error) {
				buf := newBufferedResponse()
				next.ServeHTTP(buf, r.WithContext(ctx))

				if buf.status < 200 || buf.status >= 300 {
					passthrough = buf
					return nil, errNotStored
				}
				return &idempotency.Response{StatusCode: buf.status, Body: buf.body.Bytes()}, nil
			})

			switch {
			case errors.Is(err, errNotStored):
				passthrough.writeTo(w)
				return
			case errors.Is(err, idempotency.ErrRequestInProgress):
				writeConflict(w)
				return
			case err != nil:
				log.ErrorContext(r.Context(), "idempotency store failed", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			if result.FromCache {
				w.Header().Set("Idempotent-Replayed", "true")
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(result.Response.StatusCode)
			_, _ = w.Write(result.Response.Body)
		})
	}
}

var errNotStored = errors.New("response not stored")

func writeConflict(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusConflict)
	_, _ = io.WriteString(w, `{"code":"IN_PROGRESS","message":"request with this key is already in progress"}`)
}

// bufferedResponse holds a handler's output until it is known whether the
// response gets stored.
type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{header: make(http.Header), status: http.StatusOK}
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) Write(p []byte) (int, error) { return b.body.Write(p) }

func (b *bufferedResponse) WriteHeader(status int) { b.status = status }

func (b *bufferedResponse) writeTo(w http.ResponseWriter) {
	for key, values := range b.header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(b.status)
	_, _ = b.body.WriteTo(w)
}
