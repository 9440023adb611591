// Package idempotency makes mutating requests replay-safe: the first request
// with a key runs, later ones receive the stored response.
package idempotency

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var ErrRequestInProgress = errors.New("request with this key is already in progress")

const (
	defaultLockTTL = 5 * time.Minute
	pollInterval   = 100 * time.Millisecond
)

// Response is what gets stored and replayed for a key.
type Response struct {
	StatusCode int    `json:"status_code"`
	Body       []byte `json:"body"`
}

// Operation produces the response for a key. Returning an error stores
// nothing, so a retry with the same key runs the operation again.
type Operation func(ctx context.Context) (*Response, error)

type Result struct {
	Response  *Response
	FromCache bool
}

type Manager interface {
	Execute(
		ctx context.Context,
		key string,
		ttl time.Duration,
		fn Operation,
	) (*Result, error)
}

type manager struct {
	store   Store
	log     *slog.Logger
	lockTTL time.Duration
}

func NewManager(store Store, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		store:   store,
		log:     log,
		lockTTL: defaultLockTTL,
	}
}

func (m *manager) Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if fn == nil {
		return nil, errors.New("operation fn cannot be nil")
	}

	for {
		record, err := m.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if record != nil && record.Status == StatusCompleted {
			m.log.DebugContext(ctx, "replaying idempotent response", slog.String("key", key))
			return &Result{Response: record.Response, FromCache: true}, nil
		}

		token, err := m.store.Lock(ctx, key, m.lockTTL)
		if err != nil {
			return nil, err
		}

		if token == "" {
			if record != nil && record.Status == StatusProcessing {
				return nil, ErrRequestInProgress
			}

			// Another request holds the lock but has not written its
			// processing record yet.
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(pollInterval):
				continue
			}
		}

		return m.run(ctx, key, token, ttl, fn)
	}
}

func (m *manager) run(ctx context.Context, key, token string, ttl time.Duration, fn Operation) (*Result, error) {
	defer func() {
		if err := m.store.ReleaseLock(context.WithoutCancel(ctx), key, token); err != nil {
			m.log.Warn("failed to release idempotency lock", slog.String("key", key), slog.Any("error", err))
		}
	}()

	// The previous holder may have completed between Get and Lock.
	record, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if record != nil && record.Status == StatusCompleted {
		return &Result{Response: record.Response, FromCache: true}, nil
	}

	if err := m.store.Set(ctx, key, &Record{Status: StatusProcessing}, m.lockTTL); err != nil {
		return nil, err
	}

	response, err := fn(ctx)
	if err != nil {
		if delErr := m.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			m.log.Warn("failed to clear idempotency record", slog.String("key", key), slog.Any("error", delErr))
		}
		return nil, err
	}

	if err := m.store.Set(ctx, key, &Record{Status: StatusCompleted, Response: response}, ttl); err != nil {
		return nil, err
	}

	return &Result{Response: response}, nil
}
