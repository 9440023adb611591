package idempotency

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
)

// Record is the stored state of a key.
type Record struct {
	Status   string    `json:"status"`
	Response *Response `json:"response,omitempty"`
}

// Store persists records and the per-key lock that serializes first runs.
type Store interface {
	// Lock tries to take the key's lock. The returned token must be passed
	// to ReleaseLock; it is empty when the lock is held by someone else.
	Lock(ctx context.Context, key string, lockTTL time.Duration) (string, error)
	ReleaseLock(ctx context.Context, key, token string) error
	Get(ctx context.Context, key string) (*Record, error)
	Set(ctx context.Context, key string, record *Record, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// releaseIfOwner deletes the lock only while it still carries our token, so
// a request that outlived its lock never frees a successor's lock.
var releaseIfOwner = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisStore keeps each record as a JSON string next to a SET NX lock key.
type RedisStore struct {
	client redis.Cmdable
	log    *slog.Logger
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client redis.Cmdable, log *slog.Logger) *RedisStore {
	if log == nil {
		log = slog.Default()
	}

	return &RedisStore{client: client, log: log}
}

func (s *RedisStore) Lock(ctx context.Context, key string, lockTTL time.Duration) (string, error) {
	token := uuid.NewString()
	acquired, err := s.client.SetNX(ctx, lockKey(key), token, lockTTL).Result()
	if err != nil {
		s.log.Error("failed to acquire idempotency lock", slog.String("key", key), slog.Any("error", err))
		return "", fmt.Errorf("idempotency lock %s: %w", key, err)
	}
	if !acquired {
		return "", nil
	}

	return token, nil
}

func (s *RedisStore) ReleaseLock(ctx context.Context, key, token string) error {
	if token == "" {
		return nil
	}
	if err := releaseIfOwner.Run(ctx, s.client, []string{lockKey(key)}, token).Err(); err != nil {
		return fmt.Errorf("idempotency unlock %s: %w", key, err)
	}

	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	data, err := s.client.Get(ctx, recordKey(key)).Bytes()
	if stdErrors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		s.log.Error("failed to fetch idempotency record", slog.String("key", key), slog.Any("error", err))
		return nil, fmt.Errorf("idempotency get %s: %w", key, err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		s.log.Error("failed to decode idempotency record", slog.String("key", key), slog.Any("error", err))
		return nil, fmt.Errorf("idempotency decode %s: %w", key, err)
	}

	return &record, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, record *Record, ttl time.Duration) error {
	if record == nil {
		return nil
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("idempotency encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, recordKey(key), data, ttl).Err(); err != nil {
		s.log.Error("failed to store idempotency record", slog.String("key", key), slog.Any("error", err))
		return fmt.Errorf("idempotency set %s: %w", key, err)
	}

	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, recordKey(key)).Err(); err != nil {
		return fmt.Errorf("idempotency delete %s: %w", key, err)
	}

	return nil
}

func recordKey(key string) string {
	return "idempotency:" + key
}

func lockKey(key string) string {
	return "idempotency:" + key + ":lock"
}
