package idempotency

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupManager(t *testing.T) (Manager, *RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := NewRedisStore(client, log)
	return NewManager(store, log), store, mr
}

func TestManager_ReplaysCompletedResponse(t *testing.T) {
	manager, _, _ := setupManager(t)
	ctx := context.Background()

	calls := 0
	op := func(context.Context) (*Response, error) {
		calls++
		return &Response{StatusCode: 201, Body: []byte(`{"ok":true}`)}, nil
	}

	first, err := manager.Execute(ctx, "k1", time.Hour, op)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := manager.Execute(ctx, "k1", time.Hour, op)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, 201, second.Response.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(second.Response.Body))
	assert.Equal(t, 1, calls)
}

func TestManager_FailedOperationIsNotStored(t *testing.T) {
	manager, store, _ := setupManager(t)
	ctx := context.Background()

	_, err := manager.Execute(ctx, "k2", time.Hour, func(context.Context) (*Response, error) {
		return nil, assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	record, err := store.Get(ctx, "k2")
	require.NoError(t, err)
	assert.Nil(t, record)

	result, err := manager.Execute(ctx, "k2", time.Hour, func(context.Context) (*Response, error) {
		return &Response{StatusCode: 200}, nil
	})
	require.NoError(t, err)
	assert.False(t, result.FromCache)
}

func TestManager_RejectsConcurrentDuplicate(t *testing.T) {
	manager, store, _ := setupManager(t)
	ctx := context.Background()

	token, err := store.Lock(ctx, "k3", time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.NoError(t, store.Set(ctx, "k3", &Record{Status: StatusProcessing}, time.Minute))

	_, err = manager.Execute(ctx, "k3", time.Hour, func(context.Context) (*Response, error) {
		t.Fatal("operation must not run while another request holds the key")
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrRequestInProgress)
}

func TestManager_RecordExpires(t *testing.T) {
	manager, _, mr := setupManager(t)
	ctx := context.Background()

	_, err := manager.Execute(ctx, "k4", time.Minute, func(context.Context) (*Response, error) {
		return &Response{StatusCode: 200}, nil
	})
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	result, err := manager.Execute(ctx, "k4", time.Minute, func(context.Context) (*Response, error) {
		return &Response{StatusCode: 200}, nil
	})
	require.NoError(t, err)
	assert.False(t, result.FromCache)
}

func TestRedisStore_ReleaseLockChecksOwner(t *testing.T) {
	_, store, mr := setupManager(t)
	ctx := context.Background()

	stale, err := store.Lock(ctx, "k5", time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, stale)

	mr.FastForward(2 * time.Second)

	current, err := store.Lock(ctx, "k5", time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, current)

	require.NoError(t, store.ReleaseLock(ctx, "k5", stale))
	assert.True(t, mr.Exists("idempotency:k5:lock"))

	require.NoError(t, store.ReleaseLock(ctx, "k5", current))
	assert.False(t, mr.Exists("idempotency:k5:lock"))
}

func TestRedisStore_StoresJSON(t *testing.T) {
	_, store, mr := setupManager(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k6", &Record{
		Status:   StatusCompleted,
		Response: &Response{StatusCode: 200, Body: []byte("hi")},
	}, time.Minute))

	raw, err := mr.Get("idempotency:k6")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"completed","response":{"status_code":200,"body":"aGk="}}`, raw)

	record, err := store.Get(ctx, "k6")
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), record.Response.Body)
}

func TestGenerateKey(t *testing.T) {
	assert.Equal(t, GenerateKey("POST", "/v1/guilds/1/roles", "abc"), GenerateKey("POST", "/v1/guilds/1/roles", "abc"))
	assert.NotEqual(t, GenerateKey("POST", "/v1/guilds/1/roles", "abc"), GenerateKey("POST", "/v1/guilds/2/roles", "abc"))
	assert.NotEqual(t, GenerateKey("ab", "c"), GenerateKey("a", "bc"))
	assert.Len(t, GenerateKey("PUT", "/v1/roles/r1/mentionable", "k"), 64)
}
