package currencycache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewCache(client, time.Minute), mr
}

func TestCache_RoundTripAndInvalidate(t *testing.T) {
	cache, _ := newCache(t)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "g1", []string{"🍎", "🪙"}))
	emojis, ok, err := cache.Get(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"🍎", "🪙"}, emojis)

	require.NoError(t, cache.Invalidate(ctx, "g1"))
	_, ok, err = cache.Get(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_EmptyListIsCached(t *testing.T) {
	cache, _ := newCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "g1", nil))
	emojis, ok, err := cache.Get(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, emojis)
}

func TestCache_Expires(t *testing.T) {
	cache, mr := newCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "g1", []string{"🪙"}))
	mr.FastForward(2 * time.Minute)

	_, ok, err := cache.Get(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_NilIsNoop(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "g1")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, cache.Set(ctx, "g1", []string{"🪙"}))
	assert.NoError(t, cache.Invalidate(ctx, "g1"))
}
