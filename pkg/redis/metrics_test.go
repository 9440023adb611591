package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHook_CountsCommands(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	rdb.AddHook(MetricsHook{})

	ctx := context.Background()
	beforeGet := testutil.ToFloat64(redisRequestsTotal.WithLabelValues("get"))
	beforeErr := testutil.ToFloat64(redisErrorsTotal.WithLabelValues("get"))

	require.NoError(t, rdb.Set(ctx, "k", "v", 0).Err())
	require.Equal(t, "v", rdb.Get(ctx, "k").Val())
	_, err := rdb.Get(ctx, "missing").Result()
	require.ErrorIs(t, err, goredis.Nil)

	assert.Equal(t, beforeGet+2, testutil.ToFloat64(redisRequestsTotal.WithLabelValues("get")))
	assert.Equal(t, beforeErr, testutil.ToFloat64(redisErrorsTotal.WithLabelValues("get")))
}
