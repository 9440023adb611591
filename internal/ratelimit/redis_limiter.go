package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

// slidingWindow trims entries older than the window and records the request
// only when it fits. Rejected requests do not consume a slot.
//
// KEYS[1] window key
// ARGV[1] now (ms), ARGV[2] window (ms), ARGV[3] limit, ARGV[4] member
// Returns {allowed, count, oldest score}.
var slidingWindow = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)

local count = redis.call('ZCARD', KEYS[1])
local allowed = 0
if count < limit then
	redis.call('ZADD', KEYS[1], now, ARGV[4])
	count = count + 1
	allowed = 1
end
redis.call('PEXPIRE', KEYS[1], window)

local oldest = now
local first = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
if #first == 2 then
	oldest = tonumber(first[2])
end

return {allowed, count, oldest}
`)

// RedisLimiter keeps one sorted set per key so every replica sharing the
// Redis instance sees the same window.
type RedisLimiter struct {
	client redis.Scripter
	log    *slog.Logger
	now    func() time.Time
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter creates a Redis-backed Limiter.
func NewRedisLimiter(client redis.Scripter, log *slog.Logger) *RedisLimiter {
	if log == nil {
		log = slog.Default()
	}

	return &RedisLimiter{client: client, log: log, now: time.Now}
}

// Check records a request for key and reports whether it fits in limit per window.
func (l *RedisLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	if l.client == nil {
		return nil, errors.New("redis client is not configured for rate limiting")
	}

	now := l.now()
	if limit <= 0 {
		return &Result{ResetAt: now.Add(window)}, ErrLimitExceeded
	}

	reply, err := slidingWindow.Run(ctx, l.client,
		[]string{redisKeyPrefix + key},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		l.log.Error("rate limiter script failed", slog.String("key", key), slog.Any("error", err))
		return nil, fmt.Errorf("redis rate limit %s: %w", key, err)
	}
	if len(reply) != 3 {
		return nil, fmt.Errorf("redis rate limit %s: unexpected reply %v", key, reply)
	}

	result := &Result{
		Allowed:   reply[0] == 1,
		Remaining: max(limit-int(reply[1]), 0),
		ResetAt:   time.UnixMilli(reply[2]).Add(window),
	}
	if !result.Allowed {
		return result, ErrLimitExceeded
	}

	return result, nil
}
