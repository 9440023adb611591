// Package currencycache keeps each guild's currency emoji list in Redis.
package currencycache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a list survives without an invalidation.
const DefaultTTL = 10 * time.Minute

// Cache provides Redis-backed caching for guild currency lists.
type Cache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewCache constructs a currency cache backed by the provided Redis client.
func NewCache(client redis.Cmdable, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// Get returns the cached emojis and whether the guild was cached at all. An
// empty list is a valid cached value.
func (c *Cache) Get(ctx context.Context, guild string) ([]string, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}

	data, err := c.client.Get(ctx, cacheKey(guild)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get cached currencies: %w", err)
	}

	var emojis []string
	if err := json.Unmarshal(data, &emojis); err != nil {
		return nil, false, fmt.Errorf("decode cached currencies: %w", err)
	}

	return emojis, true, nil
}

// Set stores the guild's emoji list.
func (c *Cache) Set(ctx context.Context, guild string, emojis []string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if emojis == nil {
		emojis = []string{}
	}

	payload, err := json.Marshal(emojis)
	if err != nil {
		return fmt.Errorf("encode currencies for cache: %w", err)
	}

	if err := c.client.Set(ctx, cacheKey(guild), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached currencies: %w", err)
	}

	return nil
}

// Invalidate removes the cached list if it exists.
func (c *Cache) Invalidate(ctx context.Context, guild string) error {
	if c == nil || c.client == nil {
		return nil
	}

	if err := c.client.Del(ctx, cacheKey(guild)).Err(); err != nil {
		return fmt.Errorf("delete cached currencies: %w", err)
	}

	return nil
}

func cacheKey(guild string) string {
	return fmt.Sprintf("currencies:%s", guild)
}
