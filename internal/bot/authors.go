package bot

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Proton-105/guildbank/internal/domain"
)

// DefaultAuthorTTL is how long a message author stays known when no TTL is configured.
const DefaultAuthorTTL = 48 * time.Hour

// maxMemoryAuthors caps MemoryAuthors before expired entries are pruned.
const maxMemoryAuthors = 50_000

// MessageAuthors remembers who wrote a group message. Reaction updates only
// carry the message id, so the author has to be recorded when the message
// passes by.
type MessageAuthors interface {
	Remember(ctx context.Context, chatID int64, messageID int, author domain.UserRef) error
	// Author returns nil when the message is unknown or expired.
	Author(ctx context.Context, chatID int64, messageID int) (*domain.UserRef, error)
}

// RedisAuthors stores authors as JSON strings with a TTL.
type RedisAuthors struct {
	client redis.Cmdable
	ttl    time.Duration
}

var _ MessageAuthors = (*RedisAuthors)(nil)

func NewRedisAuthors(client redis.Cmdable, ttl time.Duration) *RedisAuthors {
	if ttl <= 0 {
		ttl = DefaultAuthorTTL
	}
	return &RedisAuthors{client: client, ttl: ttl}
}

func (a *RedisAuthors) Remember(ctx context.Context, chatID int64, messageID int, author domain.UserRef) error {
	data, err := json.Marshal(author)
	if err != nil {
		return fmt.Errorf("encode message author: %w", err)
	}
	if err := a.client.Set(ctx, authorKey(chatID, messageID), data, a.ttl).Err(); err != nil {
		return fmt.Errorf("store message author: %w", err)
	}
	return nil
}

func (a *RedisAuthors) Author(ctx context.Context, chatID int64, messageID int) (*domain.UserRef, error) {
	data, err := a.client.Get(ctx, authorKey(chatID, messageID)).Bytes()
	if stdErrors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message author: %w", err)
	}

	var author domain.UserRef
	if err := json.Unmarshal(data, &author); err != nil {
		return nil, fmt.Errorf("decode message author: %w", err)
	}
	return &author, nil
}

func authorKey(chatID int64, messageID int) string {
	return fmt.Sprintf("reaction:author:%d:%d", chatID, messageID)
}

type authorEntry struct {
	author  domain.UserRef
	expires time.Time
}

type messageKey struct {
	chatID    int64
	messageID int
}

// MemoryAuthors is the process-local MessageAuthors used without Redis.
type MemoryAuthors struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[messageKey]authorEntry
	now     func() time.Time
}

var _ MessageAuthors = (*MemoryAuthors)(nil)

func NewMemoryAuthors(ttl time.Duration) *MemoryAuthors {
	if ttl <= 0 {
		ttl = DefaultAuthorTTL
	}
	return &MemoryAuthors{ttl: ttl, entries: make(map[messageKey]authorEntry), now: time.Now}
}

func (a *MemoryAuthors) Remember(_ context.Context, chatID int64, messageID int, author domain.UserRef) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if len(a.entries) >= maxMemoryAuthors {
		for key, entry := range a.entries {
			if !entry.expires.After(now) {
				delete(a.entries, key)
			}
		}
	}
	// Still full of live entries: evict any one.
	if len(a.entries) >= maxMemoryAuthors {
		for key := range a.entries {
			delete(a.entries, key)
			break
		}
	}

	a.entries[messageKey{chatID: chatID, messageID: messageID}] = authorEntry{author: author, expires: now.Add(a.ttl)}
	return nil
}

func (a *MemoryAuthors) Author(_ context.Context, chatID int64, messageID int) (*domain.UserRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := messageKey{chatID: chatID, messageID: messageID}
	entry, ok := a.entries[key]
	if !ok {
		return nil, nil
	}
	if !entry.expires.After(a.now()) {
		delete(a.entries, key)
		return nil, nil
	}

	author := entry.author
	return &author, nil
}
