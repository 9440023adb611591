// Package guild keeps per-guild bot settings.
package guild

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"

	"github.com/Proton-105/guildbank/internal/domain"
	errors "github.com/Proton-105/guildbank/internal/errors"
	"github.com/Proton-105/guildbank/internal/repository"
)

type Service struct {
	store repository.Store
	log   *slog.Logger
}

func NewService(store repository.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{store: store, log: log}
}

// SetSpamChannel sends the guild's reaction transfer replies to chatID, in
// topic threadID when it is not zero. It replaces any earlier choice.
func (s *Service) SetSpamChannel(ctx context.Context, guild string, chatID int64, threadID int) error {
	if guild == "" {
		return errors.NewValidationError("Guild is required")
	}
	if chatID == 0 {
		return errors.NewValidationError("Chat is required")
	}

	channel := &domain.GuildChannel{Guild: guild, Kind: domain.ChannelSpam, ChatID: chatID, ThreadID: threadID}
	if err := s.store.SetGuildChannel(ctx, channel); err != nil {
		return s.storeError("set_spam_channel", guild, err)
	}

	s.log.InfoContext(ctx, "spam channel set",
		slog.String("guild", guild),
		slog.Int64("chat_id", chatID),
		slog.Int("thread_id", threadID),
	)

	return nil
}

// SpamChannel returns the guild's spam channel, or nil when none is set.
func (s *Service) SpamChannel(ctx context.Context, guild string) (*domain.GuildChannel, error) {
	channel, err := s.store.GuildChannel(ctx, guild, domain.ChannelSpam)
	if stdErrors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.storeError("get_spam_channel", guild, err)
	}

	return channel, nil
}

func (s *Service) storeError(operation, guild string, err error) error {
	s.log.Error("guild operation failed",
		slog.String("operation", operation),
		slog.String("guild", guild),
		slog.Any("error", err),
	)

	return errors.NewDatabaseError(fmt.Errorf("%s: %w", operation, err))
}
