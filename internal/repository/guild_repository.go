package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Proton-105/guildbank/internal/domain"
)

// SetGuildChannel replaces the guild's channel of the given kind.
func (s *pgStore) SetGuildChannel(ctx context.Context, channel *domain.GuildChannel) error {
	const query = `
		INSERT INTO guild_channels (guild, kind, chat_id, thread_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (guild, kind) DO UPDATE
		SET chat_id = EXCLUDED.chat_id, thread_id = EXCLUDED.thread_id, updated_at = now()
		RETURNING updated_at
	`

	if err := s.db.QueryRowContext(ctx, query,
		channel.Guild,
		string(channel.Kind),
		channel.ChatID,
		channel.ThreadID,
	).Scan(&channel.UpdatedAt); err != nil {
		s.log.Error("failed to set guild channel", slog.String("guild", channel.Guild), slog.Any("error", err))
		return fmt.Errorf("upsert guild channel: %w", err)
	}

	return nil
}

func (s *pgStore) GuildChannel(ctx context.Context, guild string, kind domain.ChannelKind) (*domain.GuildChannel, error) {
	const query = `
		SELECT chat_id, thread_id, updated_at
		FROM guild_channels
		WHERE guild = $1 AND kind = $2
	`

	channel := domain.GuildChannel{Guild: guild, Kind: kind}
	if err := s.db.QueryRowContext(ctx, query, guild, string(kind)).Scan(
		&channel.ChatID,
		&channel.ThreadID,
		&channel.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select guild channel: %w", err)
	}

	return &channel, nil
}
