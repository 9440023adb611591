package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/Proton-105/guildbank/internal/domain"
)

func (t *pgTx) InsertCurrency(ctx context.Context, currency *domain.Currency) error {
	const query = `
		INSERT INTO currencies (name, emoji, guild)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`

	if err := t.q.QueryRowContext(ctx, query, currency.Name, currency.Emoji, currency.Guild).Scan(
		&currency.ID,
		&currency.CreatedAt,
		&currency.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert currency: %w", translate(err))
	}

	return nil
}

func (t *pgTx) FindCurrency(ctx context.Context, guild, emoji string) (*domain.Currency, error) {
	const query = `
		SELECT id, name, emoji, guild, created_at, updated_at
		FROM currencies
		WHERE guild = $1 AND emoji = $2
	`

	var currency domain.Currency
	if err := t.q.QueryRowContext(ctx, query, guild, emoji).Scan(
		&currency.ID,
		&currency.Name,
		&currency.Emoji,
		&currency.Guild,
		&currency.CreatedAt,
		&currency.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select currency: %w", err)
	}

	return &currency, nil
}

// LockBalances takes row locks in identity order so opposite transfers
// between the same pair cannot deadlock.
func (t *pgTx) LockBalances(ctx context.Context, currencyID int64, identityIDs []int64) ([]domain.Balance, error) {
	const query = `
		SELECT identity_id, currency_id, amount, created_at, updated_at
		FROM balances
		WHERE currency_id = $1 AND identity_id = ANY($2)
		ORDER BY identity_id
		FOR UPDATE
	`

	rows, err := t.q.QueryContext(ctx, query, currencyID, pq.Array(identityIDs))
	if err != nil {
		return nil, fmt.Errorf("lock balances: %w", err)
	}
	defer rows.Close()

	var balances []domain.Balance
	for rows.Next() {
		var b domain.Balance
		if err := rows.Scan(&b.IdentityID, &b.CurrencyID, &b.Amount, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		balances = append(balances, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balances: %w", err)
	}

	return balances, nil
}

func (t *pgTx) CreditBalance(ctx context.Context, identityID, currencyID, amount int64) (int64, error) {
	const query = `
		INSERT INTO balances (identity_id, currency_id, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (identity_id, currency_id) DO UPDATE
		SET amount = balances.amount + EXCLUDED.amount, updated_at = now()
		RETURNING amount
	`

	var balance int64
	if err := t.q.QueryRowContext(ctx, query, identityID, currencyID, amount).Scan(&balance); err != nil {
		return 0, fmt.Errorf("credit balance: %w", translate(err))
	}

	return balance, nil
}

func (t *pgTx) DebitBalance(ctx context.Context, identityID, currencyID, amount int64) (int64, error) {
	const query = `
		UPDATE balances
		SET amount = amount - $3, updated_at = now()
		WHERE identity_id = $1 AND currency_id = $2
		RETURNING amount
	`

	var balance int64
	if err := t.q.QueryRowContext(ctx, query, identityID, currencyID, amount).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("debit balance: %w", translate(err))
	}

	return balance, nil
}

func (s *pgStore) CurrencyEmojis(ctx context.Context, guild string) ([]string, error) {
	const query = `
		SELECT emoji
		FROM currencies
		WHERE guild = $1
		ORDER BY emoji
	`

	rows, err := s.db.QueryContext(ctx, query, guild)
	if err != nil {
		s.log.Error("failed to list currencies", slog.String("guild", guild), slog.Any("error", err))
		return nil, fmt.Errorf("select currencies: %w", err)
	}
	defer rows.Close()

	emojis := make([]string, 0)
	for rows.Next() {
		var emoji string
		if err := rows.Scan(&emoji); err != nil {
			return nil, fmt.Errorf("scan currency: %w", err)
		}
		emojis = append(emojis, emoji)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate currencies: %w", err)
	}

	return emojis, nil
}

func (s *pgStore) Balances(ctx context.Context, filter domain.BalanceFilter) ([]domain.BalanceLine, error) {
	const query = `
		SELECT i.display_name, c.emoji, b.amount
		FROM balances b
		JOIN identities i ON i.id = b.identity_id
		JOIN currencies c ON c.id = b.currency_id
		WHERE c.guild = $1
		  AND ($2::text = '' OR c.emoji = $2::text)
		  AND ($3::text = '' OR i.external_id = $3::text)
		ORDER BY c.emoji ASC, b.amount ASC
	`

	rows, err := s.db.QueryContext(ctx, query, filter.Guild, filter.Emoji, filter.ExternalID)
	if err != nil {
		s.log.Error("failed to list balances", slog.String("guild", filter.Guild), slog.Any("error", err))
		return nil, fmt.Errorf("select balances: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.BalanceLine, 0)
	for rows.Next() {
		var line domain.BalanceLine
		if err := rows.Scan(&line.Name, &line.Emoji, &line.Coins); err != nil {
			return nil, fmt.Errorf("scan balance line: %w", err)
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balance lines: %w", err)
	}

	return lines, nil
}
