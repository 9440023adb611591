// Package repository persists identities, currencies, balances, roles and
// memberships. Store is implemented on PostgreSQL here and in memory by the
// memstore subpackage.
package repository

import (
	"context"
	"errors"

	"github.com/Proton-105/guildbank/internal/domain"
)

var (
	// ErrNotFound is returned when a single-row lookup matches nothing.
	ErrNotFound = errors.New("record not found")
	// ErrUniqueViolation is returned when an insert collides with a unique key.
	ErrUniqueViolation = errors.New("unique constraint violated")
	// ErrNegativeBalance is returned when an adjustment would drive a balance below zero.
	ErrNegativeBalance = errors.New("balance would become negative")
)

// Store is the entry point shared by the ledger and membership engines.
type Store interface {
	// InTx runs fn inside one read-committed, read-write transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	CurrencyEmojis(ctx context.Context, guild string) ([]string, error)
	Balances(ctx context.Context, filter domain.BalanceFilter) ([]domain.BalanceLine, error)
	MentionableRoleIDs(ctx context.Context, externalUserID, guild string) ([]string, error)
	// SetRoleMentionable overrides the state of every role with the external
	// id and reports how many rows changed.
	SetRoleMentionable(ctx context.Context, externalRoleID string, state domain.MentionableState) (int64, error)

	SetGuildChannel(ctx context.Context, channel *domain.GuildChannel) error
	// GuildChannel returns ErrNotFound when the guild has no channel of kind.
	GuildChannel(ctx context.Context, guild string, kind domain.ChannelKind) (*domain.GuildChannel, error)
}

// Tx is the set of statements available inside a transaction.
type Tx interface {
	// UpsertIdentity inserts the user or refreshes its display name.
	UpsertIdentity(ctx context.Context, ref domain.UserRef) (*domain.Identity, error)

	InsertCurrency(ctx context.Context, currency *domain.Currency) error
	FindCurrency(ctx context.Context, guild, emoji string) (*domain.Currency, error)
	// LockBalances returns the balances of the given identities for a currency,
	// locking the rows until the transaction ends. Missing rows are omitted.
	LockBalances(ctx context.Context, currencyID int64, identityIDs []int64) ([]domain.Balance, error)
	// CreditBalance adds amount to a balance, creating the row when absent.
	CreditBalance(ctx context.Context, identityID, currencyID, amount int64) (int64, error)
	// DebitBalance subtracts amount from an existing balance.
	DebitBalance(ctx context.Context, identityID, currencyID, amount int64) (int64, error)

	// UpsertRole inserts a role or refreshes its display name. The stored
	// mentionable state is only replaced when it is not blocked by a user.
	UpsertRole(ctx context.Context, role *domain.Role) error
	// LockRoles returns every role row matching (guild, externalRoleID).
	LockRoles(ctx context.Context, guild, externalRoleID string) ([]domain.Role, error)
	UpdateRoleMentionable(ctx context.Context, roleID int64, state domain.MentionableState) error
	ActivateMemberships(ctx context.Context, roleID int64, identityIDs []int64) error
	DeactivateMemberships(ctx context.Context, roleID int64, identityIDs []int64) error
}
