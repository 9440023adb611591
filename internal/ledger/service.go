// Package ledger keeps per-guild currencies and the balances users hold in them.
package ledger

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"

	"github.com/Proton-105/guildbank/internal/domain"
	errors "github.com/Proton-105/guildbank/internal/errors"
	"github.com/Proton-105/guildbank/internal/repository"
	"github.com/Proton-105/guildbank/internal/validation"
	"github.com/Proton-105/guildbank/pkg/metrics"
)

// CreateCurrencyRequest registers a currency and mints InitialAmount to the commissioner.
type CreateCurrencyRequest struct {
	Name          string         `json:"name" validate:"required,max=255"`
	Guild         string         `json:"guild" validate:"required,max=255"`
	Emoji         string         `json:"emoji" validate:"required,max=255"`
	InitialAmount int64          `json:"initial_amount" validate:"min=1000,max=4503599627370495"`
	Commissioner  domain.UserRef `json:"commissioner" validate:"required"`
}

// TransferRequest moves Amount of the guild currency identified by Emoji.
type TransferRequest struct {
	Sender    domain.UserRef `json:"sender" validate:"required"`
	Recipient domain.UserRef `json:"recipient" validate:"required"`
	Amount    int64          `json:"amount" validate:"min=1,max=4503599627370495"`
	Emoji     string         `json:"emoji" validate:"required,max=255"`
	Guild     string         `json:"guild" validate:"required,max=255"`
}

// GetBalancesRequest lists holdings in a guild. Emoji and User narrow the result.
type GetBalancesRequest struct {
	Guild string          `json:"guild" validate:"required,max=255"`
	Emoji string          `json:"emoji,omitempty" validate:"max=255"`
	User  *domain.UserRef `json:"user,omitempty"`
}

// CurrencyCache holds per-guild emoji lists. currencycache.Cache implements it.
type CurrencyCache interface {
	Get(ctx context.Context, guild string) ([]string, bool, error)
	Set(ctx context.Context, guild string, emojis []string) error
	Invalidate(ctx context.Context, guild string) error
}

// Service runs ledger operations, each inside a single store transaction.
type Service struct {
	store repository.Store
	cache CurrencyCache
	log   *slog.Logger
}

// NewService constructs a new Service instance.
func NewService(store repository.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{store: store, log: log}
}

// WithCache makes currency listings read through cache. Cache failures are
// logged and the store is used instead.
func (s *Service) WithCache(cache CurrencyCache) *Service {
	s.cache = cache
	return s
}

// CreateCurrency stores the currency and the commissioner's initial balance.
// A currency already registered for the guild yields a DuplicateCurrencyError
// and leaves the existing one untouched.
func (s *Service) CreateCurrency(ctx context.Context, req CreateCurrencyRequest) (*domain.Currency, error) {
	if err := validation.Struct(req); err != nil {
		metrics.RecordCurrencyCreated("invalid")
		return nil, err
	}

	currency := &domain.Currency{
		Name:  req.Name,
		Emoji: req.Emoji,
		Guild: req.Guild,
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.InsertCurrency(ctx, currency); err != nil {
			if stdErrors.Is(err, repository.ErrUniqueViolation) {
				return errors.NewDuplicateCurrencyError(req.Emoji, req.Guild, req.Commissioner.DisplayName)
			}
			return err
		}

		commissioner, err := tx.UpsertIdentity(ctx, req.Commissioner)
		if err != nil {
			return err
		}

		_, err = tx.CreditBalance(ctx, commissioner.ID, currency.ID, req.InitialAmount)
		return err
	})
	if err != nil {
		metrics.RecordCurrencyCreated(outcome(err))
		return nil, s.storeError("create_currency", req.Guild, err)
	}

	metrics.RecordCurrencyCreated("ok")
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, req.Guild); err != nil {
			s.log.WarnContext(ctx, "failed to invalidate currency cache", slog.String("guild", req.Guild), slog.Any("error", err))
		}
	}
	s.log.InfoContext(ctx, "currency created",
		slog.String("guild", req.Guild),
		slog.String("emoji", req.Emoji),
		slog.String("commissioner", req.Commissioner.ExternalID),
		slog.Int64("initial_amount", req.InitialAmount),
	)

	return currency, nil
}

// GetAllCurrenciesForGuild returns the emojis registered in guild.
func (s *Service) GetAllCurrenciesForGuild(ctx context.Context, guild string) ([]string, error) {
	if s.cache != nil {
		emojis, ok, err := s.cache.Get(ctx, guild)
		if err != nil {
			s.log.WarnContext(ctx, "currency cache read failed", slog.String("guild", guild), slog.Any("error", err))
		} else if ok {
			return emojis, nil
		}
	}

	emojis, err := s.store.CurrencyEmojis(ctx, guild)
	if err != nil {
		return nil, s.storeError("get_currencies", guild, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, guild, emojis); err != nil {
			s.log.WarnContext(ctx, "currency cache write failed", slog.String("guild", guild), slog.Any("error", err))
		}
	}

	return emojis, nil
}

// GetBalances returns holdings ordered by emoji, then by ascending amount.
func (s *Service) GetBalances(ctx context.Context, req GetBalancesRequest) ([]domain.BalanceLine, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	filter := domain.BalanceFilter{Guild: req.Guild, Emoji: req.Emoji}
	if req.User != nil {
		filter.ExternalID = req.User.ExternalID
	}

	lines, err := s.store.Balances(ctx, filter)
	if err != nil {
		return nil, s.storeError("get_balances", req.Guild, err)
	}

	return lines, nil
}

// TransferFunds debits the sender and credits the recipient atomically. The
// recipient's balance row is created on first receipt.
func (s *Service) TransferFunds(ctx context.Context, req TransferRequest) (*domain.TransferReceipt, error) {
	if err := validation.Struct(req); err != nil {
		metrics.RecordTransfer("invalid", 0)
		return nil, err
	}

	if req.Sender.ExternalID == req.Recipient.ExternalID {
		metrics.RecordTransfer("self_transfer", 0)
		return nil, errors.NewSelfTransferError(req.Emoji, req.Sender.DisplayName)
	}

	receipt := &domain.TransferReceipt{Emoji: req.Emoji, Amount: req.Amount}

	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		currency, err := tx.FindCurrency(ctx, req.Guild, req.Emoji)
		if err != nil {
			if stdErrors.Is(err, repository.ErrNotFound) {
				return errors.NewNoCurrencyError(req.Emoji, req.Guild, req.Sender.DisplayName)
			}
			return err
		}

		identities, err := repository.UpsertIdentities(ctx, tx, req.Sender, req.Recipient)
		if err != nil {
			return err
		}
		sender, recipient := identities[req.Sender.ExternalID], identities[req.Recipient.ExternalID]

		held, err := tx.LockBalances(ctx, currency.ID, []int64{sender.ID, recipient.ID})
		if err != nil {
			return err
		}

		var available int64
		for _, b := range held {
			if b.IdentityID == sender.ID {
				available = b.Amount
			}
		}
		if available < req.Amount {
			return errors.NewInsufficientFundsError(req.Emoji, req.Sender.DisplayName, available, req.Amount)
		}

		if receipt.SenderBalance, err = tx.DebitBalance(ctx, sender.ID, currency.ID, req.Amount); err != nil {
			if stdErrors.Is(err, repository.ErrNegativeBalance) {
				return errors.NewInsufficientFundsError(req.Emoji, req.Sender.DisplayName, available, req.Amount)
			}
			return err
		}
		if receipt.RecipientBalance, err = tx.CreditBalance(ctx, recipient.ID, currency.ID, req.Amount); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		metrics.RecordTransfer(outcome(err), 0)
		return nil, s.storeError("transfer_funds", req.Guild, err)
	}

	metrics.RecordTransfer("ok", req.Amount)
	s.log.InfoContext(ctx, "funds transferred",
		slog.String("guild", req.Guild),
		slog.String("emoji", req.Emoji),
		slog.String("sender", req.Sender.ExternalID),
		slog.String("recipient", req.Recipient.ExternalID),
		slog.Int64("amount", req.Amount),
	)

	return receipt, nil
}

// storeError passes domain errors through and wraps anything else as a database error.
func (s *Service) storeError(operation, guild string, err error) error {
	var appErr *errors.AppError
	if stdErrors.As(err, &appErr) {
		return err
	}

	s.log.Error("ledger operation failed",
		slog.String("operation", operation),
		slog.String("guild", guild),
		slog.Any("error", err),
	)

	return errors.NewDatabaseError(fmt.Errorf("%s: %w", operation, err))
}

func outcome(err error) string {
	var appErr *errors.AppError
	if !stdErrors.As(err, &appErr) {
		return "error"
	}

	switch appErr.Code {
	case errors.CodeDuplicateCurrency:
		return "duplicate"
	case errors.CodeNoCurrency:
		return "no_currency"
	case errors.CodeInsufficientFunds:
		return "insufficient_funds"
	default:
		return "error"
	}
}
