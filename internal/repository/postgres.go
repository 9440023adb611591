package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
)

const (
	pqUniqueViolation = "23505"
	pqCheckViolation  = "23514"
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type pgStore struct {
	db  *sql.DB
	log *slog.Logger
}

var _ Store = (*pgStore)(nil)

// NewStore creates a PostgreSQL-backed Store.
func NewStore(db *sql.DB, log *slog.Logger) Store {
	if log == nil {
		log = slog.Default()
	}

	return &pgStore{
		db:  db,
		log: log,
	}
}

// InTx opens a read-committed, read-write transaction around fn.
func (s *pgStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted, ReadOnly: false})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if fnErr := fn(ctx, &pgTx{q: sqlTx}); fnErr != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Error("rollback error", slog.Any("error", rbErr))
		}
		return fnErr
	}

	if err := sqlTx.Commit(); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Error("rollback error after commit failure", slog.Any("error", rbErr))
		}
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

type pgTx struct {
	q queryer
}

var _ Tx = (*pgTx)(nil)

func translate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%w: %s", ErrUniqueViolation, pqErr.Constraint)
		case pqCheckViolation:
			return fmt.Errorf("%w: %s", ErrNegativeBalance, pqErr.Constraint)
		}
	}

	return err
}
