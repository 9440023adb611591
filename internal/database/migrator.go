// Package database provides helpers for opening the store and managing migrations.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
)

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		name       VARCHAR(255) PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// Migrator applies plain .up.sql migrations in lexical order, once each.
type Migrator struct {
	db  *sql.DB
	log *slog.Logger
}

// NewMigrator constructs a Migrator that logs through the provided logger instance.
func NewMigrator(db *sql.DB, log *slog.Logger) *Migrator {
	if log == nil {
		log = slog.Default()
	}

	return &Migrator{
		db:  db,
		log: log,
	}
}

// Apply runs every pending *.up.sql found under root in fsys. Each file runs in
// its own transaction together with its schema_migrations bookkeeping row.
func (m *Migrator) Apply(ctx context.Context, fsys fs.FS, root string) error {
	files, err := ListMigrations(fsys, root)
	if err != nil {
		return fmt.Errorf("list migrations in %q: %w", root, err)
	}

	baseLog := m.log.With(slog.String("dir", root))

	if len(files) == 0 {
		baseLog.Info("no .up.sql migrations found")
		return nil
	}

	if _, err := m.db.ExecContext(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := m.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, name := range files {
		if applied[name] {
			baseLog.Debug("migration already applied", slog.String("file", name))
			continue
		}

		if err := m.applyFile(ctx, baseLog, fsys, root, name); err != nil {
			return err
		}
	}

	return nil
}

func (m *Migrator) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("select applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[name] = true
	}

	return applied, rows.Err()
}

func (m *Migrator) applyFile(ctx context.Context, baseLog *slog.Logger, fsys fs.FS, root, name string) error {
	filePath := path.Join(root, name)
	scopedLog := baseLog.With(
		slog.String("file", name),
		slog.String("path", filePath),
	)

	scopedLog.Info("applying migration")

	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return fmt.Errorf("read migration %q: %w", filePath, err)
	}

	statement := strings.TrimSpace(string(data))

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction for migration %q: %w", filePath, err)
	}

	rollback := func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			scopedLog.Error("rollback error", slog.Any("error", rbErr))
		}
	}

	if len(statement) == 0 {
		scopedLog.Warn("migration is empty, recording only")
	} else if _, execErr := tx.ExecContext(ctx, statement); execErr != nil {
		rollback()
		return fmt.Errorf("execute migration %q: %w", filePath, execErr)
	}

	if _, execErr := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); execErr != nil {
		rollback()
		return fmt.Errorf("record migration %q: %w", filePath, execErr)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		rollback()
		return fmt.Errorf("commit migration %q: %w", filePath, commitErr)
	}

	return nil
}

func isUpMigration(name string) bool {
	return strings.HasSuffix(name, ".up.sql")
}

// ListMigrations returns all .up.sql files in dir in lexical order.
func ListMigrations(dir fs.FS, root string) ([]string, error) {
	entries, err := fs.ReadDir(dir, root)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if isUpMigration(e.Name()) {
			names = append(names, e.Name())
		}
	}

	sort.Strings(names)

	return names, nil
}
