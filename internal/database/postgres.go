package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	errors "github.com/Proton-105/guildbank/internal/errors"
	"github.com/Proton-105/guildbank/pkg/config"
)

// Open connects to PostgreSQL, applies pool limits and waits until the
// server answers a ping.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*sql.DB, error) {
	if log == nil {
		log = slog.Default()
	}

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	policy := errors.DefaultRetryPolicy()
	policy.MaxRetries = 5

	attempt := 0
	err = errors.WithRetry(ctx, policy, func() error {
		attempt++
		if pingErr := db.PingContext(ctx); pingErr != nil {
			log.Warn("database ping failed",
				slog.Int("attempt", attempt),
				slog.String("host", cfg.Host),
				slog.Any("error", pingErr),
			)
			return errors.NewDatabaseError(pingErr)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("database connected",
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
		slog.String("name", cfg.Name),
	)

	return db, nil
}
