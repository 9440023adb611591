package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Proton-105/guildbank/internal/api"
	"github.com/Proton-105/guildbank/internal/bot"
	"github.com/Proton-105/guildbank/internal/currencycache"
	"github.com/Proton-105/guildbank/internal/database"
	errors "github.com/Proton-105/guildbank/internal/errors"
	"github.com/Proton-105/guildbank/internal/guild"
	"github.com/Proton-105/guildbank/internal/health"
	"github.com/Proton-105/guildbank/internal/i18n"
	"github.com/Proton-105/guildbank/internal/idempotency"
	"github.com/Proton-105/guildbank/internal/ledger"
	"github.com/Proton-105/guildbank/internal/lifecycle"
	"github.com/Proton-105/guildbank/internal/membership"
	"github.com/Proton-105/guildbank/internal/middleware"
	"github.com/Proton-105/guildbank/internal/ratelimit"
	"github.com/Proton-105/guildbank/internal/repository"
	"github.com/Proton-105/guildbank/migrations"
	"github.com/Proton-105/guildbank/pkg/config"
	"github.com/Proton-105/guildbank/pkg/graceful"
	"github.com/Proton-105/guildbank/pkg/logger"
	"github.com/Proton-105/guildbank/pkg/redis"
)

const limiterCleanupInterval = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "guildbank: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			TracesSampleRate: cfg.Sentry.TracesSampleRate,
		}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	level := new(slog.LevelVar)
	log, logCloser := logger.New(cfg.Logger, cfg.Sentry.Enabled, level)
	defer logCloser.Close()
	slog.SetDefault(log)
	config.WatchLogLevel(v, level, log)

	log.Info("starting guildbank",
		slog.String("env", cfg.AppEnv),
		slog.Int("http_port", cfg.Server.Port),
		slog.Bool("bot_enabled", cfg.Bot.Enabled),
		slog.Bool("redis_enabled", cfg.Redis.Enabled),
	)

	shutdown := lifecycle.NewShutdown(log)
	checker := health.NewChecker(log)
	errHandler := errors.NewHandler(log, cfg.Sentry.Enabled)

	db, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	shutdown.Register("database", func(context.Context) error { return db.Close() })
	checker.AddCheck("postgres", health.NewDBChecker(db))

	if err := database.NewMigrator(db, log).Apply(ctx, migrations.FS, "."); err != nil {
		_ = shutdown.Execute(context.Background())
		return fmt.Errorf("apply migrations: %w", err)
	}

	memory := ratelimit.NewMemoryLimiter(log)
	var (
		rdb     *goredis.Client
		idem    idempotency.Manager
		limiter ratelimit.Limiter = memory
	)
	if cfg.Redis.Enabled {
		err := errors.WithRetry(ctx, errors.DefaultRetryPolicy(), func() error {
			client, connErr := redis.New(ctx, cfg.Redis)
			if connErr != nil {
				log.Warn("redis connection failed", slog.String("addr", cfg.Redis.Addr), slog.Any("error", connErr))
				return errors.NewExternalAPIError("redis", connErr)
			}
			rdb = client
			return nil
		})
		if err != nil {
			_ = shutdown.Execute(context.Background())
			return err
		}
		shutdown.Register("redis", func(context.Context) error { return rdb.Close() })
		checker.AddCheck("redis", health.NewRedisChecker(rdb))

		idem = idempotency.NewManager(idempotency.NewRedisStore(rdb, log), log)
		limiter = ratelimit.NewAdaptiveLimiter(
			ratelimit.NewRedisLimiter(rdb, log),
			memory,
			errors.NewCircuitBreaker(errors.DefaultBreakerSettings()),
			log,
		)
	}

	messages, err := i18n.Load(cfg.Bot.Language)
	if err != nil {
		_ = shutdown.Execute(context.Background())
		return fmt.Errorf("load translations: %w", err)
	}

	store := repository.NewStore(db, log)
	ledgerSvc := ledger.NewService(store, log)
	if rdb != nil {
		ledgerSvc.WithCache(currencycache.NewCache(rdb, currencycache.DefaultTTL))
	}
	membershipSvc := membership.NewService(store, log)
	guildSvc := guild.NewService(store, log)
	rules, err := ratelimit.NewRules(cfg.RateLimit)
	if err != nil {
		_ = shutdown.Execute(context.Background())
		return err
	}
	rateLimit := middleware.NewRateLimitMiddleware(limiter, rules, messages, log)

	var wg sync.WaitGroup

	if cfg.Bot.Enabled {
		var authors bot.MessageAuthors
		if cfg.Bot.Reactions {
			authors = bot.NewMemoryAuthors(cfg.Bot.AuthorTTL)
			if rdb != nil {
				authors = bot.NewRedisAuthors(rdb, cfg.Bot.AuthorTTL)
			}
		}

		b, err := bot.New(cfg.Bot, bot.Deps{
			Ledger:         ledgerSvc,
			Membership:     membershipSvc,
			Guilds:         guildSvc,
			Authors:        authors,
			Messages:       messages,
			ErrHandler:     errHandler,
			Idempotency:    idem,
			IdempotencyTTL: cfg.Server.IdempotencyTTL,
			RateLimit:      rateLimit,
		}, log)
		if err != nil {
			_ = shutdown.Execute(context.Background())
			return fmt.Errorf("create bot: %w", err)
		}
		checker.AddCheck("telegram", health.NewTelegramChecker(b.Telebot()))

		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Start()
		}()
		shutdown.Register("bot", func(context.Context) error {
			b.Stop()
			return nil
		})
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(limiterCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := memory.Cleanup(time.Hour); removed > 0 {
					log.Debug("rate limiter windows cleaned", slog.Int("removed", removed))
				}
			}
		}
	}()

	handler := api.NewHandler(api.Deps{
		Ledger:         ledgerSvc,
		Membership:     membershipSvc,
		Health:         lifecycle.NewHealth(checker, log),
		Idempotency:    idem,
		IdempotencyTTL: cfg.Server.IdempotencyTTL,
		RateLimit:      rateLimit,
		ErrHandler:     errHandler,
		Log:            log,
	})
	srv := graceful.NewServer(log, &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}, cfg.Server.ShutdownTimeout)

	serveErr := srv.ListenAndServe(ctx)
	if serveErr != nil {
		log.Error("http server stopped", slog.Any("error", serveErr))
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	shutdownErr := shutdown.Execute(shutdownCtx)
	wg.Wait()

	log.Info("guildbank stopped")

	if serveErr != nil {
		return serveErr
	}
	return shutdownErr
}
