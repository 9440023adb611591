// Package config provides configuration loading and validation utilities.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads .env files, then ./configs/<APP_ENV>.yaml and environment
// variables, validates the result, and returns it with the viper instance
// that produced it.
func Load() (*Config, *viper.Viper, error) {
	// Missing env files are expected outside local development.
	_ = godotenv.Load(".env.local", ".env")

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	cfg, v, err := LoadFile(fmt.Sprintf("./configs/%s.yaml", env))
	if err != nil {
		return nil, nil, err
	}
	cfg.AppEnv = env

	return cfg, v, nil
}

// LoadFile loads configuration from path, applying defaults and env overrides.
// An empty path skips the file and uses defaults plus environment only.
func LoadFile(path string) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return nil, nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, v, nil
}

// WatchLogLevel reloads logger.level whenever the config file changes.
func WatchLogLevel(v *viper.Viper, level *slog.LevelVar, log *slog.Logger) {
	if v == nil || level == nil || v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		next, err := ParseLevel(v.GetString("logger.level"))
		if err != nil {
			if log != nil {
				log.Warn("ignoring invalid log level from config", slog.String("file", e.Name), slog.Any("error", err))
			}
			return
		}

		if level.Level() != next {
			level.Set(next)
			if log != nil {
				log.Info("log level reloaded", slog.String("level", next.String()))
			}
		}
	})
	v.WatchConfig()
}

// ParseLevel converts a textual level into a slog.Level.
func ParseLevel(value string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelInfo, fmt.Errorf("parse log level %q: %w", value, err)
	}
	return level, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "development")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.file", "")
	v.SetDefault("logger.max_size_mb", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age_days", 28)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "")
	v.SetDefault("sentry.traces_sample_rate", 0.0)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.pool_timeout", 4*time.Second)
	v.SetDefault("redis.idle_timeout", 5*time.Minute)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.min_retry_backoff", 8*time.Millisecond)
	v.SetDefault("redis.max_retry_backoff", 512*time.Millisecond)

	v.SetDefault("bot.enabled", true)
	v.SetDefault("bot.token", "")
	v.SetDefault("bot.mode", "polling")
	v.SetDefault("bot.timeout", 10*time.Second)
	v.SetDefault("bot.webhook_listen", ":8443")
	v.SetDefault("bot.webhook_url", "")
	v.SetDefault("bot.language", "en")
	v.SetDefault("bot.reactions", true)
	v.SetDefault("bot.author_ttl", 48*time.Hour)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.idempotency_ttl", 24*time.Hour)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.per_user.limit", 30)
	v.SetDefault("rate_limit.per_user.window", "1m")
	v.SetDefault("rate_limit.commands.send.limit", 10)
	v.SetDefault("rate_limit.commands.send.window", "1m")
	v.SetDefault("rate_limit.commands.create.limit", 3)
	v.SetDefault("rate_limit.commands.create.window", "1h")
	v.SetDefault("rate_limit.whitelist", []int64{})
}
