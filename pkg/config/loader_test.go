package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
logger:
  level: info
database:
  user: bank
  name: bank
bot:
  token: secret
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile_AppliesDefaults(t *testing.T) {
	cfg, v, err := LoadFile(writeConfig(t, minimalYAML))
	require.NoError(t, err)
	require.NotNil(t, v)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "polling", cfg.Bot.Mode)
	assert.Equal(t, 10*time.Second, cfg.Bot.Timeout)
	assert.True(t, cfg.Bot.Reactions)
	assert.Equal(t, 48*time.Hour, cfg.Bot.AuthorTTL)
	assert.Equal(t, 24*time.Hour, cfg.Server.IdempotencyTTL)
	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.Equal(t, 10, cfg.RateLimit.Commands.Send.Limit)
	assert.Equal(t, "1h", cfg.RateLimit.Commands.Create.Window)
	assert.Equal(t, "host=localhost port=5432 user=bank password= dbname=bank sslmode=disable", cfg.Database.DSN())
}

func TestLoadFile_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_HOST", "db.internal")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("REDIS_ENABLED", "true")

	cfg, _, err := LoadFile(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Redis.Enabled)
}

func TestLoadFile_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "missing database user", yaml: "bot:\n  token: x\ndatabase:\n  name: bank\n"},
		{name: "webhook without url", yaml: minimalYAML + "  mode: webhook\n"},
		{name: "bot enabled without token", yaml: "database:\n  user: bank\n  name: bank\n"},
		{name: "unknown log level", yaml: "logger:\n  level: loud\ndatabase:\n  user: bank\n  name: bank\nbot:\n  token: x\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := LoadFile(writeConfig(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel(" warn ")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}

func TestWatchLogLevel_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, minimalYAML)
	_, v, err := LoadFile(path)
	require.NoError(t, err)

	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)
	WatchLogLevel(v, level, slog.New(slog.NewTextHandler(io.Discard, nil)))

	updated := "logger:\n  level: debug\ndatabase:\n  user: bank\n  name: bank\nbot:\n  token: secret\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	assert.Eventually(t, func() bool {
		return level.Level() == slog.LevelDebug
	}, 3*time.Second, 50*time.Millisecond)
}
