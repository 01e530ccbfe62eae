package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetenv clears keys for the test and restores them afterwards. cleanenv
// treats a present-but-empty variable as an explicit value.
func unsetenv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

var configKeys = []string{
	ConfigPathEnv, "HTTP_ADDR", "EVENTS_ADDR", "STORE_BACKEND", "REDIS_URL", "SQLITE_PATH", "GAME_TTL",
	"DATABASE_URL", "OP_TIMEOUT", "MAX_TX_RETRIES", "MESSAGES_DIR", "SERVICE_NAME", "OTEL_ENDPOINT",
}

func TestLoad_Defaults(t *testing.T) {
	unsetenv(t, configKeys...)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":8081", cfg.EventsAddr)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 5*time.Second, cfg.OpTimeout)
	assert.Equal(t, 8, cfg.MaxTxRetries)
}

func TestLoad_RedisRequiresURL(t *testing.T) {
	unsetenv(t, configKeys...)
	t.Setenv("STORE_BACKEND", "redis")

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL")
}

func TestLoad_UnknownBackend(t *testing.T) {
	unsetenv(t, configKeys...)
	t.Setenv("STORE_BACKEND", "mongo")

	_, err := Load()

	require.Error(t, err)
}

func TestLoad_YAMLFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	body := "http-addr: \":9191\"\nstore-backend: sqlite\nsqlite-path: /tmp/hnb.db\nop-timeout: 2s\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	unsetenv(t, configKeys...)
	t.Setenv(ConfigPathEnv, path)
	t.Setenv("HTTP_ADDR", ":7070")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTPAddr)
	assert.Equal(t, BackendSQLite, cfg.StoreBackend)
	assert.Equal(t, "/tmp/hnb.db", cfg.SQLitePath)
	assert.Equal(t, 2*time.Second, cfg.OpTimeout)
}
