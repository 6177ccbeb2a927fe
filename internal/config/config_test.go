package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test from an empty directory with no test lab env set,
// so a developer's .env does not leak in.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, key := range []string{
		"DATABASE_URL", "TESTLAB_DB_DRIVER", "TESTLAB_SQLITE_PATH", "PORT",
		"TESTLAB_LOG_DIR", "TESTLAB_WEB_DIR", "TESTLAB_LOG_LEVEL", "TESTLAB_DISCORD_WEBHOOK",
	} {
		t.Setenv(key, "")
	}
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("missing.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := isolate(t)

	path := filepath.Join(dir, "testlab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: sqlite
  sqlite_path: data/lab.db
server:
  port: "9090"
  log_dir: /var/log/testlab
logging:
  level: debug
notify:
  discord_webhook: https://discord.com/api/webhooks/1/abc
`), 0644))

	t.Setenv("TESTLAB_LOG_DIR", "/tmp/logs")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "data/lab.db", cfg.Database.SQLitePath)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "/tmp/logs", cfg.Server.LogDir, "env wins over file")
	assert.Equal(t, "web", cfg.Server.WebDir, "default kept")
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "https://discord.com/api/webhooks/1/abc", cfg.Notify.DiscordWebhook)
}

func TestLoad_DatabaseURLImpliesPostgres(t *testing.T) {
	isolate(t)
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/lab")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://u:p@db:5432/lab", cfg.Store().URL)

	t.Setenv("TESTLAB_DB_DRIVER", "sqlite")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver, "explicit driver wins")
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	os.Unsetenv("PORT")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PORT=7000\n"), 0644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Server.Port)
}

func TestLoad_BadYAML(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestAddr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = "127.0.0.1:8081"
	assert.Equal(t, "127.0.0.1:8081", cfg.Addr())
}
