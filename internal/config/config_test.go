package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "HOST", "STORE_PATH", "EXTENSION_ID", "EXTENSION_VERSION",
		"DEBOUNCE_MILLIS", "LOG_LEVEL", "LOG_DEV",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "RATE_LIMIT_ENABLED",
		"CORS_ALLOW_ORIGINS", "CORS_ALLOW_CREDENTIALS", "CORS_MAX_AGE_SECONDS",
	} {
		os.Unsetenv(k)
		t.Cleanup(func(k string) func() { return func() { os.Unsetenv(k) } }(k))
	}
}

func TestDefault(t *testing.T) {
	cfg := Default("abcdefghijklmnopabcdefghijklmnop")

	assert.Equal(t, "8700", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "spaces.db", cfg.Store.Path)
	assert.Equal(t, "abcdefghijklmnopabcdefghijklmnop", cfg.Reconcile.ExtensionID)
	assert.Equal(t, "dev", cfg.Reconcile.CurrentVersion)
	assert.Equal(t, 1000, cfg.Reconcile.DebounceMillis)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)
	assert.Equal(t, 50, cfg.RateLimit.RequestsPerSecond)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowOrigins)
	assert.True(t, cfg.CORS.AllowCredentials)
	assert.Equal(t, 43200, cfg.CORS.MaxAgeSeconds)
}

func TestLoadRequiresExtensionID(t *testing.T) {
	clearEnv(t)
	_, err := Load("")
	assert.Error(t, err, "EXTENSION_ID has no default and must be required")
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	clearEnv(t)
	env := map[string]string{
		"PORT":                   "9700",
		"HOST":                   "0.0.0.0",
		"STORE_PATH":             "/var/lib/spaces/spaces.db",
		"EXTENSION_ID":           "ghijklmnopabcdefghijklmnopabcdef",
		"EXTENSION_VERSION":      "2.3.1",
		"DEBOUNCE_MILLIS":        "500",
		"LOG_LEVEL":              "debug",
		"LOG_DEV":                "true",
		"RATE_LIMIT_RPS":         "10",
		"RATE_LIMIT_BURST":       "20",
		"RATE_LIMIT_ENABLED":     "false",
		"CORS_ALLOW_ORIGINS":     "https://a.example,https://b.example",
		"CORS_ALLOW_CREDENTIALS": "false",
		"CORS_MAX_AGE_SECONDS":   "3600",
	}
	for k, v := range env {
		require.NoError(t, os.Setenv(k, v))
	}

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9700", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "/var/lib/spaces/spaces.db", cfg.Store.Path)
	assert.Equal(t, "ghijklmnopabcdefghijklmnopabcdef", cfg.Reconcile.ExtensionID)
	assert.Equal(t, "2.3.1", cfg.Reconcile.CurrentVersion)
	assert.Equal(t, 500, cfg.Reconcile.DebounceMillis)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 10, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowOrigins)
	assert.False(t, cfg.CORS.AllowCredentials)
	assert.Equal(t, 3600, cfg.CORS.MaxAgeSeconds)
}

func TestLoadWithTOMLOverlay(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.Setenv("EXTENSION_ID", "ghijklmnopabcdefghijklmnopabcdef"))

	dir := t.TempDir()
	path := filepath.Join(dir, "spaces.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[Server]
Port = "9999"

[Logging]
Level = "warn"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Server.Port, "the TOML overlay must win over the env-derived default")
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host, "fields absent from the TOML file keep their env/default value")
}

func TestLoadWithMissingTOMLFileIsNotAnError(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.Setenv("EXTENSION_ID", "ghijklmnopabcdefghijklmnopabcdef"))

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, "8700", cfg.Server.Port)
}
