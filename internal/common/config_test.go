package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dartseries.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestNewDefaultConfig_IsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "./data/dartseries.db", cfg.Storage.SQLite.Path)
	assert.InDelta(t, 0.8, cfg.Resolver.MinSimilarity, 1e-9)
	assert.Equal(t, 24*time.Hour, cfg.DirectoryMaxAge())
	assert.Equal(t, 30*time.Second, cfg.DartTimeout())
}

func TestLoadFromFiles_LaterFilesOverride(t *testing.T) {
	t.Setenv("DART_API_KEY", "")
	t.Setenv("DARTSERIES_DART_API_KEY", "")

	base := writeConfig(t, `
[dart]
api_key = "base-key"
rate_limit = 2.5

[resolver]
min_similarity = 0.7
`)
	override := writeConfig(t, `
[resolver]
min_similarity = 0.9

[storage]
type = "badger"
`)

	cfg, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, "base-key", cfg.Dart.APIKey)
	assert.InDelta(t, 2.5, cfg.Dart.RateLimit, 1e-9)
	assert.InDelta(t, 0.9, cfg.Resolver.MinSimilarity, 1e-9)
	assert.Equal(t, "badger", cfg.Storage.Type)
	// Untouched sections keep defaults
	assert.Equal(t, 4, cfg.Pipeline.MaxConcurrentYears)
}

func TestLoadFromFiles_EnvOverrides(t *testing.T) {
	t.Setenv("DARTSERIES_DART_API_KEY", "env-key")
	t.Setenv("DARTSERIES_SERVER_PORT", "9191")
	t.Setenv("DARTSERIES_LOG_OUTPUT", "stdout, file")

	path := writeConfig(t, `
[dart]
api_key = "file-key"
`)

	cfg, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Dart.APIKey)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, []string{"stdout", "file"}, cfg.Logging.Output)
}

func TestLoadFromFiles_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown storage type", "[storage]\ntype = \"postgres\"\n"},
		{"similarity above one", "[resolver]\nmin_similarity = 1.5\n"},
		{"bad duration", "[resolver]\nmax_directory_age = \"one day\"\n"},
		{"bad schedule", "[resolver]\nrefresh_schedule = \"every morning\"\n"},
		{"bad reference period", "[batch]\nreference_period = \"2024\"\n"},
		{"zero concurrency", "[pipeline]\nmax_concurrent_years = 0\n"},
		{"malformed toml", "[dart\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFiles(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("DARTSERIES_DART_API_KEY", "")
	t.Setenv("DART_API_KEY", "")

	_, err := ResolveAPIKey("")
	assert.Error(t, err)

	key, err := ResolveAPIKey("from-config")
	require.NoError(t, err)
	assert.Equal(t, "from-config", key)

	t.Setenv("DART_API_KEY", "plain-env")
	key, err = ResolveAPIKey("from-config")
	require.NoError(t, err)
	assert.Equal(t, "plain-env", key)

	t.Setenv("DARTSERIES_DART_API_KEY", "prefixed-env")
	key, err = ResolveAPIKey("from-config")
	require.NoError(t, err)
	assert.Equal(t, "prefixed-env", key)
}

func TestConfig_RetryPolicy(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Pipeline.Retry.InitialBackoff = "250ms"
	cfg.Pipeline.Retry.MaxAttempts = 5

	p := cfg.RetryPolicy()
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, p.InitialBackoff)
	assert.Equal(t, 30*time.Second, p.MaxBackoff)
	assert.Equal(t, 10*time.Second, p.RateLimitBackoff)
}

func TestLoadFromFiles_ExampleDeployment(t *testing.T) {
	cfg, err := LoadFromFiles(filepath.Join("..", "..", "deployments", "local", "dartseries.toml"))
	require.NoError(t, err)

	defaults := NewDefaultConfig()
	assert.Equal(t, defaults.Storage, cfg.Storage)
	assert.Equal(t, defaults.Resolver, cfg.Resolver)
	assert.Equal(t, defaults.Pipeline, cfg.Pipeline)
	assert.Equal(t, defaults.Batch.Size, cfg.Batch.Size)
}
