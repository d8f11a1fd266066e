package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GUIDES_CONFIG", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://guide-server.aki-game.net", cfg.Upstream.BaseURL)
	assert.Equal(t, 20*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 3, cfg.Upstream.Attempts)
	assert.Equal(t, 2*time.Second, cfg.Upstream.RetryDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Upstream.Pacing)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GUIDES_CONFIG", "")
	t.Setenv("GUIDES_STORE", "redis")
	t.Setenv("GUIDES_REDIS_ADDR", "cache:6379")
	t.Setenv("GUIDES_UPSTREAM_PACING", "0s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "cache:6379", cfg.Store.RedisAddr)
	assert.Equal(t, time.Duration(0), cfg.Upstream.Pacing)
	// untouched keys keep their defaults
	assert.Equal(t, 3, cfg.Upstream.Attempts)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guides.yaml")
	err := os.WriteFile(path, []byte(`
upstream:
  base_url: http://localhost:9000
  attempts: 5
store:
  backend: file
  file_dir: /tmp/guides
`), 0o644)
	require.NoError(t, err)

	t.Setenv("GUIDES_CONFIG", path)
	t.Setenv("GUIDES_UPSTREAM_ATTEMPTS", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000", cfg.Upstream.BaseURL)
	assert.Equal(t, 2, cfg.Upstream.Attempts, "env wins over file")
	assert.Equal(t, "file", cfg.Store.Backend)
	assert.Equal(t, "/tmp/guides", cfg.Store.FileDir)
	assert.Equal(t, "en", cfg.Upstream.Language)
}

func TestLoadInvalidEnv(t *testing.T) {
	t.Setenv("GUIDES_CONFIG", "")
	t.Setenv("GUIDES_UPSTREAM_ATTEMPTS", "not-an-int")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Backend = "dynamo"
	cfg.Upstream.Attempts = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store backend")
	assert.Contains(t, err.Error(), "attempts must be >= 1")
}
