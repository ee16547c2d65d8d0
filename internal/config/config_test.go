package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, runtime.GOARCH, cfg.Labels["arch"])
	assert.Equal(t, runtime.GOOS, cfg.Labels["os"])
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meshhost.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr = ":9090"
log_level = "debug"
allow_live_updates = true
cache_provider_ref = "file:///opt/cache.tar.gz"
trusted_issuers = ["SISSUER"]

[labels]
zone = "eu-1"
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.AllowLiveUpdates)
	assert.False(t, cfg.StrictUpdateCheck, "untouched fields keep defaults")
	assert.Equal(t, "file:///opt/cache.tar.gz", cfg.CacheProviderRef)
	assert.Equal(t, []string{"SISSUER"}, cfg.TrustedIssuers)
	assert.Equal(t, "eu-1", cfg.Labels["zone"])
	assert.Equal(t, runtime.GOARCH, cfg.Labels["arch"], "file labels merge over defaults")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().ListenAddr, cfg.ListenAddr)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MESHHOST_LISTEN_ADDR", ":7070")
	t.Setenv("MESHHOST_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.ListenAddr)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestCacheEnv(t *testing.T) {
	t.Setenv("MESHHOST_CACHE_URI", "redis://localhost:6379")
	t.Setenv("MESHHOST_CACHE_BUCKET", "mesh")
	t.Setenv("MESHHOST_OTHER", "ignored")

	env := CacheEnv()
	assert.Equal(t, "redis://localhost:6379", env["URI"])
	assert.Equal(t, "mesh", env["BUCKET"])
	assert.NotContains(t, env, "OTHER")
}
