// Package config loads meshhostd configuration: defaults, an optional
// TOML file, then environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

// CacheEnvPrefix selects the environment variables handed to the cache
// provider as bind-time configuration.
const CacheEnvPrefix = "MESHHOST_CACHE_"

type Config struct {
	ListenAddr string
	LogLevel   string
	DataDir    string

	Labels            map[string]string
	AllowLiveUpdates  bool
	StrictUpdateCheck bool

	// CacheProviderRef optionally points at an external cache provider
	// archive; empty selects the embedded provider.
	CacheProviderRef string

	TrustedIssuers     []string
	DeniedCapabilities []string
}

// Default returns the baseline configuration. Placement labels always
// include the host architecture and OS; operator labels add to them.
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		LogLevel:   "info",
		DataDir:    "/var/lib/meshhost",
		Labels: map[string]string{
			"arch": runtime.GOARCH,
			"os":   runtime.GOOS,
		},
	}
}

type fileConfig struct {
	ListenAddr         string            `toml:"listen_addr"`
	LogLevel           string            `toml:"log_level"`
	DataDir            string            `toml:"data_dir"`
	Labels             map[string]string `toml:"labels"`
	AllowLiveUpdates   bool              `toml:"allow_live_updates"`
	StrictUpdateCheck  bool              `toml:"strict_update_check"`
	CacheProviderRef   string            `toml:"cache_provider_ref"`
	TrustedIssuers     []string          `toml:"trusted_issuers"`
	DeniedCapabilities []string          `toml:"denied_capabilities"`
}

// Load reads path on top of defaults. A missing path returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return applyEnv(cfg), nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		if os.IsNotExist(err) {
			return applyEnv(cfg), nil
		}
		return Config{}, fmt.Errorf("config: load %s: %w", path, err)
	}

	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("data_dir") {
		cfg.DataDir = strings.TrimSpace(raw.DataDir)
	}
	if meta.IsDefined("labels") {
		for k, v := range raw.Labels {
			cfg.Labels[k] = v
		}
	}
	if meta.IsDefined("allow_live_updates") {
		cfg.AllowLiveUpdates = raw.AllowLiveUpdates
	}
	if meta.IsDefined("strict_update_check") {
		cfg.StrictUpdateCheck = raw.StrictUpdateCheck
	}
	if meta.IsDefined("cache_provider_ref") {
		cfg.CacheProviderRef = strings.TrimSpace(raw.CacheProviderRef)
	}
	if meta.IsDefined("trusted_issuers") {
		cfg.TrustedIssuers = raw.TrustedIssuers
	}
	if meta.IsDefined("denied_capabilities") {
		cfg.DeniedCapabilities = raw.DeniedCapabilities
	}
	return applyEnv(cfg), nil
}

func applyEnv(cfg Config) Config {
	if v := os.Getenv("MESHHOST_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("MESHHOST_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MESHHOST_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	return cfg
}

// CacheEnv collects the cache provider's bind configuration from the
// environment: every MESHHOST_CACHE_* variable, prefix stripped.
func CacheEnv() map[string]string {
	out := map[string]string{}
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, CacheEnvPrefix) {
			continue
		}
		rest := kv[len(CacheEnvPrefix):]
		if k, v, ok := strings.Cut(rest, "="); ok && k != "" {
			out[k] = v
		}
	}
	return out
}
