// Package config loads dugout configuration through viper and decodes it
// with mapstructure into typed structs.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/dugoutdata/dugout/internal/core"
	"github.com/dugoutdata/dugout/internal/core/cache"
)

// MaxRetries bounds retry.retries for every upstream.
const MaxRetries = 10

// AppName names config directories and prefixes environment variables.
const AppName = "dugout"

// EnvPrefix is prepended to every environment variable.
const EnvPrefix = "DUGOUT"

var (
	appConfig *Config
	configMu  sync.RWMutex
)

// SetDefaults registers built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	// Stats API
	v.SetDefault("upstreams.stats.base_url", "https://statsapi.mlb.com/api")
	v.SetDefault("upstreams.stats.api_version", "v1")
	v.SetDefault("upstreams.stats.user_agent", "")
	v.SetDefault("upstreams.stats.rate_limit.capacity", 20)
	v.SetDefault("upstreams.stats.rate_limit.refill_rate", 20)
	v.SetDefault("upstreams.stats.rate_limit.interval", "1s")
	v.SetDefault("upstreams.stats.retry.retries", 3)
	v.SetDefault("upstreams.stats.retry.retry_delay", "1s")
	v.SetDefault("upstreams.stats.retry.max_retry_delay", "5s")
	v.SetDefault("upstreams.stats.retry.timeout", "30s")

	// Vendor CSV exports are stricter about bursts
	v.SetDefault("upstreams.vendor.base_url", "https://baseballsavant.mlb.com")
	v.SetDefault("upstreams.vendor.api_version", "none")
	v.SetDefault("upstreams.vendor.user_agent", "")
	v.SetDefault("upstreams.vendor.rate_limit.capacity", 5)
	v.SetDefault("upstreams.vendor.rate_limit.refill_rate", 5)
	v.SetDefault("upstreams.vendor.rate_limit.interval", "10s")
	v.SetDefault("upstreams.vendor.retry.retries", 2)
	v.SetDefault("upstreams.vendor.retry.retry_delay", "2s")
	v.SetDefault("upstreams.vendor.retry.max_retry_delay", "10s")
	v.SetDefault("upstreams.vendor.retry.timeout", "30s")

	v.SetDefault("rate_limit_margin", 1.0)

	// Cache defaults
	v.SetDefault("cache.cleanup_interval", "5m")
	ttls := map[string]any{}
	for category, ttl := range cache.DefaultTTLPolicy() {
		ttls[string(category)] = ttl.String()
	}
	v.SetDefault("cache.ttls", ttls)

	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("health.enabled", true)

	v.SetDefault("workers", 4)
}

// envAliases maps short environment variable names onto config keys.
var envAliases = map[string]string{
	"HOST":               "server.host",
	"PORT":               "server.port",
	"READ_TIMEOUT":       "server.read_timeout",
	"WRITE_TIMEOUT":      "server.write_timeout",
	"IDLE_TIMEOUT":       "server.idle_timeout",
	"SHUTDOWN_TIMEOUT":   "server.shutdown_timeout",
	"LOG_LEVEL":          "logging.level",
	"LOG_PROFILE":        "logging.profile",
	"METRICS_ENABLED":    "metrics.enabled",
	"METRICS_PORT":       "metrics.port",
	"STATS_BASE_URL":     "upstreams.stats.base_url",
	"VENDOR_BASE_URL":    "upstreams.vendor.base_url",
	"RATE_LIMIT_MARGIN":  "rate_limit_margin",
	"CACHE_CLEANUP":      "cache.cleanup_interval",
	"WORKERS":            "workers",
	"HEALTH_ENABLED":     "health.enabled",
	"STATS_USER_AGENT":   "upstreams.stats.user_agent",
	"VENDOR_USER_AGENT":  "upstreams.vendor.user_agent",
	"STATS_API_VERSION":  "upstreams.stats.api_version",
	"VENDOR_API_VERSION": "upstreams.vendor.api_version",
}

// BindEnv enables DUGOUT_* overrides on v. Every key is reachable by its full
// path (DUGOUT_UPSTREAMS_STATS_RETRY_RETRIES); common keys also have short aliases.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for alias, key := range envAliases {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), EnvPrefix+"_"+alias); err != nil {
			return fmt.Errorf("bind env %s: %w", alias, err)
		}
	}
	return nil
}

// New returns a viper instance with defaults and environment bindings.
func New() (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	if err := BindEnv(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Load decodes the settings held by v, applies runtime overrides on top,
// validates the result and makes it the current configuration. It is safe
// to call again on reload.
func Load(v *viper.Viper, runtimeOverrides ...map[string]any) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
	}

	merged := v.AllSettings()
	for _, overrides := range runtimeOverrides {
		mergeMaps(merged, overrides)
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(merged); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	if c.RateLimitMargin < 0 || c.RateLimitMargin > 1 {
		return fmt.Errorf("rate_limit_margin must be within [0,1], got %v", c.RateLimitMargin)
	}
	for name, upstream := range map[string]UpstreamConfig{"stats": c.Upstreams.Stats, "vendor": c.Upstreams.Vendor} {
		if strings.TrimSpace(upstream.BaseURL) == "" {
			return fmt.Errorf("upstreams.%s.base_url is required", name)
		}
		if _, err := core.ParseAPIVersion(upstream.APIVersion); err != nil {
			return fmt.Errorf("upstreams.%s.api_version: %w", name, err)
		}
		if upstream.RateLimit.Capacity < 0 || upstream.RateLimit.RefillRate < 0 || upstream.RateLimit.Interval < 0 {
			return fmt.Errorf("upstreams.%s.rate_limit values must not be negative", name)
		}
		if upstream.Retry.Retries < 0 || upstream.Retry.Retries > MaxRetries {
			return fmt.Errorf("upstreams.%s.retry.retries must be within [0,%d], got %d", name, MaxRetries, upstream.Retry.Retries)
		}
	}
	if _, err := c.TTLPolicy(); err != nil {
		return err
	}
	return nil
}

// TTLPolicy returns the built-in TTL table with configured overrides applied.
func (c *Config) TTLPolicy() (cache.TTLPolicy, error) {
	return cache.DefaultTTLPolicy().WithOverrides(c.Cache.TTLs)
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// DefaultConfigDir returns the XDG config directory for dugout.
func DefaultConfigDir() string {
	return gfconfig.GetAppConfigDir(AppName)
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := DefaultConfigDir()
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// mergeMaps copies src into dst, descending into nested maps.
func mergeMaps(dst, src map[string]any) {
	for key, value := range src {
		key = strings.ToLower(key)
		nested, ok := value.(map[string]any)
		if !ok {
			dst[key] = value
			continue
		}
		existing, ok := dst[key].(map[string]any)
		if !ok {
			existing = map[string]any{}
			dst[key] = existing
		}
		mergeMaps(existing, nested)
	}
}
