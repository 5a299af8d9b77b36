package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dugoutdata/dugout/internal/core"
)

func newTestViper(t *testing.T) *Config {
	t.Helper()
	v, err := New()
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)
	return cfg
}

func TestLoad(t *testing.T) {
	t.Run("LoadDefaults", func(t *testing.T) {
		cfg := newTestViper(t)

		// Upstream defaults
		stats := cfg.Upstreams.Stats
		assert.Equal(t, "https://statsapi.mlb.com/api", stats.BaseURL)
		assert.Equal(t, 20, stats.RateLimit.Capacity)
		assert.Equal(t, 20, stats.RateLimit.RefillRate)
		assert.Equal(t, time.Second, stats.RateLimit.Interval)
		assert.Equal(t, 3, stats.Retry.Retries)
		assert.Equal(t, time.Second, stats.Retry.RetryDelay)
		assert.Equal(t, 5*time.Second, stats.Retry.MaxRetryDelay)
		assert.Equal(t, 30*time.Second, stats.Retry.Timeout)

		vendor := cfg.Upstreams.Vendor
		assert.Equal(t, 5, vendor.RateLimit.Capacity)
		assert.Equal(t, 10*time.Second, vendor.RateLimit.Interval)
		assert.Equal(t, 2, vendor.Retry.Retries)
		assert.Equal(t, 2*time.Second, vendor.Retry.RetryDelay)
		assert.Equal(t, 10*time.Second, vendor.Retry.MaxRetryDelay)

		// Server defaults
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		// Cache defaults
		assert.Equal(t, 5*time.Minute, cfg.Cache.CleanupInterval)
		assert.Equal(t, 10*time.Minute, cfg.Cache.TTLs["lineup"])

		assert.Equal(t, 1.0, cfg.RateLimitMargin)
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, 9090, cfg.Metrics.Port)
		assert.True(t, cfg.Health.Enabled)
		assert.Equal(t, 4, cfg.Workers)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		v, err := New()
		require.NoError(t, err)

		cfg, err := Load(v, map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"upstreams": map[string]any{
				"stats": map[string]any{
					"retry": map[string]any{"retries": 5},
				},
			},
		})
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, 5, cfg.Upstreams.Stats.Retry.Retries)

		// Siblings of overridden keys keep their defaults
		assert.Equal(t, time.Second, cfg.Upstreams.Stats.Retry.RetryDelay)
		assert.Equal(t, 9090, cfg.Metrics.Port)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("DUGOUT_PORT", "3000")
		t.Setenv("DUGOUT_LOG_LEVEL", "warn")
		t.Setenv("DUGOUT_METRICS_ENABLED", "false")
		t.Setenv("DUGOUT_RATE_LIMIT_MARGIN", "0.8")
		t.Setenv("DUGOUT_UPSTREAMS_VENDOR_RETRY_RETRIES", "4")
		t.Setenv("DUGOUT_CACHE_TTLS_LINEUP", "90s")

		cfg := newTestViper(t)

		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.False(t, cfg.Metrics.Enabled)
		assert.Equal(t, 0.8, cfg.RateLimitMargin)
		assert.Equal(t, 4, cfg.Upstreams.Vendor.Retry.Retries)
		assert.Equal(t, 90*time.Second, cfg.Cache.TTLs["lineup"])
	})

	t.Run("ConfigFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
upstreams:
  stats:
    base_url: http://localhost:9999/api
    rate_limit:
      capacity: 10
cache:
  ttls:
    pitch-mix: 15m
`), 0o600))

		v, err := New()
		require.NoError(t, err)
		v.SetConfigFile(path)
		require.NoError(t, v.ReadInConfig())

		cfg, err := Load(v)
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:9999/api", cfg.Upstreams.Stats.BaseURL)
		assert.Equal(t, 10, cfg.Upstreams.Stats.RateLimit.Capacity)
		assert.Equal(t, 20, cfg.Upstreams.Stats.RateLimit.RefillRate)

		policy, err := cfg.TTLPolicy()
		require.NoError(t, err)
		assert.Equal(t, 15*time.Minute, policy.For(core.CategoryPitchMix))
		assert.Equal(t, 10*time.Minute, policy.For(core.CategoryLineup))
	})

	t.Run("ConfigPrecedence", func(t *testing.T) {
		t.Setenv("DUGOUT_PORT", "4000")

		v, err := New()
		require.NoError(t, err)
		cfg, err := Load(v, map[string]any{"server": map[string]any{"port": 5000}})
		require.NoError(t, err)

		assert.Equal(t, 5000, cfg.Server.Port)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]any
	}{
		{name: "margin above one", overrides: map[string]any{"rate_limit_margin": 1.5}},
		{name: "unknown api version", overrides: map[string]any{"upstreams": map[string]any{"stats": map[string]any{"api_version": "v9"}}}},
		{name: "missing base url", overrides: map[string]any{"upstreams": map[string]any{"vendor": map[string]any{"base_url": " "}}}},
		{name: "unknown ttl category", overrides: map[string]any{"cache": map[string]any{"ttls": map[string]any{"box-score": "1m"}}}},
		{name: "negative retries", overrides: map[string]any{"upstreams": map[string]any{"stats": map[string]any{"retry": map[string]any{"retries": -1}}}}},
		{name: "too many retries", overrides: map[string]any{"upstreams": map[string]any{"vendor": map[string]any{"retry": map[string]any{"retries": 40}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := New()
			require.NoError(t, err)
			_, err = Load(v, tt.overrides)
			require.Error(t, err)
		})
	}
}

func TestGetConfig(t *testing.T) {
	cfg := newTestViper(t)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
}

func TestUpstreamConversions(t *testing.T) {
	cfg := newTestViper(t)

	version, err := cfg.Upstreams.Stats.Version()
	require.NoError(t, err)
	assert.Equal(t, core.APIVersionV1, version)

	version, err = cfg.Upstreams.Vendor.Version()
	require.NoError(t, err)
	assert.Equal(t, core.APIVersionNone, version)

	clientCfg := cfg.Upstreams.Vendor.ClientConfig("vendor")
	assert.Equal(t, "vendor", clientCfg.Name)
	assert.Equal(t, 2, clientCfg.MaxRetries)
	assert.Equal(t, 10*time.Second, clientCfg.MaxRetryDelay)

	limiter := cfg.Upstreams.Stats.NewLimiter(0.5)
	assert.Equal(t, 10, limiter.Limit().Capacity)
	assert.Equal(t, 10, limiter.Limit().RefillRate)
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	path := DefaultConfigPath()
	require.NotEmpty(t, path)
	assert.Equal(t, "config.yaml", filepath.Base(path))
	assert.Contains(t, path, AppName)
}
