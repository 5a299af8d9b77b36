package config

import "time"

// Config represents the complete application configuration.
// Sources, lowest precedence first: built-in defaults, the YAML config file,
// DUGOUT_* environment variables, runtime overrides.
type Config struct {
	Upstreams UpstreamsConfig `mapstructure:"upstreams"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Health    HealthConfig    `mapstructure:"health"`
	Workers   int             `mapstructure:"workers"`

	// RateLimitMargin scales every upstream budget down (0-1]; 0 disables scaling.
	RateLimitMargin float64 `mapstructure:"rate_limit_margin"`
}

// UpstreamsConfig holds one block per external service. Each gets its own budget.
type UpstreamsConfig struct {
	Stats  UpstreamConfig `mapstructure:"stats"`
	Vendor UpstreamConfig `mapstructure:"vendor"`
}

// UpstreamConfig configures transport, budget and retries for one service.
type UpstreamConfig struct {
	BaseURL    string          `mapstructure:"base_url"`
	APIVersion string          `mapstructure:"api_version"`
	UserAgent  string          `mapstructure:"user_agent"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
	Retry      RetryConfig     `mapstructure:"retry"`
}

// RateLimitConfig is a token bucket: capacity tokens, refill_rate tokens per interval.
type RateLimitConfig struct {
	Capacity   int           `mapstructure:"capacity"`
	RefillRate int           `mapstructure:"refill_rate"`
	Interval   time.Duration `mapstructure:"interval"`
}

// RetryConfig controls the retry loop of a client.
type RetryConfig struct {
	Retries       int           `mapstructure:"retries"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	MaxRetryDelay time.Duration `mapstructure:"max_retry_delay"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// CacheConfig contains memoization settings. TTLs are keyed by category
// name (lineup, pitcher-season-stats, ...) and override the built-in table.
type CacheConfig struct {
	CleanupInterval time.Duration            `mapstructure:"cleanup_interval"`
	TTLs            map[string]time.Duration `mapstructure:"ttls"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: simple, structured
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}
