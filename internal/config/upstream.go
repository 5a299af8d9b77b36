package config

import (
	"github.com/dugoutdata/dugout/internal/core"
	"github.com/dugoutdata/dugout/internal/core/client"
	"github.com/dugoutdata/dugout/internal/core/engine"
)

// Version returns the configured API version tag as a variant.
func (u UpstreamConfig) Version() (core.APIVersion, error) {
	return core.ParseAPIVersion(u.APIVersion)
}

// Limit returns the token bucket budget for the upstream.
func (u UpstreamConfig) Limit() engine.RateLimit {
	return engine.RateLimit{
		Capacity:   u.RateLimit.Capacity,
		RefillRate: u.RateLimit.RefillRate,
		Interval:   u.RateLimit.Interval,
	}
}

// ClientConfig returns retry and transport settings for a client named name.
func (u UpstreamConfig) ClientConfig(name string) client.Config {
	return client.Config{
		Name:          name,
		BaseURL:       u.BaseURL,
		UserAgent:     u.UserAgent,
		MaxRetries:    u.Retry.Retries,
		RetryDelay:    u.Retry.RetryDelay,
		MaxRetryDelay: u.Retry.MaxRetryDelay,
		Timeout:       u.Retry.Timeout,
	}
}

// NewLimiter builds the upstream's limiter with the margin applied.
func (u UpstreamConfig) NewLimiter(margin float64) *engine.RateLimiter {
	limiter := engine.NewRateLimiter(u.Limit())
	limiter.ApplySafetyMargin(margin)
	return limiter
}
