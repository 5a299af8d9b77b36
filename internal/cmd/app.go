package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fulmenhq/gofulmen/logging"

	"github.com/dugoutdata/dugout/internal/config"
	"github.com/dugoutdata/dugout/internal/core"
	"github.com/dugoutdata/dugout/internal/core/cache"
	"github.com/dugoutdata/dugout/internal/core/client"
	"github.com/dugoutdata/dugout/internal/core/engine"
	errwrap "github.com/dugoutdata/dugout/internal/errors"
	"github.com/dugoutdata/dugout/internal/metrics"
	"github.com/dugoutdata/dugout/internal/observability"
	"github.com/dugoutdata/dugout/internal/output"
	"github.com/dugoutdata/dugout/internal/server/handlers"
	"github.com/dugoutdata/dugout/internal/stats"
)

// Upstream names, used for client names, metric labels and limiter lookup.
const (
	upstreamStats  = "stats"
	upstreamVendor = "vendor"
)

// app holds everything built from one configuration.
type app struct {
	cfg      *config.Config
	service  *stats.Service
	limiters map[string]*engine.RateLimiter
}

func newApp(cfg *config.Config, logger *logging.Logger) (*app, error) {
	statsVersion, err := cfg.Upstreams.Stats.Version()
	if err != nil {
		return nil, &configError{err: fmt.Errorf("upstreams.stats.api_version: %w", err)}
	}
	ttls, err := cfg.TTLPolicy()
	if err != nil {
		return nil, &configError{err: err}
	}

	limiters := map[string]*engine.RateLimiter{
		upstreamStats:  cfg.Upstreams.Stats.NewLimiter(cfg.RateLimitMargin),
		upstreamVendor: cfg.Upstreams.Vendor.NewLimiter(cfg.RateLimitMargin),
	}

	newClient := func(name string, upstream config.UpstreamConfig) *client.Client {
		c := client.New(upstream.ClientConfig(name), limiters[name])
		c.Logger = logger
		return c
	}

	service, err := stats.NewService(stats.Options{
		Stats:  newClient(upstreamStats, cfg.Upstreams.Stats),
		Vendor: newClient(upstreamVendor, cfg.Upstreams.Vendor),
		Cache: cache.New(cache.Options{
			CleanupInterval: cfg.Cache.CleanupInterval,
			Logger:          logger,
		}),
		TTLs:         ttls,
		Orchestrator: &engine.Orchestrator{Workers: cfg.Workers},
		Logger:       logger,
		StatsVersion: statsVersion,
	})
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, service: service, limiters: limiters}, nil
}

// limits describes the effective budgets and TTLs.
func (a *app) limits() (*output.Limits, error) {
	ttls, err := a.cfg.TTLPolicy()
	if err != nil {
		return nil, err
	}

	view := &output.Limits{Margin: a.cfg.RateLimitMargin}
	for _, name := range []string{upstreamStats, upstreamVendor} {
		upstream := a.upstream(name)
		view.Upstreams = append(view.Upstreams, output.UpstreamLimits{
			Name:          name,
			BaseURL:       upstream.BaseURL,
			APIVersion:    upstream.APIVersion,
			Budget:        a.limiters[name].Snapshot(),
			MaxRetries:    upstream.Retry.Retries,
			RetryDelay:    upstream.Retry.RetryDelay.String(),
			MaxRetryDelay: upstream.Retry.MaxRetryDelay.String(),
			Timeout:       upstream.Retry.Timeout.String(),
		})
	}

	categories := core.Categories()
	sort.SliceStable(categories, func(i, j int) bool { return ttls.For(categories[i]) < ttls.For(categories[j]) })
	for _, category := range categories {
		view.TTLs = append(view.TTLs, output.CategoryTTL{
			Category: string(category),
			TTL:      ttls.For(category).String(),
		})
	}
	return view, nil
}

func (a *app) upstream(name string) config.UpstreamConfig {
	if name == upstreamVendor {
		return a.cfg.Upstreams.Vendor
	}
	return a.cfg.Upstreams.Stats
}

// registerHealthChecks adds the config, limiter and (when enabled) telemetry checks.
func (a *app) registerHealthChecks(hm *handlers.HealthManager) {
	hm.RegisterChecker("config", handlers.HealthCheckerFunc(func(ctx context.Context) error {
		if err := a.cfg.Validate(); err != nil {
			return errwrap.NewConfigInvalidError(err.Error())
		}
		return nil
	}))

	if a.cfg.Metrics.Enabled {
		hm.RegisterChecker("telemetry", handlers.HealthCheckerFunc(func(ctx context.Context) error {
			if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
				return errwrap.NewInternalError("telemetry system not initialized")
			}
			return nil
		}))
	}

	for _, name := range []string{upstreamStats, upstreamVendor} {
		limiter := a.limiters[name]
		hm.RegisterChecker("limiter_"+name, handlers.HealthCheckerFunc(func(ctx context.Context) error {
			return limiterHealth(limiter.Snapshot(), time.Now())
		}))
	}
}

// limiterHealth reports a paused or drained budget as degraded.
func limiterHealth(snap core.RateBudgetSnapshot, now time.Time) error {
	if snap.PausedUntil != nil && snap.PausedUntil.After(now) {
		return &handlers.DegradedError{Reason: "paused until " + snap.PausedUntil.UTC().Format(time.RFC3339)}
	}
	if snap.Tokens <= 0 {
		return &handlers.DegradedError{Reason: "no tokens left"}
	}
	return nil
}

// publishLimiterTokens updates the limiter gauges every interval until ctx ends.
func (a *app) publishLimiterTokens(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		for name, limiter := range a.limiters {
			metrics.SetLimiterTokens(name, limiter.Snapshot().Tokens)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
