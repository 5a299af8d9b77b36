package metrics

import (
	"time"

	"github.com/dugoutdata/dugout/internal/observability"
)

// Upstream client metrics
const (
	UpstreamAttemptsTotal   = "upstream_attempts_total"
	UpstreamAttemptDuration = "upstream_attempt_duration_ms"
	UpstreamRetriesTotal    = "upstream_retries_total"
	UpstreamExhaustedTotal  = "upstream_retries_exhausted_total"
	UpstreamFallbacksTotal  = "upstream_fallbacks_total"
	LimiterTokens           = "limiter_tokens"
)

// RecordUpstreamAttempt records one dispatched request and its outcome
// ("success" or a failure kind).
func RecordUpstreamAttempt(upstream, outcome string, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		UpstreamAttemptsTotal,
		1,
		map[string]string{
			"upstream": upstream,
			"outcome":  outcome,
		},
	)
	_ = observability.TelemetrySystem.Histogram(
		UpstreamAttemptDuration,
		duration,
		map[string]string{
			"upstream": upstream,
		},
	)
}

// RecordUpstreamRetry records a scheduled retry
func RecordUpstreamRetry(upstream, kind string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			UpstreamRetriesTotal,
			1,
			map[string]string{
				"upstream": upstream,
				"kind":     kind,
			},
		)
	}
}

// RecordUpstreamExhausted records a logical request that failed every attempt
func RecordUpstreamExhausted(upstream string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			UpstreamExhaustedTotal,
			1,
			map[string]string{
				"upstream": upstream,
			},
		)
	}
}

// RecordFallback records a conservative default served in place of live data
func RecordFallback(category string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			UpstreamFallbacksTotal,
			1,
			map[string]string{
				"category": category,
			},
		)
	}
}

// SetLimiterTokens publishes the remaining tokens of an upstream budget
func SetLimiterTokens(upstream string, tokens int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			LimiterTokens,
			float64(tokens),
			map[string]string{
				"upstream": upstream,
			},
		)
	}
}
