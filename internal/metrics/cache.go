package metrics

import "github.com/dugoutdata/dugout/internal/observability"

// Cache metrics
const (
	CacheLookupsTotal     = "cache_lookups_total"
	CacheFetchErrorsTotal = "cache_fetch_errors_total"
	CacheEntries          = "cache_entries"
)

// RecordCacheLookup records a lookup result: "hit", "miss" or "coalesced".
func RecordCacheLookup(namespace, result string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			CacheLookupsTotal,
			1,
			map[string]string{
				"namespace": namespace,
				"result":    result,
			},
		)
	}
}

// RecordCacheFetchError records a failed fetch behind a miss
func RecordCacheFetchError(namespace string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			CacheFetchErrorsTotal,
			1,
			map[string]string{
				"namespace": namespace,
			},
		)
	}
}

// SetCacheEntries publishes the number of live entries
func SetCacheEntries(count int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			CacheEntries,
			float64(count),
			nil,
		)
	}
}
