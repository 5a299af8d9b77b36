package cache

import (
	"fmt"
	"time"

	"github.com/dugoutdata/dugout/internal/core"
)

// TTLPolicy maps each data category to how long its values stay fresh.
type TTLPolicy map[core.Category]time.Duration

// DefaultTTLPolicy returns the built-in freshness table.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		core.CategoryLineup:             10 * time.Minute,
		core.CategoryPitcherSeasonStats: 6 * time.Hour,
		core.CategoryBatterSeasonStats:  6 * time.Hour,
		core.CategoryCareerStats:        12 * time.Hour,
		core.CategoryCatcherDefense:     2 * time.Hour,
		core.CategoryPitchMix:           time.Hour,
	}
}

// For returns the TTL for category, falling back to the default table.
func (p TTLPolicy) For(category core.Category) time.Duration {
	if ttl, ok := p[category]; ok && ttl > 0 {
		return ttl
	}
	return DefaultTTLPolicy()[category]
}

// WithOverrides returns a copy of p with the configured TTLs applied.
// Unknown categories and non-positive durations are rejected.
func (p TTLPolicy) WithOverrides(overrides map[string]time.Duration) (TTLPolicy, error) {
	known := make(map[core.Category]bool)
	for _, category := range core.Categories() {
		known[category] = true
	}

	merged := make(TTLPolicy, len(p)+len(overrides))
	for category, ttl := range p {
		merged[category] = ttl
	}
	for name, ttl := range overrides {
		category := core.Category(name)
		if !known[category] {
			return nil, fmt.Errorf("unknown cache category: %s", name)
		}
		if ttl <= 0 {
			return nil, fmt.Errorf("ttl for %s must be positive", name)
		}
		merged[category] = ttl
	}
	return merged, nil
}
