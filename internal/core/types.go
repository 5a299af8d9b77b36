package core

import (
	"fmt"
	"strings"
	"time"
)

// APIVersion identifies the version segment of an upstream endpoint.
type APIVersion int

const (
	// APIVersionNone is used by upstreams without a version segment (vendor exports).
	APIVersionNone APIVersion = iota
	APIVersionV1
	APIVersionV11
)

// Segment returns the URL path segment for the version.
func (v APIVersion) Segment() string {
	switch v {
	case APIVersionNone:
		return ""
	case APIVersionV1:
		return "v1"
	case APIVersionV11:
		return "v1.1"
	default:
		panic(fmt.Sprintf("unknown api version %d", int(v)))
	}
}

func (v APIVersion) String() string {
	if v == APIVersionNone {
		return "none"
	}
	return v.Segment()
}

// ParseAPIVersion maps a configured version tag to its variant.
func ParseAPIVersion(value string) (APIVersion, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "none":
		return APIVersionNone, nil
	case "v1":
		return APIVersionV1, nil
	case "v1.1":
		return APIVersionV11, nil
	default:
		return APIVersionNone, fmt.Errorf("unsupported api version: %s", value)
	}
}

// Category names a class of cached upstream data. Each category has its own TTL.
type Category string

const (
	CategoryLineup             Category = "lineup"
	CategoryPitcherSeasonStats Category = "pitcher-season-stats"
	CategoryBatterSeasonStats  Category = "batter-season-stats"
	CategoryCareerStats        Category = "career-stats"
	CategoryCatcherDefense     Category = "catcher-defense"
	CategoryPitchMix           Category = "pitch-mix"
)

// Categories lists every known category in display order.
func Categories() []Category {
	return []Category{
		CategoryLineup,
		CategoryPitcherSeasonStats,
		CategoryBatterSeasonStats,
		CategoryCareerStats,
		CategoryCatcherDefense,
		CategoryPitchMix,
	}
}

// SourceMarker records provenance for a fetched or defaulted value.
type SourceMarker struct {
	SourceTimestamp time.Time `json:"sourceTimestamp" yaml:"sourceTimestamp"`
	IsAPISource     bool      `json:"isApiSource" yaml:"isApiSource"`
}
