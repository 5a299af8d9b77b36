package core

import "time"

// Stampable is implemented by any pointer to a struct embedding SourceMarker.
type Stampable interface {
	SetSource(marker SourceMarker)
}

// SetSource replaces the marker. Promoted to types that embed SourceMarker.
func (m *SourceMarker) SetSource(marker SourceMarker) {
	*m = marker
}

// Stamp marks value as created at now by the live API path.
func Stamp[T Stampable](value T, now time.Time) T {
	value.SetSource(SourceMarker{SourceTimestamp: now, IsAPISource: true})
	return value
}

// StampMap copies payload and adds the marker fields to the copy.
func StampMap(payload map[string]any, now time.Time) map[string]any {
	stamped := make(map[string]any, len(payload)+2)
	for key, value := range payload {
		stamped[key] = value
	}
	stamped["sourceTimestamp"] = now
	stamped["isApiSource"] = true
	return stamped
}
