package client

import (
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	jitterMin = 0.85
	jitterMax = 1.15
)

// exponentialDelay returns base*2^attempt clamped to max.
func exponentialDelay(base, max time.Duration, attempt int) time.Duration {
	return scaledDelay(base, max, attempt, 1)
}

// jitteredDelay returns base*2^attempt*jitter clamped to max.
func jitteredDelay(base, max time.Duration, attempt int, jitter float64) time.Duration {
	return scaledDelay(base, max, attempt, jitter)
}

func scaledDelay(base, max time.Duration, attempt int, factor float64) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := float64(base) * math.Pow(2, float64(attempt)) * factor
	if math.IsNaN(delay) || delay <= 0 {
		return 0
	}
	return clampDelay(durationFromFloat(delay), max)
}

// durationFromFloat converts nanoseconds, saturating instead of wrapping.
func durationFromFloat(nanos float64) time.Duration {
	if nanos >= float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(nanos)
}

func clampDelay(delay, max time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}

func defaultJitter() float64 {
	return jitterMin + rand.Float64()*(jitterMax-jitterMin)
}

// retryAfterHeader parses Retry-After as delta seconds or an HTTP date.
func retryAfterHeader(resp *http.Response, now time.Time) (time.Duration, bool) {
	if resp == nil || resp.Header == nil {
		return 0, false
	}

	retry := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if retry == "" {
		return 0, false
	}

	if seconds, err := strconv.ParseFloat(retry, 64); err == nil {
		if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
			return 0, false
		}
		return durationFromFloat(seconds * float64(time.Second)), true
	}
	if parsed, err := http.ParseTime(retry); err == nil {
		wait := parsed.Sub(now)
		if wait < 0 {
			wait = 0
		}
		return wait, true
	}

	return 0, false
}
