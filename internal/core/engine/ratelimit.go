package engine

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/dugoutdata/dugout/internal/core"
)

// RateLimit configures a token bucket for one upstream.
type RateLimit struct {
	Capacity   int
	RefillRate int
	Interval   time.Duration
}

// DefaultRateLimit is the budget used for the stats API.
var DefaultRateLimit = RateLimit{Capacity: 20, RefillRate: 20, Interval: time.Second}

// RateLimiter is a token bucket shared by every caller of one upstream.
type RateLimiter struct {
	Clock func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	mu          sync.Mutex
	limit       RateLimit
	tokens      int
	lastRefill  time.Time
	pausedUntil time.Time
	started     bool
}

// NewRateLimiter returns a limiter with a full bucket.
func NewRateLimiter(limit RateLimit) *RateLimiter {
	return &RateLimiter{limit: normalizeLimit(limit)}
}

// Acquire blocks until one token is available, then consumes it.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	if r == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		wait, ok := r.tryAcquire()
		if ok {
			return nil
		}
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// TryAcquire consumes a token if one is available without waiting.
func (r *RateLimiter) TryAcquire() bool {
	if r == nil {
		return true
	}
	_, ok := r.tryAcquire()
	return ok
}

// PauseUntil blocks all acquirers until t, e.g. after an upstream 429.
func (r *RateLimiter) PauseUntil(t time.Time) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.After(r.pausedUntil) {
		r.pausedUntil = t
	}
}

// ApplySafetyMargin scales capacity and refill rate by a ratio (0-1].
func (r *RateLimiter) ApplySafetyMargin(margin float64) {
	if r == nil || margin <= 0 || margin > 1 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.limit = normalizeLimit(r.limit)
	r.limit.Capacity = scale(r.limit.Capacity, margin)
	r.limit.RefillRate = scale(r.limit.RefillRate, margin)
	if r.tokens > r.limit.Capacity {
		r.tokens = r.limit.Capacity
	}
}

// Limit returns the effective budget. A nil limiter is unlimited and
// reports the zero RateLimit.
func (r *RateLimiter) Limit() RateLimit {
	if r == nil {
		return RateLimit{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return normalizeLimit(r.limit)
}

// Snapshot refills lazily and returns the current budget state.
func (r *RateLimiter) Snapshot() core.RateBudgetSnapshot {
	if r == nil {
		return core.RateBudgetSnapshot{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.refill(now)

	snapshot := core.RateBudgetSnapshot{
		Capacity:   r.limit.Capacity,
		Tokens:     r.tokens,
		RefillRate: r.limit.RefillRate,
		Interval:   r.limit.Interval,
		LastRefill: r.lastRefill,
	}
	if now.Before(r.pausedUntil) {
		paused := r.pausedUntil
		snapshot.PausedUntil = &paused
	}
	return snapshot
}

func (r *RateLimiter) tryAcquire() (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Before(r.pausedUntil) {
		return r.pausedUntil.Sub(now), false
	}

	r.refill(now)
	if r.tokens >= 1 {
		r.tokens--
		return 0, true
	}
	return r.tokenWait(), false
}

// refill must be called with mu held.
func (r *RateLimiter) refill(now time.Time) {
	if !r.started {
		r.started = true
		r.limit = normalizeLimit(r.limit)
		r.tokens = r.limit.Capacity
		r.lastRefill = now
		return
	}

	elapsed := now.Sub(r.lastRefill)
	if elapsed <= 0 {
		return
	}

	// Past this point the bucket is full regardless; the cap keeps the product below overflow.
	fullAfter := r.limit.Interval * time.Duration(r.limit.Capacity/r.limit.RefillRate+1)
	if elapsed > fullAfter {
		elapsed = fullAfter
	}

	add := int(int64(elapsed) * int64(r.limit.RefillRate) / int64(r.limit.Interval))
	if add <= 0 {
		return
	}

	r.tokens = min(r.limit.Capacity, r.tokens+add)
	r.lastRefill = now
}

func (r *RateLimiter) tokenWait() time.Duration {
	return time.Duration(math.Ceil(float64(r.limit.Interval) / float64(r.limit.RefillRate)))
}

func (r *RateLimiter) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

func (r *RateLimiter) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func normalizeLimit(limit RateLimit) RateLimit {
	if limit.Capacity <= 0 {
		limit.Capacity = DefaultRateLimit.Capacity
	}
	if limit.RefillRate <= 0 {
		limit.RefillRate = DefaultRateLimit.RefillRate
	}
	if limit.Interval <= 0 {
		limit.Interval = DefaultRateLimit.Interval
	}
	return limit
}

func scale(value int, margin float64) int {
	adjusted := int(math.Floor(float64(value) * margin))
	if adjusted < 1 {
		adjusted = 1
	}
	return adjusted
}
