package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dugoutdata/dugout/internal/core"
)

type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 4, 1, 19, 5, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.slept = append(c.slept, d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) TotalSlept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total time.Duration
	for _, d := range c.slept {
		total += d
	}
	return total
}

func newTestLimiter(clock *fakeClock, limit RateLimit) *RateLimiter {
	limiter := NewRateLimiter(limit)
	limiter.Clock = clock.Now
	limiter.Sleep = clock.Sleep
	return limiter
}

func TestRateLimiterBurstThenThrottle(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(clock, RateLimit{Capacity: 20, RefillRate: 20, Interval: time.Second})

	for i := 0; i < 20; i++ {
		require.NoError(t, limiter.Acquire(context.Background()))
	}
	require.Zero(t, clock.TotalSlept())

	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.Acquire(context.Background()))
	}
	require.GreaterOrEqual(t, clock.TotalSlept(), 250*time.Millisecond)
	require.Len(t, clock.slept, 5)
	require.Equal(t, 50*time.Millisecond, clock.slept[0])
}

func TestRateLimiterTokenInvariant(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(clock, RateLimit{Capacity: 5, RefillRate: 2, Interval: time.Second})

	steps := []time.Duration{0, 10 * time.Millisecond, 700 * time.Millisecond, 3 * time.Second, 0, time.Hour}
	for _, step := range steps {
		clock.Advance(step)
		for i := 0; i < 3; i++ {
			require.NoError(t, limiter.Acquire(context.Background()))
			snapshot := limiter.Snapshot()
			require.GreaterOrEqual(t, snapshot.Tokens, 0)
			require.LessOrEqual(t, snapshot.Tokens, snapshot.Capacity)
		}
	}

	clock.Advance(24 * time.Hour)
	require.Equal(t, 5, limiter.Snapshot().Tokens)
}

func TestRateLimiterRefillKeepsFraction(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(clock, RateLimit{Capacity: 1, RefillRate: 1, Interval: time.Second})

	require.True(t, limiter.TryAcquire())
	require.False(t, limiter.TryAcquire())

	// Partial intervals must accumulate rather than being discarded.
	for i := 0; i < 4; i++ {
		clock.Advance(250 * time.Millisecond)
		if i < 3 {
			require.False(t, limiter.TryAcquire())
		}
	}
	require.True(t, limiter.TryAcquire())
}

func TestRateLimiterPauseUntil(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(clock, DefaultRateLimit)

	limiter.PauseUntil(clock.Now().Add(2 * time.Second))
	require.NotNil(t, limiter.Snapshot().PausedUntil)

	require.NoError(t, limiter.Acquire(context.Background()))
	require.Equal(t, 2*time.Second, clock.TotalSlept())
	require.Nil(t, limiter.Snapshot().PausedUntil)
}

func TestRateLimiterContextCancel(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(clock, RateLimit{Capacity: 1, RefillRate: 1, Interval: time.Minute})
	require.NoError(t, limiter.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := limiter.Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, limiter.Snapshot().Tokens)
}

func TestRateLimiterConcurrentAcquire(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{Capacity: 50, RefillRate: 1, Interval: time.Hour})

	var wg sync.WaitGroup
	granted := make(chan struct{}, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.TryAcquire() {
				granted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(granted)

	require.Len(t, granted, 50)
	require.Equal(t, 0, limiter.Snapshot().Tokens)
}

func TestRateLimiterMargin(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{Capacity: 10, RefillRate: 10, Interval: time.Second})

	limiter.ApplySafetyMargin(0.9)
	limit := limiter.Limit()
	require.Equal(t, 9, limit.Capacity)
	require.Equal(t, 9, limit.RefillRate)

	limiter.ApplySafetyMargin(0)
	require.Equal(t, 9, limiter.Limit().Capacity)
}

func TestRateLimiterDefaults(t *testing.T) {
	limiter := &RateLimiter{}
	require.Equal(t, DefaultRateLimit, limiter.Limit())
	require.True(t, limiter.TryAcquire())
	require.Equal(t, 19, limiter.Snapshot().Tokens)
}

func TestRateLimiterNilIsUnlimited(t *testing.T) {
	var limiter *RateLimiter

	require.NoError(t, limiter.Acquire(context.Background()))
	require.True(t, limiter.TryAcquire())
	limiter.PauseUntil(time.Now().Add(time.Minute))
	limiter.ApplySafetyMargin(0.5)
	require.Equal(t, RateLimit{}, limiter.Limit())
	require.Equal(t, core.RateBudgetSnapshot{}, limiter.Snapshot())
}
