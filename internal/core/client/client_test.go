package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dugoutdata/dugout/internal/core"
	"github.com/dugoutdata/dugout/internal/core/engine"
)

type testClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.slept = append(c.slept, d)
	return nil
}

func (c *testClock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

func newTestClient(t *testing.T, baseURL string, cfg Config) (*Client, *testClock) {
	t.Helper()

	clock := &testClock{now: time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)}
	limiter := engine.NewRateLimiter(engine.DefaultRateLimit)
	limiter.Clock = clock.Now
	limiter.Sleep = clock.Sleep

	cfg.BaseURL = baseURL
	c := New(cfg, limiter)
	c.Clock = clock.Now
	c.Sleep = clock.Sleep
	c.Jitter = func() float64 { return 1 }
	return c, clock
}

func TestRequestStopsAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c, clock := newTestClient(t, server.URL, Config{MaxRetries: 3, RetryDelay: time.Second, MaxRetryDelay: 5 * time.Second})

	payload, err := c.Request(context.Background(), "/people/1/stats", core.APIVersionV1, nil)
	require.Nil(t, payload)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrRetriesExhausted)
	require.Equal(t, KindRetriesExhausted, KindOf(err))
	require.EqualValues(t, 3, calls.Load())

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	require.Equal(t, 3, exhausted.Attempts)

	last, ok := LastAttempt(err)
	require.True(t, ok)
	require.Equal(t, KindServerUnavailable, last.Kind)
	require.Equal(t, http.StatusServiceUnavailable, last.StatusCode)

	// No wait after the final attempt.
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Slept())
}

func TestRequestRecoversAfterServerUnavailable(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"stats":[{"splits":[]}]}`))
	}))
	defer server.Close()

	c, clock := newTestClient(t, server.URL, Config{MaxRetries: 3, RetryDelay: time.Second, MaxRetryDelay: 5 * time.Second})

	payload, err := c.Request(context.Background(), "/people/1/stats", core.APIVersionV1, nil)
	require.NoError(t, err)
	require.Contains(t, payload, "stats")
	require.EqualValues(t, 3, calls.Load())

	var total time.Duration
	for _, d := range clock.Slept() {
		total += d
	}
	require.Equal(t, 3*time.Second, total)
}

func TestRequestHonoursRetryAfter(t *testing.T) {
	tests := []struct {
		name       string
		retryAfter string
		maxDelay   time.Duration
		want       time.Duration
	}{
		{name: "seconds", retryAfter: "2", maxDelay: 5 * time.Second, want: 2 * time.Second},
		{name: "clamped", retryAfter: "30", maxDelay: 5 * time.Second, want: 5 * time.Second},
		{name: "missing header", retryAfter: "", maxDelay: 5 * time.Second, want: 500 * time.Millisecond},
		{name: "beyond duration range", retryAfter: "99999999999", maxDelay: 5 * time.Second, want: 5 * time.Second},
		{name: "infinite falls back to backoff", retryAfter: "Inf", maxDelay: 5 * time.Second, want: 500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) == 1 {
					if tt.retryAfter != "" {
						w.Header().Set("Retry-After", tt.retryAfter)
					}
					w.WriteHeader(http.StatusTooManyRequests)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"ok":true}`))
			}))
			defer server.Close()

			c, clock := newTestClient(t, server.URL, Config{MaxRetries: 3, RetryDelay: 500 * time.Millisecond, MaxRetryDelay: tt.maxDelay})

			payload, err := c.Request(context.Background(), "/teams", core.APIVersionV1, nil)
			require.NoError(t, err)
			require.Equal(t, true, payload["ok"])
			require.Equal(t, []time.Duration{tt.want}, clock.Slept())
			require.Nil(t, c.Limiter.Snapshot().PausedUntil)
		})
	}
}

func TestRequestRejectsNonJSONBody(t *testing.T) {
	body := "<html>" + strings.Repeat("x", 300) + "</html>"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	c, clock := newTestClient(t, server.URL, Config{MaxRetries: 1})

	_, err := c.Request(context.Background(), "/game/1/feed/live", core.APIVersionV11, nil)
	require.ErrorIs(t, err, ErrRetriesExhausted)

	last, ok := LastAttempt(err)
	require.True(t, ok)
	require.Equal(t, KindMalformedResponse, last.Kind)
	require.Equal(t, "text/html", last.ContentType)
	require.Len(t, last.Preview, 100)
	require.True(t, strings.HasPrefix(last.Preview, "<html>"))
	require.Empty(t, clock.Slept())
}

func TestRequestRetriesUnparseableJSON(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"truncated":`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c, clock := newTestClient(t, server.URL, Config{MaxRetries: 2, RetryDelay: time.Second})
	c.Jitter = func() float64 { return 1.15 }

	payload, err := c.Request(context.Background(), "/teams", core.APIVersionV1, nil)
	require.NoError(t, err)
	require.Equal(t, true, payload["ok"])
	require.Equal(t, []time.Duration{1150 * time.Millisecond}, clock.Slept())
}

func TestRequestHTTPErrorUsesJitteredBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such player", http.StatusNotFound)
	}))
	defer server.Close()

	c, clock := newTestClient(t, server.URL, Config{MaxRetries: 2, RetryDelay: time.Second})
	c.Jitter = func() float64 { return 0.85 }

	_, err := c.Request(context.Background(), "/people/0", core.APIVersionV1, nil)
	require.ErrorIs(t, err, ErrRetriesExhausted)

	last, ok := LastAttempt(err)
	require.True(t, ok)
	require.Equal(t, KindHTTPError, last.Kind)
	require.Equal(t, http.StatusNotFound, last.StatusCode)
	require.Equal(t, "no such player", last.Preview)
	require.Equal(t, []time.Duration{850 * time.Millisecond}, clock.Slept())
}

func TestRequestNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	c, _ := newTestClient(t, baseURL, Config{MaxRetries: 2, RetryDelay: 10 * time.Millisecond})

	_, err := c.Request(context.Background(), "/teams", core.APIVersionV1, nil)
	require.ErrorIs(t, err, ErrRetriesExhausted)

	last, ok := LastAttempt(err)
	require.True(t, ok)
	require.Equal(t, KindNetworkOrTimeout, last.Kind)
}

func TestRequestAttachesRequestedSeason(t *testing.T) {
	var gotPath, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"stats":[]}`))
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, Config{})

	payload, err := c.Request(context.Background(), "/people/543037/stats", core.APIVersionV1, &RequestOptions{
		Query: url.Values{"stats": {"season"}, "group": {"pitching"}, "season": {"2024"}},
	})
	require.NoError(t, err)
	require.Equal(t, "/v1/people/543037/stats", gotPath)
	require.Contains(t, gotQuery, "season=2024")
	require.Equal(t, 2024, payload[RequestedSeasonField])

	payload, err = c.Request(context.Background(), "/teams", core.APIVersionV1, nil)
	require.NoError(t, err)
	require.NotContains(t, payload, RequestedSeasonField)
}

func TestRequestHeaders(t *testing.T) {
	var mu sync.Mutex
	var ids []string
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "dugout-test/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "yes", r.Header.Get("X-Extra"))

		mu.Lock()
		ids = append(ids, r.Header.Get("X-Request-Id"))
		mu.Unlock()

		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusGatewayTimeout)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, Config{UserAgent: "dugout-test/1.0"})

	var attempts []Attempt
	c.OnAttempt = func(a Attempt) { attempts = append(attempts, a) }

	_, err := c.Request(context.Background(), "/teams", core.APIVersionV1, &RequestOptions{
		Header: http.Header{"X-Extra": {"yes"}},
	})
	require.NoError(t, err)

	require.Len(t, ids, 2)
	require.NotEmpty(t, ids[0])
	require.NotEqual(t, ids[0], ids[1])

	require.Len(t, attempts, 2)
	require.Equal(t, 0, attempts[0].Index)
	require.Equal(t, 1, attempts[1].Index)
	require.Equal(t, ids[1], attempts[1].RequestID)
	require.Equal(t, core.APIVersionV1, attempts[1].APIVersion)
}

func TestRequestConsumesLimiterTokenPerAttempt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c, clock := newTestClient(t, server.URL, Config{MaxRetries: 3, RetryDelay: time.Nanosecond})
	c.Limiter = engine.NewRateLimiter(engine.RateLimit{Capacity: 5, RefillRate: 1, Interval: time.Hour})
	c.Limiter.Clock = clock.Now

	_, err := c.Request(context.Background(), "/teams", core.APIVersionV1, nil)
	require.Error(t, err)
	require.Equal(t, 2, c.Limiter.Snapshot().Tokens)
}

func TestRequestReturnsCallerCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Request(ctx, "/teams", core.APIVersionV1, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrRetriesExhausted)
}

func TestRequestCSV(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/csv", r.Header.Get("Accept"))
		assert.Equal(t, "/leaderboard/catcher-framing", r.URL.Path)
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		_, _ = w.Write([]byte("player_id,player_name,framing_runs\n543309,\"Smith, Will\",7.4\n669257,Rutschman,3\n"))
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, Config{})

	records, err := c.RequestCSV(context.Background(), "/leaderboard/catcher-framing", core.APIVersionNone, nil)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "Smith, Will", records[0]["player_name"])
	require.Equal(t, "3", records[1]["framing_runs"])
}

func TestRequestCSVStripsByteOrderMark(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("\ufeffplayer_id,pitch_type\n605483,FF\n"))
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, Config{})

	records, err := c.RequestCSV(context.Background(), "/leaderboard/pitch-arsenal", core.APIVersionNone, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "605483", records[0]["player_id"])
	require.NotContains(t, records[0], "\ufeffplayer_id")
}

func TestRequestCSVRejectsJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":"login required"}`))
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, Config{MaxRetries: 1})

	_, err := c.RequestCSV(context.Background(), "/leaderboard/pitch-arsenal", core.APIVersionNone, nil)
	last, ok := LastAttempt(err)
	require.True(t, ok)
	require.Equal(t, KindMalformedResponse, last.Kind)
	require.Equal(t, "application/json", last.ContentType)
}

func TestDecode(t *testing.T) {
	type line struct {
		Era            float64 `json:"era"`
		InningsPitched string  `json:"inningsPitched"`
		Strikeouts     int     `json:"strikeOuts"`
	}

	var out line
	err := Decode(map[string]any{"era": "3.21", "inningsPitched": "180.1", "strikeOuts": float64(201)}, &out)
	require.NoError(t, err)
	require.InDelta(t, 3.21, out.Era, 0.0001)
	require.Equal(t, "180.1", out.InningsPitched)
	require.Equal(t, 201, out.Strikeouts)
}

func TestBackoffDelays(t *testing.T) {
	require.Equal(t, time.Second, exponentialDelay(time.Second, 5*time.Second, 0))
	require.Equal(t, 4*time.Second, exponentialDelay(time.Second, 5*time.Second, 2))
	require.Equal(t, 5*time.Second, exponentialDelay(time.Second, 5*time.Second, 3))
	require.Equal(t, 2300*time.Millisecond, jitteredDelay(time.Second, 5*time.Second, 1, 1.15))

	// Products past the int64 range still clamp to the maximum.
	require.Equal(t, 5*time.Second, exponentialDelay(time.Second, 5*time.Second, 34))
	require.Equal(t, 5*time.Second, exponentialDelay(time.Second, 5*time.Second, 1024))
	require.Equal(t, 5*time.Second, jitteredDelay(time.Second, 5*time.Second, 40, 1.0))
	require.Equal(t, time.Duration(0), exponentialDelay(0, 5*time.Second, 40))

	for i := 0; i < 100; i++ {
		j := defaultJitter()
		require.GreaterOrEqual(t, j, jitterMin)
		require.LessOrEqual(t, j, jitterMax)
	}
}

func TestRetryAfterHeader(t *testing.T) {
	now := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

	resp := &http.Response{Header: http.Header{}}
	_, ok := retryAfterHeader(resp, now)
	require.False(t, ok)

	resp.Header.Set("Retry-After", "1.5")
	wait, ok := retryAfterHeader(resp, now)
	require.True(t, ok)
	require.Equal(t, 1500*time.Millisecond, wait)

	resp.Header.Set("Retry-After", now.Add(3*time.Second).Format(http.TimeFormat))
	wait, ok = retryAfterHeader(resp, now)
	require.True(t, ok)
	require.Equal(t, 3*time.Second, wait)

	resp.Header.Set("Retry-After", "soon")
	_, ok = retryAfterHeader(resp, now)
	require.False(t, ok)

	resp.Header.Set("Retry-After", "99999999999")
	wait, ok = retryAfterHeader(resp, now)
	require.True(t, ok)
	require.Positive(t, wait)
	require.Equal(t, 5*time.Second, clampDelay(wait, 5*time.Second))

	for _, value := range []string{"Inf", "+Inf", "NaN", "-1"} {
		resp.Header.Set("Retry-After", value)
		_, ok = retryAfterHeader(resp, now)
		require.False(t, ok, value)
	}
}
