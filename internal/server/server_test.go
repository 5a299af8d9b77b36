package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dugoutdata/dugout/internal/config"
	"github.com/dugoutdata/dugout/internal/core/cache"
	"github.com/dugoutdata/dugout/internal/core/client"
	"github.com/dugoutdata/dugout/internal/core/engine"
	apperrors "github.com/dugoutdata/dugout/internal/errors"
	"github.com/dugoutdata/dugout/internal/server/handlers"
	"github.com/dugoutdata/dugout/internal/stats"
)

func newUnavailableService(t *testing.T) *stats.Service {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(upstream.Close)

	newClient := func(name string) *client.Client {
		c := client.New(client.Config{Name: name, BaseURL: upstream.URL, MaxRetries: 1}, engine.NewRateLimiter(engine.DefaultRateLimit))
		c.Sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
		return c
	}

	service, err := stats.NewService(stats.Options{
		Stats:  newClient("stats"),
		Vendor: newClient("vendor"),
		Cache:  cache.New(cache.Options{}),
	})
	require.NoError(t, err)
	return service
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := New(Options{Config: config.ServerConfig{Host: "127.0.0.1"}})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, rec.Header().Get("X-Request-ID"), body.Error.RequestID)
}

func TestServerMethodNotAllowed(t *testing.T) {
	srv := New(Options{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/version", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServerServesFallbackWhenUpstreamDown(t *testing.T) {
	srv := New(Options{Stats: newUnavailableService(t)})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/pitchers/543037/stats?season=2024", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var line stats.PitchingLine
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&line))
	assert.Equal(t, 543037, line.PlayerID)
	assert.Equal(t, 2024, line.Season)
	assert.True(t, line.IsAPISource)
	assert.Equal(t, "upstream retries exhausted", line.Fallback)
	assert.False(t, line.SourceTimestamp.IsZero())
}

func TestServerRejectsInvalidSeason(t *testing.T) {
	srv := New(Options{Stats: newUnavailableService(t)})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/batters/1/stats?season=1700", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_INPUT")
}

func TestServerHealthRoutes(t *testing.T) {
	health := handlers.NewHealthManager("test")
	health.RegisterChecker("noop", handlers.HealthCheckerFunc(func(ctx context.Context) error { return nil }))
	srv := New(Options{Health: health})

	for _, path := range []string{"/health", "/health/live", "/health/ready", "/health/startup", "/version"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestServerWithoutStatsLeavesV1Unmounted(t *testing.T) {
	srv := New(Options{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/cache/stats", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerAddr(t *testing.T) {
	srv := New(Options{Config: config.ServerConfig{Host: "0.0.0.0", Port: 8181}})
	assert.Equal(t, "0.0.0.0:8181", srv.Addr())
	assert.NoError(t, srv.Shutdown(context.Background()))
}
