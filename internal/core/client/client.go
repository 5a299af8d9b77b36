package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dugoutdata/dugout/internal/core"
	"github.com/dugoutdata/dugout/internal/core/engine"
	"github.com/dugoutdata/dugout/internal/metrics"
)

// RequestedSeasonField is attached to JSON payloads whose request named a season,
// so callers can detect an upstream answering for a different season.
const RequestedSeasonField = "_requestedSeason"

const (
	defaultUserAgent = "dugout/dev (+https://github.com/dugoutdata/dugout)"
	previewLimit     = 100
	maxBodyBytes     = 16 << 20
)

// Config holds retry and transport settings for one upstream.
type Config struct {
	Name          string
	BaseURL       string
	UserAgent     string
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	Timeout       time.Duration
}

// DefaultConfig matches the stats API defaults.
var DefaultConfig = Config{
	Name:          "stats",
	UserAgent:     defaultUserAgent,
	MaxRetries:    3,
	RetryDelay:    time.Second,
	MaxRetryDelay: 5 * time.Second,
	Timeout:       30 * time.Second,
}

// RequestOptions are merged into every attempt of a logical request.
type RequestOptions struct {
	Method string
	Query  url.Values
	Header http.Header
}

// Attempt describes one dispatch of a logical request.
type Attempt struct {
	Endpoint   string
	APIVersion core.APIVersion
	Index      int
	RequestID  string
	StartedAt  time.Time
}

// Client issues rate-limited, retried requests against one upstream.
type Client struct {
	Config     Config
	HTTPClient *http.Client
	Limiter    *engine.RateLimiter
	Logger     *logging.Logger

	Clock        func() time.Time
	Sleep        func(ctx context.Context, d time.Duration) error
	Jitter       func() float64
	NewRequestID func() string
	OnAttempt    func(Attempt)
}

// New builds a client for cfg that draws tokens from limiter.
func New(cfg Config, limiter *engine.RateLimiter) *Client {
	return &Client{
		Config:     cfg,
		HTTPClient: &http.Client{},
		Limiter:    limiter,
	}
}

type responseFormat int

const (
	formatJSON responseFormat = iota
	formatCSV
)

func (f responseFormat) accept() string {
	if f == formatCSV {
		return "text/csv"
	}
	return "application/json"
}

func (f responseFormat) matches(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch f {
	case formatCSV:
		return strings.Contains(mediaType, "csv") || mediaType == "text/plain"
	default:
		return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
	}
}

// Request performs a JSON request and returns the parsed object.
func (c *Client) Request(ctx context.Context, endpoint string, version core.APIVersion, opts *RequestOptions) (map[string]any, error) {
	var payload map[string]any
	err := c.execute(ctx, endpoint, version, opts, formatJSON, func(reqURL *url.URL, body []byte) error {
		decoded, err := decodeObject(body)
		if err != nil {
			return err
		}
		if season := reqURL.Query().Get("season"); season != "" {
			decoded[RequestedSeasonField] = seasonValue(season)
		}
		payload = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// RequestCSV performs a CSV request and returns one record per data row keyed by header.
func (c *Client) RequestCSV(ctx context.Context, endpoint string, version core.APIVersion, opts *RequestOptions) ([]map[string]string, error) {
	var records []map[string]string
	err := c.execute(ctx, endpoint, version, opts, formatCSV, func(_ *url.URL, body []byte) error {
		parsed, err := parseCSV(body)
		if err != nil {
			return err
		}
		records = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) execute(ctx context.Context, endpoint string, version core.APIVersion, opts *RequestOptions, format responseFormat, handle func(*url.URL, []byte) error) error {
	if c == nil {
		return errors.New("client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := configWithDefaults(c.Config)
	reqURL, err := buildURL(cfg.BaseURL, version, endpoint, opts)
	if err != nil {
		return err
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		if err := c.Limiter.Acquire(ctx); err != nil {
			return err
		}

		info := Attempt{
			Endpoint:   endpoint,
			APIVersion: version,
			Index:      attempt,
			RequestID:  c.requestID(),
			StartedAt:  c.now(),
		}
		if c.OnAttempt != nil {
			c.OnAttempt(info)
		}
		attempts++

		wait, err := c.attempt(ctx, cfg, reqURL, info, opts, format, handle)
		if err == nil {
			metrics.RecordUpstreamAttempt(cfg.Name, "success", c.now().Sub(info.StartedAt))
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		lastErr = err
		kind := KindOf(err)
		metrics.RecordUpstreamAttempt(cfg.Name, string(kind), c.now().Sub(info.StartedAt))

		if attempt == cfg.MaxRetries-1 {
			break
		}

		c.logWarn("Retrying upstream request",
			zap.String("upstream", cfg.Name),
			zap.String("endpoint", endpoint),
			zap.String("api_version", version.String()),
			zap.Int("attempt", attempt+1),
			zap.String("request_id", info.RequestID),
			zap.String("kind", string(kind)),
			zap.Duration("wait", wait),
			zap.Error(err))
		metrics.RecordUpstreamRetry(cfg.Name, string(kind))

		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
	}

	metrics.RecordUpstreamExhausted(cfg.Name)
	exhausted := &ExhaustedError{Endpoint: endpoint, Attempts: attempts, Last: lastErr}
	c.logWarn("Upstream retries exhausted",
		zap.String("upstream", cfg.Name),
		zap.String("endpoint", endpoint),
		zap.Int("attempts", attempts),
		zap.Error(lastErr))
	return exhausted
}

// attempt dispatches once and returns the wait to apply before the next attempt.
func (c *Client) attempt(ctx context.Context, cfg Config, reqURL *url.URL, info Attempt, opts *RequestOptions, format responseFormat, handle func(*url.URL, []byte) error) (time.Duration, error) {
	fail := func(kind Kind, status int, err error) *AttemptError {
		return &AttemptError{
			Kind:       kind,
			Endpoint:   info.Endpoint,
			Attempt:    info.Index,
			RequestID:  info.RequestID,
			StatusCode: status,
			Err:        err,
		}
	}
	generic := func() time.Duration {
		return jitteredDelay(cfg.RetryDelay, cfg.MaxRetryDelay, info.Index, c.jitter())
	}

	attemptCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	req, err := c.newRequest(attemptCtx, cfg, reqURL, info, opts, format)
	if err != nil {
		return 0, err
	}

	c.logDebug("Dispatching upstream request",
		zap.String("upstream", cfg.Name),
		zap.String("endpoint", info.Endpoint),
		zap.String("api_version", info.APIVersion.String()),
		zap.Int("attempt", info.Index+1),
		zap.String("request_id", info.RequestID))

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return generic(), fail(KindNetworkOrTimeout, 0, err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		wait, ok := retryAfterHeader(resp, c.now())
		if !ok {
			wait = exponentialDelay(cfg.RetryDelay, cfg.MaxRetryDelay, info.Index)
		}
		wait = clampDelay(wait, cfg.MaxRetryDelay)
		c.Limiter.PauseUntil(c.now().Add(wait))
		drain(resp.Body)
		return wait, fail(KindRateLimited, resp.StatusCode, nil)

	case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusGatewayTimeout:
		drain(resp.Body)
		return exponentialDelay(cfg.RetryDelay, cfg.MaxRetryDelay, info.Index), fail(KindServerUnavailable, resp.StatusCode, nil)

	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := readBody(resp.Body)
		attemptErr := fail(KindHTTPError, resp.StatusCode, nil)
		attemptErr.Preview = preview(body)
		return generic(), attemptErr
	}

	contentType := resp.Header.Get("Content-Type")
	body, err := readBody(resp.Body)
	if err != nil {
		return generic(), fail(KindNetworkOrTimeout, resp.StatusCode, err)
	}

	if !format.matches(contentType) {
		attemptErr := fail(KindMalformedResponse, resp.StatusCode, fmt.Errorf("expected %s response", format.accept()))
		attemptErr.ContentType = contentType
		attemptErr.Preview = preview(body)
		return generic(), attemptErr
	}

	if err := handle(reqURL, body); err != nil {
		attemptErr := fail(KindMalformedResponse, resp.StatusCode, err)
		attemptErr.ContentType = contentType
		attemptErr.Preview = preview(body)
		return generic(), attemptErr
	}

	return 0, nil
}

func (c *Client) newRequest(ctx context.Context, cfg Config, reqURL *url.URL, info Attempt, opts *RequestOptions, format responseFormat) (*http.Request, error) {
	method := http.MethodGet
	if opts != nil && strings.TrimSpace(opts.Method) != "" {
		method = strings.ToUpper(strings.TrimSpace(opts.Method))
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Accept", format.accept())
	req.Header.Set("User-Agent", cfg.UserAgent)
	if opts != nil {
		for key, values := range opts.Header {
			req.Header.Del(key)
			for _, value := range values {
				req.Header.Add(key, value)
			}
		}
	}
	req.Header.Set("X-Request-Id", info.RequestID)

	return req, nil
}

func buildURL(baseURL string, version core.APIVersion, endpoint string, opts *RequestOptions) (*url.URL, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, errors.New("upstream base url is required")
	}

	path := strings.TrimSpace(endpoint)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if segment := version.Segment(); segment != "" {
		path = "/" + segment + path
	}

	parsed, err := url.Parse(base + path)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url: %w", err)
	}

	if opts != nil && len(opts.Query) > 0 {
		query := parsed.Query()
		for key, values := range opts.Query {
			query.Del(key)
			for _, value := range values {
				query.Add(key, value)
			}
		}
		parsed.RawQuery = query.Encode()
	}

	return parsed, nil
}

func decodeObject(body []byte) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode json body: %w", err)
	}
	if payload == nil {
		return nil, errors.New("decode json body: expected an object")
	}
	return payload, nil
}

func seasonValue(season string) any {
	if year, err := strconv.Atoi(season); err == nil {
		return year
	}
	return season
}

func readBody(body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return data, nil
}

func drain(body io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxBodyBytes))
}

func preview(body []byte) string {
	text := string(bytes.TrimSpace(body))
	if utf8.RuneCountInString(text) <= previewLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewLimit])
}

func configWithDefaults(cfg Config) Config {
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = DefaultConfig.Name
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = DefaultConfig.UserAgent
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig.MaxRetries
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	} else if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultConfig.RetryDelay
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = DefaultConfig.MaxRetryDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig.Timeout
	}
	return cfg
}

func (c *Client) requestID() string {
	if c.NewRequestID != nil {
		return c.NewRequestID()
	}
	return uuid.New().String()
}

func (c *Client) jitter() float64 {
	if c.Jitter != nil {
		return c.Jitter()
	}
	return defaultJitter()
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	return engine.SleepContext(ctx, d)
}

func (c *Client) now() time.Time {
	if c != nil && c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}

func (c *Client) logDebug(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Debug(msg, fields...)
	}
}

func (c *Client) logWarn(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Warn(msg, fields...)
	}
}
