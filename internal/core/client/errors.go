package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an upstream failure.
type Kind string

const (
	KindRateLimited       Kind = "rate_limited"
	KindServerUnavailable Kind = "server_unavailable"
	KindMalformedResponse Kind = "malformed_response"
	KindHTTPError         Kind = "http_error"
	KindNetworkOrTimeout  Kind = "network_or_timeout"
	KindRetriesExhausted  Kind = "retries_exhausted"
)

// ErrRetriesExhausted matches every terminal failure returned by the client.
var ErrRetriesExhausted = errors.New("upstream retries exhausted")

// AttemptError describes why a single attempt failed. Attempt errors are
// handled inside the client and only surface wrapped in an ExhaustedError.
type AttemptError struct {
	Kind        Kind
	Endpoint    string
	Attempt     int
	RequestID   string
	StatusCode  int
	ContentType string
	Preview     string
	Err         error
}

func (e *AttemptError) Error() string {
	msg := fmt.Sprintf("%s: attempt %d: %s", e.Endpoint, e.Attempt+1, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d %s)", e.StatusCode, http.StatusText(e.StatusCode))
	}
	if e.ContentType != "" {
		msg += fmt.Sprintf(" content-type=%q", e.ContentType)
	}
	if e.Preview != "" {
		msg += fmt.Sprintf(" body=%q", e.Preview)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// ExhaustedError is the terminal failure after every attempt failed.
type ExhaustedError struct {
	Endpoint string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("%s: %s after %d attempts", e.Endpoint, ErrRetriesExhausted, e.Attempts)
	}
	return fmt.Sprintf("%s: %s after %d attempts: %v", e.Endpoint, ErrRetriesExhausted, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrRetriesExhausted}
	}
	return []error{ErrRetriesExhausted, e.Last}
}

// KindOf reports the most specific failure kind found in err.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var attemptErr *AttemptError
	if errors.As(err, &attemptErr) && !errors.Is(err, ErrRetriesExhausted) {
		return attemptErr.Kind
	}
	if errors.Is(err, ErrRetriesExhausted) {
		return KindRetriesExhausted
	}
	return ""
}

// LastAttempt extracts the final attempt error from a terminal failure.
func LastAttempt(err error) (*AttemptError, bool) {
	var attemptErr *AttemptError
	if errors.As(err, &attemptErr) {
		return attemptErr, true
	}
	return nil, false
}
