// Package ion provides an HTTP client for the Cesium ion REST API with
// automatic retry, client-side rate limiting, and error classification, plus
// the OAuth2 authorization code + PKCE login that produces a Connection.
package ion

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, ion.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("ion: bad request")
	ErrUnauthorized = errors.New("ion: unauthorized")
	ErrForbidden    = errors.New("ion: forbidden")
	ErrNotFound     = errors.New("ion: not found")
	ErrConflict     = errors.New("ion: conflict")
	ErrThrottled    = errors.New("ion: throttled")
	ErrServerError  = errors.New("ion: server error")
)

// ErrEmptyResponse is returned when a 2xx response carries no usable body.
var ErrEmptyResponse = errors.New("ion: empty response")

// APIError wraps a sentinel error with HTTP status code, request ID,
// and the API error message body for debugging.
type APIError struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("ion: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("ion: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for codes without a sentinel.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
