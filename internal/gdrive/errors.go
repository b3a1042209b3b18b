// Package gdrive adapts the Google Drive v3 REST API into a path-oriented,
// filesystem-like interface: listing, reading, writing, renaming, moving,
// copying and deleting files and folders, with OAuth2 credential management,
// bounded retry, and error classification.
package gdrive

import (
	"errors"
	"fmt"
	"net/http"
)

// Operation-level errors. Use errors.Is(err, gdrive.ErrNotFound) to check.
var (
	ErrAuth             = errors.New("gdrive: authentication failed")
	ErrNotFound         = errors.New("gdrive: not found")
	ErrTransport        = errors.New("gdrive: request failed")
	ErrRateLimited      = errors.New("gdrive: rate limited")
	ErrInvalidPath      = errors.New("gdrive: invalid path")
	ErrUnexpectedStatus = errors.New("gdrive: unexpected status")
	ErrSessionExpired   = errors.New("gdrive: upload session expired")
)

// Sentinel errors for HTTP status code classification.
var (
	ErrBadRequest   = errors.New("gdrive: bad request")
	ErrUnauthorized = errors.New("gdrive: unauthorized")
	ErrForbidden    = errors.New("gdrive: forbidden")
	ErrConflict     = errors.New("gdrive: conflict")
	ErrServerError  = errors.New("gdrive: server error")
)

// DriveError wraps a sentinel error with HTTP status code, the API error
// message, and the first error reason reported by the provider.
// Every DriveError also matches ErrTransport.
type DriveError struct {
	StatusCode int
	Reason     string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *DriveError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("gdrive: HTTP %d (%s): %s", e.StatusCode, e.Reason, e.Message)
	}

	return fmt.Sprintf("gdrive: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *DriveError) Unwrap() error {
	return e.Err
}

// Is makes every DriveError match ErrTransport in addition to its sentinel.
func (e *DriveError) Is(target error) bool {
	return target == ErrTransport
}

// classifyStatus maps an HTTP status code to a sentinel error.
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
		return ErrRateLimited
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return ErrTransport
	}
}

// isRetryable reports whether the given HTTP status code should be retried
// with the ordinary backoff schedule. 429 has its own schedule.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// rateLimitReasons are the 403 error reasons Drive uses for per-user quota
// exhaustion. They are handled exactly like 429.
var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
}

// isThrottled reports whether a response signals rate limiting.
func isThrottled(code int, reason string) bool {
	if code == http.StatusTooManyRequests {
		return true
	}

	return code == http.StatusForbidden && rateLimitReasons[reason]
}
