// Package analyzer derives structured document metadata from extracted text
// through an external language model API.
package analyzer

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrorKind classifies analysis failures by how the caller should react.
type ErrorKind string

const (
	// ErrKindNetwork covers transport failures, timeouts, and 5xx
	// responses. Retryable with backoff.
	ErrKindNetwork ErrorKind = "network"

	// ErrKindRateLimited is a 429 from the provider. Retryable after the
	// advertised delay.
	ErrKindRateLimited ErrorKind = "rate_limited"

	// ErrKindInvalidResponse means the provider answered but the payload
	// could not be turned into a result even leniently. Not retryable.
	ErrKindInvalidResponse ErrorKind = "invalid_response"

	// ErrKindEmptyInput means the caller passed empty text. The request is
	// never sent. Not retryable.
	ErrKindEmptyInput ErrorKind = "empty_input"
)

// AnalysisError is the only error type the analyzer returns. Kind tells the
// pipeline whether and when to retry.
type AnalysisError struct {
	Kind       ErrorKind
	Err        error
	RetryAfter time.Duration
}

func (e *AnalysisError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("analysis failed (%s)", e.Kind)
	}
	return fmt.Sprintf("analysis failed (%s): %v", e.Kind, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure can succeed on a later attempt.
func (e *AnalysisError) Retryable() bool {
	return e.Kind == ErrKindNetwork || e.Kind == ErrKindRateLimited
}

// ParseRetryAfterHeader reads a Retry-After response header, accepting both
// delta-seconds and HTTP-date forms. Zero means the header was absent or
// unusable.
func ParseRetryAfterHeader(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
