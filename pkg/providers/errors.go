package providers

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an upstream failure so callers can decide whether a retry
// can help.
type Kind string

const (
	// KindTransient — network trouble, timeouts, 408/429 and 5xx responses.
	// Worth retrying.
	KindTransient Kind = "transient"

	// KindBadRequest — the upstream rejected the request (4xx other than
	// 408/429). Retrying the same request cannot succeed.
	KindBadRequest Kind = "bad_request"

	// KindUpstreamMalformed — the upstream answered 2xx but the body fails
	// our parser. Retried once before bubbling.
	KindUpstreamMalformed Kind = "upstream_malformed"
)

// Error carries the provider name and failure classification alongside the
// underlying cause.
type Error struct {
	// Provider identifies the adapter ("text", "image", "audio").
	Provider string

	Kind Kind

	// StatusCode is the HTTP status when the failure came from a response,
	// zero otherwise.
	StatusCode int

	Message string

	Cause error
}

func (e *Error) Error() string {
	msg := e.Provider + " provider: " + e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s provider: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a classified provider error.
func NewError(provider string, kind Kind, message string, cause error) *Error {
	return &Error{
		Provider: provider,
		Kind:     kind,
		Message:  message,
		Cause:    cause,
	}
}

// NewStatusError classifies a non-2xx HTTP response by its status code.
func NewStatusError(provider string, statusCode int, message string) *Error {
	return &Error{
		Provider:   provider,
		Kind:       kindForStatus(statusCode),
		StatusCode: statusCode,
		Message:    message,
	}
}

// kindForStatus maps an HTTP status to a failure kind. 408, 429 and 5xx are
// retriable; every other 4xx means the request itself is wrong.
func kindForStatus(statusCode int) Kind {
	switch {
	case statusCode == http.StatusRequestTimeout,
		statusCode == http.StatusTooManyRequests,
		statusCode >= 500:
		return KindTransient
	case statusCode >= 400:
		return KindBadRequest
	default:
		return KindTransient
	}
}

// IsTransient reports whether err is a retriable upstream failure.
func IsTransient(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindTransient
}

// IsBadRequest reports whether err is a non-retriable client error.
func IsBadRequest(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindBadRequest
}

// IsMalformed reports whether err means the upstream returned an unparsable
// success response.
func IsMalformed(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindUpstreamMalformed
}
