// Package apperr defines the error taxonomy shared by the orchestrator,
// stores and HTTP layer. Every failure that crosses a component boundary is an
// *Error so that callers can branch on Kind instead of message text.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies a failure. Transient kinds are eligible for retry by the
// orchestrator; all others surface immediately.
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindRateLimited     Kind = "rate_limited"
	KindValidation      Kind = "validation"
	KindConflict        Kind = "conflict"
	KindUnavailable     Kind = "storage_unavailable"
	KindTimeout         Kind = "timeout"
	KindUnknown         Kind = "unknown"
)

// Error is the normalized error envelope.
type Error struct {
	Kind    Kind
	Message string
	Err     error
	Details map[string]interface{}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Err }

// WithDetail attaches a key/value pair to the error and returns it.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Retryable reports whether the error kind is transient.
func (e *Error) Retryable() bool {
	return e.Kind == KindUnavailable || e.Kind == KindTimeout
}

// Unauthenticated builds a 401-class error.
func Unauthenticated(msg string) *Error {
	if msg == "" {
		msg = "authentication required"
	}
	return &Error{Kind: KindUnauthenticated, Message: msg}
}

// Forbidden builds a 403-class error.
func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

// RateLimited builds a 429-class error with retry-after metadata.
func RateLimited(retryAfter time.Duration) *Error {
	e := &Error{Kind: KindRateLimited, Message: "rate limit exceeded"}
	if retryAfter > 0 {
		e.WithDetail("retry_after_seconds", int(retryAfter.Round(time.Second).Seconds()))
	}
	return e
}

// Validation builds a permanent input error.
func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a permanent write-write conflict error.
func Conflict(msg string) *Error {
	if msg == "" {
		msg = "version conflict"
	}
	return &Error{Kind: KindConflict, Message: msg}
}

// Unavailable wraps a transient backend failure.
func Unavailable(msg string, err error) *Error {
	return &Error{Kind: KindUnavailable, Message: msg, Err: err}
}

// Timeout wraps an exceeded deadline.
func Timeout(msg string, err error) *Error {
	return &Error{Kind: KindTimeout, Message: msg, Err: err}
}

// Unknown wraps an unclassified failure. Treated as permanent.
func Unknown(msg string, err error) *Error {
	return &Error{Kind: KindUnknown, Message: msg, Err: err}
}

// From normalizes an arbitrary error into *Error. Context deadline errors map
// to Timeout; anything unclassified becomes Unknown.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, context.DeadlineExceeded) || isDeadline(err) {
		return Timeout("operation timed out", err)
	}
	return Unknown("internal error", err)
}

func isDeadline(err error) bool {
	type timeouter interface{ Timeout() bool }
	var t timeouter
	if errors.As(err, &t) {
		return t.Timeout()
	}
	return false
}

// KindOf returns the kind for any error, KindUnknown for unclassified ones.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return From(err).Kind
}

// Retryable reports whether an arbitrary error should be retried.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return From(err).Retryable()
}

// HTTPStatus maps a kind to its stable transport status code.
func HTTPStatus(k Kind) int {
	switch k {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
