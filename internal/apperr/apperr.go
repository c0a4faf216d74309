// Package apperr carries the machine-readable failure kinds that services
// return and handlers translate into HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Kind string

const (
	InvalidInput     Kind = "invalid_input"
	NotFound         Kind = "not_found"
	AlreadyDelivered Kind = "already_delivered"
	ThrottleExceeded Kind = "throttle_exceeded"
	NoClient         Kind = "no_client"
	DeliveryFailed   Kind = "delivery_failed"
	SendFailed       Kind = "send_failed"
	TooManyRequests  Kind = "too_many_requests"
	TooManyAttempts  Kind = "too_many_attempts"
	Expired          Kind = "expired"
	InvalidCode      Kind = "invalid_code"
	Locked           Kind = "locked"
	Unauthorized     Kind = "unauthorized"
	Forbidden        Kind = "forbidden"
	Internal         Kind = "internal"
)

// Error is a domain failure. Details holds per-item messages (for example
// one string per failed delivery channel).
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
	Remaining  *int
	Details    []string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so callers can write
// errors.Is(err, apperr.Of(apperr.NotFound)).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Of returns a bare error of the given kind for use with errors.Is.
func Of(kind Kind) error {
	return &Error{Kind: kind}
}

// KindOf reports the kind of err, or Internal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidInput, NoClient, InvalidCode:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case AlreadyDelivered, ThrottleExceeded:
		return http.StatusConflict
	case SendFailed:
		return http.StatusBadGateway
	case TooManyRequests, TooManyAttempts:
		return http.StatusTooManyRequests
	case Expired:
		return http.StatusGone
	case Locked:
		return http.StatusLocked
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
