// Package apperrors defines the error kinds surfaced by an upload session.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation   Kind = "validation"
	KindAuth         Kind = "auth"
	KindTransport    Kind = "transport"
	KindUnauthorized Kind = "unauthorized"
	KindTaskFailed   Kind = "task_failed"
	KindPollTimeout  Kind = "poll_timeout"
	KindCompositing  Kind = "compositing"
)

const genericMessage = "service busy, please try again later"

// Error is a classified failure. StatusCode is set for errors that came from
// an HTTP response.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so callers can write
// errors.Is(err, apperrors.ErrUnauthorized).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Cause == nil
}

// Sentinels for errors.Is matching by kind.
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrAuth         = &Error{Kind: KindAuth}
	ErrTransport    = &Error{Kind: KindTransport}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrTaskFailed   = &Error{Kind: KindTaskFailed}
	ErrPollTimeout  = &Error{Kind: KindPollTimeout}
	ErrCompositing  = &Error{Kind: KindCompositing}
)

func Validation(message string, cause error) *Error {
	return &Error{Kind: KindValidation, Message: message, Cause: cause}
}

func Auth(message string, cause error) *Error {
	return &Error{Kind: KindAuth, Message: message, Cause: cause}
}

// Transport builds a transport error. A 401 status is promoted to
// KindUnauthorized.
func Transport(message string, statusCode int, cause error) *Error {
	kind := KindTransport
	if statusCode == http.StatusUnauthorized {
		kind = KindUnauthorized
	}
	return &Error{Kind: kind, Message: message, StatusCode: statusCode, Cause: cause}
}

func TaskFailed(reason string) *Error {
	if reason == "" {
		reason = "unknown error"
	}
	return &Error{Kind: KindTaskFailed, Message: reason}
}

func PollTimeout(attempts int) *Error {
	return &Error{Kind: KindPollTimeout, Message: fmt.Sprintf("no terminal status after %d attempts", attempts)}
}

func Compositing(message string, cause error) *Error {
	return &Error{Kind: KindCompositing, Message: message, Cause: cause}
}

// KindOf returns the kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// UserMessage renders err for display.
func UserMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return genericMessage
	}

	switch e.Kind {
	case KindValidation, KindCompositing:
		return e.Message
	case KindAuth:
		return "could not obtain authorization, please retry"
	case KindUnauthorized:
		return "session expired, re-authenticating; please retry"
	case KindTaskFailed:
		return "processing failed: " + e.Message
	case KindPollTimeout:
		return "processing timed out, please try again later"
	}

	switch {
	case e.StatusCode == http.StatusForbidden:
		return "permission denied"
	case e.StatusCode == http.StatusNotFound:
		return "requested resource does not exist"
	case e.StatusCode == http.StatusRequestEntityTooLarge:
		return "image too large, upload an image under 5MB"
	case e.StatusCode == http.StatusTooManyRequests:
		return "too many requests, please try again later"
	case e.StatusCode >= http.StatusInternalServerError:
		return "server busy, please try again later"
	case e.StatusCode > 0 && e.Message != "":
		return e.Message
	default:
		return genericMessage
	}
}
