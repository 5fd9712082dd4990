package service

import (
	"errors"
	"fmt"
	"time"
)

type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"
	KindUnauthorized    ErrorKind = "unauthorized"
	KindForbidden       ErrorKind = "forbidden"
	KindNotFound        ErrorKind = "not_found"
	KindConflict        ErrorKind = "conflict"
	KindTooManyRequests ErrorKind = "too_many_requests"
	KindInternal        ErrorKind = "internal"
)

const genericInternalMessage = "Something went wrong. Please try again later."

// AuthError is the only error type the auth flow hands back to callers. Message
// is safe to show to clients; Err stays server side.
type AuthError struct {
	Kind       ErrorKind
	Message    string
	RetryAfter time.Duration
	Err        error
}

// Sentinels for errors.Is checks by kind.
var (
	ErrValidation      = &AuthError{Kind: KindValidation}
	ErrUnauthorized    = &AuthError{Kind: KindUnauthorized}
	ErrForbidden       = &AuthError{Kind: KindForbidden}
	ErrNotFound        = &AuthError{Kind: KindNotFound}
	ErrConflict        = &AuthError{Kind: KindConflict}
	ErrTooManyRequests = &AuthError{Kind: KindTooManyRequests}
	ErrInternal        = &AuthError{Kind: KindInternal}
)

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// KindOf reports the taxonomy entry for err. Anything that is not an
// AuthError counts as internal.
func KindOf(err error) ErrorKind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

func validationError(msg string) *AuthError {
	return &AuthError{Kind: KindValidation, Message: msg}
}

func unauthorizedError(msg string) *AuthError {
	return &AuthError{Kind: KindUnauthorized, Message: msg}
}

func forbiddenError(msg string) *AuthError {
	return &AuthError{Kind: KindForbidden, Message: msg}
}

func notFoundError(msg string) *AuthError {
	return &AuthError{Kind: KindNotFound, Message: msg}
}

func conflictError(msg string) *AuthError {
	return &AuthError{Kind: KindConflict, Message: msg}
}

func throttledError(retryAfter time.Duration) *AuthError {
	return &AuthError{
		Kind:       KindTooManyRequests,
		Message:    "Too many failed attempts. Please try again later.",
		RetryAfter: retryAfter,
	}
}

func internalError(cause error) *AuthError {
	return &AuthError{Kind: KindInternal, Message: genericInternalMessage, Err: cause}
}
