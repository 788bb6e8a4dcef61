package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the failures the core can produce. Every
// operation of the query, session and access packages fails with
// exactly one of these kinds, so callers can handle each case
// explicitly instead of relying on a catch-all.
type ErrorKind string

const (
	// ErrorValidation is a malformed query shape, unknown operator or
	// malformed subquery. Always a local input problem, never retried.
	ErrorValidation ErrorKind = "validation"
	// ErrorForbidden is an authorization rule violation. A permission
	// failure for the caller, never a system fault.
	ErrorForbidden ErrorKind = "forbidden"
	// ErrorInvalidCredentials is a login identifier/password mismatch.
	// The message is identical regardless of the root cause.
	ErrorInvalidCredentials ErrorKind = "invalid credentials"
	// ErrorInvalidSessionToken means the token is absent, revoked or
	// expired at resolution or logout time.
	ErrorInvalidSessionToken ErrorKind = "invalid session token"
	// ErrorDatabase is a storage layer failure. The cause is kept, but
	// the outward message is normalized at the transport boundary.
	ErrorDatabase ErrorKind = "database"
)

// Error is the error type returned by the core packages.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is makes errors.Is match two core errors of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of err, or an empty kind if err is not a
// core error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ValidationError returns a validation error with a formatted message.
func ValidationError(format string, a ...interface{}) error {
	return &Error{Kind: ErrorValidation, Message: fmt.Sprintf(format, a...)}
}

// ForbiddenError returns a forbidden error with a formatted message.
func ForbiddenError(format string, a ...interface{}) error {
	return &Error{Kind: ErrorForbidden, Message: fmt.Sprintf(format, a...)}
}

// InvalidCredentialsError returns the one and only credentials error.
// There is deliberately no way to attach detail; a missing account and
// a wrong password must be indistinguishable to the caller.
func InvalidCredentialsError() error {
	return &Error{Kind: ErrorInvalidCredentials, Message: "invalid username/password"}
}

// InvalidSessionTokenError returns an invalid session token error.
func InvalidSessionTokenError() error {
	return &Error{Kind: ErrorInvalidSessionToken, Message: "invalid session token"}
}

// DatabaseError wraps a storage failure. The message presented to
// clients is generic, the cause stays available for logging via
// errors.Unwrap.
func DatabaseError(cause error) error {
	return &Error{Kind: ErrorDatabase, Message: "invalid query request", cause: cause}
}
