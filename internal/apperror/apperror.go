// Package apperror defines the error kinds shared by the server, the REST
// client and the reading session.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrAuth       = errors.New("authentication failed")
	ErrLoad       = errors.New("load failed")
	ErrMutation   = errors.New("mutation failed")
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
)

// Error carries a kind (one of the sentinels above), a human-readable
// message and the underlying cause, if any.
type Error struct {
	Kind    error
	Message string
	Field   string // set for validation errors
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Message != "" {
		return e.Message + ": " + e.Cause.Error()
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return e.Kind.Error()
}

// Is reports whether target is this error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Auth wraps an authentication failure (invalid credentials or an
// expired/invalid token).
func Auth(message string) *Error {
	return &Error{Kind: ErrAuth, Message: message}
}

// Load wraps a failure while opening a reading session.
func Load(what string, cause error) *Error {
	return &Error{Kind: ErrLoad, Message: "load " + what, Cause: cause}
}

// Mutation wraps a failed remote write.
func Mutation(what string, cause error) *Error {
	return &Error{Kind: ErrMutation, Message: what, Cause: cause}
}

func NotFound(resource, id string) *Error {
	return &Error{
		Kind:    ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *Error {
	return &Error{
		Kind:    ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(message string) *Error {
	return &Error{Kind: ErrConflict, Message: message}
}

// Forbidden returns an Error indicating the caller lacks permission.
func Forbidden(message string) *Error {
	return &Error{Kind: ErrForbidden, Message: message}
}

// Is* helpers keep call sites short.

func IsAuth(err error) bool       { return errors.Is(err, ErrAuth) }
func IsNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
