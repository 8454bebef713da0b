// Package httpapi implements the HTTP surface of spec.md §6.1, §6.2, §6.4,
// §6.5 on top of internal/convservice and internal/eventservice, using
// gin-gonic/gin for routing.
package httpapi

import "fmt"

// ValidationError maps to HTTP 400: malformed body, bad query params, a
// path that isn't absolute.
type ValidationError struct{ Detail string }

func (e *ValidationError) Error() string { return e.Detail }

// NotFoundError maps to HTTP 404: unknown conversation or event id.
type NotFoundError struct{ Detail string }

func (e *NotFoundError) Error() string { return e.Detail }

// ConflictError maps to HTTP 400: illegal state transition (e.g. pause from
// FINISHED).
type ConflictError struct{ Detail string }

func (e *ConflictError) Error() string { return e.Detail }

// AuthError maps to HTTP 401 for REST (and WS close code 4001, handled in
// internal/wsapi).
type AuthError struct{ Detail string }

func (e *AuthError) Error() string { return e.Detail }

func notFoundf(format string, args ...any) *NotFoundError {
	return &NotFoundError{Detail: fmt.Sprintf(format, args...)}
}

func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Detail: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...any) *ConflictError {
	return &ConflictError{Detail: fmt.Sprintf(format, args...)}
}
