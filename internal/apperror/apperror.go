// Package apperror defines the error taxonomy shared by the client core and
// the server.
//
// The pattern is the standard sentinel + wrapper combination: package-level
// sentinel errors name the CATEGORY, and AppError carries the human-readable
// detail. Callers classify with errors.Is (category checks) and extract detail
// with errors.As. Because AppError implements Unwrap, both work through any
// amount of fmt.Errorf("...: %w", err) wrapping in between.
//
// Client-side categories (the outcome of a gateway exchange):
//
//	ErrUnauthenticated — no session exists; the request never left the process
//	ErrSessionExpired  — the remote rejected a live credential; not retryable,
//	                     and the session has already been torn down
//	ErrNetwork         — transport failure, no response; retryable
//	ErrRemoteRejected  — the server answered with a non-2xx we don't own
//	ErrStale           — a late response for state that was since reset;
//	                     discarded internally, never surfaced to a view
//
// Server-side categories (mapped to HTTP status codes in the handler layer):
// ErrValidation, ErrNotFound, ErrConflict, ErrForbidden. ErrValidation doubles
// as the client's local-precondition failure: an over-long message body is
// rejected with it before any network I/O happens.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("invalid input")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	ErrUnauthenticated = errors.New("unauthenticated")
	ErrSessionExpired  = errors.New("session expired")
	ErrNetwork         = errors.New("network error")
	ErrRemoteRejected  = errors.New("remote rejected")
	ErrStale           = errors.New("stale response")
)

// AppError carries the human-readable detail behind a sentinel category.
type AppError struct {
	Err     error  // the sentinel category (or an underlying cause chain)
	Message string // human-readable error message
	Field   string // optional: field causing a validation error
	Code    int    // optional: HTTP status for remote rejections
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func InvalidInput(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

func Unauthenticated() *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: "not logged in",
	}
}

// SessionExpired marks the terminal outcome of an authorization failure on a
// live session. By the time a caller sees this error the gateway has already
// cleared the session; rolling back any optimistic change is the caller's
// only remaining job.
func SessionExpired() *AppError {
	return &AppError{
		Err:     ErrSessionExpired,
		Message: "session expired, log in again",
	}
}

// Network wraps a transport-level failure (connection refused, timeout, DNS).
// These are the only errors a caller may retry.
func Network(cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrNetwork, cause),
		Message: "could not reach the server",
	}
}

// RemoteRejected wraps a non-2xx response that is not an authorization
// failure. Code holds the HTTP status, Message the server's own explanation
// when it sent one.
func RemoteRejected(code int, message string) *AppError {
	if message == "" {
		message = fmt.Sprintf("server rejected the request (status %d)", code)
	}
	return &AppError{
		Err:     ErrRemoteRejected,
		Message: message,
		Code:    code,
	}
}

// Retryable reports whether err may be retried without changing the request.
// Only transport failures qualify: a rejection needs different input, and an
// expired session needs re-authentication first.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork)
}
