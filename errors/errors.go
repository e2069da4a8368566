package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Root categories. Every error returned by the core wraps exactly one of them
// so the edges (REST, WebSocket) can classify it with errors.Is.
var (
	ErrValidation         = fmt.Errorf("validation error")
	ErrUnauthenticated    = fmt.Errorf("unauthenticated")
	ErrUnauthorized       = fmt.Errorf("unauthorized")
	ErrNotFound           = fmt.Errorf("not found")
	ErrConflict           = fmt.Errorf("conflict")
	ErrNotSubscribed      = fmt.Errorf("not subscribed to channel")
	ErrStorageUnavailable = fmt.Errorf("storage unavailable")
	ErrInternal           = fmt.Errorf("internal error")
)

var (
	ErrEmptyBody          = fmt.Errorf("%w: message body is empty", ErrValidation)
	ErrBodyTooLong        = fmt.Errorf("%w: message body is too long", ErrValidation)
	ErrInvalidChannelName = fmt.Errorf("%w: invalid channel name", ErrValidation)
	ErrInvalidRequest     = fmt.Errorf("%w: invalid request", ErrValidation)
	ErrInvalidCursor      = fmt.Errorf("%w: invalid cursor", ErrValidation)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", ErrValidation)

	ErrMissingToken = fmt.Errorf("%w: no token", ErrUnauthenticated)
	ErrInvalidToken = fmt.Errorf("%w: invalid token", ErrUnauthorized)

	ErrChannelNotFound = fmt.Errorf("channel %w", ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)

	ErrDuplicateName     = fmt.Errorf("%w: channel name already exists", ErrConflict)
	ErrUserAlreadyExists = fmt.Errorf("%w: email already exists", ErrConflict)

	ErrTokenGeneration = fmt.Errorf("%w: token generation failed", ErrInternal)
	ErrWorkerPanic     = fmt.Errorf("worker panic")
	ErrSessionClosed   = fmt.Errorf("session closed")
	ErrSlowConsumer    = fmt.Errorf("slow consumer")
)

// Status maps an error to the HTTP status class the gateway reports.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case stderrors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case stderrors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case stderrors.Is(err, ErrUnauthorized), stderrors.Is(err, ErrNotSubscribed):
		return http.StatusForbidden
	case stderrors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, ErrConflict):
		return http.StatusConflict
	case stderrors.Is(err, ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code returns a stable machine readable identifier for err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case stderrors.Is(err, ErrValidation):
		return "validation_error"
	case stderrors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case stderrors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case stderrors.Is(err, ErrNotSubscribed):
		return "not_subscribed"
	case stderrors.Is(err, ErrNotFound):
		return "not_found"
	case stderrors.Is(err, ErrConflict):
		return "conflict"
	case stderrors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "internal"
	}
}

// IsClientError reports whether err is user-correctable. Client errors are
// returned as-is and never logged as failures.
func IsClientError(err error) bool {
	return err != nil && Status(err) < http.StatusInternalServerError
}

// Storage wraps a backend failure into ErrStorageUnavailable, keeping the
// original cause for logs.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}
