package vfs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents the kind of engine error that occurred.
// The set is closed: every error surfaced by the filesystem engine maps to
// exactly one of these codes.
type ErrorCode int

const (
	// ErrNotFound indicates the requested path, mount, or object does not exist.
	ErrNotFound ErrorCode = iota + 1

	// ErrConflict indicates the target already exists or a parent directory is missing.
	ErrConflict

	// ErrBadRequest indicates an invalid argument (malformed path, bad range, ...).
	ErrBadRequest

	// ErrForbidden indicates the principal may not perform the operation.
	ErrForbidden

	// ErrUnauthenticated indicates no valid principal was presented.
	ErrUnauthenticated

	// ErrUnimplemented indicates the resolved driver lacks the required capability.
	ErrUnimplemented

	// ErrProviderTransient indicates a retryable provider failure (throttling, 5xx).
	ErrProviderTransient

	// ErrProviderPermanent indicates a non-retryable provider failure.
	ErrProviderPermanent

	// ErrCancelled indicates the operation was cancelled by the caller.
	ErrCancelled

	// ErrInternal indicates an unexpected engine failure.
	ErrInternal
)

// String returns a human-readable name for the error code.
func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "NotFound"
	case ErrConflict:
		return "Conflict"
	case ErrBadRequest:
		return "BadRequest"
	case ErrForbidden:
		return "Forbidden"
	case ErrUnauthenticated:
		return "Unauthenticated"
	case ErrUnimplemented:
		return "Unimplemented"
	case ErrProviderTransient:
		return "ProviderTransient"
	case ErrProviderPermanent:
		return "ProviderPermanent"
	case ErrCancelled:
		return "Cancelled"
	case ErrInternal:
		return "Internal"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// HTTPStatus maps the error code to the HTTP status the API layer responds with.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusConflict
	case ErrBadRequest:
		return http.StatusBadRequest
	case ErrForbidden:
		return http.StatusForbidden
	case ErrUnauthenticated:
		return http.StatusUnauthorized
	case ErrUnimplemented:
		return http.StatusNotImplemented
	case ErrCancelled:
		return 499 // client closed request
	default:
		return http.StatusInternalServerError
	}
}

// Error is the typed error returned by engine and driver operations.
// ProviderStatus carries the original provider HTTP status for
// ProviderTransient/ProviderPermanent errors, zero otherwise.
type Error struct {
	Code           ErrorCode
	Message        string
	Path           string
	ProviderStatus int
	Err            error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (path: %s)", e.Code, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the ErrorCode from err, returning ErrInternal for untyped
// errors and ErrCancelled for context cancellation.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrCancelled
	}
	return ErrInternal
}

// IsCode reports whether err carries the given engine error code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// NewNotFoundError creates a NotFound error for the given path.
func NewNotFoundError(path, resourceType string) *Error {
	return &Error{Code: ErrNotFound, Message: resourceType + " not found", Path: path}
}

// NewConflictError creates a Conflict error.
func NewConflictError(path, message string) *Error {
	return &Error{Code: ErrConflict, Message: message, Path: path}
}

// NewBadRequestError creates a BadRequest error.
func NewBadRequestError(message string) *Error {
	return &Error{Code: ErrBadRequest, Message: message}
}

// NewForbiddenError creates a Forbidden error.
func NewForbiddenError(path, message string) *Error {
	return &Error{Code: ErrForbidden, Message: message, Path: path}
}

// NewUnauthenticatedError creates an Unauthenticated error.
func NewUnauthenticatedError(message string) *Error {
	return &Error{Code: ErrUnauthenticated, Message: message}
}

// NewUnimplementedError creates an Unimplemented error for a missing driver capability.
func NewUnimplementedError(storageType string, cap Capability) *Error {
	return &Error{
		Code:    ErrUnimplemented,
		Message: fmt.Sprintf("storage driver %s does not support %s", storageType, cap),
	}
}

// NewProviderError wraps a provider failure, classifying it as transient or
// permanent from the provider HTTP status.
func NewProviderError(path string, status int, err error) *Error {
	code := ErrProviderPermanent
	if status == http.StatusTooManyRequests || status >= 500 {
		code = ErrProviderTransient
	}
	return &Error{
		Code:           code,
		Message:        fmt.Sprintf("provider request failed with status %d", status),
		Path:           path,
		ProviderStatus: status,
		Err:            err,
	}
}

// NewCancelledError creates a Cancelled error.
func NewCancelledError(err error) *Error {
	return &Error{Code: ErrCancelled, Message: "operation cancelled", Err: err}
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(message string, err error) *Error {
	return &Error{Code: ErrInternal, Message: message, Err: err}
}
