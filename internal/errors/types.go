/**
 * Error types for the Box fixer
 *
 * Structured errors with a category that drives the retry decision: transient
 * remote failures are retried with bounded backoff, idempotent conflicts are
 * adopted as success by the caller, permanent failures end the attempt
 * immediately.
 *
 * Author: box-fixer team
 */

package errors

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Type categorizes an error for retry handling.
type Type int

const (
	// TypeUnknown is an unclassified error. Treated as retryable so a
	// single odd response from the remote service does not burn an item.
	TypeUnknown Type = iota

	// TypeNetwork covers connection resets, timeouts and DNS failures.
	TypeNetwork

	// TypeRateLimit covers 429 and quota responses.
	TypeRateLimit

	// TypeServer covers remote 5xx responses.
	TypeServer

	// TypeConflict covers "already exists" / "already a collaborator"
	// responses. Not a failure: callers short-circuit these to success.
	TypeConflict

	// TypePermission covers 401/403 responses. Not retryable.
	TypePermission

	// TypeNotFound covers 404 responses. Not retryable.
	TypeNotFound

	// TypeConfiguration covers local misconfiguration. Not retryable.
	TypeConfiguration

	// TypeContext covers context cancellation and deadline expiry.
	TypeContext
)

// String returns the category name.
func (t Type) String() string {
	switch t {
	case TypeNetwork:
		return "Network"
	case TypeRateLimit:
		return "RateLimit"
	case TypeServer:
		return "Server"
	case TypeConflict:
		return "Conflict"
	case TypePermission:
		return "Permission"
	case TypeNotFound:
		return "NotFound"
	case TypeConfiguration:
		return "Configuration"
	case TypeContext:
		return "Context"
	default:
		return "Unknown"
	}
}

// IsRetryable reports whether the category is worth another attempt.
func (t Type) IsRetryable() bool {
	switch t {
	case TypeNetwork, TypeRateLimit, TypeServer, TypeUnknown:
		return true
	default:
		return false
	}
}

// Error is a structured error with a category and operation context.
type Error struct {
	Type      Type
	Op        string
	Err       error
	Code      int
	Timestamp time.Time
}

// New creates a new structured error.
func New(errorType Type, op string, err error) *Error {
	return &Error{
		Type:      errorType,
		Op:        op,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Op)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the error is retryable.
func (e *Error) IsRetryable() bool {
	return e.Type.IsRetryable()
}

// WithCode attaches a remote status code.
func (e *Error) WithCode(code int) *Error {
	e.Code = code
	return e
}

// TypeOf extracts the category from an error chain. Plain errors classify
// as TypeUnknown, context errors as TypeContext.
func TypeOf(err error) Type {
	if err == nil {
		return TypeUnknown
	}
	if IsContextError(err) {
		return TypeContext
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return TypeUnknown
}

// IsRetryable reports whether an arbitrary error should be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsContextError(err) {
		return false
	}
	return TypeOf(err).IsRetryable()
}

// IsConflict reports whether the error is an idempotent-conflict outcome.
func IsConflict(err error) bool {
	return TypeOf(err) == TypeConflict
}

// IsContextError checks whether the error is due to context cancellation.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
