// Package apperr provides standardized error types for the application.
// Fetch boundaries, the tree assembler, and the discovery engine return these typed
// errors so callers can decide between retrying, recording, and aborting.
package apperr

import (
	"errors"
	"fmt"
)

// Kind represents the category of error.
type Kind int

const (
	// KindUnknown is the default error kind when none is specified.
	KindUnknown Kind = iota
	// KindTimeout indicates the upstream did not answer in time.
	KindTimeout
	// KindRateLimited indicates the upstream refused the request because of rate limits.
	KindRateLimited
	// KindMalformed indicates a response whose shape is not one of the known contracts.
	KindMalformed
	// KindUnreachable indicates a network or server-side failure reaching the upstream.
	KindUnreachable
	// KindStructural indicates inconsistent hierarchy data (cycles, level conflicts).
	KindStructural
	// KindFatal indicates the run cannot continue meaningfully.
	KindFatal
	// KindValidation indicates invalid input data or options.
	KindValidation
	// KindInternal indicates an unexpected internal error.
	KindInternal
)

var kindNames = map[Kind]string{
	KindUnknown:     "unknown",
	KindTimeout:     "timeout",
	KindRateLimited: "rate_limited",
	KindMalformed:   "malformed",
	KindUnreachable: "unreachable",
	KindStructural:  "structural",
	KindFatal:       "fatal",
	KindValidation:  "validation",
	KindInternal:    "internal",
}

// String returns the snake_case name used in logs and artifacts.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a domain error with a typed Kind.
type Error struct {
	Kind    Kind
	Message string
	Op      string      // Operation that failed (optional)
	Err     error       // Underlying error (optional)
	Details interface{} // Additional details (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Transient reports whether the kind is a fetch failure worth retrying.
func (k Kind) Transient() bool {
	switch k {
	case KindTimeout, KindRateLimited, KindMalformed, KindUnreachable:
		return true
	default:
		return false
	}
}

// Retryable reports whether another attempt may succeed.
func (e *Error) Retryable() bool {
	return e.Kind.Transient()
}

// New creates a new domain error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithOp returns the error with the operation set.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithDetails returns the error with additional details.
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// Convenience constructors for common error types.

// Timeout creates a timeout error.
func Timeout(message string, err error) *Error {
	return Wrap(KindTimeout, message, err)
}

// RateLimited creates a rate limited error.
func RateLimited(message string) *Error {
	return New(KindRateLimited, message)
}

// Malformed creates a malformed response error.
func Malformed(message string, err error) *Error {
	return Wrap(KindMalformed, message, err)
}

// Unreachable creates an unreachable upstream error.
func Unreachable(message string, err error) *Error {
	return Wrap(KindUnreachable, message, err)
}

// Structural creates a structural anomaly error.
func Structural(message string) *Error {
	return New(KindStructural, message)
}

// Fatal creates a fatal error.
func Fatal(message string) *Error {
	return New(KindFatal, message)
}

// Validation creates a validation error.
func Validation(message string, err error) *Error {
	return Wrap(KindValidation, message, err)
}

// Internal creates an internal error.
func Internal(message string) *Error {
	return New(KindInternal, message)
}

// GetKind extracts the error kind from an error chain.
// Returns KindUnknown if no *Error is found.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is checks if err carries an *Error with the given kind.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}
