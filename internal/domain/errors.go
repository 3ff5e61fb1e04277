package domain

import (
	"errors"
	"fmt"
)

// Kind categorizes failures for transport mapping.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindAuthorization Kind = "authorization"
	KindStateConflict Kind = "state_conflict"
	KindBusinessRule  Kind = "business_rule"
	KindInternal      Kind = "internal"
)

// CodeConflict is returned when an idempotency key is reused with a
// different request.
const CodeConflict = "CONFLICT"

// Error represents a failure that is not an expected business outcome:
// malformed input rejected before the idempotency guard, a key reused
// for a different request, or an internal fault.
//
// Error includes structured fields for diagnostics and transport mapping.
type Error struct {
	// Kind identifies the error category.
	Kind Kind

	// Code is a stable machine-readable tag.
	Code string

	// Message is a human-readable description.
	Message string

	// Err is the wrapped cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error.
func NewError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Validation creates a validation Error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: string(ReasonBadRequest), Message: fmt.Sprintf(format, args...)}
}

// Conflict creates the idempotency key reuse error.
func Conflict(message string) *Error {
	return &Error{Kind: KindStateConflict, Code: CodeConflict, Message: message}
}

// Internal wraps an unexpected failure.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: "INTERNAL", Message: "internal error", Err: err}
}

// KindOf returns the Kind of err, or KindInternal when err is not an *Error.
// Uses errors.As to handle wrapped errors.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsConflict returns true if err is an idempotency key conflict.
func IsConflict(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == CodeConflict
	}
	return false
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}
