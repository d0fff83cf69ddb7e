package irn

import (
	"fmt"
)

// Error represents a structured error from the irn package.
type Error interface {
	error
	Code() ErrorCode
	Unwrap() error
}

type ErrorCode string

const (
	// ErrCodeFormat indicates the IRN string does not match the required structure.
	ErrCodeFormat ErrorCode = "irn_format"

	// ErrCodeComponentMismatch indicates an IRN component does not match the invoice data under test.
	ErrCodeComponentMismatch ErrorCode = "irn_component_mismatch"

	// ErrCodeIntegrity indicates the recomputed hash or verification code does not match the stored values.
	ErrCodeIntegrity ErrorCode = "irn_integrity"

	// ErrCodeValidation indicates invalid input to generation or validation.
	ErrCodeValidation ErrorCode = "irn_validation"

	// ErrCodeState indicates an illegal IRN lifecycle transition.
	ErrCodeState ErrorCode = "irn_state"

	// ErrCodeNotFound indicates the requested IRN is not registered.
	ErrCodeNotFound ErrorCode = "irn_not_found"

	// ErrCodeInternal indicates internal processing failures.
	ErrCodeInternal ErrorCode = "irn_internal"
)

// IrnError represents a structured error from the irn package.
type IrnError struct {
	// code is the error code
	code ErrorCode

	// message is a human-readable error message
	message string

	// wrapped is the optional underlying error
	wrapped error
}

func (e *IrnError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *IrnError) Code() ErrorCode { return e.code }
func (e *IrnError) Unwrap() error   { return e.wrapped }

// NewFormatError creates an error for IRN strings that fail structural checks.
func NewFormatError(msg string) error {
	return &IrnError{code: ErrCodeFormat, message: msg}
}

// NewComponentMismatchError creates an error for IRN components that do not
// match the invoice data supplied for validation.
func NewComponentMismatchError(msg string) error {
	return &IrnError{code: ErrCodeComponentMismatch, message: msg}
}

// NewIntegrityError creates an error for hash or verification code mismatches.
func NewIntegrityError(msg string) error {
	return &IrnError{code: ErrCodeIntegrity, message: msg}
}

// NewValidationError creates an error for invalid generation/validation input.
func NewValidationError(msg string) error {
	return &IrnError{code: ErrCodeValidation, message: msg}
}

// WrapValidationError wraps an existing error as a validation error.
func WrapValidationError(err error, msg string) error {
	return &IrnError{code: ErrCodeValidation, message: msg, wrapped: err}
}

// NewStateError creates an error for illegal lifecycle transitions.
func NewStateError(msg string) error {
	return &IrnError{code: ErrCodeState, message: msg}
}

// NewNotFoundError creates an error for lookups of unregistered IRNs.
func NewNotFoundError(msg string) error {
	return &IrnError{code: ErrCodeNotFound, message: msg}
}

// NewInternalError creates an internal error for unexpected failures.
func NewInternalError(msg string) error {
	return &IrnError{code: ErrCodeInternal, message: msg}
}

// WrapInternalError wraps an existing error as an internal error.
func WrapInternalError(err error, msg string) error {
	return &IrnError{code: ErrCodeInternal, message: msg, wrapped: err}
}
