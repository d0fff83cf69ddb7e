package submission

import (
	"fmt"
)

type ErrorCode string

const (
	// ErrCodeNotFound indicates the submission record does not exist.
	ErrCodeNotFound ErrorCode = "submission_not_found"

	// ErrCodeState indicates an operation invalid for the record's state.
	ErrCodeState ErrorCode = "submission_invalid_state"

	// ErrCodeValidation indicates malformed submission input.
	ErrCodeValidation ErrorCode = "submission_validation"

	// ErrCodeInternal indicates internal processing failures.
	ErrCodeInternal ErrorCode = "submission_internal"
)

// SubmissionError represents a structured error from the submission package.
type SubmissionError struct {
	code    ErrorCode
	message string
	wrapped error
}

func (e *SubmissionError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *SubmissionError) Code() ErrorCode { return e.code }
func (e *SubmissionError) Unwrap() error   { return e.wrapped }

// NewNotFoundError creates an error for missing records.
func NewNotFoundError(msg string) error {
	return &SubmissionError{code: ErrCodeNotFound, message: msg}
}

// NewStateError creates an error for operations invalid in the current state.
func NewStateError(msg string) error {
	return &SubmissionError{code: ErrCodeState, message: msg}
}

// NewValidationError creates an error for malformed input.
func NewValidationError(msg string) error {
	return &SubmissionError{code: ErrCodeValidation, message: msg}
}

// WrapInternalError wraps an existing error as an internal error.
func WrapInternalError(err error, msg string) error {
	return &SubmissionError{code: ErrCodeInternal, message: msg, wrapped: err}
}
