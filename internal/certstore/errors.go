package certstore

import (
	"fmt"
)

// Error represents a structured error from the certstore package.
type Error interface {
	error
	Code() ErrorCode
	Unwrap() error
}

type ErrorCode string

const (
	// ErrCodeNotFound indicates the requested certificate does not exist.
	ErrCodeNotFound ErrorCode = "certificate_not_found"

	// ErrCodeDuplicate indicates a store would overwrite an existing certificate.
	ErrCodeDuplicate ErrorCode = "certificate_duplicate"

	// ErrCodeExpired indicates the certificate is outside its validity window.
	ErrCodeExpired ErrorCode = "certificate_expired"

	// ErrCodeRevoked indicates the certificate has been revoked.
	ErrCodeRevoked ErrorCode = "certificate_revoked"

	// ErrCodeNotActive indicates the certificate status does not permit signing.
	ErrCodeNotActive ErrorCode = "certificate_not_active"

	// ErrCodeMalformed indicates the certificate material cannot be parsed.
	ErrCodeMalformed ErrorCode = "certificate_malformed"

	// ErrCodeMissingKey indicates the certificate has no private key for signing.
	ErrCodeMissingKey ErrorCode = "certificate_missing_key"

	// ErrCodeInternal indicates internal processing failures.
	ErrCodeInternal ErrorCode = "certificate_internal"
)

// CertError represents a structured error from the certstore package.
type CertError struct {
	// code is the error code
	code ErrorCode

	// message is a human-readable error message
	message string

	// wrapped is the optional underlying error
	wrapped error
}

func (e *CertError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *CertError) Code() ErrorCode { return e.code }
func (e *CertError) Unwrap() error   { return e.wrapped }

// NewNotFoundError creates an error for missing certificates.
func NewNotFoundError(msg string) error {
	return &CertError{code: ErrCodeNotFound, message: msg}
}

// NewDuplicateError creates an error for rejected overwrites.
func NewDuplicateError(msg string) error {
	return &CertError{code: ErrCodeDuplicate, message: msg}
}

// NewExpiredError creates an error for certificates outside their validity window.
func NewExpiredError(msg string) error {
	return &CertError{code: ErrCodeExpired, message: msg}
}

// NewRevokedError creates an error for revoked certificates.
func NewRevokedError(msg string) error {
	return &CertError{code: ErrCodeRevoked, message: msg}
}

// NewNotActiveError creates an error for certificates whose status does not permit signing.
func NewNotActiveError(msg string) error {
	return &CertError{code: ErrCodeNotActive, message: msg}
}

// NewMalformedError creates an error for unparseable certificate material.
func NewMalformedError(msg string) error {
	return &CertError{code: ErrCodeMalformed, message: msg}
}

// WrapMalformedError wraps an existing error as a malformed certificate error.
func WrapMalformedError(err error, msg string) error {
	return &CertError{code: ErrCodeMalformed, message: msg, wrapped: err}
}

// NewMissingKeyError creates an error for certificates without a private key.
func NewMissingKeyError(msg string) error {
	return &CertError{code: ErrCodeMissingKey, message: msg}
}

// NewInternalError creates an internal error for unexpected failures.
func NewInternalError(msg string) error {
	return &CertError{code: ErrCodeInternal, message: msg}
}

// WrapInternalError wraps an existing error as an internal error.
func WrapInternalError(err error, msg string) error {
	return &CertError{code: ErrCodeInternal, message: msg, wrapped: err}
}
