package signing

import (
	"fmt"
)

type ErrorCode string

const (
	// ErrCodeCanonicalization indicates the document could not be canonicalized.
	ErrCodeCanonicalization ErrorCode = "signing_canonicalization"

	// ErrCodeCertificate indicates the signing certificate could not be used.
	ErrCodeCertificate ErrorCode = "signing_certificate"

	// ErrCodeInvalidSignature indicates signature verification failed.
	ErrCodeInvalidSignature ErrorCode = "signing_invalid_signature"

	// ErrCodeHashMismatch indicates the document no longer matches the
	// content hash recorded in the signature block.
	ErrCodeHashMismatch ErrorCode = "signing_hash_mismatch"

	// ErrCodeUnsupportedAlgorithm indicates an algorithm outside the
	// supported set.
	ErrCodeUnsupportedAlgorithm ErrorCode = "signing_unsupported_algorithm"

	// ErrCodeInternal indicates internal processing failures.
	ErrCodeInternal ErrorCode = "signing_internal"
)

// SigningError represents a structured error from the signing package.
type SigningError struct {
	code    ErrorCode
	message string
	wrapped error
}

func (e *SigningError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *SigningError) Code() ErrorCode { return e.code }
func (e *SigningError) Unwrap() error   { return e.wrapped }

// NewCanonicalizationError creates an error for canonicalization failures.
func NewCanonicalizationError(msg string) error {
	return &SigningError{code: ErrCodeCanonicalization, message: msg}
}

// WrapCanonicalizationError wraps an existing error as a canonicalization error.
func WrapCanonicalizationError(err error, msg string) error {
	return &SigningError{code: ErrCodeCanonicalization, message: msg, wrapped: err}
}

// WrapCertificateError wraps an existing error as a certificate error.
func WrapCertificateError(err error, msg string) error {
	return &SigningError{code: ErrCodeCertificate, message: msg, wrapped: err}
}

// NewInvalidSignatureError creates an error for failed verification.
func NewInvalidSignatureError(msg string) error {
	return &SigningError{code: ErrCodeInvalidSignature, message: msg}
}

// WrapInvalidSignatureError wraps an existing error as a verification failure.
func WrapInvalidSignatureError(err error, msg string) error {
	return &SigningError{code: ErrCodeInvalidSignature, message: msg, wrapped: err}
}

// NewHashMismatchError creates an error for content hash mismatches.
func NewHashMismatchError(msg string) error {
	return &SigningError{code: ErrCodeHashMismatch, message: msg}
}

// NewUnsupportedAlgorithmError creates an error for unsupported algorithms.
func NewUnsupportedAlgorithmError(msg string) error {
	return &SigningError{code: ErrCodeUnsupportedAlgorithm, message: msg}
}

// NewInternalError creates an internal error for unexpected failures.
func NewInternalError(msg string) error {
	return &SigningError{code: ErrCodeInternal, message: msg}
}

// WrapInternalError wraps an existing error as an internal error.
func WrapInternalError(err error, msg string) error {
	return &SigningError{code: ErrCodeInternal, message: msg, wrapped: err}
}
