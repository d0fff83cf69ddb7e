package webhook

import (
	"fmt"
)

type ErrorCode string

const (
	// ErrCodeSignature indicates the request signature did not verify.
	ErrCodeSignature ErrorCode = "webhook_invalid_signature"

	// ErrCodeStale indicates the request timestamp fell outside the
	// replay window.
	ErrCodeStale ErrorCode = "webhook_stale_timestamp"

	// ErrCodeReplay indicates the nonce was already seen inside the
	// replay window.
	ErrCodeReplay ErrorCode = "webhook_replayed_nonce"

	// ErrCodeSchema indicates the payload failed schema validation.
	ErrCodeSchema ErrorCode = "webhook_invalid_payload"

	// ErrCodeInternal indicates internal processing failures.
	ErrCodeInternal ErrorCode = "webhook_internal"
)

// WebhookError represents a structured error from the webhook package.
type WebhookError struct {
	code    ErrorCode
	message string
	wrapped error
}

func (e *WebhookError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *WebhookError) Code() ErrorCode { return e.code }
func (e *WebhookError) Unwrap() error   { return e.wrapped }

// NewSignatureError creates an error for failed signature verification.
func NewSignatureError(msg string) error {
	return &WebhookError{code: ErrCodeSignature, message: msg}
}

// NewStaleError creates an error for out-of-window timestamps.
func NewStaleError(msg string) error {
	return &WebhookError{code: ErrCodeStale, message: msg}
}

// NewReplayError creates an error for reused nonces.
func NewReplayError(msg string) error {
	return &WebhookError{code: ErrCodeReplay, message: msg}
}

// NewSchemaError creates an error for malformed payloads.
func NewSchemaError(msg string) error {
	return &WebhookError{code: ErrCodeSchema, message: msg}
}

// WrapSchemaError wraps an existing error as a schema error.
func WrapSchemaError(err error, msg string) error {
	return &WebhookError{code: ErrCodeSchema, message: msg, wrapped: err}
}

// WrapInternalError wraps an existing error as an internal error.
func WrapInternalError(err error, msg string) error {
	return &WebhookError{code: ErrCodeInternal, message: msg, wrapped: err}
}
