// Package submission transmits certified invoices to the regulator endpoint
// and retries transient failures on an exponential backoff schedule.
package submission

import (
	"encoding/json"
)

// Outcome is the result of a single transmission attempt. Implementations
// are Accepted, RetryableFailure and PermanentFailure; callers switch on the
// concrete type rather than inspecting error strings.
type Outcome interface {
	outcome()
}

// Accepted indicates the regulator acknowledged the submission.
type Accepted struct {
	// ReceiptID is the regulator's acknowledgment identifier.
	ReceiptID string

	// Response is the raw acknowledgment body.
	Response json.RawMessage
}

// RetryableFailure indicates a transient failure worth retrying, such as a
// network timeout or a 5xx response.
type RetryableFailure struct {
	// Reason describes the failure.
	Reason string

	// StatusCode is the HTTP status, zero for transport-level failures.
	StatusCode int
}

// PermanentFailure indicates a failure that will not succeed on retry, such
// as a validation rejection.
type PermanentFailure struct {
	// Reason describes the rejection.
	Reason string

	// StatusCode is the HTTP status, zero for local failures.
	StatusCode int
}

func (Accepted) outcome()         {}
func (RetryableFailure) outcome() {}
func (PermanentFailure) outcome() {}

// outcomeLabel maps an outcome to its metrics label.
func outcomeLabel(o Outcome) string {
	switch o.(type) {
	case Accepted:
		return "accepted"
	case RetryableFailure:
		return "retryable_failure"
	case PermanentFailure:
		return "permanent_failure"
	default:
		return "unknown"
	}
}
