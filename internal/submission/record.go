package submission

import (
	"encoding/json"
	"time"
)

// Status represents the delivery state of a submission record.
type Status string

const (
	// StatusPending marks a submission waiting for its next attempt.
	StatusPending Status = "PENDING"

	// StatusInProgress marks a submission claimed by a worker.
	StatusInProgress Status = "IN_PROGRESS"

	// StatusSucceeded marks a submission acknowledged by the regulator.
	StatusSucceeded Status = "SUCCEEDED"

	// StatusFailed marks a submission permanently rejected. Terminal
	// unless an operator forces a retry.
	StatusFailed Status = "FAILED"

	// StatusExhausted marks a submission that ran out of retry attempts.
	// Terminal unless an operator forces a retry.
	StatusExhausted Status = "EXHAUSTED"
)

// Severity escalates with consecutive failures and drives alerting.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Record tracks a certified invoice through transmission and retry.
type Record struct {
	// ID uniquely identifies the record.
	ID string `json:"id"`

	// IRN is the invoice reference number being transmitted.
	IRN string `json:"irn"`

	// Payload is the signed invoice document sent to the regulator.
	Payload json.RawMessage `json:"payload"`

	// Status is the current delivery state.
	Status Status `json:"status"`

	// Attempts counts completed transmission attempts.
	Attempts int `json:"attempts"`

	// MaxAttempts is the retry budget after the initial transmission.
	MaxAttempts int `json:"max_attempts"`

	// NextAttemptAt schedules the next attempt for PENDING records.
	NextAttemptAt time.Time `json:"next_attempt_at"`

	// LastError records the most recent failure reason.
	LastError string `json:"last_error,omitempty"`

	// ReceiptID is the regulator acknowledgment once SUCCEEDED.
	ReceiptID string `json:"receipt_id,omitempty"`

	// Severity reflects the escalation level of repeated failures.
	Severity Severity `json:"severity"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether the record has reached a final state.
func (r *Record) IsTerminal() bool {
	return r.Status == StatusSucceeded || r.Status == StatusFailed || r.Status == StatusExhausted
}

// severityForAttempts maps the completed attempt count to an escalation
// level. The final attempt before exhaustion is always critical.
func severityForAttempts(attempts, maxAttempts int) Severity {
	switch {
	case attempts >= maxAttempts:
		return SeverityCritical
	case attempts >= 2:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
