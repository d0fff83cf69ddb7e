// record.go defines the IRN record and its lifecycle.
//
// An IRN record is created in the UNUSED state when the reference number is
// generated, becomes ACTIVE on first successful submission to the regulator,
// and ends in one of the terminal states (EXPIRED, REVOKED, INVALID).
// Terminal states are immutable.
package irn

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an IRN record.
type Status string

const (
	StatusUnused  Status = "UNUSED"
	StatusActive  Status = "ACTIVE"
	StatusExpired Status = "EXPIRED"
	StatusRevoked Status = "REVOKED"
	StatusInvalid Status = "INVALID"
)

// validTransitions enumerates the allowed lifecycle transitions.
// Absent entries are terminal states.
var validTransitions = map[Status][]Status{
	StatusUnused: {StatusActive, StatusExpired, StatusRevoked, StatusInvalid},
	StatusActive: {StatusExpired, StatusRevoked},
}

// Record holds a generated IRN and the material needed to re-derive it.
type Record struct {

	// InvoiceNumber is the sanitized invoice number (alphanumeric, max 50 chars)
	InvoiceNumber string `json:"invoiceNumber"`

	// ServiceID is the 8-character alphanumeric identifier of the issuing service
	ServiceID string `json:"serviceId"`

	// DateStamp is the invoice date in YYYYMMDD form
	DateStamp string `json:"dateStamp"`

	// UniqueID is the random per-IRN identifier mixed into the content hash.
	// The hash can only be reproduced given the original invoice fields plus this value.
	UniqueID string `json:"uniqueId"`

	// ContentHash is the SHA-256 hash of the canonical invoice fields plus UniqueID (hex, 64 chars)
	ContentHash string `json:"contentHash"`

	// VerificationCode is the 12-character code derived deterministically from ContentHash
	VerificationCode string `json:"verificationCode"`

	Status Status `json:"status"`

	// validity window
	GeneratedAt time.Time `json:"generatedAt"`
	ValidUntil  time.Time `json:"validUntil"`
}

// IRN returns the textual invoice reference number:
// {invoiceNumber}-{serviceId}-{dateStamp}
func (r *Record) IRN() string {
	return fmt.Sprintf("%s-%s-%s", r.InvoiceNumber, r.ServiceID, r.DateStamp)
}

// IsTerminal reports whether the record's status admits no further transitions.
func (r *Record) IsTerminal() bool {
	_, ok := validTransitions[r.Status]
	return !ok
}

// Transition moves the record to a new status, enforcing the lifecycle rules.
// Transitions out of terminal states are rejected.
func (r *Record) Transition(to Status) error {
	allowed, ok := validTransitions[r.Status]
	if !ok {
		return NewStateError(fmt.Sprintf("cannot transition from terminal state %s", r.Status))
	}

	for _, next := range allowed {
		if next == to {
			r.Status = to
			return nil
		}
	}

	return NewStateError(fmt.Sprintf("invalid transition %s -> %s", r.Status, to))
}

// Activate marks the IRN as in use after the first successful submission.
func (r *Record) Activate() error {
	return r.Transition(StatusActive)
}

// Revoke administratively invalidates the IRN. Terminal.
func (r *Record) Revoke() error {
	return r.Transition(StatusRevoked)
}

// ExpireIfPast transitions the record to EXPIRED when now is past the
// validity window. Returns true if the record expired.
func (r *Record) ExpireIfPast(now time.Time) bool {
	if r.IsTerminal() {
		return false
	}
	if r.ValidUntil.IsZero() || now.Before(r.ValidUntil) {
		return false
	}
	// UNUSED and ACTIVE both admit EXPIRED
	_ = r.Transition(StatusExpired)
	return true
}
