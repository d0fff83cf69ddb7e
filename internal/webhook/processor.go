package webhook

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/einvoice-networks/einvoice-gateway/internal/metrics"
)

// Event types the regulator delivers.
const (
	EventStatusUpdate     = "status_update"
	EventReceiptConfirm   = "receipt_confirmation"
	EventValidationResult = "validation_result"
)

// Canonical statuses produced by normalization.
const (
	StatusAccepted   = "ACCEPTED"
	StatusRejected   = "REJECTED"
	StatusProcessing = "PROCESSING"
)

// normalizedStatuses maps regulator status spellings to canonical values.
var normalizedStatuses = map[string]string{
	"accepted":   StatusAccepted,
	"approved":   StatusAccepted,
	"rejected":   StatusRejected,
	"declined":   StatusRejected,
	"processing": StatusProcessing,
	"pending":    StatusProcessing,
	"received":   StatusProcessing,
}

// Event is the envelope the regulator posts.
type Event struct {
	Type      string          `json:"type"`
	IRN       string          `json:"irn"`
	Status    string          `json:"status,omitempty"`
	ReceiptID string          `json:"receipt_id,omitempty"`
	Valid     *bool           `json:"valid,omitempty"`
	Errors    []string        `json:"errors,omitempty"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ProcessedEvent is a validated event annotated with verification metadata.
type ProcessedEvent struct {
	Type             string    `json:"type"`
	IRN              string    `json:"irn"`
	NormalizedStatus string    `json:"normalized_status,omitempty"`
	ReceiptID        string    `json:"receipt_id,omitempty"`
	Valid            *bool     `json:"valid,omitempty"`
	Errors           []string  `json:"errors,omitempty"`
	Message          string    `json:"message,omitempty"`
	VerifiedAt       time.Time `json:"verified_at"`
}

// Acknowledgment is the signed response returned to the regulator.
type Acknowledgment struct {
	// TransmissionID uniquely identifies this delivery acknowledgment.
	TransmissionID string `json:"transmission_id"`

	// Status echoes the normalized status for status-bearing events.
	Status string `json:"status,omitempty"`

	// Acknowledgment is always "received".
	Acknowledgment string `json:"acknowledgment"`

	Timestamp time.Time `json:"timestamp"`
	Signature string    `json:"signature"`
}

// Processor validates webhook payloads against their per-type schema and
// produces signed acknowledgments.
type Processor struct {
	auth   *Authenticator
	logger *slog.Logger
	now    func() time.Time
}

// NewProcessor creates a processor that acknowledges with the same secret
// used for inbound authentication.
func NewProcessor(auth *Authenticator, logger *slog.Logger) *Processor {
	return &Processor{auth: auth, logger: logger, now: time.Now}
}

// Process parses and validates the payload, returning the annotated event.
func (p *Processor) Process(payload []byte) (*ProcessedEvent, error) {
	var event Event
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&event); err != nil {
		metrics.WebhookRejectionsTotal.WithLabelValues("malformed_json").Inc()
		return nil, WrapSchemaError(err, "failed to decode webhook payload")
	}

	if err := validateEvent(&event); err != nil {
		metrics.WebhookRejectionsTotal.WithLabelValues("schema").Inc()
		return nil, err
	}

	processed := &ProcessedEvent{
		Type:       event.Type,
		IRN:        event.IRN,
		ReceiptID:  event.ReceiptID,
		Valid:      event.Valid,
		Errors:     event.Errors,
		Message:    event.Message,
		VerifiedAt: p.now().UTC(),
	}
	if event.Status != "" {
		processed.NormalizedStatus = normalizeStatus(event.Status)
	}

	metrics.WebhookEventsTotal.WithLabelValues(event.Type, "accepted").Inc()
	return processed, nil
}

// Acknowledge produces a signed acknowledgment for a processed event. The
// signature uses the same HMAC scheme as inbound requests, with the
// transmission ID as nonce and the event identity as payload, so the
// regulator can verify it with the shared secret.
func (p *Processor) Acknowledge(event *ProcessedEvent) Acknowledgment {
	ack := Acknowledgment{
		TransmissionID: uuid.New().String(),
		Status:         event.NormalizedStatus,
		Acknowledgment: "received",
		Timestamp:      p.now().UTC(),
	}
	ack.Signature = p.auth.ComputeSignature(
		ack.Timestamp.Format(time.RFC3339), ack.TransmissionID, []byte(event.Type+"."+event.IRN))
	return ack
}

func validateEvent(event *Event) error {
	if event.IRN == "" {
		return NewSchemaError("irn is required")
	}

	switch event.Type {
	case EventStatusUpdate:
		if event.Status == "" {
			return NewSchemaError("status is required for status_update events")
		}
		if normalizeStatus(event.Status) == "" {
			return NewSchemaError("unknown status value " + event.Status)
		}
	case EventReceiptConfirm:
		if event.ReceiptID == "" {
			return NewSchemaError("receipt_id is required for receipt_confirmation events")
		}
	case EventValidationResult:
		if event.Valid == nil {
			return NewSchemaError("valid is required for validation_result events")
		}
		if !*event.Valid && len(event.Errors) == 0 {
			return NewSchemaError("failed validation_result events must carry errors")
		}
	case "":
		return NewSchemaError("type is required")
	default:
		return NewSchemaError("unknown event type " + event.Type)
	}
	return nil
}

func normalizeStatus(status string) string {
	return normalizedStatuses[strings.ToLower(strings.TrimSpace(status))]
}
