package webhook

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

const testSecret = "whsec_0123456789abcdef"

func testProcessor() (*Authenticator, *Processor) {
	auth := NewAuthenticator(testSecret, 5*time.Minute)
	return auth, NewProcessor(auth, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func wantCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	var whErr *WebhookError
	if !errors.As(err, &whErr) {
		t.Fatalf("expected WebhookError, got %v", err)
	}
	if whErr.Code() != code {
		t.Errorf("expected code %s, got %s", code, whErr.Code())
	}
}

func TestAuthenticateValidRequest(t *testing.T) {
	auth, _ := testProcessor()

	payload := []byte(`{"type":"status_update","irn":"INV-1","status":"accepted"}`)
	ts := time.Now().Format(time.RFC3339)
	sig := auth.ComputeSignature(ts, "nonce-1", payload)

	if err := auth.Authenticate(ts, "nonce-1", sig, payload); err != nil {
		t.Fatalf("expected valid request to authenticate, got %v", err)
	}
}

func TestAuthenticateRejectsBadSignature(t *testing.T) {
	auth, _ := testProcessor()

	payload := []byte(`{"irn":"INV-1"}`)
	ts := time.Now().Format(time.RFC3339)

	err := auth.Authenticate(ts, "nonce-1", "deadbeef", payload)
	wantCode(t, err, ErrCodeSignature)
}

func TestAuthenticateRejectsTamperedPayload(t *testing.T) {
	auth, _ := testProcessor()

	payload := []byte(`{"irn":"INV-1","status":"accepted"}`)
	ts := time.Now().Format(time.RFC3339)
	sig := auth.ComputeSignature(ts, "nonce-1", payload)

	tampered := []byte(`{"irn":"INV-1","status":"rejected"}`)
	err := auth.Authenticate(ts, "nonce-1", sig, tampered)
	wantCode(t, err, ErrCodeSignature)
}

func TestAuthenticateRejectsStaleTimestamp(t *testing.T) {
	auth, _ := testProcessor()

	payload := []byte(`{"irn":"INV-1"}`)
	ts := time.Now().Add(-10 * time.Minute).Format(time.RFC3339)
	sig := auth.ComputeSignature(ts, "nonce-1", payload)

	err := auth.Authenticate(ts, "nonce-1", sig, payload)
	wantCode(t, err, ErrCodeStale)
}

func TestAuthenticateRejectsReplay(t *testing.T) {
	auth, _ := testProcessor()

	payload := []byte(`{"irn":"INV-1"}`)
	ts := time.Now().Format(time.RFC3339)
	sig := auth.ComputeSignature(ts, "nonce-1", payload)

	if err := auth.Authenticate(ts, "nonce-1", sig, payload); err != nil {
		t.Fatalf("first delivery should authenticate, got %v", err)
	}

	err := auth.Authenticate(ts, "nonce-1", sig, payload)
	wantCode(t, err, ErrCodeReplay)
}

func TestAuthenticateAllowsNonceAfterWindow(t *testing.T) {
	auth := NewAuthenticator(testSecret, 5*time.Minute)
	base := time.Now()
	auth.now = func() time.Time { return base }

	payload := []byte(`{"irn":"INV-1"}`)
	ts := base.Format(time.RFC3339)
	sig := auth.ComputeSignature(ts, "nonce-1", payload)
	if err := auth.Authenticate(ts, "nonce-1", sig, payload); err != nil {
		t.Fatalf("first delivery should authenticate, got %v", err)
	}

	// Past the window the nonce registry forgets, and a fresh timestamp
	// may reuse the nonce.
	auth.now = func() time.Time { return base.Add(6 * time.Minute) }
	ts2 := base.Add(6 * time.Minute).Format(time.RFC3339)
	sig2 := auth.ComputeSignature(ts2, "nonce-1", payload)
	if err := auth.Authenticate(ts2, "nonce-1", sig2, payload); err != nil {
		t.Errorf("expected nonce to be reusable after the window, got %v", err)
	}
}

func TestProcessEvents(t *testing.T) {
	_, processor := testProcessor()

	tests := []struct {
		name       string
		payload    string
		wantErr    bool
		wantStatus string
	}{
		{
			name:       "status update",
			payload:    `{"type":"status_update","irn":"INV-1","status":"approved"}`,
			wantStatus: "ACCEPTED",
		},
		{
			name:       "status update normalizes case",
			payload:    `{"type":"status_update","irn":"INV-1","status":" Rejected "}`,
			wantStatus: "REJECTED",
		},
		{
			name:    "receipt confirmation",
			payload: `{"type":"receipt_confirmation","irn":"INV-1","receipt_id":"RCP-1"}`,
		},
		{
			name:    "validation result",
			payload: `{"type":"validation_result","irn":"INV-1","valid":false,"errors":["bad total"]}`,
		},
		{
			name:    "missing type",
			payload: `{"irn":"INV-1"}`,
			wantErr: true,
		},
		{
			name:    "unknown type",
			payload: `{"type":"invoice_paid","irn":"INV-1"}`,
			wantErr: true,
		},
		{
			name:    "missing irn",
			payload: `{"type":"status_update","status":"accepted"}`,
			wantErr: true,
		},
		{
			name:    "status update without status",
			payload: `{"type":"status_update","irn":"INV-1"}`,
			wantErr: true,
		},
		{
			name:    "unknown status value",
			payload: `{"type":"status_update","irn":"INV-1","status":"maybe"}`,
			wantErr: true,
		},
		{
			name:    "receipt confirmation without receipt",
			payload: `{"type":"receipt_confirmation","irn":"INV-1"}`,
			wantErr: true,
		},
		{
			name:    "validation result without verdict",
			payload: `{"type":"validation_result","irn":"INV-1"}`,
			wantErr: true,
		},
		{
			name:    "failed validation without errors",
			payload: `{"type":"validation_result","irn":"INV-1","valid":false}`,
			wantErr: true,
		},
		{
			name:    "unexpected fields",
			payload: `{"type":"status_update","irn":"INV-1","status":"accepted","shell":"rm -rf"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			payload: `status=accepted`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := processor.Process([]byte(tt.payload))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected schema error")
				}
				wantCode(t, err, ErrCodeSchema)
				return
			}
			if err != nil {
				t.Fatalf("Process failed: %v", err)
			}
			if event.VerifiedAt.IsZero() {
				t.Error("expected verification timestamp to be set")
			}
			if event.NormalizedStatus != tt.wantStatus {
				t.Errorf("expected normalized status %q, got %q", tt.wantStatus, event.NormalizedStatus)
			}
		})
	}
}

func TestAcknowledgeIsSigned(t *testing.T) {
	auth, processor := testProcessor()

	event, err := processor.Process([]byte(`{"type":"status_update","irn":"INV-1","status":"accepted"}`))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	ack := processor.Acknowledge(event)
	if ack.TransmissionID == "" || ack.Signature == "" {
		t.Fatal("expected acknowledgment to carry a transmission ID and signature")
	}
	if ack.Acknowledgment != "received" {
		t.Errorf("expected acknowledgment field to be received, got %s", ack.Acknowledgment)
	}
	if ack.Status != "ACCEPTED" {
		t.Errorf("expected acknowledgment to echo normalized status, got %s", ack.Status)
	}

	expected := auth.ComputeSignature(
		ack.Timestamp.Format(time.RFC3339), ack.TransmissionID, []byte(event.Type+"."+event.IRN))
	if ack.Signature != expected {
		t.Error("acknowledgment signature does not verify under the shared secret")
	}
}
