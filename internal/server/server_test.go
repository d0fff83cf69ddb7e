package server

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/einvoice-networks/einvoice-gateway/internal/certstore"
	"github.com/einvoice-networks/einvoice-gateway/internal/config"
	"github.com/einvoice-networks/einvoice-gateway/internal/crypto"
	"github.com/einvoice-networks/einvoice-gateway/internal/irn"
	"github.com/einvoice-networks/einvoice-gateway/internal/webhook"
)

const testWebhookSecret = "test-webhook-secret"

// writeTestIdentity generates a self-signed signing identity on disk and
// returns the key and certificate paths.
func writeTestIdentity(t *testing.T) (keyPath, certPath string) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test-signer", Organization: []string{"Test Gateway"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, priv)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}

	keyPEM, err := crypto.MarshalPrivateKeyToPEM(priv)
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}

	dir := t.TempDir()
	keyPath = filepath.Join(dir, "signing.key")
	certPath = filepath.Join(dir, "signing.crt")
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}
	if err := os.WriteFile(certPath, crypto.EncodeCertificateToPEM(cert), 0o644); err != nil {
		t.Fatalf("failed to write certificate: %v", err)
	}
	return keyPath, certPath
}

// newTestServer builds a server over in-memory stores pointed at the given
// regulator endpoint.
func newTestServer(t *testing.T, regulatorURL string) *Server {
	t.Helper()

	keyPath, certPath := writeTestIdentity(t)

	cfg := &config.ServerEnvironment{
		Environment:           "dev",
		Host:                  "127.0.0.1",
		Port:                  0,
		ServerShutdownTimeout: time.Second,
		MaxRequestBytes:       1 << 20,
		SignatureCacheSize:    100,
		SignatureCacheTTL:     time.Hour,
		RegulatorAPIURL:       regulatorURL,
		RegulatorTimeout:      5 * time.Second,
		RetryBaseDelay:        time.Minute,
		RetryBackoffFactor:    2.0,
		RetryMaxAttempts:      4,
		RetrySweepInterval:    time.Minute,
		WebhookSecret:         testWebhookSecret,
		WebhookReplayWindow:   5 * time.Minute,
		ServiceID:             "TESTSV01",
		SigningKeyPath:        keyPath,
		SigningCertPath:       certPath,
		SigningCertificateID:  "local",
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := NewServer(nil, cfg, logger)
	if err != nil {
		t.Fatalf("failed to build server: %v", err)
	}
	return srv
}

func acceptingRegulator(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"receipt_id": "RCPT-1"})
	}))
}

func certifyRequestBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(CertifyInvoiceRequest{
		Invoice: irn.InvoiceFields{
			InvoiceNumber: "INV/2025/001",
			InvoiceDate:   "2025-05-16",
			SellerTaxID:   "SELLER-123",
			BuyerTaxID:    "BUYER-456",
			TotalAmount:   1500.50,
			Currency:      "EUR",
		},
	})
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	return body
}

func TestCertifyInvoicePipeline(t *testing.T) {
	regulator := acceptingRegulator(t)
	defer regulator.Close()

	srv := newTestServer(t, regulator.URL)

	req := httptest.NewRequest(http.MethodPost, "/v1/invoices", bytes.NewReader(certifyRequestBody(t)))
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("got status %d, want %d: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	var resp CertifyInvoiceResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if check := irn.CheckFormat(resp.IRN); !check.Passed {
		t.Errorf("generated IRN %q failed format check: %s", resp.IRN, check.Reason)
	}
	if len(resp.VerificationCode) != irn.VerificationCodeLen {
		t.Errorf("verification code length = %d, want %d", len(resp.VerificationCode), irn.VerificationCodeLen)
	}
	if resp.Submission.Status != "SUCCEEDED" {
		t.Errorf("submission status = %s, want SUCCEEDED", resp.Submission.Status)
	}
	if resp.Submission.ReceiptID != "RCPT-1" {
		t.Errorf("receipt id = %q, want RCPT-1", resp.Submission.ReceiptID)
	}
	if resp.Signature.Signature == "" {
		t.Error("expected a signature block in the response")
	}

	rec, err := srv.irnStore.Get(context.Background(), resp.IRN)
	if err != nil {
		t.Fatalf("IRN record not stored: %v", err)
	}
	if rec.Status != irn.StatusActive {
		t.Errorf("IRN status after accepted submission = %s, want %s", rec.Status, irn.StatusActive)
	}
}

func TestCertifyInvoiceRetryableFailureStaysPending(t *testing.T) {
	regulator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer regulator.Close()

	srv := newTestServer(t, regulator.URL)

	req := httptest.NewRequest(http.MethodPost, "/v1/invoices", bytes.NewReader(certifyRequestBody(t)))
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("got status %d, want %d: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	var resp CertifyInvoiceResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Submission.Status != "PENDING" {
		t.Errorf("submission status = %s, want PENDING", resp.Submission.Status)
	}
	if resp.Submission.NextAttemptAt.IsZero() {
		t.Error("expected a scheduled next attempt")
	}

	rec, err := srv.irnStore.Get(context.Background(), resp.IRN)
	if err != nil {
		t.Fatalf("IRN record not stored: %v", err)
	}
	if rec.Status != irn.StatusUnused {
		t.Errorf("IRN status before regulator acceptance = %s, want %s", rec.Status, irn.StatusUnused)
	}
}

func TestCertifyInvoiceRejectsUnknownFields(t *testing.T) {
	regulator := acceptingRegulator(t)
	defer regulator.Close()

	srv := newTestServer(t, regulator.URL)

	req := httptest.NewRequest(http.MethodPost, "/v1/invoices",
		bytes.NewReader([]byte(`{"invoice":{},"unexpected":true}`)))
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestVerifySignatureEndpoint(t *testing.T) {
	regulator := acceptingRegulator(t)
	defer regulator.Close()

	srv := newTestServer(t, regulator.URL)

	req := httptest.NewRequest(http.MethodPost, "/v1/invoices", bytes.NewReader(certifyRequestBody(t)))
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("certification failed: %d %s", rr.Code, rr.Body.String())
	}
	var certified CertifyInvoiceResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &certified); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	// Reconstruct the signed document the way the intake handler builds it.
	document := map[string]any{
		"invoiceNumber":    "INV/2025/001",
		"invoiceDate":      "2025-05-16",
		"sellerTaxId":      "SELLER-123",
		"buyerTaxId":       "BUYER-456",
		"totalAmount":      1500.50,
		"currency":         "EUR",
		"irn":              certified.IRN,
		"verificationCode": certified.VerificationCode,
	}

	verify := func(doc map[string]any) *httptest.ResponseRecorder {
		body, err := json.Marshal(VerifySignatureRequest{Document: doc, Signature: certified.Signature})
		if err != nil {
			t.Fatalf("failed to marshal verify request: %v", err)
		}
		req := httptest.NewRequest(http.MethodPost, "/v1/signatures/verify", bytes.NewReader(body))
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, req)
		return rr
	}

	resp := verify(document)
	if resp.Code != http.StatusOK {
		t.Fatalf("valid signature: got status %d, want %d: %s", resp.Code, http.StatusOK, resp.Body.String())
	}
	var result VerifySignatureResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode verify response: %v", err)
	}
	if !result.Valid || result.CertificateID != "local" {
		t.Errorf("verify response = %+v, want valid under certificate local", result)
	}

	tampered := map[string]any{}
	for k, v := range document {
		tampered[k] = v
	}
	tampered["totalAmount"] = 9999.99
	if resp := verify(tampered); resp.Code != http.StatusBadRequest {
		t.Errorf("tampered document: got status %d, want %d", resp.Code, http.StatusBadRequest)
	}
}

func TestRevokeCertificateStopsCertification(t *testing.T) {
	regulator := acceptingRegulator(t)
	defer regulator.Close()

	srv := newTestServer(t, regulator.URL)

	req := httptest.NewRequest(http.MethodPost, "/v1/invoices", bytes.NewReader(certifyRequestBody(t)))
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("certification failed: %d %s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/certificates/local/revoke", nil)
	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("revocation failed: %d %s", rr.Code, rr.Body.String())
	}
	var revoked RevokeCertificateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &revoked); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if revoked.Status != certstore.StatusRevoked {
		t.Errorf("status = %s, want %s", revoked.Status, certstore.StatusRevoked)
	}

	body, err := json.Marshal(CertifyInvoiceRequest{
		Invoice: irn.InvoiceFields{
			InvoiceNumber: "INV/2025/002",
			InvoiceDate:   "2025-05-17",
			SellerTaxID:   "SELLER-123",
			BuyerTaxID:    "BUYER-456",
			TotalAmount:   200.00,
			Currency:      "EUR",
		},
	})
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	req = httptest.NewRequest(http.MethodPost, "/v1/invoices", bytes.NewReader(body))
	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusConflict {
		t.Errorf("certification with revoked certificate: got status %d, want %d: %s",
			rr.Code, http.StatusConflict, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/certificates/no-such-cert/revoke", nil)
	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown certificate: got status %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestValidateIRNEndpoint(t *testing.T) {
	regulator := acceptingRegulator(t)
	defer regulator.Close()

	srv := newTestServer(t, regulator.URL)

	req := httptest.NewRequest(http.MethodPost, "/v1/invoices", bytes.NewReader(certifyRequestBody(t)))
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("certification failed: %d %s", rr.Code, rr.Body.String())
	}
	var certified CertifyInvoiceResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &certified); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	validate := func(fields irn.InvoiceFields, irnString string) *httptest.ResponseRecorder {
		body, err := json.Marshal(ValidateIRNRequest{IRN: irnString, Invoice: fields})
		if err != nil {
			t.Fatalf("failed to marshal validate request: %v", err)
		}
		req := httptest.NewRequest(http.MethodPost, "/v1/irns/validate", bytes.NewReader(body))
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, req)
		return rr
	}

	original := irn.InvoiceFields{
		InvoiceNumber: "INV/2025/001",
		InvoiceDate:   "2025-05-16",
		SellerTaxID:   "SELLER-123",
		BuyerTaxID:    "BUYER-456",
		TotalAmount:   1500.50,
		Currency:      "EUR",
	}

	resp := validate(original, certified.IRN)
	if resp.Code != http.StatusOK {
		t.Fatalf("validate: got status %d, want %d: %s", resp.Code, http.StatusOK, resp.Body.String())
	}
	var report irn.ValidationReport
	if err := json.Unmarshal(resp.Body.Bytes(), &report); err != nil {
		t.Fatalf("failed to decode report: %v", err)
	}
	if !report.Valid {
		t.Errorf("report = %+v, want valid", report)
	}

	mutated := original
	mutated.TotalAmount = 9999.99
	resp = validate(mutated, certified.IRN)
	if resp.Code != http.StatusOK {
		t.Fatalf("validate mutated: got status %d, want %d: %s", resp.Code, http.StatusOK, resp.Body.String())
	}
	report = irn.ValidationReport{}
	if err := json.Unmarshal(resp.Body.Bytes(), &report); err != nil {
		t.Fatalf("failed to decode report: %v", err)
	}
	if report.Valid {
		t.Error("mutated invoice data passed validation")
	}
	failing := ""
	for _, check := range report.Checks {
		if !check.Passed {
			failing = check.Name
		}
	}
	if failing != "integrity" {
		t.Errorf("failing check = %q, want integrity", failing)
	}

	if resp := validate(original, "INV2025001-NOSUCHID-20250516"); resp.Code != http.StatusNotFound {
		t.Errorf("unknown IRN: got status %d, want %d", resp.Code, http.StatusNotFound)
	}
}

func TestForceRetryUnknownSubmission(t *testing.T) {
	regulator := acceptingRegulator(t)
	defer regulator.Close()

	srv := newTestServer(t, regulator.URL)

	req := httptest.NewRequest(http.MethodPost, "/v1/submissions/no-such-id/retry", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want %d", rr.Code, http.StatusNotFound)
	}
}

// postWebhook signs and delivers a webhook payload the way the regulator
// would.
func postWebhook(t *testing.T, srv *Server, payload []byte, nonce string) *httptest.ResponseRecorder {
	t.Helper()

	auth := webhook.NewAuthenticator(testWebhookSecret, 5*time.Minute)
	timestamp := time.Now().UTC().Format(time.RFC3339)

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/regulator", bytes.NewReader(payload))
	req.Header.Set(headerWebhookTimestamp, timestamp)
	req.Header.Set(headerWebhookNonce, nonce)
	req.Header.Set(headerWebhookSignature, auth.ComputeSignature(timestamp, nonce, payload))

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	return rr
}

func TestWebhookStatusUpdateActivatesIRN(t *testing.T) {
	regulator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer regulator.Close()

	srv := newTestServer(t, regulator.URL)

	req := httptest.NewRequest(http.MethodPost, "/v1/invoices", bytes.NewReader(certifyRequestBody(t)))
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("certification failed: %d %s", rr.Code, rr.Body.String())
	}
	var resp CertifyInvoiceResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	payload, _ := json.Marshal(map[string]string{
		"type":   "status_update",
		"irn":    resp.IRN,
		"status": "accepted",
	})
	whResp := postWebhook(t, srv, payload, "nonce-activate-1")
	if whResp.Code != http.StatusOK {
		t.Fatalf("webhook delivery failed: %d %s", whResp.Code, whResp.Body.String())
	}

	var ack webhook.Acknowledgment
	if err := json.Unmarshal(whResp.Body.Bytes(), &ack); err != nil {
		t.Fatalf("failed to decode acknowledgment: %v", err)
	}
	if ack.Acknowledgment != "received" {
		t.Errorf("acknowledgment = %q, want received", ack.Acknowledgment)
	}
	if ack.Signature == "" {
		t.Error("acknowledgment is not signed")
	}

	rec, err := srv.irnStore.Get(context.Background(), resp.IRN)
	if err != nil {
		t.Fatalf("IRN record not stored: %v", err)
	}
	if rec.Status != irn.StatusActive {
		t.Errorf("IRN status after accepted webhook = %s, want %s", rec.Status, irn.StatusActive)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	regulator := acceptingRegulator(t)
	defer regulator.Close()

	srv := newTestServer(t, regulator.URL)

	payload := []byte(`{"type":"status_update","irn":"X-Y-Z","status":"accepted"}`)
	timestamp := time.Now().UTC().Format(time.RFC3339)

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/regulator", bytes.NewReader(payload))
	req.Header.Set(headerWebhookTimestamp, timestamp)
	req.Header.Set(headerWebhookNonce, "nonce-bad-sig")
	req.Header.Set(headerWebhookSignature, "deadbeef")

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestWebhookRejectsReplayedNonce(t *testing.T) {
	regulator := acceptingRegulator(t)
	defer regulator.Close()

	srv := newTestServer(t, regulator.URL)

	payload := []byte(`{"type":"receipt_confirmation","irn":"X-Y-Z","receipt_id":"RCPT-9"}`)

	first := postWebhook(t, srv, payload, "nonce-replay-1")
	if first.Code != http.StatusOK {
		t.Fatalf("first delivery failed: %d %s", first.Code, first.Body.String())
	}

	second := postWebhook(t, srv, payload, "nonce-replay-1")
	if second.Code != http.StatusUnauthorized {
		t.Fatalf("replayed delivery: got status %d, want %d", second.Code, http.StatusUnauthorized)
	}
}

func TestHealthEndpoint(t *testing.T) {
	regulator := acceptingRegulator(t)
	defer regulator.Close()

	srv := newTestServer(t, regulator.URL)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestJWKSEndpoint(t *testing.T) {
	regulator := acceptingRegulator(t)
	defer regulator.Close()

	srv := newTestServer(t, regulator.URL)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", rr.Code, http.StatusOK)
	}

	set, err := jwk.Parse(rr.Body.Bytes())
	if err != nil {
		t.Fatalf("JWKS response does not parse: %v", err)
	}
	if set.Len() != 1 {
		t.Fatalf("JWKS key count = %d, want 1", set.Len())
	}
	key, _ := set.Key(0)
	kid, ok := key.KeyID()
	if !ok || kid != "local" {
		t.Errorf("key id = %q, want local", kid)
	}
}
