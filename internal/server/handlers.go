package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/einvoice-networks/einvoice-gateway/internal/api"
	"github.com/einvoice-networks/einvoice-gateway/internal/certstore"
	"github.com/einvoice-networks/einvoice-gateway/internal/irn"
	"github.com/einvoice-networks/einvoice-gateway/internal/logger"
	"github.com/einvoice-networks/einvoice-gateway/internal/metrics"
	"github.com/einvoice-networks/einvoice-gateway/internal/signing"
	"github.com/einvoice-networks/einvoice-gateway/internal/submission"
	"github.com/einvoice-networks/einvoice-gateway/internal/version"
	"github.com/einvoice-networks/einvoice-gateway/internal/webhook"
)

// Webhook authentication headers set by the regulator on each delivery.
// The JWS header is optional; when present the delivery must also carry a
// signature from a key in the regulator's published key set.
const (
	headerWebhookTimestamp = "X-Webhook-Timestamp"
	headerWebhookNonce     = "X-Webhook-Nonce"
	headerWebhookSignature = "X-Webhook-Signature"
	headerWebhookJWS       = "X-Webhook-JWS"
)

// CertifyInvoiceRequest is the intake payload for invoice certification.
type CertifyInvoiceRequest struct {
	// Invoice carries the fields that feed the IRN content hash.
	Invoice irn.InvoiceFields `json:"invoice"`

	// Document is the full invoice document to sign and transmit.
	// When omitted, the invoice fields themselves are signed.
	Document map[string]any `json:"document,omitempty"`
}

// SubmissionSummary reports the transmission state of a certified invoice.
type SubmissionSummary struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	Attempts      int       `json:"attempts"`
	ReceiptID     string    `json:"receiptId,omitempty"`
	NextAttemptAt time.Time `json:"nextAttemptAt,omitempty"`
}

// CertifyInvoiceResponse is the result of a certification request.
type CertifyInvoiceResponse struct {
	IRN              string                 `json:"irn"`
	VerificationCode string                 `json:"verificationCode"`
	Status           irn.Status             `json:"status"`
	ValidUntil       time.Time              `json:"validUntil"`
	Signature        signing.SignatureBlock `json:"signature"`
	Submission       SubmissionSummary      `json:"submission"`
}

// handleCertifyInvoice runs the full certification pipeline: IRN
// generation and registration, document signing, and the first
// transmission attempt to the regulator.
func (s *Server) handleCertifyInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqLogger := logger.ContextRequestLogger(ctx)

	var req CertifyInvoiceRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		api.RespondWithError(w, r, irn.WrapValidationError(err, "invalid request body"))
		return
	}

	rec, err := irn.Generate(req.Invoice, irn.GenerateOptions{ServiceID: s.config.ServiceID})
	if err != nil {
		api.RespondWithError(w, r, err)
		return
	}
	if err := s.irnStore.Save(ctx, rec); err != nil {
		api.RespondWithError(w, r, err)
		return
	}
	metrics.IRNGeneratedTotal.Inc()

	document := req.Document
	if document == nil {
		document = map[string]any{
			"invoiceNumber": req.Invoice.InvoiceNumber,
			"invoiceDate":   req.Invoice.InvoiceDate,
			"sellerTaxId":   req.Invoice.SellerTaxID,
			"buyerTaxId":    req.Invoice.BuyerTaxID,
			"totalAmount":   req.Invoice.TotalAmount,
			"currency":      req.Invoice.Currency,
		}
	}
	document["irn"] = rec.IRN()
	document["verificationCode"] = rec.VerificationCode

	block, err := s.signer.Sign(ctx, document, s.config.SigningCertificateID)
	if err != nil {
		api.RespondWithError(w, r, err)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"document":  document,
		"signature": block,
	})
	if err != nil {
		api.RespondWithError(w, r, irn.WrapInternalError(err, "failed to marshal signed payload"))
		return
	}

	subRec, outcome, err := s.engine.Submit(ctx, rec.IRN(), payload)
	if err != nil {
		api.RespondWithError(w, r, err)
		return
	}

	if _, ok := outcome.(submission.Accepted); ok {
		if err := rec.Activate(); err == nil {
			if err := s.irnStore.Update(ctx, rec); err != nil {
				reqLogger.Error("failed to activate IRN record",
					"irn", rec.IRN(), "error", err)
			}
		}
	}

	reqLogger.Info("invoice certified",
		"irn", rec.IRN(),
		"submission_id", subRec.ID,
		"submission_status", subRec.Status)

	api.RespondWithJSON(w, http.StatusCreated, CertifyInvoiceResponse{
		IRN:              rec.IRN(),
		VerificationCode: rec.VerificationCode,
		Status:           rec.Status,
		ValidUntil:       rec.ValidUntil,
		Signature:        block,
		Submission: SubmissionSummary{
			ID:            subRec.ID,
			Status:        string(subRec.Status),
			Attempts:      subRec.Attempts,
			ReceiptID:     subRec.ReceiptID,
			NextAttemptAt: subRec.NextAttemptAt,
		},
	})
}

// VerifySignatureRequest carries a document and the signature block to
// check it against.
type VerifySignatureRequest struct {
	Document  map[string]any         `json:"document"`
	Signature signing.SignatureBlock `json:"signature"`
}

// VerifySignatureResponse reports a successful verification.
type VerifySignatureResponse struct {
	Valid         bool      `json:"valid"`
	CertificateID string    `json:"certificateId"`
	Algorithm     string    `json:"algorithm"`
	VerifiedAt    time.Time `json:"verifiedAt"`
}

// handleVerifySignature checks a signature block against a document and
// the certificate it names. A cryptographically valid signature under a
// revoked or expired certificate is reported invalid.
func (s *Server) handleVerifySignature(w http.ResponseWriter, r *http.Request) {
	var req VerifySignatureRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		api.RespondWithError(w, r, signing.NewInvalidSignatureError("invalid request body"))
		return
	}

	if err := s.verifier.Verify(r.Context(), req.Document, req.Signature); err != nil {
		api.RespondWithError(w, r, err)
		return
	}

	api.RespondWithJSON(w, http.StatusOK, VerifySignatureResponse{
		Valid:         true,
		CertificateID: req.Signature.CertificateID,
		Algorithm:     string(req.Signature.Algorithm),
		VerifiedAt:    time.Now().UTC(),
	})
}

// ValidateIRNRequest carries an IRN string and the invoice data it is
// claimed to identify.
type ValidateIRNRequest struct {
	IRN     string            `json:"irn"`
	Invoice irn.InvoiceFields `json:"invoice"`
}

// handleValidateIRN re-derives an IRN from the supplied invoice data and
// the stored record, reporting each check individually. An invalid IRN is
// a normal answer, not an error: the report carries the failing check.
func (s *Server) handleValidateIRN(w http.ResponseWriter, r *http.Request) {
	var req ValidateIRNRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		api.RespondWithError(w, r, irn.WrapValidationError(err, "invalid request body"))
		return
	}

	rec, err := s.irnStore.Get(r.Context(), req.IRN)
	if err != nil {
		api.RespondWithError(w, r, err)
		return
	}

	report := irn.Validate(req.IRN, req.Invoice, rec)
	api.RespondWithJSON(w, http.StatusOK, report)
}

// RevokeCertificateResponse confirms an administrative revocation.
type RevokeCertificateResponse struct {
	CertificateID string           `json:"certificateId"`
	Status        certstore.Status `json:"status"`
}

// handleRevokeCertificate withdraws a certificate from use and drops its
// cached signatures so no previously computed block survives revocation.
func (s *Server) handleRevokeCertificate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certificateID := chi.URLParam(r, "certificateID")

	if err := s.certStore.UpdateStatus(ctx, certificateID, certstore.StatusRevoked); err != nil {
		api.RespondWithError(w, r, err)
		return
	}
	metrics.CertificatesRevokedTotal.Inc()
	s.logger.WarnContext(ctx, "certificate revoked", "certificate_id", certificateID)

	if err := s.cache.InvalidateForCertificate(ctx, certificateID); err != nil {
		s.logger.ErrorContext(ctx, "failed to invalidate cache for revoked certificate",
			"certificate_id", certificateID, "error", err)
	}

	api.RespondWithJSON(w, http.StatusOK, RevokeCertificateResponse{
		CertificateID: certificateID,
		Status:        certstore.StatusRevoked,
	})
}

// handleForceRetry schedules a submission for immediate reattempt. Failed
// and exhausted submissions also get a fresh retry budget.
func (s *Server) handleForceRetry(w http.ResponseWriter, r *http.Request) {
	submissionID := chi.URLParam(r, "submissionID")

	rec, err := s.engine.ForceRetry(r.Context(), submissionID)
	if err != nil {
		api.RespondWithError(w, r, err)
		return
	}

	api.RespondWithJSON(w, http.StatusOK, SubmissionSummary{
		ID:            rec.ID,
		Status:        string(rec.Status),
		Attempts:      rec.Attempts,
		ReceiptID:     rec.ReceiptID,
		NextAttemptAt: rec.NextAttemptAt,
	})
}

// handleRegulatorWebhook authenticates and processes callbacks from the
// regulator platform, transitioning the referenced IRN record where the
// event carries a final status.
func (s *Server) handleRegulatorWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqLogger := logger.ContextRequestLogger(ctx)

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		api.RespondWithError(w, r, webhook.NewSchemaError("failed to read request body"))
		return
	}

	if err := s.auth.Authenticate(
		r.Header.Get(headerWebhookTimestamp),
		r.Header.Get(headerWebhookNonce),
		r.Header.Get(headerWebhookSignature),
		payload,
	); err != nil {
		api.RespondWithError(w, r, err)
		return
	}

	if jws := r.Header.Get(headerWebhookJWS); jws != "" {
		if err := s.verifyRegulatorJWS(ctx, jws, payload); err != nil {
			api.RespondWithError(w, r, err)
			return
		}
	}

	event, err := s.processor.Process(payload)
	if err != nil {
		api.RespondWithError(w, r, err)
		return
	}

	s.applyEventToIRN(r, event)

	ack := s.processor.Acknowledge(event)
	reqLogger.Info("webhook acknowledged",
		"event_type", event.Type,
		"irn", event.IRN,
		"transmission_id", ack.TransmissionID)

	api.RespondWithJSON(w, http.StatusOK, ack)
}

// applyEventToIRN transitions the IRN record referenced by a webhook
// event. Lookup and transition failures are logged but do not fail the
// delivery; the regulator has already made its decision.
func (s *Server) applyEventToIRN(r *http.Request, event *webhook.ProcessedEvent) {
	ctx := r.Context()
	reqLogger := logger.ContextRequestLogger(ctx)

	var target irn.Status
	switch event.NormalizedStatus {
	case webhook.StatusAccepted:
		target = irn.StatusActive
	case webhook.StatusRejected:
		target = irn.StatusInvalid
	default:
		return
	}

	rec, err := s.irnStore.Get(ctx, event.IRN)
	if err != nil {
		reqLogger.Warn("webhook references unknown IRN",
			"irn", event.IRN, "event_type", event.Type)
		return
	}
	if rec.Status == target {
		return
	}
	if err := rec.Transition(target); err != nil {
		reqLogger.Warn("webhook status transition rejected",
			"irn", event.IRN, "from", rec.Status, "to", target, "error", err)
		return
	}
	if err := s.irnStore.Update(ctx, rec); err != nil {
		reqLogger.Error("failed to persist IRN status from webhook",
			"irn", event.IRN, "error", err)
	}
}

// handleHealth reports service liveness, including database reachability
// when a pool is configured.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}

	if s.pool != nil {
		if err := s.pool.Ping(r.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = "unreachable"
			api.RespondWithJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
	}

	api.RespondWithJSON(w, http.StatusOK, status)
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	api.RespondWithJSON(w, http.StatusOK, version.Get())
}

// handleJWKS serves the public signing keys so the regulator can verify
// our acknowledgments and signed documents.
func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	buf, err := json.Marshal(s.jwks)
	if err != nil {
		api.RespondWithError(w, r, signing.NewInternalError("failed to marshal JWK set"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf); err != nil {
		logger.ContextRequestLogger(r.Context()).Error("failed to write JWKS response",
			"error", err.Error())
	}
}
