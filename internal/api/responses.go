package api

// responses.go maps domain errors to API error responses and sends JSON
// payloads to clients.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/einvoice-networks/einvoice-gateway/internal/certstore"
	"github.com/einvoice-networks/einvoice-gateway/internal/crypto"
	"github.com/einvoice-networks/einvoice-gateway/internal/irn"
	"github.com/einvoice-networks/einvoice-gateway/internal/logger"
	"github.com/einvoice-networks/einvoice-gateway/internal/signing"
	"github.com/einvoice-networks/einvoice-gateway/internal/submission"
	"github.com/einvoice-networks/einvoice-gateway/internal/webhook"
)

// ErrorResponse is the API error format.
type ErrorResponse struct {
	// StatusCode is the HTTP status returned.
	StatusCode int `json:"statusCode"`

	// StatusCodeText is the standard text for the status code.
	StatusCodeText string `json:"statusCodeText"`

	// ErrorCode is the domain error code.
	ErrorCode string `json:"errorCode"`

	// Message is a sanitized description of the failure.
	Message string `json:"message"`

	// RequestID correlates the response with server-side logs.
	RequestID string `json:"requestId,omitempty"`

	// ErrorDateTime is when the error occurred.
	ErrorDateTime string `json:"errorDateTime"`
}

// RespondWithError maps err to the API error format, logs the full detail
// server-side, and sends the sanitized response to the client.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	response := mapErrorToResponse(err, r)

	reqLogger := logger.ContextRequestLogger(r.Context())
	reqLogger.Warn("request failed",
		slog.String("error", err.Error()),
		slog.Int("status_code", response.StatusCode),
		slog.String("error_code", response.ErrorCode),
		slog.String("request_id", response.RequestID),
	)

	RespondWithJSON(w, response.StatusCode, response)
}

// RespondWithJSON sends a JSON response with the given status code.
func RespondWithJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Error("failed to encode JSON response",
				slog.String("error", err.Error()),
			)
		}
	}
}

func mapErrorToResponse(err error, r *http.Request) *ErrorResponse {
	requestID := middleware.GetReqID(r.Context())
	statusCode := http.StatusInternalServerError
	errorCode := "internal"
	message := "An internal error occurred"

	var whErr *webhook.WebhookError
	var irnErr *irn.IrnError
	var sigErr *signing.SigningError
	var certErr *certstore.CertError
	var subErr *submission.SubmissionError
	var cryptoErr *crypto.CryptoError
	var tooLargeErr requestTooLargeError
	var rateErr rateLimitError

	switch {
	case errors.As(err, &whErr):
		errorCode = string(whErr.Code())
		switch whErr.Code() {
		case webhook.ErrCodeSignature, webhook.ErrCodeStale, webhook.ErrCodeReplay:
			statusCode = http.StatusUnauthorized
			message = "Webhook authentication failed"
		case webhook.ErrCodeSchema:
			statusCode = http.StatusBadRequest
			message = "Webhook payload failed validation"
		}

	case errors.As(err, &irnErr):
		errorCode = string(irnErr.Code())
		switch irnErr.Code() {
		case irn.ErrCodeFormat, irn.ErrCodeComponentMismatch, irn.ErrCodeIntegrity, irn.ErrCodeValidation:
			statusCode = http.StatusBadRequest
			message = "IRN validation failed"
		case irn.ErrCodeState:
			statusCode = http.StatusConflict
			message = "IRN state does not permit this operation"
		case irn.ErrCodeNotFound:
			statusCode = http.StatusNotFound
			message = "IRN not registered"
		}

	case errors.As(err, &certErr):
		errorCode = string(certErr.Code())
		switch certErr.Code() {
		case certstore.ErrCodeNotFound:
			statusCode = http.StatusNotFound
			message = "Certificate not found"
		case certstore.ErrCodeDuplicate:
			statusCode = http.StatusConflict
			message = "Certificate already registered"
		case certstore.ErrCodeExpired, certstore.ErrCodeRevoked, certstore.ErrCodeNotActive, certstore.ErrCodeMissingKey:
			statusCode = http.StatusConflict
			message = "Certificate not usable"
		case certstore.ErrCodeMalformed:
			statusCode = http.StatusBadRequest
			message = "Certificate material is malformed"
		}

	case errors.As(err, &sigErr):
		errorCode = string(sigErr.Code())
		switch sigErr.Code() {
		case signing.ErrCodeCanonicalization, signing.ErrCodeUnsupportedAlgorithm:
			statusCode = http.StatusBadRequest
			message = "Document cannot be signed"
		case signing.ErrCodeInvalidSignature, signing.ErrCodeHashMismatch:
			statusCode = http.StatusBadRequest
			message = "Signature verification failed"
		case signing.ErrCodeCertificate:
			statusCode = http.StatusConflict
			message = "Signing certificate not usable"
		}

	case errors.As(err, &subErr):
		errorCode = string(subErr.Code())
		switch subErr.Code() {
		case submission.ErrCodeNotFound:
			statusCode = http.StatusNotFound
			message = "Submission not found"
		case submission.ErrCodeState:
			statusCode = http.StatusConflict
			message = "Submission state does not permit this operation"
		case submission.ErrCodeValidation:
			statusCode = http.StatusBadRequest
			message = "Submission input is invalid"
		}

	case errors.As(err, &cryptoErr):
		errorCode = string(cryptoErr.Code())
		switch cryptoErr.Code() {
		case crypto.ErrCodeValidation, crypto.ErrCodeCanonicalization,
			crypto.ErrCodeInvalidSignature, crypto.ErrCodeCertificate, crypto.ErrCodeUnsupportedKey:
			statusCode = http.StatusBadRequest
			message = "Cryptographic validation failed"
		}

	case errors.As(err, &tooLargeErr):
		statusCode = http.StatusRequestEntityTooLarge
		errorCode = "request_too_large"
		message = "Request body exceeds the configured size limit"

	case errors.As(err, &rateErr):
		statusCode = http.StatusTooManyRequests
		errorCode = "rate_limit_exceeded"
		message = "Too many requests. Please try again later."
	}

	return &ErrorResponse{
		StatusCode:     statusCode,
		StatusCodeText: http.StatusText(statusCode),
		ErrorCode:      errorCode,
		Message:        message,
		RequestID:      requestID,
		ErrorDateTime:  time.Now().UTC().Format(time.RFC3339),
	}
}

// requestTooLargeError and rateLimitError mark transport-level rejections
// raised by the middleware.
type requestTooLargeError struct{ detail string }

func (e requestTooLargeError) Error() string { return e.detail }

type rateLimitError struct{ detail string }

func (e rateLimitError) Error() string { return e.detail }

// NewRequestTooLargeError creates an error for oversized request bodies.
func NewRequestTooLargeError(detail string) error {
	return requestTooLargeError{detail: detail}
}

// NewRateLimitError creates an error for rate-limited requests.
func NewRateLimitError(detail string) error {
	return rateLimitError{detail: detail}
}
