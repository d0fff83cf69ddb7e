// generator.go derives invoice reference numbers (IRNs) from invoice fields.
//
// The derivation is deterministic given the same invoice fields and unique id:
//
//	hash = SHA256(canonicalJSON(fields) || uniqueID)
//	verificationCode = base32(first 60 bits of hash), 12 characters
//	irn = {sanitizedInvoiceNumber}-{serviceID}-{dateStamp}
//
// The verification code encoding (unpadded base32 of the first 60 bits of the
// hash) is reproducible from the hash alone, so a validator can recompute it
// without access to the original random material.
package irn

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/einvoice-networks/einvoice-gateway/internal/crypto"
)

const (
	// MaxInvoiceNumberLen caps the sanitized invoice number component.
	MaxInvoiceNumberLen = 50

	// ServiceIDLen is the required length of the service identifier component.
	ServiceIDLen = 8

	// VerificationCodeLen is the length of the derived verification code.
	VerificationCodeLen = 12

	// DefaultValidity is how long a generated IRN remains usable for submission.
	DefaultValidity = 365 * 24 * time.Hour
)

// serviceIDAlphabet is used when generating a random service id.
var serviceIDAlphabet = []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

// InvoiceFields are the invoice attributes that feed the IRN content hash.
type InvoiceFields struct {
	InvoiceNumber string  `json:"invoiceNumber"`
	InvoiceDate   string  `json:"invoiceDate"` // YYYY-MM-DD
	SellerTaxID   string  `json:"sellerTaxId"`
	BuyerTaxID    string  `json:"buyerTaxId"`
	TotalAmount   float64 `json:"totalAmount"`
	Currency      string  `json:"currency"`
}

// GenerateOptions override the generated components.
// Zero values mean "derive or generate".
type GenerateOptions struct {
	// ServiceID is the 8-character alphanumeric service identifier.
	// A random one is generated when empty.
	ServiceID string

	// DateStamp is the YYYYMMDD date component.
	// Derived from the invoice date (falling back to today) when empty.
	DateStamp string

	// UniqueID is the random identifier mixed into the hash.
	// A new UUID is generated when empty. Supplying the same UniqueID with the
	// same invoice fields reproduces the same hash and verification code.
	UniqueID string
}

// Generate derives an IRN record from invoice fields.
func Generate(fields InvoiceFields, opts GenerateOptions) (*Record, error) {
	serviceID := opts.ServiceID
	if serviceID == "" {
		var err error
		serviceID, err = randomServiceID()
		if err != nil {
			return nil, WrapInternalError(err, "failed to generate service id")
		}
	}
	if err := checkServiceID(serviceID); err != nil {
		return nil, err
	}

	dateStamp := opts.DateStamp
	if dateStamp == "" {
		dateStamp = deriveDateStamp(fields.InvoiceDate)
	}
	if len(dateStamp) != 8 {
		return nil, NewValidationError(fmt.Sprintf("date stamp must be 8 digits, got %q", dateStamp))
	}
	for _, c := range dateStamp {
		if c < '0' || c > '9' {
			return nil, NewValidationError(fmt.Sprintf("date stamp must be 8 digits, got %q", dateStamp))
		}
	}

	uniqueID := opts.UniqueID
	if uniqueID == "" {
		uniqueID = uuid.NewString()
	}

	contentHash, err := ContentHash(fields, uniqueID)
	if err != nil {
		return nil, err
	}

	verificationCode, err := VerificationCode(contentHash)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	return &Record{
		InvoiceNumber:    SanitizeInvoiceNumber(fields.InvoiceNumber),
		ServiceID:        serviceID,
		DateStamp:        dateStamp,
		UniqueID:         uniqueID,
		ContentHash:      contentHash,
		VerificationCode: verificationCode,
		Status:           StatusUnused,
		GeneratedAt:      now,
		ValidUntil:       now.Add(DefaultValidity),
	}, nil
}

// ContentHash computes the SHA-256 hash (hex) over the canonical JSON of the
// invoice fields concatenated with the unique id.
func ContentHash(fields InvoiceFields, uniqueID string) (string, error) {
	if uniqueID == "" {
		return "", NewValidationError("unique id is required")
	}

	canonical, err := crypto.CanonicalizeDocument(hashFields(fields))
	if err != nil {
		return "", WrapValidationError(err, "failed to canonicalize invoice fields")
	}

	hash, err := crypto.Hash(append(canonical, []byte(uniqueID)...))
	if err != nil {
		return "", WrapInternalError(err, "failed to hash invoice fields")
	}

	return hash, nil
}

// hashFields stringifies the key invoice fields into a stable map.
// Amounts are fixed to two decimal places so float formatting cannot drift.
func hashFields(fields InvoiceFields) map[string]any {
	return map[string]any{
		"invoice_number": fields.InvoiceNumber,
		"invoice_date":   fields.InvoiceDate,
		"seller_tax_id":  fields.SellerTaxID,
		"buyer_tax_id":   fields.BuyerTaxID,
		"total_amount":   strconv.FormatFloat(fields.TotalAmount, 'f', 2, 64),
		"currency":       fields.Currency,
	}
}

// VerificationCode derives the 12-character verification code from a content
// hash: the first 60 bits of the hash bytes, base32 encoded without padding.
func VerificationCode(contentHash string) (string, error) {
	hashBytes, err := hex.DecodeString(contentHash)
	if err != nil || len(hashBytes) != 32 {
		return "", NewValidationError("content hash must be 64 hex characters")
	}

	// 12 base32 characters encode 60 bits; 8 input bytes cover that with room to spare
	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(hashBytes[:8])
	return encoded[:VerificationCodeLen], nil
}

// SanitizeInvoiceNumber strips non-alphanumeric characters from an invoice
// number and truncates the result to MaxInvoiceNumberLen. If nothing remains
// (e.g. the number contained only special characters), a synthetic
// INV{unix timestamp} component is returned so the IRN is never empty.
func SanitizeInvoiceNumber(invoiceNumber string) string {
	var b strings.Builder
	for _, c := range invoiceNumber {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
	}

	sanitized := b.String()
	if sanitized == "" {
		sanitized = fmt.Sprintf("INV%d", time.Now().Unix())
	}

	if len(sanitized) > MaxInvoiceNumberLen {
		sanitized = sanitized[:MaxInvoiceNumberLen]
	}

	return sanitized
}

// deriveDateStamp converts a YYYY-MM-DD invoice date to YYYYMMDD,
// falling back to the current date if the invoice date does not parse.
func deriveDateStamp(invoiceDate string) string {
	if t, err := time.Parse("2006-01-02", invoiceDate); err == nil {
		return t.Format("20060102")
	}
	return time.Now().UTC().Format("20060102")
}

func checkServiceID(serviceID string) error {
	if len(serviceID) != ServiceIDLen {
		return NewValidationError(fmt.Sprintf("service id must be %d characters, got %d", ServiceIDLen, len(serviceID)))
	}
	for _, c := range serviceID {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return NewValidationError(fmt.Sprintf("service id must be alphanumeric, got %q", serviceID))
		}
	}
	return nil
}

func randomServiceID() (string, error) {
	// Reject bytes outside the largest multiple of the alphabet size so
	// every character is drawn uniformly.
	limit := byte(256 - 256%len(serviceIDAlphabet))
	out := make([]byte, 0, ServiceIDLen)
	buf := make([]byte, ServiceIDLen)
	for len(out) < ServiceIDLen {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, c := range buf {
			if c >= limit {
				continue
			}
			out = append(out, serviceIDAlphabet[int(c)%len(serviceIDAlphabet)])
			if len(out) == ServiceIDLen {
				break
			}
		}
	}
	return string(out), nil
}
