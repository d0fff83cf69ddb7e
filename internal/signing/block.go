// Package signing produces and verifies detached signature blocks over
// canonicalized invoice documents.
//
// A signature block binds a JWS compact signature to the certificate that
// produced it, the content hash it covers, and the canonicalization method
// used. Blocks are deterministic for a given document, algorithm and
// certificate, which lets the signature cache return previously computed
// blocks without re-signing.
package signing

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/einvoice-networks/einvoice-gateway/internal/crypto"
)

// CanonicalizationJCS identifies RFC 8785 JSON Canonicalization Scheme.
const CanonicalizationJCS = "JCS"

// SignatureBlock is a detached signature over a canonicalized document.
type SignatureBlock struct {
	// Signature is the JWS compact serialization.
	Signature string `json:"signature"`

	// SignedAt records when the signature was produced.
	SignedAt time.Time `json:"signed_at"`

	// CertificateID identifies the certificate used for signing.
	CertificateID string `json:"certificate_id"`

	// Algorithm is the JWS algorithm identifier (EdDSA or RS256).
	Algorithm crypto.Algorithm `json:"algorithm"`

	// CanonicalizationMethod names the canonical form the signature covers.
	CanonicalizationMethod string `json:"canonicalization_method"`

	// ContentHash is the SHA-256 hex digest of the canonical document.
	ContentHash string `json:"content_hash"`
}

// CacheKey derives the signature cache key for a canonical document signed
// with the given algorithm and certificate. Documents, algorithms and
// certificates each contribute to the digest so a change in any of them
// produces a distinct key.
func CacheKey(contentHash string, algorithm crypto.Algorithm, certificateID string) string {
	h := sha256.New()
	h.Write([]byte(contentHash))
	h.Write([]byte{0})
	h.Write([]byte(algorithm))
	h.Write([]byte{0})
	h.Write([]byte(certificateID))
	return hex.EncodeToString(h.Sum(nil))
}
