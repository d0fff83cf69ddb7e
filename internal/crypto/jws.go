// jws.go - Functions for signing and verifying JWS (JSON Web Signature)
// Signed invoice documents carry their signature as a JWS compact serialization
// produced by a library (this implementation uses github.com/go-jose/go-jose/v4).
// Either RS256 or EdDSA can be used depending on the certificate's key type.
package crypto

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-jose/go-jose/v4"
)

// JWSHeader represents the header of a JWS token
type JWSHeader struct {
	Algorithm string `json:"alg"` // "RS256/EdDSA"
	KeyID     string `json:"kid"` // Key ID
}

// SignEd25519 returns a JWS Compact Serialization (Base64URL) string.
// It uses the Ed25519 private key to produce a signature identified as "EdDSA" in the JWS header.
func SignEd25519(payload []byte, privateKey ed25519.PrivateKey, keyID string) (string, error) {
	if keyID == "" {
		return "", NewValidationError("keyID is required")
	}

	signingKey := jose.SigningKey{Algorithm: jose.EdDSA, Key: privateKey}

	signer, err := jose.NewSigner(signingKey, (&jose.SignerOptions{}).WithHeader("kid", keyID))
	if err != nil {
		return "", WrapInternalError(err, "failed to create signer")
	}

	jws, err := signer.Sign(payload)
	if err != nil {
		return "", WrapInternalError(err, "failed to sign payload")
	}

	jwsCompactSerialize, err := jws.CompactSerialize()
	if err != nil {
		return "", WrapInternalError(err, "failed to serialize JWS")
	}

	return jwsCompactSerialize, nil
}

// SignRSA returns a JWS Compact Serialization (Base64URL) string.
// It uses an RSA Private Key to produce a signature identified as "RS256" in the JWS header.
func SignRSA(payload []byte, privateKey *rsa.PrivateKey, keyID string) (string, error) {
	if keyID == "" {
		return "", NewValidationError("keyID is required")
	}

	signingKey := jose.SigningKey{Algorithm: jose.RS256, Key: privateKey}

	signer, err := jose.NewSigner(signingKey, (&jose.SignerOptions{}).WithHeader("kid", keyID))
	if err != nil {
		return "", WrapInternalError(err, "failed to create signer")
	}

	jws, err := signer.Sign(payload)
	if err != nil {
		return "", WrapInternalError(err, "failed to sign payload")
	}

	jwsCompactSerialize, err := jws.CompactSerialize()
	if err != nil {
		return "", WrapInternalError(err, "failed to serialize JWS")
	}

	return jwsCompactSerialize, nil
}

// VerifyEd25519 verifies a Ed25519 JWS compact serialization signature and returns the payload
func VerifyEd25519(jwsString string, publicKey ed25519.PublicKey) ([]byte, error) {
	alg := []jose.SignatureAlgorithm{jose.EdDSA}

	jws, err := jose.ParseSigned(jwsString, alg)
	if err != nil {
		return nil, WrapSignatureError(err, "failed to parse JWS")
	}

	payload, err := jws.Verify(publicKey)
	if err != nil {
		return nil, WrapSignatureError(err, "failed to verify JWS")
	}

	return payload, nil
}

// VerifyRSA verifies a RSA JWS compact serialization signature and returns the payload
func VerifyRSA(jwsString string, publicKey *rsa.PublicKey) ([]byte, error) {
	alg := []jose.SignatureAlgorithm{jose.RS256}

	jws, err := jose.ParseSigned(jwsString, alg)
	if err != nil {
		return nil, WrapSignatureError(err, "failed to parse JWS")
	}

	payload, err := jws.Verify(publicKey)
	if err != nil {
		return nil, WrapSignatureError(err, "failed to verify JWS")
	}

	return payload, nil
}

// ParseHeader extracts the header from a JWS without verifying
// The function returns an error if the header contains something other than the fields in JWSHeader
func ParseHeader(jwsString string) (JWSHeader, error) {

	// the structure of the jws is Base64URL(Header).Base64URL(Payload).Base64URL(Signature)
	parts := strings.Split(jwsString, ".")
	if len(parts) != 3 {
		return JWSHeader{}, NewValidationError("invalid JWS format")
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return JWSHeader{}, WrapValidationError(err, "error decoding the header")
	}

	var header JWSHeader

	decoder := json.NewDecoder(bytes.NewReader(headerBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&header); err != nil {
		return JWSHeader{}, WrapValidationError(err, "could not unmarshal header")
	}

	// Validate required fields are present
	if header.Algorithm == "" {
		return JWSHeader{}, NewValidationError("missing required field: alg")
	}
	if header.KeyID == "" {
		return JWSHeader{}, NewValidationError("missing required field: kid")
	}

	return header, nil
}

// DecodePayload extracts the payload from a JWS without verifying the signature.
// Only use this for inspection - callers must verify before trusting the content.
func DecodePayload(jwsString string) ([]byte, error) {
	parts := strings.Split(jwsString, ".")
	if len(parts) != 3 {
		return nil, NewValidationError(fmt.Sprintf("invalid JWS format: expected 3 parts, got %d", len(parts)))
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, WrapValidationError(err, "failed to decode payload")
	}

	return payload, nil
}
