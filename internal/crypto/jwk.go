// JWK (JSON Web Key) helpers for the e-invoice gateway
//
// these functions convert raw RSA/Ed25519 keys to JWK format (and vice versa)
// Reference: https://datatracker.ietf.org/doc/html/rfc7517 (JSON Web Key standard)
//
// the gateway publishes its signing public key via /.well-known/jwks.json so
// the regulator can verify signed acknowledgments, and the keygen CLI writes
// keys in JWK format for distribution.

package crypto

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"os"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// PublicKeyToJWK converts an RSA or Ed25519 public key to JWK format
func PublicKeyToJWK(publicKey any, keyID string) (jwk.Key, error) {
	if publicKey == nil {
		return nil, NewValidationError("public key is nil")
	}
	if keyID == "" {
		return nil, NewValidationError("keyID is required")
	}

	var alg jwa.SignatureAlgorithm
	switch publicKey.(type) {
	case *rsa.PublicKey:
		alg = jwa.RS256()
	case ed25519.PublicKey:
		alg = jwa.EdDSA()
	default:
		return nil, NewUnsupportedKeyError(fmt.Sprintf("unsupported public key type: %T", publicKey))
	}

	// create the jwk key
	key, err := jwk.Import(publicKey)
	if err != nil {
		return nil, WrapKeyManagementError(err, "failed to create JWK from public key")
	}

	// Set key ID
	if err := key.Set(jwk.KeyIDKey, keyID); err != nil {
		return nil, WrapKeyManagementError(err, "failed to set key ID")
	}

	// Set algorithm
	if err := key.Set(jwk.AlgorithmKey, alg); err != nil {
		return nil, WrapKeyManagementError(err, "failed to set algorithm")
	}

	// Set key usage
	if err := key.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		return nil, WrapKeyManagementError(err, "failed to set key usage")
	}

	return key, nil
}

// PrivateKeyToJWK converts an RSA or Ed25519 private key to JWK format
func PrivateKeyToJWK(privateKey any, keyID string) (jwk.Key, error) {
	if privateKey == nil {
		return nil, NewValidationError("private key is nil")
	}
	if keyID == "" {
		return nil, NewValidationError("keyID is required")
	}

	var alg jwa.SignatureAlgorithm
	switch privateKey.(type) {
	case *rsa.PrivateKey:
		alg = jwa.RS256()
	case ed25519.PrivateKey:
		alg = jwa.EdDSA()
	default:
		return nil, NewUnsupportedKeyError(fmt.Sprintf("unsupported private key type: %T", privateKey))
	}

	key, err := jwk.Import(privateKey)
	if err != nil {
		return nil, WrapKeyManagementError(err, "failed to create JWK from private key")
	}

	if err := key.Set(jwk.KeyIDKey, keyID); err != nil {
		return nil, WrapKeyManagementError(err, "failed to set key ID")
	}

	if err := key.Set(jwk.AlgorithmKey, alg); err != nil {
		return nil, WrapKeyManagementError(err, "failed to set algorithm")
	}

	if err := key.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		return nil, WrapKeyManagementError(err, "failed to set key usage")
	}

	return key, nil
}

// Thumbprint returns the RFC 7638 SHA-256 thumbprint of a JWK, hex encoded.
// The gateway uses the thumbprint of the signing public key as the key ID.
func Thumbprint(key jwk.Key) (string, error) {
	tp, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", WrapKeyManagementError(err, "failed to compute thumbprint")
	}
	return fmt.Sprintf("%x", tp), nil
}

// SaveKeyToJWKFile saves a JWK to a file wrapped in a JWK set
//
// Parameters:
//   - baseDir: The base directory to scope file access (e.g., "./keys")
//   - filename: The filename within the base directory (e.g., "private.jwk")
//   - mode: file permissions (0600 for private keys, 0644 for public keys)
func SaveKeyToJWKFile(key jwk.Key, baseDir, filename string, mode os.FileMode) error {
	jwkSet := jwk.NewSet()
	if err := jwkSet.AddKey(key); err != nil {
		return WrapKeyManagementError(err, "failed to add key to JWK set")
	}

	jsonBytes, err := json.MarshalIndent(jwkSet, "", "  ")
	if err != nil {
		return WrapKeyManagementError(err, "failed to marshal JWK set")
	}

	root, err := os.OpenRoot(baseDir)
	if err != nil {
		return fmt.Errorf("failed to open root directory %s: %w", baseDir, err)
	}
	defer root.Close()

	if err := root.WriteFile(filename, jsonBytes, mode); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// ReadKeyFromJWKFile loads a single key from a JWK set file.
// Files with multiple keys are rejected - for key rotation use a JWKS endpoint.
//
// Parameters:
//   - baseDir: The base directory to scope file access (e.g., "./keys")
//   - filename: The filename within the base directory (e.g., "private.jwk")
func ReadKeyFromJWKFile(baseDir, filename string) (jwk.Key, error) {
	root, err := os.OpenRoot(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open root directory %s: %w", baseDir, err)
	}
	defer root.Close()

	jsonBytes, err := root.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	jwkSet, err := jwk.Parse(jsonBytes)
	if err != nil {
		return nil, WrapKeyManagementError(err, "failed to parse JWK set")
	}

	if jwkSet.Len() == 0 {
		return nil, NewKeyManagementError("JWK set is empty")
	}
	if jwkSet.Len() > 1 {
		return nil, NewKeyManagementError("JWK set contains more than one key")
	}

	jwkKey, ok := jwkSet.Key(0)
	if !ok {
		return nil, NewKeyManagementError("failed to get key from JWK set")
	}

	return jwkKey, nil
}

// ExportRawKey converts a JWK back to its native crypto type
// (ed25519.PrivateKey, ed25519.PublicKey, *rsa.PrivateKey or *rsa.PublicKey).
func ExportRawKey(key jwk.Key) (any, error) {
	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, WrapKeyManagementError(err, "failed to export key")
	}
	return raw, nil
}
