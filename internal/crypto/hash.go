// this file provides the SHA-256 hashing functions used throughout the gateway.
//
// The regulator requires SHA-256 hashes (lowercase hex, 64 characters) for:
//   1. Canonical JSON documents (invoice content hashes)
//   2. IRN integrity hashes
//   3. Signature cache keys

package crypto

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
)

// Hash calculates SHA-256 checksum (hash) and returns hex string.
//
// Use this for:
// - Canonical JSON
// - JWS strings
// - Any data already in memory
func Hash(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("data is empty")
	}
	hasher := sha256.New()

	if _, err := io.Copy(hasher, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to hash data: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// HashBytes calculates the SHA-256 checksum of data and returns the raw digest.
func HashBytes(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// VerifyChecksum verifies that data matches the expected SHA-256 checksum.
// The comparison is constant-time.
func VerifyChecksum(data []byte, expectedChecksum string) bool {
	checksum, err := Hash(data)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(checksum), []byte(expectedChecksum)) == 1
}
