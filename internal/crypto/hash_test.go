package crypto

import (
	"testing"
)

func TestHash(t *testing.T) {

	// check that empty input returns an error
	input := []byte("")
	_, err := Hash(input)
	if err == nil {
		t.Fatalf("Hash() expected error, got nil")
	}

	// check the function returns a compliant hash (lowercase hex, 64 characters)
	input = []byte("hello world")
	result, err := Hash(input)
	if err != nil {
		t.Fatalf("Hash() returned error: %v", err)
	}

	// Check that result is 64 hex characters (SHA-256)
	if len(result) != 64 {
		t.Errorf("Hash() returned %d characters, expected 64", len(result))
	}

	// Check that result is lowercase hex
	for _, c := range result {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Errorf("Hash() returned non-hex character: %c", c)
		}
	}
}

func TestVerifyChecksum(t *testing.T) {
	data := []byte("hello world")

	checksum, err := Hash(data)
	if err != nil {
		t.Fatalf("Hash() returned error: %v", err)
	}

	if !VerifyChecksum(data, checksum) {
		t.Errorf("VerifyChecksum() returned false for matching checksum")
	}

	if VerifyChecksum([]byte("tampered"), checksum) {
		t.Errorf("VerifyChecksum() returned true for non-matching data")
	}

	if VerifyChecksum(nil, checksum) {
		t.Errorf("VerifyChecksum() returned true for empty data")
	}
}
