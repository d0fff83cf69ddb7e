// invoice documents must be canonicalized per RFC 8785 before hashing or signing
// this implementation uses the gowebpki/jcs library to perform the canonicalization
package crypto

import (
	"encoding/json"

	"github.com/gowebpki/jcs"
)

// signatureFields are stripped from documents before canonicalization so that
// an attached signature cannot feed back into the hash it signs.
var signatureFields = []string{
	"signature",
	"signature_block",
	"signatureBlock",
	"digital_signature",
}

// CanonicalizeJSON converts JSON to canonical form per RFC 8785
// This ensures consistent hashing/signing of JSON documents
//
// If the input is not valid JSON, an error is returned (handled by jcs library).
func CanonicalizeJSON(jsonData []byte) ([]byte, error) {
	canonical, err := jcs.Transform(jsonData)
	if err != nil {
		return nil, WrapCanonicalizationError(err, "failed to canonicalize JSON")
	}
	return canonical, nil
}

// CanonicalizeDocument produces the canonical byte representation of an invoice document.
//
// Signature-carrying fields are removed before serialization, keys are sorted
// recursively and the output contains no extraneous whitespace. Two documents
// that differ only in field order or signature payload canonicalize identically.
//
// The input document is not modified.
func CanonicalizeDocument(doc map[string]any) ([]byte, error) {
	if doc == nil {
		return nil, NewCanonicalizationError("document is nil")
	}

	stripped := make(map[string]any, len(doc))
	for k, v := range doc {
		stripped[k] = v
	}
	for _, field := range signatureFields {
		delete(stripped, field)
	}

	jsonData, err := json.Marshal(stripped)
	if err != nil {
		return nil, WrapCanonicalizationError(err, "document contains non-serializable content")
	}

	return CanonicalizeJSON(jsonData)
}
