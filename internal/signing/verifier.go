package signing

import (
	"context"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/subtle"
	"time"

	"github.com/einvoice-networks/einvoice-gateway/internal/certstore"
	"github.com/einvoice-networks/einvoice-gateway/internal/crypto"
)

// Verifier checks signature blocks against their documents and the
// certificate that produced them.
type Verifier struct {
	store certstore.Store
	now   func() time.Time
}

// NewVerifier creates a verifier backed by the given certificate store.
func NewVerifier(store certstore.Store) *Verifier {
	return &Verifier{store: store, now: time.Now}
}

// Verify checks that the signature block covers the given document and that
// its signature is valid under the recorded certificate. The certificate
// must not be revoked and must be inside its validity window at verification
// time; the two conditions fail with distinct error codes so callers can
// report certificate_revoked and certificate_expired separately.
func (v *Verifier) Verify(ctx context.Context, document map[string]any, block SignatureBlock) error {
	canonical, err := crypto.CanonicalizeDocument(document)
	if err != nil {
		return WrapCanonicalizationError(err, "failed to canonicalize document")
	}
	contentHash, err := crypto.Hash(canonical)
	if err != nil {
		return WrapInternalError(err, "failed to hash canonical document")
	}
	if subtle.ConstantTimeCompare([]byte(contentHash), []byte(block.ContentHash)) != 1 {
		return NewHashMismatchError("document does not match signed content hash")
	}

	if block.CanonicalizationMethod != CanonicalizationJCS {
		return NewInvalidSignatureError("unsupported canonicalization method " + block.CanonicalizationMethod)
	}

	cert, err := v.store.Load(ctx, block.CertificateID)
	if err != nil {
		return WrapCertificateError(err, "failed to load signing certificate")
	}
	if cert.Status == certstore.StatusRevoked {
		return WrapCertificateError(
			certstore.NewRevokedError("certificate "+cert.ID+" is revoked"),
			"signature certificate revoked")
	}
	if !cert.ValidAt(v.now()) {
		return WrapCertificateError(
			certstore.NewExpiredError("certificate "+cert.ID+" is outside its validity window"),
			"signature certificate expired")
	}

	leaf, err := cert.Leaf()
	if err != nil {
		return WrapCertificateError(err, "failed to parse certificate")
	}

	payload, err := verifyJWS(block.Signature, block.Algorithm, leaf.PublicKey)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(payload, []byte(contentHash)) != 1 {
		return NewInvalidSignatureError("signature payload does not match content hash")
	}
	return nil
}

func verifyJWS(jws string, algorithm crypto.Algorithm, publicKey any) ([]byte, error) {
	switch algorithm {
	case crypto.AlgorithmEd25519:
		pub, ok := publicKey.(ed25519.PublicKey)
		if !ok {
			return nil, NewInvalidSignatureError("certificate key does not match EdDSA algorithm")
		}
		payload, err := crypto.VerifyEd25519(jws, pub)
		if err != nil {
			return nil, WrapInvalidSignatureError(err, "signature verification failed")
		}
		return payload, nil
	case crypto.AlgorithmRSA:
		pub, ok := publicKey.(*rsa.PublicKey)
		if !ok {
			return nil, NewInvalidSignatureError("certificate key does not match RS256 algorithm")
		}
		payload, err := crypto.VerifyRSA(jws, pub)
		if err != nil {
			return nil, WrapInvalidSignatureError(err, "signature verification failed")
		}
		return payload, nil
	default:
		return nil, NewUnsupportedAlgorithmError("unsupported algorithm " + string(algorithm))
	}
}
