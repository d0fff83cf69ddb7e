package signing

import (
	"context"
	"crypto/ed25519"
	"crypto/rsa"
	"log/slog"
	"time"

	"github.com/einvoice-networks/einvoice-gateway/internal/certstore"
	"github.com/einvoice-networks/einvoice-gateway/internal/crypto"
	"github.com/einvoice-networks/einvoice-gateway/internal/metrics"
)

// Signer produces detached signature blocks over canonicalized documents,
// consulting the signature cache before invoking the underlying key.
type Signer struct {
	store  certstore.Store
	cache  *Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewSigner creates a signer backed by the given certificate store and cache.
// The cache may be nil, in which case every call signs afresh.
func NewSigner(store certstore.Store, cache *Cache, logger *slog.Logger) *Signer {
	return &Signer{
		store:  store,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// Sign canonicalizes the document, hashes it, and returns a signature block
// produced with the given certificate. The JWS payload is the content hash,
// so signatures are deterministic for a given document, algorithm and
// certificate, and cached blocks are byte-for-byte identical to fresh ones.
func (s *Signer) Sign(ctx context.Context, document map[string]any, certificateID string) (SignatureBlock, error) {
	canonical, err := crypto.CanonicalizeDocument(document)
	if err != nil {
		return SignatureBlock{}, WrapCanonicalizationError(err, "failed to canonicalize document")
	}
	contentHash, err := crypto.Hash(canonical)
	if err != nil {
		return SignatureBlock{}, WrapInternalError(err, "failed to hash canonical document")
	}

	cert, err := s.store.Load(ctx, certificateID)
	if err != nil {
		return SignatureBlock{}, WrapCertificateError(err, "failed to load signing certificate")
	}

	key, err := cert.PrivateKey()
	if err != nil {
		return SignatureBlock{}, WrapCertificateError(err, "failed to load signing key")
	}
	algorithm, err := algorithmForKey(key)
	if err != nil {
		return SignatureBlock{}, err
	}

	// Usability is checked before the cache so a revoked or expired
	// certificate never signs, not even with a previously computed block.
	now := s.now().UTC()
	if err := cert.CheckUsableForSigning(now); err != nil {
		return SignatureBlock{}, WrapCertificateError(err, "certificate not usable for signing")
	}

	cacheKey := CacheKey(contentHash, algorithm, certificateID)
	if s.cache != nil {
		if block, ok := s.cache.Get(ctx, cacheKey); ok {
			s.logger.DebugContext(ctx, "signature cache hit",
				"certificate_id", certificateID, "content_hash", contentHash)
			return block, nil
		}
	}

	jws, err := signPayload([]byte(contentHash), key, certificateID, algorithm)
	if err != nil {
		return SignatureBlock{}, err
	}

	block := SignatureBlock{
		Signature:              jws,
		SignedAt:               now,
		CertificateID:          certificateID,
		Algorithm:              algorithm,
		CanonicalizationMethod: CanonicalizationJCS,
		ContentHash:            contentHash,
	}

	if s.cache != nil {
		s.cache.Put(ctx, cacheKey, block)
	}
	if err := s.store.MarkUsed(ctx, certificateID, now); err != nil {
		s.logger.WarnContext(ctx, "failed to record certificate use",
			"certificate_id", certificateID, "error", err)
	}
	metrics.SignaturesIssuedTotal.WithLabelValues(string(algorithm)).Inc()

	return block, nil
}

func algorithmForKey(key any) (crypto.Algorithm, error) {
	switch key.(type) {
	case ed25519.PrivateKey:
		return crypto.AlgorithmEd25519, nil
	case *rsa.PrivateKey:
		return crypto.AlgorithmRSA, nil
	default:
		return "", NewUnsupportedAlgorithmError("signing key must be RSA or Ed25519")
	}
}

func signPayload(payload []byte, key any, keyID string, algorithm crypto.Algorithm) (string, error) {
	switch algorithm {
	case crypto.AlgorithmEd25519:
		jws, err := crypto.SignEd25519(payload, key.(ed25519.PrivateKey), keyID)
		if err != nil {
			return "", WrapInternalError(err, "failed to sign payload")
		}
		return jws, nil
	case crypto.AlgorithmRSA:
		jws, err := crypto.SignRSA(payload, key.(*rsa.PrivateKey), keyID)
		if err != nil {
			return "", WrapInternalError(err, "failed to sign payload")
		}
		return jws, nil
	default:
		return "", NewUnsupportedAlgorithmError("unsupported algorithm " + string(algorithm))
	}
}
