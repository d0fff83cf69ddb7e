package server

import (
	"context"
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"

	"github.com/einvoice-networks/einvoice-gateway/internal/crypto"
	"github.com/einvoice-networks/einvoice-gateway/internal/webhook"
)

// verifyRegulatorJWS checks a JWS supplied with a webhook delivery against
// the regulator's published key set. The JWS payload is the SHA-256 hex
// hash of the delivery body, same scheme we use for our own signatures.
func (s *Server) verifyRegulatorJWS(ctx context.Context, jws string, payload []byte) error {
	if s.keyManager == nil {
		return webhook.NewSignatureError("delivery carries a JWS but no regulator JWKS endpoint is configured")
	}

	header, err := crypto.ParseHeader(jws)
	if err != nil {
		return webhook.NewSignatureError("malformed JWS header")
	}

	key, err := s.keyManager.LookupKey(ctx, header.KeyID)
	if err != nil {
		return webhook.NewSignatureError("unknown regulator key " + header.KeyID)
	}
	raw, err := crypto.ExportRawKey(key)
	if err != nil {
		return webhook.NewSignatureError("regulator key cannot be used for verification")
	}

	var verified []byte
	switch publicKey := raw.(type) {
	case ed25519.PublicKey:
		verified, err = crypto.VerifyEd25519(jws, publicKey)
	case *rsa.PublicKey:
		verified, err = crypto.VerifyRSA(jws, publicKey)
	default:
		return webhook.NewSignatureError(fmt.Sprintf("unsupported regulator key type %T", raw))
	}
	if err != nil {
		return webhook.NewSignatureError("JWS verification failed")
	}

	bodyHash, err := crypto.Hash(payload)
	if err != nil {
		return webhook.NewSignatureError("failed to hash delivery body")
	}
	if string(verified) != bodyHash {
		return webhook.NewSignatureError("JWS payload does not match delivery body")
	}

	return nil
}
