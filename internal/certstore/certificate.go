// Package certstore manages signing certificates for invoice certification.
//
// Certificates carry PEM-encoded X.509 material, an optional private key for
// locally held signing identities, and a lifecycle status that gates whether
// they may be used to produce new signatures. Verification of historical
// signatures consults the certificate's validity window rather than its
// current status, so revoked certificates remain loadable.
package certstore

import (
	stdcrypto "crypto"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/einvoice-networks/einvoice-gateway/internal/crypto"
)

// Status represents the lifecycle state of a stored certificate.
type Status string

const (
	// StatusPending marks a certificate registered but not yet cleared for signing.
	StatusPending Status = "PENDING"

	// StatusActive marks a certificate usable for producing new signatures.
	StatusActive Status = "ACTIVE"

	// StatusExpired marks a certificate past its NotAfter instant.
	StatusExpired Status = "EXPIRED"

	// StatusRevoked marks a certificate withdrawn from use. Terminal.
	StatusRevoked Status = "REVOKED"
)

// Certificate is a stored signing certificate with its key material.
type Certificate struct {
	// ID uniquely identifies the certificate within the store.
	ID string

	// SubjectDN is the subject distinguished name extracted at registration.
	SubjectDN string

	// IssuerDN is the issuer distinguished name extracted at registration.
	IssuerDN string

	// SerialNumber is the X.509 serial number in decimal form.
	SerialNumber string

	// CertificatePEM holds the PEM-encoded certificate, leaf first when a
	// chain is present.
	CertificatePEM []byte

	// PrivateKeyPEM holds the PKCS#8 PEM-encoded private key, empty for
	// verify-only certificates.
	PrivateKeyPEM []byte

	// Status is the current lifecycle state.
	Status Status

	// NotBefore and NotAfter bound the certificate's validity window.
	NotBefore time.Time
	NotAfter  time.Time

	// RegisteredAt records when the certificate entered the store.
	RegisteredAt time.Time

	// LastUsedAt records the most recent signing use, zero if never used.
	LastUsedAt time.Time
}

// NewCertificate builds a Certificate from PEM material, extracting the
// subject, issuer, serial number and validity window from the leaf. The
// certificate starts in PENDING status.
func NewCertificate(id string, certPEM, keyPEM []byte, now time.Time) (*Certificate, error) {
	if id == "" {
		return nil, NewMalformedError("certificate ID cannot be empty")
	}

	leaf, err := parseLeaf(certPEM)
	if err != nil {
		return nil, err
	}

	if len(keyPEM) > 0 {
		key, err := parseSigner(keyPEM)
		if err != nil {
			return nil, err
		}
		if err := checkKeyMatchesCertificate(key, leaf); err != nil {
			return nil, err
		}
	}

	return &Certificate{
		ID:             id,
		SubjectDN:      leaf.Subject.String(),
		IssuerDN:       leaf.Issuer.String(),
		SerialNumber:   leaf.SerialNumber.String(),
		CertificatePEM: certPEM,
		PrivateKeyPEM:  keyPEM,
		Status:         StatusPending,
		NotBefore:      leaf.NotBefore,
		NotAfter:       leaf.NotAfter,
		RegisteredAt:   now,
	}, nil
}

// Leaf parses and returns the leaf X.509 certificate.
func (c *Certificate) Leaf() (*x509.Certificate, error) {
	return parseLeaf(c.CertificatePEM)
}

// PrivateKey parses and returns the certificate's signing key.
func (c *Certificate) PrivateKey() (stdcrypto.Signer, error) {
	if len(c.PrivateKeyPEM) == 0 {
		return nil, NewMissingKeyError(fmt.Sprintf("certificate %s has no private key", c.ID))
	}
	return parseSigner(c.PrivateKeyPEM)
}

// ValidAt reports whether instant t falls inside the validity window.
func (c *Certificate) ValidAt(t time.Time) bool {
	return !t.Before(c.NotBefore) && !t.After(c.NotAfter)
}

// CheckUsableForSigning verifies that the certificate may produce a new
// signature at instant now. The status must be ACTIVE, the instant must fall
// inside the validity window, and a private key must be present.
func (c *Certificate) CheckUsableForSigning(now time.Time) error {
	switch c.Status {
	case StatusRevoked:
		return NewRevokedError(fmt.Sprintf("certificate %s is revoked", c.ID))
	case StatusExpired:
		return NewExpiredError(fmt.Sprintf("certificate %s is expired", c.ID))
	case StatusPending:
		return NewNotActiveError(fmt.Sprintf("certificate %s is pending activation", c.ID))
	case StatusActive:
	default:
		return NewNotActiveError(fmt.Sprintf("certificate %s has unknown status %s", c.ID, c.Status))
	}

	if now.Before(c.NotBefore) {
		return NewNotActiveError(fmt.Sprintf("certificate %s is not yet valid", c.ID))
	}
	if now.After(c.NotAfter) {
		return NewExpiredError(fmt.Sprintf("certificate %s validity window has passed", c.ID))
	}
	if len(c.PrivateKeyPEM) == 0 {
		return NewMissingKeyError(fmt.Sprintf("certificate %s has no private key", c.ID))
	}
	return nil
}

// clone returns a deep copy so callers cannot mutate stored state.
func (c *Certificate) clone() *Certificate {
	cp := *c
	cp.CertificatePEM = append([]byte(nil), c.CertificatePEM...)
	cp.PrivateKeyPEM = append([]byte(nil), c.PrivateKeyPEM...)
	return &cp
}

func parseLeaf(certPEM []byte) (*x509.Certificate, error) {
	chain, err := crypto.ParseCertificateChain(certPEM)
	if err != nil {
		return nil, WrapMalformedError(err, "failed to parse certificate PEM")
	}
	if len(chain) == 0 {
		return nil, NewMalformedError("certificate PEM contains no certificates")
	}
	return chain[0], nil
}

func parseSigner(keyPEM []byte) (stdcrypto.Signer, error) {
	key, err := crypto.ParsePrivateKeyFromPEM(keyPEM)
	if err != nil {
		return nil, WrapMalformedError(err, "failed to parse private key")
	}
	signer, ok := key.(stdcrypto.Signer)
	if !ok {
		return nil, NewMalformedError("private key does not support signing")
	}
	return signer, nil
}

func checkKeyMatchesCertificate(key stdcrypto.Signer, leaf *x509.Certificate) error {
	pub, ok := leaf.PublicKey.(interface {
		Equal(stdcrypto.PublicKey) bool
	})
	if !ok {
		return NewMalformedError("certificate public key type not supported")
	}
	if !pub.Equal(key.Public()) {
		return NewMalformedError("private key does not match certificate public key")
	}
	return nil
}
