// csr.go - certificate signing request generation
//
// The regulator issues signing certificates against a CSR submitted through
// its onboarding portal. The CSR carries the organization's subject attributes
// and is signed with the key that will later be bound to the certificate.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
)

// DefaultCSRKeySize is the RSA key size used when none is specified.
const DefaultCSRKeySize = 2048

// CSRSubject holds the subject attributes for a certificate signing request.
type CSRSubject struct {
	CommonName         string
	Organization       string
	OrganizationalUnit string
	Locality           string
	Province           string
	Country            string
	Email              string
}

// GenerateCSR creates a PEM-encoded certificate signing request for the given
// private key. The key must be an RSA or Ed25519 private key.
//
// The signature algorithm is derived from the key type by the x509 package.
func GenerateCSR(privateKey any, subject CSRSubject) ([]byte, error) {
	if subject.CommonName == "" {
		return nil, NewValidationError("common name is required")
	}

	switch privateKey.(type) {
	case *rsa.PrivateKey, ed25519.PrivateKey:
	default:
		return nil, NewUnsupportedKeyError(fmt.Sprintf("unsupported private key type: %T", privateKey))
	}

	name := pkix.Name{
		CommonName: subject.CommonName,
	}
	if subject.Organization != "" {
		name.Organization = []string{subject.Organization}
	}
	if subject.OrganizationalUnit != "" {
		name.OrganizationalUnit = []string{subject.OrganizationalUnit}
	}
	if subject.Locality != "" {
		name.Locality = []string{subject.Locality}
	}
	if subject.Province != "" {
		name.Province = []string{subject.Province}
	}
	if subject.Country != "" {
		name.Country = []string{subject.Country}
	}

	template := x509.CertificateRequest{
		Subject: name,
	}
	if subject.Email != "" {
		template.EmailAddresses = []string{subject.Email}
	}

	csrDER, err := x509.CreateCertificateRequest(rand.Reader, &template, privateKey)
	if err != nil {
		return nil, WrapInternalError(err, "failed to create certificate request")
	}

	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: csrDER}), nil
}

// GenerateCSRWithNewKey generates a fresh RSA key pair of the given size
// (DefaultCSRKeySize when keySize is 0) and a CSR for it.
// Returns the PEM-encoded CSR and the private key.
func GenerateCSRWithNewKey(subject CSRSubject, keySize int) ([]byte, *rsa.PrivateKey, error) {
	if keySize == 0 {
		keySize = DefaultCSRKeySize
	}

	privateKey, err := GenerateRSAKeyPair(keySize)
	if err != nil {
		return nil, nil, WrapKeyManagementError(err, "failed to generate key pair for CSR")
	}

	csrPEM, err := GenerateCSR(privateKey, subject)
	if err != nil {
		return nil, nil, err
	}

	return csrPEM, privateKey, nil
}
