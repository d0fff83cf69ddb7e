package certstore

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/einvoice-networks/einvoice-gateway/internal/crypto"
)

// newTestCertPEM generates a self-signed certificate valid over the given
// window and returns the certificate and private key as PEM.
func newTestCertPEM(t *testing.T, notBefore, notAfter time.Time) (certPEM, keyPEM []byte) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(42),
		Subject: pkix.Name{
			CommonName:   "Acme Invoicing",
			Organization: []string{"Acme Corp"},
			Country:      []string{"NG"},
		},
		NotBefore: notBefore,
		NotAfter:  notAfter,
		KeyUsage:  x509.KeyUsageDigitalSignature,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, priv)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("failed to parse generated certificate: %v", err)
	}

	certPEM = crypto.EncodeCertificateToPEM(cert)
	keyPEM, err = crypto.MarshalPrivateKeyToPEM(priv)
	if err != nil {
		t.Fatalf("failed to encode key PEM: %v", err)
	}
	return certPEM, keyPEM
}

func TestNewCertificateExtractsFields(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	certPEM, keyPEM := newTestCertPEM(t, now.Add(-time.Hour), now.Add(24*time.Hour))

	cert, err := NewCertificate("cert-1", certPEM, keyPEM, now)
	if err != nil {
		t.Fatalf("NewCertificate failed: %v", err)
	}

	if cert.Status != StatusPending {
		t.Errorf("expected initial status PENDING, got %s", cert.Status)
	}
	if cert.SubjectDN == "" || cert.IssuerDN == "" {
		t.Error("expected subject and issuer DN to be extracted")
	}
	if cert.SerialNumber != "42" {
		t.Errorf("expected serial number 42, got %s", cert.SerialNumber)
	}
	if !cert.ValidAt(now) {
		t.Error("expected certificate to be valid now")
	}
	if cert.ValidAt(now.Add(48 * time.Hour)) {
		t.Error("expected certificate to be invalid after NotAfter")
	}
}

func TestNewCertificateRejectsMismatchedKey(t *testing.T) {
	now := time.Now()
	certPEM, _ := newTestCertPEM(t, now.Add(-time.Hour), now.Add(time.Hour))
	_, otherKeyPEM := newTestCertPEM(t, now.Add(-time.Hour), now.Add(time.Hour))

	_, err := NewCertificate("cert-1", certPEM, otherKeyPEM, now)
	if err == nil {
		t.Fatal("expected error for mismatched private key")
	}

	var certErr *CertError
	if !errors.As(err, &certErr) || certErr.Code() != ErrCodeMalformed {
		t.Errorf("expected malformed error, got %v", err)
	}
}

func TestNewCertificateRejectsGarbagePEM(t *testing.T) {
	_, err := NewCertificate("cert-1", []byte("not a certificate"), nil, time.Now())
	if err == nil {
		t.Fatal("expected error for garbage PEM")
	}
}

func TestCheckUsableForSigning(t *testing.T) {
	now := time.Now()
	certPEM, keyPEM := newTestCertPEM(t, now.Add(-time.Hour), now.Add(time.Hour))

	newCert := func(status Status, withKey bool) *Certificate {
		key := keyPEM
		if !withKey {
			key = nil
		}
		cert, err := NewCertificate("cert-1", certPEM, key, now)
		if err != nil {
			t.Fatalf("NewCertificate failed: %v", err)
		}
		cert.Status = status
		return cert
	}

	tests := []struct {
		name     string
		cert     *Certificate
		now      time.Time
		wantCode ErrorCode
	}{
		{
			name: "active certificate with key",
			cert: newCert(StatusActive, true),
			now:  now,
		},
		{
			name:     "pending certificate",
			cert:     newCert(StatusPending, true),
			now:      now,
			wantCode: ErrCodeNotActive,
		},
		{
			name:     "revoked certificate",
			cert:     newCert(StatusRevoked, true),
			now:      now,
			wantCode: ErrCodeRevoked,
		},
		{
			name:     "expired status",
			cert:     newCert(StatusExpired, true),
			now:      now,
			wantCode: ErrCodeExpired,
		},
		{
			name:     "active but past validity window",
			cert:     newCert(StatusActive, true),
			now:      now.Add(2 * time.Hour),
			wantCode: ErrCodeExpired,
		},
		{
			name:     "active without private key",
			cert:     newCert(StatusActive, false),
			now:      now,
			wantCode: ErrCodeMissingKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cert.CheckUsableForSigning(tt.now)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("expected certificate to be usable, got %v", err)
				}
				return
			}
			var certErr *CertError
			if !errors.As(err, &certErr) {
				t.Fatalf("expected CertError, got %v", err)
			}
			if certErr.Code() != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, certErr.Code())
			}
		})
	}
}

func TestMemoryStoreDuplicateAndOverwrite(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	certPEM, keyPEM := newTestCertPEM(t, now.Add(-time.Hour), now.Add(time.Hour))

	cert, err := NewCertificate("cert-1", certPEM, keyPEM, now)
	if err != nil {
		t.Fatalf("NewCertificate failed: %v", err)
	}

	store := NewMemoryStore()
	if err := store.Store(ctx, cert, false); err != nil {
		t.Fatalf("initial store failed: %v", err)
	}

	err = store.Store(ctx, cert, false)
	var certErr *CertError
	if !errors.As(err, &certErr) || certErr.Code() != ErrCodeDuplicate {
		t.Errorf("expected duplicate error, got %v", err)
	}

	if err := store.Store(ctx, cert, true); err != nil {
		t.Errorf("overwrite store failed: %v", err)
	}
}

func TestMemoryStoreLoadClones(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	certPEM, keyPEM := newTestCertPEM(t, now.Add(-time.Hour), now.Add(time.Hour))

	cert, err := NewCertificate("cert-1", certPEM, keyPEM, now)
	if err != nil {
		t.Fatalf("NewCertificate failed: %v", err)
	}

	store := NewMemoryStore()
	if err := store.Store(ctx, cert, false); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	loaded, err := store.Load(ctx, "cert-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	loaded.Status = StatusRevoked

	again, err := store.Load(ctx, "cert-1")
	if err != nil {
		t.Fatalf("second load failed: %v", err)
	}
	if again.Status != StatusPending {
		t.Errorf("mutation of loaded certificate leaked into store: status %s", again.Status)
	}
}

func TestMemoryStoreStatusTransitions(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	certPEM, keyPEM := newTestCertPEM(t, now.Add(-time.Hour), now.Add(time.Hour))

	cert, err := NewCertificate("cert-1", certPEM, keyPEM, now)
	if err != nil {
		t.Fatalf("NewCertificate failed: %v", err)
	}

	store := NewMemoryStore()
	if err := store.Store(ctx, cert, false); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	if err := store.UpdateStatus(ctx, "cert-1", StatusActive); err != nil {
		t.Fatalf("activation failed: %v", err)
	}
	if err := store.UpdateStatus(ctx, "cert-1", StatusRevoked); err != nil {
		t.Fatalf("revocation failed: %v", err)
	}

	err = store.UpdateStatus(ctx, "cert-1", StatusActive)
	var certErr *CertError
	if !errors.As(err, &certErr) || certErr.Code() != ErrCodeRevoked {
		t.Errorf("expected revoked error for transition out of REVOKED, got %v", err)
	}

	err = store.UpdateStatus(ctx, "missing", StatusActive)
	if !errors.As(err, &certErr) || certErr.Code() != ErrCodeNotFound {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestMemoryStoreExpireOverdue(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	shortPEM, shortKey := newTestCertPEM(t, now.Add(-2*time.Hour), now.Add(-time.Hour))
	longPEM, longKey := newTestCertPEM(t, now.Add(-time.Hour), now.Add(24*time.Hour))

	short, err := NewCertificate("cert-short", shortPEM, shortKey, now)
	if err != nil {
		t.Fatalf("NewCertificate failed: %v", err)
	}
	short.Status = StatusActive
	long, err := NewCertificate("cert-long", longPEM, longKey, now)
	if err != nil {
		t.Fatalf("NewCertificate failed: %v", err)
	}
	long.Status = StatusActive

	store := NewMemoryStore()
	for _, c := range []*Certificate{short, long} {
		if err := store.Store(ctx, c, false); err != nil {
			t.Fatalf("store failed: %v", err)
		}
	}

	expired, err := store.ExpireOverdue(ctx, now)
	if err != nil {
		t.Fatalf("ExpireOverdue failed: %v", err)
	}
	if len(expired) != 1 || expired[0] != "cert-short" {
		t.Fatalf("expected only cert-short to expire, got %v", expired)
	}

	cert, err := store.Load(ctx, "cert-short")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cert.Status != StatusExpired {
		t.Errorf("expected EXPIRED status, got %s", cert.Status)
	}
}

func TestMemoryStoreMarkUsedMonotonic(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	certPEM, keyPEM := newTestCertPEM(t, now.Add(-time.Hour), now.Add(time.Hour))

	cert, err := NewCertificate("cert-1", certPEM, keyPEM, now)
	if err != nil {
		t.Fatalf("NewCertificate failed: %v", err)
	}

	store := NewMemoryStore()
	if err := store.Store(ctx, cert, false); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	later := now.Add(time.Minute)
	if err := store.MarkUsed(ctx, "cert-1", later); err != nil {
		t.Fatalf("MarkUsed failed: %v", err)
	}
	if err := store.MarkUsed(ctx, "cert-1", now); err != nil {
		t.Fatalf("MarkUsed with earlier instant failed: %v", err)
	}

	loaded, err := store.Load(ctx, "cert-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !loaded.LastUsedAt.Equal(later) {
		t.Errorf("expected last used at %v, got %v", later, loaded.LastUsedAt)
	}
}
