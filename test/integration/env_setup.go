//go:build integration

package integration

// Test environment setup and server lifecycle management.
//
// The integration tests start the einvoice-server HTTP server in-process
// against a stub regulator endpoint and run requests over real TCP. The
// in-memory stores are used so no database is required; the postgres store
// implementations are covered by their package tests.
//
// By default the server logs are not included in the test output, you can
// enable them with:
//
//	ENABLE_SERVER_LOGS=true go test -tags=integration -v ./test/integration

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/einvoice-networks/einvoice-gateway/internal/config"
	"github.com/einvoice-networks/einvoice-gateway/internal/crypto"
	"github.com/einvoice-networks/einvoice-gateway/internal/logger"
	"github.com/einvoice-networks/einvoice-gateway/internal/server"
)

const (
	testServiceID     = "ITESTSV1"
	testWebhookSecret = "integration-test-secret"
)

// testEnv provides access to the running server for integration tests.
type testEnv struct {
	baseURL   string
	cfg       *config.ServerEnvironment
	regulator *httptest.Server
	shutdown  func()
}

// startInProcessServer starts einvoice-server in-process with a freshly
// generated signing identity and a stub regulator that accepts every
// submission.
func startInProcessServer(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{}

	env.regulator = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"receipt_id": "ITEST-RCPT"})
	}))

	keyPath, certPath := writeSigningIdentity(t)
	port := findFreePort(t)

	logLevel := "error"
	if os.Getenv("ENABLE_SERVER_LOGS") == "true" {
		logLevel = "debug"
	}

	testEnvVars := map[string]string{
		"HOST":                   "127.0.0.1",
		"PORT":                   fmt.Sprintf("%d", port),
		"ENVIRONMENT":            "test",
		"LOG_LEVEL":              logLevel,
		"RATE_LIMIT_RPS":         "0",
		"SKIP_JWK_CACHE":         "true",
		"DATABASE_URL":           "postgres://unused-in-memory-mode",
		"REGULATOR_API_URL":      env.regulator.URL,
		"WEBHOOK_SECRET":         testWebhookSecret,
		"SERVICE_ID":             testServiceID,
		"SIGNING_KEY_PATH":       keyPath,
		"SIGNING_CERT_PATH":      certPath,
		"SIGNING_CERTIFICATE_ID": "local",
	}
	for k, v := range testEnvVars {
		t.Setenv(k, v)
	}

	cfg, err := config.NewServerConfig()
	if err != nil {
		t.Fatalf("failed to load test configuration: %v", err)
	}
	env.cfg = cfg

	appLogger := logger.InitLogger(logger.ParseLogLevel(cfg.LogLevel), cfg.Environment)

	srv, err := server.NewServer(nil, cfg, appLogger)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Start(ctx); err != nil {
			t.Logf("server exited with error: %v", err)
		}
	}()

	env.baseURL = fmt.Sprintf("http://127.0.0.1:%d", port)
	env.shutdown = func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Log("server did not shut down within 5s")
		}
		env.regulator.Close()
	}

	waitForReady(t, env.baseURL)
	return env
}

// writeSigningIdentity generates an ed25519 key and matching self-signed
// certificate under a test temp dir.
func writeSigningIdentity(t *testing.T) (keyPath, certPath string) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "integration-signer"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, priv)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}

	keyPEM, err := crypto.MarshalPrivateKeyToPEM(priv)
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}

	dir := t.TempDir()
	keyPath = filepath.Join(dir, "signing.key")
	certPath = filepath.Join(dir, "signing.crt")
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}
	if err := os.WriteFile(certPath, crypto.EncodeCertificateToPEM(cert), 0o644); err != nil {
		t.Fatalf("failed to write certificate: %v", err)
	}
	return keyPath, certPath
}

func findFreePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func waitForReady(t *testing.T, baseURL string) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("server did not become ready within 5s")
}
