package server

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/einvoice-networks/einvoice-gateway/internal/crypto"
	"github.com/einvoice-networks/einvoice-gateway/internal/webhook"
)

const regulatorKeyID = "reg-key-1"

// newRegulatorIdentity serves a JWKS endpoint for a fresh ed25519 key and
// returns the private key alongside the endpoint.
func newRegulatorIdentity(t *testing.T) (ed25519.PrivateKey, *httptest.Server) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate regulator key: %v", err)
	}

	key, err := crypto.PublicKeyToJWK(pub, regulatorKeyID)
	if err != nil {
		t.Fatalf("failed to build regulator JWK: %v", err)
	}
	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		t.Fatalf("failed to build regulator JWK set: %v", err)
	}
	body, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("failed to marshal regulator JWK set: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
	return priv, srv
}

func withRegulatorKeys(t *testing.T, srv *Server, jwksURL string) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	keyManager, err := crypto.NewKeyManager(context.Background(), &crypto.KeyManagerConfig{
		JWKSEndpoint: jwksURL,
		HTTPTimeout:  5 * time.Second,
	}, logger)
	if err != nil {
		t.Fatalf("failed to create key manager: %v", err)
	}
	srv.keyManager = keyManager
}

func signDelivery(t *testing.T, priv ed25519.PrivateKey, payload []byte) string {
	t.Helper()

	bodyHash, err := crypto.Hash(payload)
	if err != nil {
		t.Fatalf("failed to hash payload: %v", err)
	}
	jws, err := crypto.SignEd25519([]byte(bodyHash), priv, regulatorKeyID)
	if err != nil {
		t.Fatalf("failed to sign payload: %v", err)
	}
	return jws
}

// postWebhookJWS delivers an HMAC-authenticated payload that additionally
// carries a JWS header.
func postWebhookJWS(t *testing.T, srv *Server, auth *webhook.Authenticator, payload []byte, nonce, jws string) int {
	t.Helper()

	timestamp := time.Now().UTC().Format(time.RFC3339)
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/regulator", bytes.NewReader(payload))
	req.Header.Set(headerWebhookTimestamp, timestamp)
	req.Header.Set(headerWebhookNonce, nonce)
	req.Header.Set(headerWebhookSignature, auth.ComputeSignature(timestamp, nonce, payload))
	req.Header.Set(headerWebhookJWS, jws)

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	return rr.Code
}

func TestWebhookJWSVerification(t *testing.T) {
	regulator := acceptingRegulator(t)
	defer regulator.Close()

	regulatorKey, jwksServer := newRegulatorIdentity(t)
	defer jwksServer.Close()

	srv := newTestServer(t, regulator.URL)
	withRegulatorKeys(t, srv, jwksServer.URL)

	payload := []byte(`{"type":"receipt_confirmation","irn":"X-Y-Z","receipt_id":"RCPT-7"}`)
	auth := webhook.NewAuthenticator(testWebhookSecret, 5*time.Minute)

	send := func(nonce, jws string) int {
		return postWebhookJWS(t, srv, auth, payload, nonce, jws)
	}

	if code := send("jws-nonce-1", signDelivery(t, regulatorKey, payload)); code != http.StatusOK {
		t.Errorf("valid JWS delivery: got status %d, want %d", code, http.StatusOK)
	}

	// A JWS signed over different content must not authenticate this body.
	wrongJWS := signDelivery(t, regulatorKey, []byte(`{"type":"status_update","irn":"A-B-C","status":"accepted"}`))
	if code := send("jws-nonce-2", wrongJWS); code != http.StatusUnauthorized {
		t.Errorf("mismatched JWS delivery: got status %d, want %d", code, http.StatusUnauthorized)
	}

	// A key the regulator never published must be rejected.
	_, unknownKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	bodyHash, err := crypto.Hash(payload)
	if err != nil {
		t.Fatalf("failed to hash payload: %v", err)
	}
	forged, err := crypto.SignEd25519([]byte(bodyHash), unknownKey, "not-a-regulator-key")
	if err != nil {
		t.Fatalf("failed to sign payload: %v", err)
	}
	if code := send("jws-nonce-3", forged); code != http.StatusUnauthorized {
		t.Errorf("forged JWS delivery: got status %d, want %d", code, http.StatusUnauthorized)
	}
}

func TestWebhookJWSWithoutKeyManager(t *testing.T) {
	regulator := acceptingRegulator(t)
	defer regulator.Close()

	regulatorKey, jwksServer := newRegulatorIdentity(t)
	defer jwksServer.Close()

	srv := newTestServer(t, regulator.URL)
	auth := webhook.NewAuthenticator(testWebhookSecret, 5*time.Minute)

	payload := []byte(`{"type":"receipt_confirmation","irn":"X-Y-Z","receipt_id":"RCPT-8"}`)
	code := postWebhookJWS(t, srv, auth, payload, "no-km-nonce", signDelivery(t, regulatorKey, payload))
	if code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want %d", code, http.StatusUnauthorized)
	}
}
