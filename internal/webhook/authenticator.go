// Package webhook authenticates and processes status callbacks from the
// regulator.
//
// Requests carry an HMAC-SHA256 signature over the timestamp, nonce and raw
// payload. The authenticator rejects stale timestamps and replayed nonces
// inside a sliding window, so a captured request cannot be resubmitted.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// DefaultReplayWindow bounds how old a webhook timestamp may be.
const DefaultReplayWindow = 5 * time.Minute

// Authenticator verifies inbound regulator webhooks.
type Authenticator struct {
	secret       []byte
	replayWindow time.Duration
	now          func() time.Time

	mu     sync.Mutex
	nonces map[string]time.Time
}

// NewAuthenticator creates an authenticator with the shared secret. A
// non-positive window falls back to DefaultReplayWindow.
func NewAuthenticator(secret string, replayWindow time.Duration) *Authenticator {
	if replayWindow <= 0 {
		replayWindow = DefaultReplayWindow
	}
	return &Authenticator{
		secret:       []byte(secret),
		replayWindow: replayWindow,
		now:          time.Now,
		nonces:       make(map[string]time.Time),
	}
}

// ComputeSignature returns the hex HMAC-SHA256 over timestamp, nonce and
// payload joined with dots. Exposed so acknowledgments and tests can produce
// signatures the same way the regulator does.
func (a *Authenticator) ComputeSignature(timestamp, nonce string, payload []byte) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write([]byte(nonce))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticate verifies the signature, timestamp freshness and nonce
// uniqueness of a webhook request. The timestamp is RFC 3339. The signature
// is checked before the timestamp so a forged request learns nothing about
// the window.
func (a *Authenticator) Authenticate(timestamp, nonce, signature string, payload []byte) error {
	if timestamp == "" || nonce == "" || signature == "" {
		return NewSignatureError("timestamp, nonce and signature headers are required")
	}

	expected := a.ComputeSignature(timestamp, nonce, payload)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return NewSignatureError("signature does not match payload")
	}

	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return NewStaleError("timestamp is not valid RFC 3339")
	}
	now := a.now()
	age := now.Sub(ts)
	if age > a.replayWindow || age < -a.replayWindow {
		return NewStaleError(fmt.Sprintf("timestamp outside the %s replay window", a.replayWindow))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.pruneLocked(now)
	if _, seen := a.nonces[nonce]; seen {
		return NewReplayError("nonce already used inside the replay window")
	}
	a.nonces[nonce] = now
	return nil
}

// pruneLocked drops nonces older than the replay window. Callers hold mu.
func (a *Authenticator) pruneLocked(now time.Time) {
	cutoff := now.Add(-a.replayWindow)
	for nonce, seen := range a.nonces {
		if seen.Before(cutoff) {
			delete(a.nonces, nonce)
		}
	}
}
