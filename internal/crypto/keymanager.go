// keymanager.go handles discovering and caching the public keys used to
// verify signatures on regulator-originated messages.
//
// The regulator publishes its keys at a JWKS endpoint. The KeyManager keeps
// an auto-refreshing cache of that key set so webhook processing never blocks
// on a key fetch. If no JWKS endpoint is configured (HMAC-only deployments)
// the KeyManager runs without a cache and lookups fail with a key error.
package crypto

import (
	"context"
	"log/slog"
	"time"

	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// KeyManagerConfig holds configuration for the KeyManager.
type KeyManagerConfig struct {
	// JWKSEndpoint is the regulator's JWKS URL
	// e.g., "https://einvoice.regulator.example/.well-known/jwks.json"
	JWKSEndpoint string

	// HTTPTimeout is the timeout for HTTP requests to fetch JWK sets.
	HTTPTimeout time.Duration

	// SkipJWKCache disables JWK cache initialization (useful for testing)
	SkipJWKCache bool
}

// KeyManager manages the regulator's public keys for signature verification.
type KeyManager struct {
	// jwkCache is the auto-refreshing cache for the remote JWK set.
	jwkCache *jwk.Cache

	logger *slog.Logger

	config *KeyManagerConfig
}

// NewKeyManager creates a new KeyManager with the given configuration.
func NewKeyManager(ctx context.Context, config *KeyManagerConfig, logger *slog.Logger) (*KeyManager, error) {
	if config == nil {
		return nil, NewInternalError("config is nil")
	}
	if logger == nil {
		return nil, NewInternalError("logger cannot be nil")
	}
	if config.HTTPTimeout == 0 {
		return nil, NewInternalError("HTTPTimeout is required")
	}

	km := &KeyManager{
		config: config,
		logger: logger,
	}

	if config.SkipJWKCache || config.JWKSEndpoint == "" {
		logger.Info("JWK cache initialization skipped")
		return km, nil
	}

	if err := km.initJWKCache(ctx); err != nil {
		return nil, WrapKeyManagementError(err, "failed to init JWK cache")
	}

	km.logger.Debug("JWK cache initialized")

	return km, nil
}

func (k *KeyManager) initJWKCache(ctx context.Context) error {
	client := httprc.NewClient()

	cache, err := jwk.NewCache(ctx, client)
	if err != nil {
		return WrapKeyManagementError(err, "failed to create JWK cache")
	}
	k.jwkCache = cache

	err = k.jwkCache.Register(ctx, k.config.JWKSEndpoint,
		jwk.WithWaitReady(false), // Don't block startup - fetch in background
	)
	if err != nil {
		return WrapKeyManagementError(err, "failed to register JWKS endpoint")
	}

	k.logger.Info("registered regulator JWKS endpoint for background fetch",
		slog.String("jwk_url", k.config.JWKSEndpoint))

	return nil
}

// LookupKey returns the regulator public key with the given key ID.
// The key comes from the auto-refreshing JWKS cache.
func (k *KeyManager) LookupKey(ctx context.Context, keyID string) (jwk.Key, error) {
	if k.jwkCache == nil {
		return nil, NewKeyManagementError("no JWKS endpoint configured")
	}

	keySet, err := k.jwkCache.Lookup(ctx, k.config.JWKSEndpoint)
	if err != nil {
		return nil, WrapKeyManagementError(err, "failed to fetch regulator key set")
	}

	key, found := keySet.LookupKeyID(keyID)
	if !found {
		return nil, NewKeyManagementError("key not found in regulator key set: " + keyID)
	}

	return key, nil
}
