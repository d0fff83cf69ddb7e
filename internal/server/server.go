// Package server wires the certification pipeline behind an HTTP API:
// invoice intake, regulator webhooks, and the operational endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/redis/go-redis/v9"

	"github.com/einvoice-networks/einvoice-gateway/internal/certstore"
	"github.com/einvoice-networks/einvoice-gateway/internal/config"
	"github.com/einvoice-networks/einvoice-gateway/internal/crypto"
	"github.com/einvoice-networks/einvoice-gateway/internal/irn"
	"github.com/einvoice-networks/einvoice-gateway/internal/metrics"
	"github.com/einvoice-networks/einvoice-gateway/internal/server/middleware"
	"github.com/einvoice-networks/einvoice-gateway/internal/signing"
	"github.com/einvoice-networks/einvoice-gateway/internal/submission"
	"github.com/einvoice-networks/einvoice-gateway/internal/webhook"
)

// certExpirySweepInterval is how often stored certificates are checked
// against their validity window.
const certExpirySweepInterval = time.Hour

type Server struct {
	pool   *pgxpool.Pool
	config *config.ServerEnvironment
	logger *slog.Logger
	router *chi.Mux

	certStore certstore.Store
	irnStore  irn.Store
	cache     *signing.Cache
	signer    *signing.Signer
	verifier  *signing.Verifier
	engine    *submission.Engine
	auth      *webhook.Authenticator
	processor *webhook.Processor
	jwks      jwk.Set

	// keyManager caches the regulator's published keys for verifying
	// JWS-signed webhook deliveries. Nil when no JWKS URL is configured.
	keyManager *crypto.KeyManager
}

// NewServer assembles the pipeline components over the given connection
// pool. A nil pool selects the in-memory stores, which suits tests and
// local development.
func NewServer(pool *pgxpool.Pool, cfg *config.ServerEnvironment, logger *slog.Logger) (*Server, error) {
	s := &Server{
		pool:   pool,
		config: cfg,
		logger: logger,
		router: chi.NewRouter(),
	}

	if pool != nil {
		s.certStore = certstore.NewPostgresStore(pool)
		s.irnStore = irn.NewPostgresStore(pool)
	} else {
		s.certStore = certstore.NewMemoryStore()
		s.irnStore = irn.NewMemoryStore()
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		logger.Info("distributed signature cache enabled", slog.String("addr", cfg.RedisAddr))
	}

	cache, err := signing.NewCache(signing.CacheConfig{
		Size:  cfg.SignatureCacheSize,
		TTL:   cfg.SignatureCacheTTL,
		Redis: redisClient,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create signature cache: %w", err)
	}
	s.cache = cache
	s.signer = signing.NewSigner(s.certStore, cache, logger)
	s.verifier = signing.NewVerifier(s.certStore)

	var submissionStore submission.Store
	if pool != nil {
		submissionStore = submission.NewPostgresStore(pool)
	} else {
		submissionStore = submission.NewMemoryStore()
	}
	client := submission.NewHTTPRegulatorClient(cfg.RegulatorAPIURL, cfg.RegulatorTimeout)
	s.engine = submission.NewEngine(submissionStore, client, submission.EngineConfig{
		BaseDelay:     cfg.RetryBaseDelay,
		BackoffFactor: cfg.RetryBackoffFactor,
		MaxAttempts:   cfg.RetryMaxAttempts,
		SweepInterval: cfg.RetrySweepInterval,
	}, logger)

	s.auth = webhook.NewAuthenticator(cfg.WebhookSecret, cfg.WebhookReplayWindow)
	s.processor = webhook.NewProcessor(s.auth, logger)

	if cfg.RegulatorJWKSURL != "" {
		keyManager, err := crypto.NewKeyManager(context.Background(), &crypto.KeyManagerConfig{
			JWKSEndpoint: cfg.RegulatorJWKSURL,
			HTTPTimeout:  cfg.JWKCacheHTTPTimeout,
			SkipJWKCache: cfg.SkipJWKCache,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create regulator key manager: %w", err)
		}
		s.keyManager = keyManager
	}

	if err := s.initSigningIdentity(context.Background()); err != nil {
		return nil, err
	}

	s.setupMiddleware()
	s.registerRoutes()

	return s, nil
}

// initSigningIdentity registers the locally held signing certificate and
// builds the JWKS served at /.well-known/jwks.json.
func (s *Server) initSigningIdentity(ctx context.Context) error {
	keyPEM, err := os.ReadFile(s.config.SigningKeyPath)
	if err != nil {
		return fmt.Errorf("failed to read signing key: %w", err)
	}
	privateKey, err := crypto.ParsePrivateKeyFromPEM(keyPEM)
	if err != nil {
		return fmt.Errorf("failed to parse signing key: %w", err)
	}
	publicKey, err := crypto.PublicKeyFor(privateKey)
	if err != nil {
		return fmt.Errorf("failed to derive public key: %w", err)
	}

	key, err := crypto.PublicKeyToJWK(publicKey, s.config.SigningCertificateID)
	if err != nil {
		return fmt.Errorf("failed to build JWK: %w", err)
	}
	jwks := jwk.NewSet()
	if err := jwks.AddKey(key); err != nil {
		return fmt.Errorf("failed to build JWK set: %w", err)
	}
	s.jwks = jwks

	if s.config.SigningCertPath == "" {
		s.logger.Info("no signing certificate configured, signing endpoints require a registered certificate")
		return nil
	}

	certPEM, err := os.ReadFile(s.config.SigningCertPath)
	if err != nil {
		return fmt.Errorf("failed to read signing certificate: %w", err)
	}
	cert, err := certstore.NewCertificate(s.config.SigningCertificateID, certPEM, keyPEM, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to build signing certificate: %w", err)
	}
	cert.Status = certstore.StatusActive
	if err := s.certStore.Store(ctx, cert, true); err != nil {
		return fmt.Errorf("failed to register signing certificate: %w", err)
	}

	s.logger.Info("signing certificate registered",
		slog.String("certificate_id", cert.ID),
		slog.String("subject", cert.SubjectDN),
		slog.Time("not_after", cert.NotAfter))
	return nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(chimiddleware.Timeout(60 * time.Second))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.SecurityHeaders(s.config.Environment))
	s.router.Use(middleware.RequestSizeLimit(s.config.MaxRequestBytes))
	s.router.Use(middleware.RateLimit(s.config.RateLimitRPS, s.config.RateLimitBurst))
}

func (s *Server) registerRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/version", s.handleVersion)
	s.router.Get("/.well-known/jwks.json", s.handleJWKS)
	s.router.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/invoices", s.handleCertifyInvoice)
		r.Post("/signatures/verify", s.handleVerifySignature)
		r.Post("/irns/validate", s.handleValidateIRN)
		r.Post("/certificates/{certificateID}/revoke", s.handleRevokeCertificate)
		r.Post("/submissions/{submissionID}/retry", s.handleForceRetry)
		r.Post("/webhooks/regulator", s.handleRegulatorWebhook)
	})
}

// Router exposes the HTTP handler, used by tests and the entrypoint.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the HTTP server and the background workers until ctx is
// canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	serverAddr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	httpServer := &http.Server{
		Addr:         serverAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	go s.engine.Run(workerCtx)
	go s.runCertExpirySweep(workerCtx)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("service listening",
			slog.String("environment", s.config.Environment),
			slog.String("address", serverAddr))

		err := httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.config.ServerShutdownTimeout)
	defer shutdownCancel()

	s.logger.Info("shutting down HTTP server")

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP server shutdown error",
			slog.String("error", err.Error()))
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}

	s.logger.Info("HTTP server shutdown complete")
	return nil
}

// DatabaseShutdown closes the connection pool.
func (s *Server) DatabaseShutdown() {
	if s.pool != nil {
		s.pool.Close()
		s.logger.Info("database connection closed")
	}
}

// runCertExpirySweep periodically transitions certificates past their
// NotAfter instant to EXPIRED and drops their cached signatures.
func (s *Server) runCertExpirySweep(ctx context.Context) {
	ticker := time.NewTicker(certExpirySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := s.certStore.ExpireOverdue(ctx, time.Now().UTC())
			if err != nil {
				s.logger.ErrorContext(ctx, "certificate expiry sweep failed", "error", err)
				continue
			}
			for _, id := range expired {
				metrics.CertificatesExpiredTotal.Inc()
				s.logger.WarnContext(ctx, "certificate expired", "certificate_id", id)
				if err := s.cache.InvalidateForCertificate(ctx, id); err != nil {
					s.logger.ErrorContext(ctx, "failed to invalidate cache for expired certificate",
						"certificate_id", id, "error", err)
				}
			}
		}
	}
}
