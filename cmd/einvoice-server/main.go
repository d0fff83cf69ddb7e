package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/einvoice-networks/einvoice-gateway/internal/config"
	"github.com/einvoice-networks/einvoice-gateway/internal/database"
	"github.com/einvoice-networks/einvoice-gateway/internal/logger"
	"github.com/einvoice-networks/einvoice-gateway/internal/server"
	"github.com/einvoice-networks/einvoice-gateway/internal/version"
)

//	@title			einvoice-server
//	@description	einvoice-server is the invoice certification gateway: it generates and registers invoice reference numbers (IRNs), signs invoice documents with the registered certificate, transmits them to the regulator platform with retries, and receives signed status webhooks.
//	@description
//	@description	## Common Error Responses
//	@description	All endpoints may return:
//	@description	- `413` Request body exceeds size limit
//	@description	- `429` Rate limit exceeded
//	@description	- `500` Internal server error
//	@description
//	@description	## Request Limits
//	@description	All endpoints are protected by:
//	@description	- **Rate limiting**: Configurable requests per second (see env vars) - default 100 rps (set to 0 to disable)
//	@description	- **Request size limits**: Configurable (see env vars) - default 1MB
//	@description
//	@description	## Authentication
//	@description	Regulator webhooks are authenticated with an HMAC signature over timestamp, nonce and payload. All other endpoints are expected to sit behind the deployment's API gateway.
//	@license.name	MIT

//	@accept		json
//	@produce	json

//	@tag.name			Certification
//	@tag.description	Invoice certification and submission endpoints

//	@tag.name			Webhooks
//	@tag.description	Regulator callback endpoints

//	@tag.name			Common
//	@tag.description	Server endpoints (jwks, health, version, metrics)

func main() {
	cmd := &cobra.Command{
		Use:   "einvoice-server",
		Short: "invoice certification gateway server",
		Long:  `einvoice-server certifies invoices against the regulator platform: IRN generation, certificate-backed signing, resilient transmission and webhook processing`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	v := version.Get()
	cmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.NewServerConfig()
	if err != nil {
		log.Printf("failed to load configuration: %v", err.Error())
		os.Exit(1)
	}

	appLogger := logger.InitLogger(logger.ParseLogLevel(cfg.LogLevel), cfg.Environment)

	appLogger.Info("Configuration loaded",
		slog.String("ENVIRONMENT", cfg.Environment),
		slog.String("HOST", cfg.Host),
		slog.Int("PORT", cfg.Port),
		slog.String("LOG_LEVEL", cfg.LogLevel),
		slog.String("REGULATOR_API_URL", cfg.RegulatorAPIURL),
		slog.String("SERVICE_ID", cfg.ServiceID),
		slog.String("SIGNING_CERTIFICATE_ID", cfg.SigningCertificateID),
	)

	dbCtx, dbCancel := context.WithTimeout(context.Background(), cfg.DatabasePingTimeout)
	defer dbCancel()

	pool, err := database.NewPool(dbCtx, cfg)
	if err != nil {
		appLogger.Error("Unable to create connection pool", slog.String("error", err.Error()))
		os.Exit(1)
	}

	appLogger.Info("connected to PostgreSQL")

	if err := database.Migrate(dbCtx, cfg.DatabaseURL); err != nil {
		appLogger.Error("Failed to run database migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	appLogger.Info("Starting server", slog.String("version", version.Get().Version))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewServer(pool, cfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer srv.DatabaseShutdown()

	if err := srv.Start(ctx); err != nil {
		appLogger.Error("Server error", slog.String("error", err.Error()))
		return err
	}

	appLogger.Info("server shutdown complete")
	return nil
}
