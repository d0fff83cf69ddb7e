package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

// Environment variables with defaults
type ServerEnvironment struct {

	// http server settings
	Environment           string        `env:"ENVIRONMENT,default=dev"`
	Host                  string        `env:"HOST,default=0.0.0.0"`
	Port                  int           `env:"PORT,default=8080"`
	LogLevel              string        `env:"LOG_LEVEL,default=debug"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=10s"`
	ReadTimeout           time.Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout          time.Duration `env:"WRITE_TIMEOUT,default=15s"`
	IdleTimeout           time.Duration `env:"IDLE_TIMEOUT,default=60s"`
	RateLimitRPS          int32         `env:"RATE_LIMIT_RPS,default=100"`
	RateLimitBurst        int32         `env:"RATE_LIMIT_BURST,default=200"`
	MaxRequestBytes       int64         `env:"MAX_REQUEST_BYTES,default=1048576"`

	// database settings
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS,default=4"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS,default=0"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME,default=60m"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME,default=30m"`
	DBConnectTimeout    time.Duration `env:"DB_CONNECT_TIMEOUT,default=5s"`
	DatabasePingTimeout time.Duration `env:"DATABASE_PING_TIMEOUT,default=10s"`

	// signature cache settings
	SignatureCacheSize int           `env:"SIGNATURE_CACHE_SIZE,default=1000"`
	SignatureCacheTTL  time.Duration `env:"SIGNATURE_CACHE_TTL,default=1h"`

	// optional distributed cache tier - leave REDIS_ADDR empty to run local-only
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB,default=0"`

	// regulator submission settings
	RegulatorAPIURL    string        `env:"REGULATOR_API_URL,required=true"`
	RegulatorTimeout   time.Duration `env:"REGULATOR_TIMEOUT,default=30s"`
	RetryBaseDelay     time.Duration `env:"RETRY_BASE_DELAY,default=60s"`
	RetryBackoffFactor float64       `env:"RETRY_BACKOFF_FACTOR,default=2.0"`
	RetryMaxAttempts   int           `env:"RETRY_MAX_ATTEMPTS,default=5"`
	RetrySweepInterval time.Duration `env:"RETRY_SWEEP_INTERVAL,default=30s"`

	// webhook settings
	WebhookSecret       string        `env:"WEBHOOK_SECRET,required=true"`
	WebhookReplayWindow time.Duration `env:"WEBHOOK_REPLAY_WINDOW,default=5m"`

	// JWK cache settings (used when verifying regulator-signed responses)
	SkipJWKCache        bool          `env:"SKIP_JWK_CACHE,default=false"`
	JWKCacheHTTPTimeout time.Duration `env:"JWK_CACHE_HTTP_TIMEOUT,default=30s"`
	RegulatorJWKSURL    string        `env:"REGULATOR_JWKS_URL"`

	// Required gateway configuration - must be set by environment variables
	ServiceID      string `env:"SERVICE_ID,required=true"`
	SigningKeyPath string `env:"SIGNING_KEY_PATH,required=true"`
	DatabaseURL    string `env:"DATABASE_URL,required=true"`

	// local signing certificate, registered at startup when set
	SigningCertPath      string `env:"SIGNING_CERT_PATH"`
	SigningCertificateID string `env:"SIGNING_CERTIFICATE_ID,default=local"`
}

var validEnvs = map[string]bool{
	"dev":     true,
	"test":    true,
	"prod":    true,
	"staging": true,
}

// NewServerConfig loads environment variables and returns a ServerEnvironment struct that contains the values
func NewServerConfig() (*ServerEnvironment, error) {
	var cfg ServerEnvironment

	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment variables: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validateConfig checks for required env variables
func validateConfig(cfg *ServerEnvironment) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if !validEnvs[cfg.Environment] {
		return fmt.Errorf("invalid ENVIRONMENT: %s", cfg.Environment)
	}

	// Validate database pool configuration
	if cfg.DBMaxConnections < 1 {
		return fmt.Errorf("DB_MAX_CONNECTIONS must be at least 1")
	}
	if cfg.DBMinConnections < 0 {
		return fmt.Errorf("DB_MIN_CONNECTIONS must be 0 or greater")
	}
	if cfg.DBMinConnections > cfg.DBMaxConnections {
		return fmt.Errorf("DB_MIN_CONNECTIONS (%d) cannot be greater than DB_MAX_CONNECTIONS (%d)",
			cfg.DBMinConnections, cfg.DBMaxConnections)
	}

	if len(cfg.ServiceID) != 8 {
		return fmt.Errorf("SERVICE_ID must be exactly 8 characters, got %d", len(cfg.ServiceID))
	}

	if cfg.SignatureCacheSize < 1 {
		return fmt.Errorf("SIGNATURE_CACHE_SIZE must be at least 1")
	}

	if cfg.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.RetryBackoffFactor < 1.0 {
		return fmt.Errorf("RETRY_BACKOFF_FACTOR must be at least 1.0")
	}

	return nil
}
