// Package logger configures structured logging for the gateway.
//
// In dev the logs are rendered with lmittmann/tint for readability.
// In prod/staging the logs are emitted as JSON for ingestion by the log pipeline.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

type contextKey string

const (
	requestLoggerKey contextKey = "requestLogger"
	logAttrsKey      contextKey = "logAttrs"
)

// InitLogger creates the application logger for the given level and environment.
func InitLogger(level slog.Level, environment string) *slog.Logger {
	var handler slog.Handler

	if environment == "prod" || environment == "staging" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

// ParseLogLevel converts a level string (debug, info, warn, error) to a slog.Level.
// Unknown strings default to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ContextWithRequestLogger stores a request-scoped logger in the context.
// The middleware sets this up so handlers can log with the request id attached.
func ContextWithRequestLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, requestLoggerKey, logger)
}

// ContextRequestLogger returns the request-scoped logger from the context.
// Falls back to the default logger if none is set (e.g. in tests).
func ContextRequestLogger(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(requestLoggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// attrCollector accumulates attributes to be included in the final request log line.
type attrCollector struct {
	attrs []slog.Attr
}

// ContextWithLogAttrCollector prepares the context to collect log attributes for the request.
func ContextWithLogAttrCollector(ctx context.Context) context.Context {
	return context.WithValue(ctx, logAttrsKey, &attrCollector{})
}

// ContextWithLogAttrs appends attributes to the request's log attribute collector.
// No-op if the collector is not present (e.g. outside a request).
func ContextWithLogAttrs(ctx context.Context, attrs ...slog.Attr) {
	if collector, ok := ctx.Value(logAttrsKey).(*attrCollector); ok {
		collector.attrs = append(collector.attrs, attrs...)
	}
}

// ContextLogAttrs returns the attributes collected during the request.
func ContextLogAttrs(ctx context.Context) []slog.Attr {
	if collector, ok := ctx.Value(logAttrsKey).(*attrCollector); ok {
		return collector.attrs
	}
	return nil
}
