package events

import (
	"context"
	"os"
)

type contextKey string

const (
	loggerKey    contextKey = "logger"
	requestIDKey contextKey = "request_id"
	walletKey    contextKey = "wallet"
)

// Keys copied onto log entries by Tags.
var taggedKeys = []contextKey{requestIDKey, walletKey}

var defaultLogger = newLogger(InfoLevel, "text", os.Stderr)

// SetDefault replaces the logger FromContext falls back to.
func SetDefault(logger *Logger) {
	defaultLogger = logger
}

// FromContext returns the logger stored in ctx, or the default logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return defaultLogger
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithRequestID tags ctx and its logger with a request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withTag(ctx, requestIDKey, id)
}

// WithWallet tags ctx and its logger with the wallet being operated on.
func WithWallet(ctx context.Context, address string) context.Context {
	return withTag(ctx, walletKey, address)
}

// GetRequestID returns the request ID in ctx, if any.
func GetRequestID(ctx context.Context) string {
	return tag(ctx, requestIDKey)
}

// GetWallet returns the wallet address in ctx, if any.
func GetWallet(ctx context.Context) string {
	return tag(ctx, walletKey)
}

// Tags returns the request ID and wallet carried by ctx as log fields.
func Tags(ctx context.Context) map[string]interface{} {
	fields := make(map[string]interface{}, len(taggedKeys))
	for _, key := range taggedKeys {
		if v := tag(ctx, key); v != "" {
			fields[string(key)] = v
		}
	}
	return fields
}

func withTag(ctx context.Context, key contextKey, value string) context.Context {
	logger := FromContext(ctx).WithField(string(key), value)
	return WithLogger(context.WithValue(ctx, key, value), logger)
}

func tag(ctx context.Context, key contextKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}
