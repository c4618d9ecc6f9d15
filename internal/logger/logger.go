// Package logger provides structured logging using Go's slog package.
// Format and level come from configuration; CLI output defaults to text on
// stderr so it never mixes with command output.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// contextKey is a typed key for context values to avoid collisions.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	attemptIDKey contextKey = "attempt_id"
)

// Options selects the handler
type Options struct {
	Format string // "text" (default) or "json"
	Level  string // DEBUG, INFO (default), WARN, ERROR
	Output io.Writer
}

// ParseLevel maps a level name to slog.Level.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s (must be DEBUG, INFO, WARN, or ERROR)", levelStr)
	}
}

// New builds a logger without touching the global default.
func New(opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	hopts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "text", "":
		handler = slog.NewTextHandler(out, hopts)
	case "json":
		handler = slog.NewJSONHandler(out, hopts)
	default:
		return nil, fmt.Errorf("invalid log format: %s (must be json or text)", opts.Format)
	}
	return slog.New(handler), nil
}

// Init builds a logger and installs it as the slog default.
func Init(opts Options) error {
	l, err := New(opts)
	if err != nil {
		return err
	}
	slog.SetDefault(l)
	return nil
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context.
// Returns empty string if not present.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithAttemptID tags the context with a connect attempt ID.
func WithAttemptID(ctx context.Context, attemptID string) context.Context {
	return context.WithValue(ctx, attemptIDKey, attemptID)
}

// GetAttemptID retrieves the connect attempt ID from context.
func GetAttemptID(ctx context.Context) string {
	if id, ok := ctx.Value(attemptIDKey).(string); ok {
		return id
	}
	return ""
}

// FromContext returns base (or the default logger) enriched with the IDs
// carried by ctx.
func FromContext(ctx context.Context, base ...*slog.Logger) *slog.Logger {
	l := slog.Default()
	if len(base) > 0 && base[0] != nil {
		l = base[0]
	}
	if requestID := GetRequestID(ctx); requestID != "" {
		l = l.With("request_id", requestID)
	}
	if attemptID := GetAttemptID(ctx); attemptID != "" {
		l = l.With("attempt_id", attemptID)
	}
	return l
}

// Info logs at INFO level with context enrichment.
func Info(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Info(msg, args...)
}

// Error logs at ERROR level with context enrichment.
func Error(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Error(msg, args...)
}

// Warn logs at WARN level with context enrichment.
func Warn(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Warn(msg, args...)
}

// Debug logs at DEBUG level with context enrichment.
func Debug(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Debug(msg, args...)
}
