// Package logging provides thin helpers over log/slog: structured
// operation/error logging, context propagation of loggers, and safe
// closing of resources whose Close error would otherwise be dropped.
package logging

import (
	"context"
	"io"
	"log/slog"
)

type contextKey struct{}

// WithLogger returns a context carrying the given logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger stored in the context, or the default
// logger when none is present.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// LogOperation records a named operation at info level.
func LogOperation(logger *slog.Logger, operation string, args ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info(operation, args...)
}

// LogError records a failure with its error attached.
func LogError(logger *slog.Logger, message string, err error, args ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	args = append([]any{slog.Any("error", err)}, args...)
	logger.Error(message, args...)
}

// SafeCloseWithLogging closes a resource and logs the error instead of
// discarding it. Intended for defer sites like HTTP response bodies.
func SafeCloseWithLogging(c io.Closer, logger *slog.Logger, resource string) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		LogError(logger, "failed to close resource", err, slog.String("resource", resource))
	}
}
