package events

import (
	"context"
	"os"
)

type contextKey int

const (
	loggerKey contextKey = iota
	operationIDKey
	accountKey
)

// FromContext extracts logger from context.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok && l != nil {
		return l
	}
	return defaultLogger
}

// WithLogger adds logger to context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithOperationID tags the context and its logger with an upload or
// refresh operation id.
func WithOperationID(ctx context.Context, id string) context.Context {
	logger := FromContext(ctx).WithField("op_id", id)
	ctx = context.WithValue(ctx, operationIDKey, id)
	return WithLogger(ctx, logger)
}

// WithAccount adds the acting account to context.
func WithAccount(ctx context.Context, account string) context.Context {
	logger := FromContext(ctx).WithField("account", account)
	ctx = context.WithValue(ctx, accountKey, account)
	return WithLogger(ctx, logger)
}

// GetOperationID retrieves the operation id from context.
func GetOperationID(ctx context.Context) string {
	if id, ok := ctx.Value(operationIDKey).(string); ok {
		return id
	}
	return ""
}

// GetAccount retrieves the acting account from context.
func GetAccount(ctx context.Context) string {
	if a, ok := ctx.Value(accountKey).(string); ok {
		return a
	}
	return ""
}

var defaultLogger = newLogger(InfoLevel, "text", os.Stderr, true)

// SetDefault sets the default logger.
func SetDefault(logger *Logger) {
	defaultLogger = logger
}
