package common

import (
	"context"

	"github.com/sirupsen/logrus"
)

type contextKey string

// RequestIDContextKey is the name of the key used to store the request ID into the context
const RequestIDContextKey = "request_id"

// WithRequestID stores a request ID into the context
func WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, contextKey(RequestIDContextKey), rid)
}

// RequestID returns the request ID stored in the context, if any.
func RequestID(ctx context.Context) string {
	rid, _ := ctx.Value(contextKey(RequestIDContextKey)).(string)
	return rid
}

// WithLogger stores the logger.
func WithLogger(ctx context.Context, l logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, contextKey("logger"), l)
}

// Logger returns the structured logger.
func Logger(ctx context.Context) logrus.FieldLogger {
	l, ok := ctx.Value(contextKey("logger")).(logrus.FieldLogger)
	if !ok {
		return logrus.StandardLogger()
	}
	return l
}

// LoggerWithFields returns a child context of the provided parent that
// contains a logger with additional fields from the parent's logger, it
// returns the new child logger, as well.
func LoggerWithFields(ctx context.Context, fields logrus.Fields) (context.Context, logrus.FieldLogger) {
	l := Logger(ctx)
	l = l.WithFields(fields)
	ctx = WithLogger(ctx, l)
	return ctx, l
}
