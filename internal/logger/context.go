package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// NewContext stores a request-scoped logger in the context.
func NewContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext extracts the request-scoped logger. When none was injected it
// returns fallback, so handlers called outside the middleware chain still log
// somewhere; a nil fallback degrades to a no-op logger.
func FromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return l
	}
	if fallback != nil {
		return fallback
	}
	return zap.NewNop()
}
