package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// ContextWithLogger stores a logger in the context.
func ContextWithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext extracts a logger from the context.
// Returns zap.NewNop() if no logger is found.
func FromContext(ctx context.Context) *zap.Logger {
	return FromContextOr(ctx, zap.NewNop())
}

// FromContextOr extracts the request logger, falling back to l.
// Services hold a process logger and prefer the request-scoped one when present.
func FromContextOr(ctx context.Context, l *zap.Logger) *zap.Logger {
	if rl, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && rl != nil {
		return rl
	}
	return l
}
