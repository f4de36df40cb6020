package id

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

// New returns a random request identifier.
func New() string {
	return uuid.NewString()
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, requestID)
}

// FromContext returns the request id stored on ctx, generating a fresh one when absent.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKey{}).(string); ok && v != "" {
		return v
	}
	return New()
}
