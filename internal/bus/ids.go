package bus

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type requestIDContextKey struct{}
type batchIDContextKey struct{}

// NewRequestID creates a request id for tracing.
func NewRequestID() string {
	return uuid.NewString()
}

// NewBatchID creates an identifier for one authorization batch.
func NewBatchID() string {
	return uuid.NewString()
}

// WithRequestID adds a request id to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

// RequestIDFromContext reads request id from context.
func RequestIDFromContext(ctx context.Context) string {
	v := ctx.Value(requestIDContextKey{})
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// WithBatchID adds a batch id to context.
func WithBatchID(ctx context.Context, batchID string) context.Context {
	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return ctx
	}
	return context.WithValue(ctx, batchIDContextKey{}, batchID)
}

// BatchIDFromContext reads batch id from context.
func BatchIDFromContext(ctx context.Context) string {
	v := ctx.Value(batchIDContextKey{})
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
