// Package context provides request-scoped values extraction.
package context

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// TraceContext contains request tracing information.
type TraceContext struct {
	TraceID   string
	SpanID    string
	RequestID string
}

type traceContextKey struct{}

// WithTrace adds TraceContext to context.
func WithTrace(ctx context.Context, trace *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, trace)
}

// GetTrace returns TraceContext from context.
func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	return nil
}

// GetRequestID returns request ID from context or empty string.
func GetRequestID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.RequestID
	}
	return ""
}

// FromSpan builds a TraceContext from the OpenTelemetry span in ctx, so log
// lines of scheduler passes carry the same trace ID as their spans. Without a
// recording span it falls back to NewTraceContext.
func FromSpan(ctx context.Context) *TraceContext {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return NewTraceContext()
	}
	return &TraceContext{
		TraceID:   sc.TraceID().String(),
		SpanID:    sc.SpanID().String(),
		RequestID: uuid.New().String(),
	}
}

// NewTraceContext creates a TraceContext with generated IDs.
func NewTraceContext() *TraceContext {
	return &TraceContext{
		TraceID:   uuid.New().String(),
		SpanID:    uuid.New().String()[:16],
		RequestID: uuid.New().String(),
	}
}
