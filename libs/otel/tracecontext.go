package otelx

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
)

const (
	traceparentKey = "traceparent"
	tracestateKey  = "tracestate"
)

// w3c is used directly so saved rows carry only the span context, never
// baggage, regardless of the global propagator.
var w3c = propagation.TraceContext{}

// TraceContextStrings returns the W3C traceparent and tracestate of ctx for
// storage next to an outbox row or a scheduled job.
func TraceContextStrings(ctx context.Context) (traceparent, tracestate string) {
	c := propagation.MapCarrier{}
	w3c.Inject(ctx, c)
	return c[traceparentKey], c[tracestateKey]
}

// ContextWithTraceContext restores a span context saved by
// TraceContextStrings. Empty or malformed values leave ctx unchanged.
func ContextWithTraceContext(ctx context.Context, traceparent, tracestate string) context.Context {
	if traceparent == "" {
		return ctx
	}
	return w3c.Extract(ctx, propagation.MapCarrier{
		traceparentKey: traceparent,
		tracestateKey:  tracestate,
	})
}
