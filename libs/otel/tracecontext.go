package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceContext is a W3C trace context detached from any span, so it can be
// stored next to a row and resumed by whoever processes the row later.
type TraceContext struct {
	Parent string
	State  string
}

// CaptureTraceContext serializes the active span of ctx. It is zero when ctx
// carries no span.
func CaptureTraceContext(ctx context.Context) TraceContext {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return TraceContext{Parent: carrier["traceparent"], State: carrier["tracestate"]}
}

func (tc TraceContext) IsZero() bool { return tc.Parent == "" && tc.State == "" }

// Context returns ctx with tc installed as the remote parent.
func (tc TraceContext) Context(ctx context.Context) context.Context {
	if tc.IsZero() {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier{
		"traceparent": tc.Parent,
		"tracestate":  tc.State,
	})
}
