package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// StoredTrace is the W3C trace context persisted next to a row (outbox events) so a later
// process can continue the trace.
type StoredTrace struct {
	Traceparent string
	Tracestate  string
}

// CaptureTrace serializes the span context of ctx with the global propagator.
func CaptureTrace(ctx context.Context) StoredTrace {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return StoredTrace{Traceparent: carrier.Get("traceparent"), Tracestate: carrier.Get("tracestate")}
}

func (t StoredTrace) Empty() bool {
	return t.Traceparent == "" && t.Tracestate == ""
}

// Restore returns ctx carrying the stored span context as its remote parent.
func (t StoredTrace) Restore(ctx context.Context) context.Context {
	if t.Empty() {
		return ctx
	}
	carrier := propagation.MapCarrier{}
	carrier.Set("traceparent", t.Traceparent)
	if t.Tracestate != "" {
		carrier.Set("tracestate", t.Tracestate)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
