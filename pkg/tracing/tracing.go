// Package tracing carries trace context through the sync pipeline, from the
// HTTP or queue entrypoint down to the store requests and Kafka events a job
// produces.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer

// SetTracer installs the tracer used by StartSpan. When no tracer is set,
// every helper degrades to a no-op so tests and tools run untraced.
func SetTracer(t trace.Tracer) {
	tracer = t
}

// StartSpan starts a child span of whatever is on the context.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name)
}

// GetActiveSpan returns the span on the context, or nil when tracing is off
// or the span is the no-op placeholder.
func GetActiveSpan(ctx context.Context) trace.Span {
	if tracer == nil {
		return nil
	}
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return nil
	}
	return span
}

// GetTraceID returns the active trace ID, or "" when untraced.
func GetTraceID(ctx context.Context) string {
	span := GetActiveSpan(ctx)
	if span == nil {
		return ""
	}
	return span.SpanContext().TraceID().String()
}

// GetSpanID returns the active span ID, or "" when untraced.
func GetSpanID(ctx context.Context) string {
	span := GetActiveSpan(ctx)
	if span == nil {
		return ""
	}
	return span.SpanContext().SpanID().String()
}

// GetTraceParent renders the W3C traceparent header for the context. Event
// producers attach it so consumers can join the trace.
func GetTraceParent(ctx context.Context) string {
	return injected(ctx, "traceparent")
}

// GetTraceState renders the W3C tracestate header for the context.
func GetTraceState(ctx context.Context) string {
	return injected(ctx, "tracestate")
}

func injected(ctx context.Context, key string) string {
	if GetActiveSpan(ctx) == nil {
		return ""
	}

	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)
	return carrier.Get(key)
}
