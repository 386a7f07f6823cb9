package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/xraph/herald"

// Tracer wraps the OpenTelemetry tracer used for delivery spans.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer returns a Tracer from the global provider.
func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(tracerName)}
}

// NewTracerFromProvider returns a Tracer from tp.
func NewTracerFromProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(tracerName)}
}

// StartDispatchSpan starts the parent span for one dispatch.
func (t *Tracer) StartDispatchSpan(ctx context.Context, tenantID, eventType string, endpoints int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "herald.dispatch",
		trace.WithAttributes(
			attribute.String("herald.tenant_id", tenantID),
			attribute.String("herald.event_type", eventType),
			attribute.Int("herald.endpoints", endpoints),
		),
	)
}

// StartDeliverySpan starts a span for a delivery attempt.
func (t *Tracer) StartDeliverySpan(ctx context.Context, endpointID, eventType string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "herald.delivery",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("herald.endpoint_id", endpointID),
			attribute.String("herald.event_type", eventType),
		),
	)
}

// EndDeliverySpan ends a delivery span with result attributes.
func (t *Tracer) EndDeliverySpan(span trace.Span, eventID string, statusCode, latencyMs int, err string) {
	span.SetAttributes(
		attribute.String("herald.event_id", eventID),
		attribute.Int("http.status_code", statusCode),
		attribute.Int("herald.latency_ms", latencyMs),
	)
	if err != "" {
		span.SetStatus(codes.Error, err)
	}
	span.End()
}
