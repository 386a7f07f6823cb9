package observability

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/trace/noop"
)

func TestTracerSpans(t *testing.T) {
	tr := NewTracerFromProvider(noop.NewTracerProvider())

	ctx, parent := tr.StartDispatchSpan(context.Background(), "t1", "order.created", 2)
	_, span := tr.StartDeliverySpan(ctx, "ep_1", "order.created")
	tr.EndDeliverySpan(span, "evt_1", 500, 12, "status 500")
	parent.End()

	if span.IsRecording() {
		t.Fatal("noop span should not record")
	}
}
