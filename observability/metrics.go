// Package observability holds Herald's Prometheus metrics and OpenTelemetry
// tracing helpers.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/herald/catalog"
)

// UnknownEventType is the event_type label for names outside the catalog.
const UnknownEventType = "unknown"

// Metrics holds the delivery instruments.
type Metrics struct {
	EventsDispatchedTotal *prometheus.CounterVec
	DeliveriesTotal       *prometheus.CounterVec
	DeliveryLatency       prometheus.Histogram
	EndpointsDisabled     prometheus.Counter
	PayloadsRejected      *prometheus.CounterVec
	InflightDeliveries    prometheus.Gauge
}

// NewMetrics creates the instruments and registers them with reg.
// Registration panics on duplicate names, as prometheus.MustRegister does.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsDispatchedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "herald_events_dispatched_total",
			Help: "Events accepted for dispatch, by event type.",
		}, []string{"event_type"}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "herald_deliveries_total",
			Help: "Delivery attempts, by outcome.",
		}, []string{"status"}),
		DeliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "herald_delivery_latency_seconds",
			Help:    "Latency of delivery attempts.",
			Buckets: prometheus.DefBuckets,
		}),
		EndpointsDisabled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "herald_endpoints_disabled_total",
			Help: "Endpoints deactivated after reaching the failure threshold.",
		}),
		PayloadsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "herald_payloads_rejected_total",
			Help: "Events dropped because the payload failed schema validation.",
		}, []string{"event_type"}),
		InflightDeliveries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "herald_inflight_deliveries",
			Help: "Delivery attempts currently running.",
		}),
	}
	reg.MustRegister(
		m.EventsDispatchedTotal,
		m.DeliveriesTotal,
		m.DeliveryLatency,
		m.EndpointsDisabled,
		m.PayloadsRejected,
		m.InflightDeliveries,
	)
	return m
}

// RecordDelivery records a delivery attempt with the given status and latency.
func (m *Metrics) RecordDelivery(status string, latencySeconds float64) {
	m.DeliveriesTotal.WithLabelValues(status).Inc()
	m.DeliveryLatency.Observe(latencySeconds)
}

// EventTypeLabel returns eventType when the catalog knows it and
// UnknownEventType otherwise, so caller input cannot mint new series.
func EventTypeLabel(eventType string) string {
	if catalog.Known(eventType) {
		return eventType
	}
	return UnknownEventType
}
