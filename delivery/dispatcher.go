package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/observability"
	"github.com/xraph/herald/ratelimit"
)

// DefaultRequestTimeout bounds an attempt when none is configured.
const DefaultRequestTimeout = 10 * time.Second

// ErrStopped is returned by Stop when called twice and logged when an
// event arrives after shutdown.
var ErrStopped = errors.New("herald: dispatcher stopped")

// Matcher selects the endpoints for an event.
type Matcher interface {
	Match(ctx context.Context, tenantID, eventType string) ([]*endpoint.Endpoint, error)
}

// Registry receives delivery outcomes.
type Registry interface {
	RecordOutcome(ctx context.Context, epID id.ID, success bool) (*endpoint.Endpoint, error)
	DisableThreshold() int
}

// PayloadValidator checks a payload before fan-out.
type PayloadValidator interface {
	ValidatePayload(eventType string, data json.RawMessage) error
}

// DispatcherConfig holds dispatcher configuration.
type DispatcherConfig struct {
	// Concurrency bounds the attempts running for one dispatch.
	Concurrency int

	// RequestTimeout bounds each attempt, including any rate limit wait.
	RequestTimeout time.Duration

	// Validator, Attempts, Limiter, Metrics and Tracer are optional.
	Validator PayloadValidator
	Attempts  Store
	Limiter   *ratelimit.Limiter
	Metrics   *observability.Metrics
	Tracer    *observability.Tracer
}

// Report describes what happened to one endpoint during a dispatch.
type Report struct {
	EndpointID id.ID   `json:"endpoint_id"`
	Outcome    Outcome `json:"outcome"`

	// Disabled is set when this attempt tripped the failure threshold.
	Disabled bool `json:"disabled"`
}

// Dispatcher fans events out to matching endpoints.
type Dispatcher struct {
	matcher  Matcher
	registry Registry
	executor *Executor
	config   DispatcherConfig
	logger   *slog.Logger

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(matcher Matcher, registry Registry, executor *Executor, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &Dispatcher{
		matcher:  matcher,
		registry: registry,
		executor: executor,
		config:   cfg,
		logger:   logger,
	}
}

// Dispatch schedules delivery of an event to every matching endpoint and
// returns without waiting. Attempts run on a context detached from ctx, so
// cancelling ctx does not abort them. Failures are logged, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, tenantID, eventType string, payload json.RawMessage) {
	if !d.begin() {
		d.logger.WarnContext(ctx, "event dropped after shutdown",
			"tenant_id", tenantID, "event_type", eventType)
		return
	}

	detached := context.WithoutCancel(ctx)
	go func() {
		defer d.wg.Done()
		d.run(detached, tenantID, eventType, payload)
	}()
}

// DispatchSync runs the same fan-out as Dispatch and waits for every
// attempt and its outcome update to finish.
func (d *Dispatcher) DispatchSync(ctx context.Context, tenantID, eventType string, payload json.RawMessage) []Report {
	if !d.begin() {
		d.logger.WarnContext(ctx, "event dropped after shutdown",
			"tenant_id", tenantID, "event_type", eventType)
		return nil
	}
	defer d.wg.Done()

	return d.run(context.WithoutCancel(ctx), tenantID, eventType, payload)
}

// Stop rejects new dispatches and waits for in-flight ones, or until ctx
// is done.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return ErrStopped
	}
	d.stopped = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Forget drops per-endpoint dispatch state, currently the rate limit
// bucket. Called when an endpoint is deleted.
func (d *Dispatcher) Forget(epID id.ID) {
	if d.config.Limiter != nil {
		d.config.Limiter.Reset(epID.String())
	}
}

func (d *Dispatcher) begin() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}
	d.wg.Add(1)
	return true
}

func (d *Dispatcher) run(ctx context.Context, tenantID, eventType string, payload json.RawMessage) []Report {
	if v := d.config.Validator; v != nil {
		if err := v.ValidatePayload(eventType, payload); err != nil {
			if d.config.Metrics != nil {
				d.config.Metrics.PayloadsRejected.WithLabelValues(observability.EventTypeLabel(eventType)).Inc()
			}
			d.logger.WarnContext(ctx, "event payload rejected",
				"tenant_id", tenantID, "event_type", eventType, "error", err)
			return nil
		}
	}

	endpoints, err := d.matcher.Match(ctx, tenantID, eventType)
	if err != nil {
		d.logger.ErrorContext(ctx, "match endpoints failed",
			"tenant_id", tenantID, "event_type", eventType, "error", err)
		return nil
	}
	if d.config.Metrics != nil {
		d.config.Metrics.EventsDispatchedTotal.WithLabelValues(observability.EventTypeLabel(eventType)).Inc()
	}
	if len(endpoints) == 0 {
		return nil
	}

	if d.config.Tracer != nil {
		var span trace.Span
		ctx, span = d.config.Tracer.StartDispatchSpan(ctx, tenantID, eventType, len(endpoints))
		defer span.End()
	}

	reports := make([]Report, len(endpoints))
	var g errgroup.Group
	g.SetLimit(d.config.Concurrency)
	for i, ep := range endpoints {
		g.Go(func() error {
			reports[i] = d.deliver(ctx, ep, eventType, payload)
			return nil
		})
	}
	_ = g.Wait()

	d.logger.DebugContext(ctx, "event dispatched",
		"tenant_id", tenantID,
		"event_type", eventType,
		"endpoints", len(endpoints),
	)
	return reports
}

func (d *Dispatcher) deliver(ctx context.Context, ep *endpoint.Endpoint, eventType string, payload json.RawMessage) Report {
	attemptCtx, cancel := context.WithTimeout(ctx, d.config.RequestTimeout)
	defer cancel()

	var span trace.Span
	if d.config.Tracer != nil {
		attemptCtx, span = d.config.Tracer.StartDeliverySpan(attemptCtx, ep.ID.String(), eventType)
	}

	if d.config.Metrics != nil {
		d.config.Metrics.InflightDeliveries.Inc()
		defer d.config.Metrics.InflightDeliveries.Dec()
	}

	var outcome Outcome
	if d.config.Limiter != nil {
		if err := d.config.Limiter.Wait(attemptCtx, ep.ID.String(), ep.RateLimit); err != nil {
			outcome = Outcome{
				EventID:     id.NewEventID(),
				AttemptedAt: time.Now().UTC(),
				Error:       "rate limit wait: " + err.Error(),
			}
		}
	}
	if outcome.EventID.IsNil() {
		outcome = d.executor.Attempt(attemptCtx, ep, eventType, payload)
	}

	if span != nil {
		d.config.Tracer.EndDeliverySpan(span, outcome.EventID.String(), outcome.StatusCode, outcome.LatencyMs, outcome.Error)
	}

	report := Report{EndpointID: ep.ID, Outcome: outcome}
	d.observe(outcome)

	if !outcome.Success {
		d.logger.WarnContext(ctx, "delivery failed",
			"endpoint_id", ep.ID.String(),
			"event_type", eventType,
			"event_id", outcome.EventID.String(),
			"status", outcome.StatusCode,
			"latency_ms", outcome.LatencyMs,
			"error", outcome.Error,
		)
	} else {
		d.logger.DebugContext(ctx, "delivered",
			"endpoint_id", ep.ID.String(),
			"event_type", eventType,
			"event_id", outcome.EventID.String(),
			"status", outcome.StatusCode,
			"latency_ms", outcome.LatencyMs,
		)
	}

	updated, err := d.registry.RecordOutcome(ctx, ep.ID, outcome.Success)
	switch {
	case errors.Is(err, endpoint.ErrNotFound):
		// Deleted while the attempt was in flight. Its attempt log is gone
		// with it, and the wait above may have re-created its bucket.
		d.logger.DebugContext(ctx, "endpoint deleted during delivery",
			"endpoint_id", ep.ID.String(), "event_id", outcome.EventID.String())
		d.Forget(ep.ID)
		return report
	case err != nil:
		d.logger.ErrorContext(ctx, "record outcome failed",
			"endpoint_id", ep.ID.String(), "error", err)
	case !outcome.Success && !updated.Active && updated.ConsecutiveFailures == d.registry.DisableThreshold():
		report.Disabled = true
		if d.config.Metrics != nil {
			d.config.Metrics.EndpointsDisabled.Inc()
		}
	}

	if d.config.Attempts != nil {
		if err := d.config.Attempts.RecordAttempt(ctx, newAttempt(ep, eventType, outcome)); err != nil {
			d.logger.ErrorContext(ctx, "record attempt failed",
				"endpoint_id", ep.ID.String(), "error", err)
		}
	}

	return report
}

func (d *Dispatcher) observe(o Outcome) {
	if d.config.Metrics == nil {
		return
	}
	status := "failure"
	if o.Success {
		status = "success"
	}
	d.config.Metrics.RecordDelivery(status, float64(o.LatencyMs)/1000.0)
}
