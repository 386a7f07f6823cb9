package herald

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xraph/herald/catalog"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/ratelimit"
	"github.com/xraph/herald/store"
)

// wireServices initializes the internal services after options have been applied.
func (h *Herald) wireServices() {
	if h.catalog == nil {
		h.catalog = catalog.New(h.logger)
	}

	h.endpointSvc = endpoint.NewService(h.store, endpoint.Config{
		DisableThreshold: h.config.DisableThreshold,
		LockStripes:      h.config.LockStripes,
		OnDelete:         func(epID id.ID) { h.dispatcher.Forget(epID) },
	}, h.logger)

	h.matcher = endpoint.NewMatcher(h.store)

	executor := delivery.NewExecutor(h.config.RequestTimeout)
	if h.httpClient != nil {
		executor = delivery.NewExecutorWithClient(h.httpClient)
	}

	cfg := delivery.DispatcherConfig{
		Concurrency:    h.config.Concurrency,
		RequestTimeout: h.config.RequestTimeout,
		Validator:      h.catalog,
		Metrics:        h.metrics,
		Tracer:         h.tracer,
	}
	if h.config.RecordAttempts {
		cfg.Attempts = h.store
	}
	if h.config.RateLimiting {
		h.limiter = ratelimit.New()
		cfg.Limiter = h.limiter
	}

	h.dispatcher = delivery.NewDispatcher(h.matcher, h.endpointSvc, executor, cfg, h.logger)
}

// Dispatch delivers an event to every active endpoint of tenantID that
// subscribes to eventType. It returns once the deliveries are scheduled.
// Delivery failures are logged and counted against the endpoint, never
// returned; cancelling ctx does not abort deliveries already scheduled.
//
// payload may be a json.RawMessage, raw JSON bytes, or any value that
// encodes to JSON.
func (h *Herald) Dispatch(ctx context.Context, tenantID, eventType string, payload any) {
	data, err := encodePayload(payload)
	if err != nil {
		h.logger.ErrorContext(ctx, "event dropped: payload is not JSON",
			"tenant_id", tenantID, "event_type", eventType, "error", err)
		return
	}
	h.dispatcher.Dispatch(ctx, tenantID, eventType, data)
}

// DispatchSync is Dispatch that waits for every attempt and reports the
// per-endpoint results.
func (h *Herald) DispatchSync(ctx context.Context, tenantID, eventType string, payload any) []delivery.Report {
	data, err := encodePayload(payload)
	if err != nil {
		h.logger.ErrorContext(ctx, "event dropped: payload is not JSON",
			"tenant_id", tenantID, "event_type", eventType, "error", err)
		return nil
	}
	return h.dispatcher.DispatchSync(ctx, tenantID, eventType, data)
}

// Stop rejects new events and waits for in-flight deliveries. Without a
// deadline on ctx, ShutdownTimeout applies.
func (h *Herald) Stop(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok && h.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.ShutdownTimeout)
		defer cancel()
	}
	if err := h.dispatcher.Stop(ctx); err != nil {
		return err
	}
	h.logger.InfoContext(ctx, "herald stopped")
	return nil
}

// Attempts returns the delivery log of an endpoint visible to caller.
func (h *Herald) Attempts(ctx context.Context, epID id.ID, caller endpoint.Caller, opts delivery.ListOpts) ([]*delivery.Attempt, error) {
	if _, err := h.endpointSvc.Get(ctx, epID, caller); err != nil {
		return nil, err
	}
	return h.store.ListAttempts(ctx, epID, opts)
}

// Endpoints returns the endpoint registry.
func (h *Herald) Endpoints() *endpoint.Service {
	return h.endpointSvc
}

// Matcher returns the subscription matcher.
func (h *Herald) Matcher() *endpoint.Matcher {
	return h.matcher
}

// Catalog returns the event type catalog.
func (h *Herald) Catalog() *catalog.Catalog {
	return h.catalog
}

// Store returns the underlying store.
func (h *Herald) Store() store.Store {
	return h.store
}

// Config returns the effective configuration.
func (h *Herald) Config() Config {
	return h.config
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, errors.New("invalid JSON")
		}
		return v, nil
	case []byte:
		if !json.Valid(v) {
			return nil, errors.New("invalid JSON")
		}
		return json.RawMessage(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		return b, nil
	}
}
