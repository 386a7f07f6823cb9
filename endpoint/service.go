// Package endpoint is the webhook registry: tenant-scoped endpoint CRUD,
// subscription matching and the failure counter that disables endpoints.
package endpoint

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/xraph/herald/catalog"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
	"github.com/xraph/herald/internal/keylock"
	"github.com/xraph/herald/signature"
)

// DefaultDisableThreshold is the number of consecutive failed deliveries
// after which an endpoint is deactivated.
const DefaultDisableThreshold = 10

// Config configures the registry service.
type Config struct {
	// DisableThreshold defaults to DefaultDisableThreshold when <= 0.
	DisableThreshold int

	// LockStripes sizes the per-endpoint lock table.
	LockStripes int

	// OnDelete runs after an endpoint is removed from the store.
	OnDelete func(epID id.ID)
}

// Service provides endpoint management operations.
type Service struct {
	store     Store
	locks     *keylock.Locks
	threshold int
	now       func() time.Time
	onDelete  func(epID id.ID)
	logger    *slog.Logger
}

// NewService creates a new endpoint service.
func NewService(store Store, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DisableThreshold <= 0 {
		cfg.DisableThreshold = DefaultDisableThreshold
	}
	return &Service{
		store:     store,
		locks:     keylock.New(cfg.LockStripes),
		threshold: cfg.DisableThreshold,
		now:       func() time.Time { return time.Now().UTC() },
		onDelete:  cfg.OnDelete,
		logger:    logger,
	}
}

// DisableThreshold returns the configured failure threshold.
func (svc *Service) DisableThreshold() int { return svc.threshold }

// Create registers a new endpoint. The returned endpoint carries the full
// secret; this is the only read that does.
func (svc *Service) Create(ctx context.Context, in Input) (*Endpoint, error) {
	if in.TenantID == "" {
		return nil, &ValidationError{Field: "tenant_id", Message: "required"}
	}
	if err := validateURL(in.URL); err != nil {
		return nil, err
	}
	events, err := expandEvents(in.Events)
	if err != nil {
		return nil, err
	}
	if in.RateLimit < 0 {
		return nil, &ValidationError{Field: "rate_limit", Message: "must not be negative"}
	}

	active := true
	if in.Active != nil {
		active = *in.Active
	}

	ep := &Endpoint{
		Entity:      entity.New(),
		ID:          id.NewEndpointID(),
		TenantID:    in.TenantID,
		URL:         in.URL,
		Secret:      signature.GenerateSecret(),
		Events:      events,
		Description: in.Description,
		Active:      active,
		Headers:     in.Headers,
		RateLimit:   in.RateLimit,
		Metadata:    in.Metadata,
	}

	if err := svc.store.CreateEndpoint(ctx, ep); err != nil {
		return nil, err
	}

	svc.logger.InfoContext(ctx, "endpoint created",
		"endpoint_id", ep.ID.String(),
		"tenant_id", ep.TenantID,
		"events", len(ep.Events),
	)
	return ep.Clone(), nil
}

// Get returns an endpoint visible to caller, with the secret masked.
func (svc *Service) Get(ctx context.Context, epID id.ID, caller Caller) (*Endpoint, error) {
	ep, err := svc.load(ctx, epID, caller)
	if err != nil {
		return nil, err
	}
	return ep.Masked(), nil
}

// List returns the caller's endpoints. Super-admins see every tenant unless
// opts.TenantID narrows the result.
func (svc *Service) List(ctx context.Context, caller Caller, opts ListOpts) ([]*Endpoint, error) {
	if !caller.SuperAdmin {
		if caller.TenantID == "" {
			return nil, &ValidationError{Field: "tenant_id", Message: "required"}
		}
		opts.TenantID = caller.TenantID
	}

	eps, err := svc.store.ListEndpoints(ctx, opts)
	if err != nil {
		return nil, err
	}
	out := make([]*Endpoint, len(eps))
	for i, ep := range eps {
		out[i] = ep.Masked()
	}
	return out, nil
}

// Update applies patch to an endpoint. Re-activating an endpoint clears its
// failure counter.
func (svc *Service) Update(ctx context.Context, epID id.ID, caller Caller, patch Patch) (*Endpoint, error) {
	unlock := svc.locks.Lock(epID.String())
	defer unlock()

	ep, err := svc.load(ctx, epID, caller)
	if err != nil {
		return nil, err
	}

	if patch.URL != nil {
		if err := validateURL(*patch.URL); err != nil {
			return nil, err
		}
		ep.URL = *patch.URL
	}
	if patch.Events != nil {
		events, err := expandEvents(patch.Events)
		if err != nil {
			return nil, err
		}
		ep.Events = events
	}
	if patch.Description != nil {
		ep.Description = *patch.Description
	}
	if patch.Headers != nil {
		ep.Headers = patch.Headers
	}
	if patch.RateLimit != nil {
		if *patch.RateLimit < 0 {
			return nil, &ValidationError{Field: "rate_limit", Message: "must not be negative"}
		}
		ep.RateLimit = *patch.RateLimit
	}
	if patch.Metadata != nil {
		ep.Metadata = patch.Metadata
	}
	if patch.Active != nil {
		ep.Active = *patch.Active
		if ep.Active {
			ep.ConsecutiveFailures = 0
		}
	}
	ep.Touch(svc.now())

	if err := svc.store.UpdateEndpoint(ctx, ep); err != nil {
		return nil, err
	}

	svc.logger.DebugContext(ctx, "endpoint updated",
		"endpoint_id", ep.ID.String(),
		"is_active", ep.Active,
	)
	return ep.Masked(), nil
}

// Delete removes an endpoint immediately.
func (svc *Service) Delete(ctx context.Context, epID id.ID, caller Caller) error {
	unlock := svc.locks.Lock(epID.String())
	defer unlock()

	if _, err := svc.load(ctx, epID, caller); err != nil {
		return err
	}
	if err := svc.store.DeleteEndpoint(ctx, epID); err != nil {
		return err
	}
	if svc.onDelete != nil {
		svc.onDelete(epID)
	}

	svc.logger.InfoContext(ctx, "endpoint deleted", "endpoint_id", epID.String())
	return nil
}

// RotateSecret replaces the signing secret and returns the new one in full.
func (svc *Service) RotateSecret(ctx context.Context, epID id.ID, caller Caller) (string, error) {
	unlock := svc.locks.Lock(epID.String())
	defer unlock()

	ep, err := svc.load(ctx, epID, caller)
	if err != nil {
		return "", err
	}

	ep.Secret = signature.GenerateSecret()
	ep.Touch(svc.now())
	if err := svc.store.UpdateEndpoint(ctx, ep); err != nil {
		return "", err
	}

	svc.logger.InfoContext(ctx, "endpoint secret rotated", "endpoint_id", epID.String())
	return ep.Secret, nil
}

// RecordOutcome feeds one delivery result into the endpoint's failure
// counter and returns the updated endpoint. Reaching the threshold
// deactivates the endpoint; later failures keep it inactive.
func (svc *Service) RecordOutcome(ctx context.Context, epID id.ID, success bool) (*Endpoint, error) {
	unlock := svc.locks.Lock(epID.String())
	defer unlock()

	ep, err := svc.store.RecordOutcome(ctx, epID, success, svc.threshold, svc.now())
	if err != nil {
		return nil, err
	}

	if !success && !ep.Active && ep.ConsecutiveFailures == svc.threshold {
		svc.logger.WarnContext(ctx, "endpoint disabled after consecutive failures",
			"endpoint_id", ep.ID.String(),
			"tenant_id", ep.TenantID,
			"failures", ep.ConsecutiveFailures,
		)
	}
	return ep.Masked(), nil
}

// load fetches an endpoint and hides it from callers outside its tenant.
func (svc *Service) load(ctx context.Context, epID id.ID, caller Caller) (*Endpoint, error) {
	ep, err := svc.store.GetEndpoint(ctx, epID)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(ep.TenantID) {
		return nil, ErrNotFound
	}
	return ep, nil
}

func validateURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil || u.Host == "" {
		return &ValidationError{Field: "url", Message: "invalid URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: "url", Message: "scheme must be http or https"}
	}
	return nil
}

func expandEvents(patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return nil, &ValidationError{Field: "events", Message: "at least one event type required"}
	}
	events, err := catalog.Expand(patterns)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownEventType) {
			return nil, &ValidationError{Field: "events", Message: err.Error()}
		}
		return nil, err
	}
	return events, nil
}
