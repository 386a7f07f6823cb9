package endpoint

import (
	"context"
	"time"

	"github.com/xraph/herald/id"
)

// Store defines the persistence contract for webhook endpoints.
// Implementations return ErrNotFound for unknown IDs and must not let
// callers mutate stored state through returned pointers.
type Store interface {
	CreateEndpoint(ctx context.Context, ep *Endpoint) error

	GetEndpoint(ctx context.Context, epID id.ID) (*Endpoint, error)

	// UpdateEndpoint replaces the mutable fields of an existing endpoint.
	UpdateEndpoint(ctx context.Context, ep *Endpoint) error

	DeleteEndpoint(ctx context.Context, epID id.ID) error

	// ListEndpoints returns endpoints ordered by creation time.
	ListEndpoints(ctx context.Context, opts ListOpts) ([]*Endpoint, error)

	// Resolve returns the active endpoints of tenantID subscribed to
	// eventType. Called on every dispatch.
	Resolve(ctx context.Context, tenantID, eventType string) ([]*Endpoint, error)

	// RecordOutcome applies one delivery result atomically. On success the
	// failure counter is cleared and LastTriggeredAt set to at. On failure
	// the counter is incremented and the endpoint deactivated once the
	// counter reaches threshold.
	RecordOutcome(ctx context.Context, epID id.ID, success bool, threshold int, at time.Time) (*Endpoint, error)
}
