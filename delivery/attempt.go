package delivery

import (
	"context"
	"time"

	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/id"
)

// Attempt is the stored record of one delivery attempt.
type Attempt struct {
	// EventID is the per-attempt identifier sent in the envelope.
	EventID     id.ID     `json:"event_id"`
	EndpointID  id.ID     `json:"endpoint_id"`
	TenantID    string    `json:"tenant_id"`
	EventType   string    `json:"event_type"`
	Success     bool      `json:"success"`
	StatusCode  int       `json:"status_code,omitempty"`
	Error       string    `json:"error,omitempty"`
	Response    string    `json:"response,omitempty"`
	LatencyMs   int       `json:"latency_ms"`
	AttemptedAt time.Time `json:"attempted_at"`
}

// ListOpts configures filtering and pagination for attempt listing.
type ListOpts struct {
	Offset  int
	Limit   int
	Success *bool
}

// Store persists the attempt log. The log is informational: nothing in the
// dispatch path reads it back.
type Store interface {
	RecordAttempt(ctx context.Context, a *Attempt) error

	// ListAttempts returns an endpoint's attempts, newest first.
	ListAttempts(ctx context.Context, epID id.ID, opts ListOpts) ([]*Attempt, error)
}

func newAttempt(ep *endpoint.Endpoint, eventType string, o Outcome) *Attempt {
	return &Attempt{
		EventID:     o.EventID,
		EndpointID:  ep.ID,
		TenantID:    ep.TenantID,
		EventType:   eventType,
		Success:     o.Success,
		StatusCode:  o.StatusCode,
		Error:       o.Error,
		Response:    o.Response,
		LatencyMs:   o.LatencyMs,
		AttemptedAt: o.AttemptedAt,
	}
}
