package endpoint

import (
	"maps"
	"slices"
	"time"

	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
	"github.com/xraph/herald/signature"
)

// Endpoint is a webhook target registered by a tenant.
type Endpoint struct {
	entity.Entity

	ID       id.ID  `json:"id"`
	TenantID string `json:"tenant_id"`
	URL      string `json:"url"`

	// Secret is the HMAC signing key. Never serialized; callers outside
	// Create and RotateSecret only ever see Mask(Secret).
	Secret string `json:"-"`

	// Events is the de-duplicated set of subscribed event types.
	Events []string `json:"events"`

	Description string `json:"description"`

	// Active gates dispatch. It is cleared automatically once
	// ConsecutiveFailures reaches the disable threshold.
	Active bool `json:"is_active"`

	ConsecutiveFailures int `json:"consecutive_failures"`

	// LastTriggeredAt is the time of the last successful delivery.
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`

	// Headers are sent with every delivery. They cannot override the
	// protocol headers.
	Headers map[string]string `json:"headers,omitempty"`

	// RateLimit is the maximum deliveries per second. 0 means unlimited.
	RateLimit int `json:"rate_limit"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// Subscribes reports whether the endpoint listens for eventType.
func (e *Endpoint) Subscribes(eventType string) bool {
	return slices.Contains(e.Events, eventType)
}

// Clone returns a deep copy.
func (e *Endpoint) Clone() *Endpoint {
	cp := *e
	cp.Events = slices.Clone(e.Events)
	cp.Headers = maps.Clone(e.Headers)
	cp.Metadata = maps.Clone(e.Metadata)
	if e.LastTriggeredAt != nil {
		t := *e.LastTriggeredAt
		cp.LastTriggeredAt = &t
	}
	return &cp
}

// Masked returns a copy whose Secret is reduced to its masked form.
func (e *Endpoint) Masked() *Endpoint {
	cp := e.Clone()
	cp.Secret = signature.Mask(e.Secret)
	return cp
}

// Caller is the verified identity behind a registry request.
type Caller struct {
	TenantID   string
	SuperAdmin bool
}

// CanAccess reports whether the caller may see an endpoint owned by tenantID.
func (c Caller) CanAccess(tenantID string) bool {
	return c.SuperAdmin || (c.TenantID != "" && c.TenantID == tenantID)
}
