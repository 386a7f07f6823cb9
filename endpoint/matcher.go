package endpoint

import (
	"context"
	"fmt"
)

// Matcher selects the endpoints that should receive an event.
type Matcher struct {
	store Store
}

// NewMatcher returns a Matcher reading from store.
func NewMatcher(store Store) *Matcher {
	return &Matcher{store: store}
}

// Match returns the active endpoints of tenantID subscribed to eventType.
// The store's answer is filtered again so a backend can never hand an
// inactive, foreign or unsubscribed endpoint to the dispatcher. Returned
// endpoints carry their full secrets.
func (m *Matcher) Match(ctx context.Context, tenantID, eventType string) ([]*Endpoint, error) {
	candidates, err := m.store.Resolve(ctx, tenantID, eventType)
	if err != nil {
		return nil, fmt.Errorf("herald: resolve endpoints: %w", err)
	}

	out := make([]*Endpoint, 0, len(candidates))
	for _, ep := range candidates {
		if ep.TenantID != tenantID || !ep.Active || !ep.Subscribes(eventType) {
			continue
		}
		out = append(out, ep.Clone())
	}
	return out, nil
}
