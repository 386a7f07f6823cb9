// Package memory provides an in-memory Store for tests and single-process
// deployments.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/xraph/herald"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/id"
	heraldstore "github.com/xraph/herald/store"
)

// compile-time interface check.
var _ heraldstore.Store = (*Store)(nil)

// Store keeps every record in maps guarded by one RWMutex. Values are
// copied on the way in and out, so callers never share state with the store.
type Store struct {
	mu sync.RWMutex

	endpoints map[string]*endpoint.Endpoint  // keyed by ID string
	attempts  map[string][]*delivery.Attempt // keyed by endpoint ID string

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		endpoints: make(map[string]*endpoint.Endpoint),
		attempts:  make(map[string][]*delivery.Attempt),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return herald.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed. Later calls fail with ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// endpoint.Store
// ──────────────────────────────────────────────────

func (s *Store) CreateEndpoint(_ context.Context, ep *endpoint.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return herald.ErrStoreClosed
	}

	s.endpoints[ep.ID.String()] = ep.Clone()
	return nil
}

func (s *Store) GetEndpoint(_ context.Context, epID id.ID) (*endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, herald.ErrStoreClosed
	}

	ep, ok := s.endpoints[epID.String()]
	if !ok {
		return nil, endpoint.ErrNotFound
	}
	return ep.Clone(), nil
}

func (s *Store) UpdateEndpoint(_ context.Context, ep *endpoint.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return herald.ErrStoreClosed
	}

	if _, ok := s.endpoints[ep.ID.String()]; !ok {
		return endpoint.ErrNotFound
	}
	s.endpoints[ep.ID.String()] = ep.Clone()
	return nil
}

func (s *Store) DeleteEndpoint(_ context.Context, epID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return herald.ErrStoreClosed
	}

	if _, ok := s.endpoints[epID.String()]; !ok {
		return endpoint.ErrNotFound
	}
	delete(s.endpoints, epID.String())
	delete(s.attempts, epID.String())
	return nil
}

func (s *Store) ListEndpoints(_ context.Context, opts endpoint.ListOpts) ([]*endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, herald.ErrStoreClosed
	}

	result := make([]*endpoint.Endpoint, 0, len(s.endpoints))
	for _, ep := range s.endpoints {
		if opts.TenantID != "" && ep.TenantID != opts.TenantID {
			continue
		}
		if opts.Active != nil && ep.Active != *opts.Active {
			continue
		}
		result = append(result, ep)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID.String() < result[j].ID.String()
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return cloneAll(result), nil
}

func (s *Store) Resolve(_ context.Context, tenantID, eventType string) ([]*endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, herald.ErrStoreClosed
	}

	var result []*endpoint.Endpoint
	for _, ep := range s.endpoints {
		if ep.TenantID != tenantID || !ep.Active {
			continue
		}
		if slices.Contains(ep.Events, eventType) {
			result = append(result, ep.Clone())
		}
	}
	return result, nil
}

// RecordOutcome mutates the endpoint under the store's write lock.
func (s *Store) RecordOutcome(_ context.Context, epID id.ID, success bool, threshold int, at time.Time) (*endpoint.Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, herald.ErrStoreClosed
	}

	ep, ok := s.endpoints[epID.String()]
	if !ok {
		return nil, endpoint.ErrNotFound
	}

	if success {
		ep.ConsecutiveFailures = 0
		t := at.UTC()
		ep.LastTriggeredAt = &t
	} else {
		ep.ConsecutiveFailures++
		if ep.ConsecutiveFailures >= threshold {
			ep.Active = false
		}
	}
	ep.UpdatedAt = at.UTC()
	return ep.Clone(), nil
}

// ──────────────────────────────────────────────────
// delivery.Store
// ──────────────────────────────────────────────────

func (s *Store) RecordAttempt(_ context.Context, a *delivery.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return herald.ErrStoreClosed
	}

	cp := *a
	key := a.EndpointID.String()
	s.attempts[key] = append(s.attempts[key], &cp)
	return nil
}

func (s *Store) ListAttempts(_ context.Context, epID id.ID, opts delivery.ListOpts) ([]*delivery.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, herald.ErrStoreClosed
	}

	all := s.attempts[epID.String()]
	result := make([]*delivery.Attempt, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		a := all[i]
		if opts.Success != nil && a.Success != *opts.Success {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func cloneAll(eps []*endpoint.Endpoint) []*endpoint.Endpoint {
	out := make([]*endpoint.Endpoint, len(eps))
	for i, ep := range eps {
		out[i] = ep.Clone()
	}
	return out
}

func applyPagination[T any](items []*T, offset, limit int) []*T {
	if offset >= len(items) {
		return items[:0]
	}
	if offset > 0 {
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
