// Package storetest is a conformance suite for store.Store backends.
//
// Every case works inside its own tenant, so a backend may be shared
// across cases and with other test runs against the same database.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
	"github.com/xraph/herald/store"
)

// Run executes the suite against s, which must already be migrated.
func Run(t *testing.T, s store.Store) {
	t.Helper()

	t.Run("EndpointRoundTrip", func(t *testing.T) { testEndpointRoundTrip(t, s) })
	t.Run("UpdateEndpoint", func(t *testing.T) { testUpdateEndpoint(t, s) })
	t.Run("DeleteEndpoint", func(t *testing.T) { testDeleteEndpoint(t, s) })
	t.Run("ListEndpoints", func(t *testing.T) { testListEndpoints(t, s) })
	t.Run("Resolve", func(t *testing.T) { testResolve(t, s) })
	t.Run("RecordOutcomeThreshold", func(t *testing.T) { testRecordOutcomeThreshold(t, s) })
	t.Run("RecordOutcomeConcurrent", func(t *testing.T) { testRecordOutcomeConcurrent(t, s) })
	t.Run("Attempts", func(t *testing.T) { testAttempts(t, s) })
}

// tenant returns a tenant ID no other case or run uses.
func tenant() string {
	return "tenant_" + id.NewEventID().String()
}

// at truncates to milliseconds, the coarsest precision any backend keeps.
func at(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func newEndpoint(tenantID string, events ...string) *endpoint.Endpoint {
	now := at(time.Now())
	return &endpoint.Endpoint{
		Entity:   entity.Entity{CreatedAt: now, UpdatedAt: now},
		ID:       id.NewEndpointID(),
		TenantID: tenantID,
		URL:      "https://example.com/hook",
		Secret:   "whsec_0123456789abcdef",
		Events:   events,
		Active:   true,
	}
}

func create(t *testing.T, s store.Store, ep *endpoint.Endpoint) {
	t.Helper()
	if err := s.CreateEndpoint(context.Background(), ep); err != nil {
		t.Fatalf("CreateEndpoint: %v", err)
	}
}

func testEndpointRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()

	ep := newEndpoint(tenant(), "order.created", "payment.failed")
	ep.Description = "orders"
	ep.Headers = map[string]string{"X-Env": "prod"}
	ep.Metadata = map[string]string{"team": "billing"}
	ep.RateLimit = 5
	create(t, s, ep)

	got, err := s.GetEndpoint(ctx, ep.ID)
	if err != nil {
		t.Fatalf("GetEndpoint: %v", err)
	}
	if got.ID.String() != ep.ID.String() || got.TenantID != ep.TenantID || got.URL != ep.URL {
		t.Fatalf("identity mismatch: %+v", got)
	}
	if got.Secret != ep.Secret {
		t.Fatal("stores must keep the full secret")
	}
	if len(got.Events) != 2 || got.Events[0] != "order.created" || got.Events[1] != "payment.failed" {
		t.Fatalf("Events = %v", got.Events)
	}
	if got.Headers["X-Env"] != "prod" || got.Metadata["team"] != "billing" || got.RateLimit != 5 {
		t.Fatalf("options mismatch: %+v", got)
	}
	if !got.Active || got.ConsecutiveFailures != 0 || got.LastTriggeredAt != nil {
		t.Fatalf("fresh endpoint state: %+v", got)
	}
	if !got.CreatedAt.Equal(ep.CreatedAt) || !got.UpdatedAt.Equal(ep.UpdatedAt) {
		t.Fatalf("timestamps: got %v/%v, want %v/%v", got.CreatedAt, got.UpdatedAt, ep.CreatedAt, ep.UpdatedAt)
	}

	if _, err := s.GetEndpoint(ctx, id.NewEndpointID()); !errors.Is(err, endpoint.ErrNotFound) {
		t.Fatalf("GetEndpoint(missing) = %v, want ErrNotFound", err)
	}
}

func testUpdateEndpoint(t *testing.T, s store.Store) {
	ctx := context.Background()
	tid := tenant()

	ep := newEndpoint(tid, "order.created")
	create(t, s, ep)

	ep.Events = []string{"payment.failed"}
	ep.URL = "https://example.com/v2"
	ep.UpdatedAt = at(ep.UpdatedAt.Add(time.Second))
	if err := s.UpdateEndpoint(ctx, ep); err != nil {
		t.Fatalf("UpdateEndpoint: %v", err)
	}

	got, err := s.GetEndpoint(ctx, ep.ID)
	if err != nil {
		t.Fatalf("GetEndpoint: %v", err)
	}
	if got.URL != "https://example.com/v2" || !got.UpdatedAt.Equal(ep.UpdatedAt) {
		t.Fatalf("update not applied: %+v", got)
	}
	if r, _ := s.Resolve(ctx, tid, "order.created"); len(r) != 0 {
		t.Fatal("dropped subscription still resolves")
	}
	if r, _ := s.Resolve(ctx, tid, "payment.failed"); len(r) != 1 {
		t.Fatal("new subscription does not resolve")
	}

	if err := s.UpdateEndpoint(ctx, newEndpoint(tid, "order.created")); !errors.Is(err, endpoint.ErrNotFound) {
		t.Fatalf("UpdateEndpoint(missing) = %v, want ErrNotFound", err)
	}
}

func testDeleteEndpoint(t *testing.T, s store.Store) {
	ctx := context.Background()
	tid := tenant()

	ep := newEndpoint(tid, "order.created")
	create(t, s, ep)

	if err := s.DeleteEndpoint(ctx, ep.ID); err != nil {
		t.Fatalf("DeleteEndpoint: %v", err)
	}
	if _, err := s.GetEndpoint(ctx, ep.ID); !errors.Is(err, endpoint.ErrNotFound) {
		t.Fatalf("GetEndpoint after delete = %v", err)
	}
	if r, _ := s.Resolve(ctx, tid, "order.created"); len(r) != 0 {
		t.Fatal("deleted endpoint still resolves")
	}
	if err := s.DeleteEndpoint(ctx, ep.ID); !errors.Is(err, endpoint.ErrNotFound) {
		t.Fatalf("second DeleteEndpoint = %v, want ErrNotFound", err)
	}
}

func testListEndpoints(t *testing.T, s store.Store) {
	ctx := context.Background()
	tid := tenant()
	base := at(time.Now())

	var ids []string
	for i := range 3 {
		ep := newEndpoint(tid, "order.created")
		ep.CreatedAt = base.Add(time.Duration(i) * time.Second)
		ep.Active = i != 1
		create(t, s, ep)
		ids = append(ids, ep.ID.String())
	}
	create(t, s, newEndpoint(tenant(), "order.created"))

	all, err := s.ListEndpoints(ctx, endpoint.ListOpts{TenantID: tid})
	if err != nil {
		t.Fatalf("ListEndpoints: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d endpoints, want 3", len(all))
	}
	for i, ep := range all {
		if ep.ID.String() != ids[i] {
			t.Fatalf("position %d: got %s, want creation order", i, ep.ID)
		}
	}

	page, _ := s.ListEndpoints(ctx, endpoint.ListOpts{TenantID: tid, Offset: 1, Limit: 1})
	if len(page) != 1 || page[0].ID.String() != ids[1] {
		t.Fatalf("page = %v, want [%s]", page, ids[1])
	}

	active := true
	act, _ := s.ListEndpoints(ctx, endpoint.ListOpts{TenantID: tid, Active: &active})
	if len(act) != 2 {
		t.Fatalf("active filter returned %d, want 2", len(act))
	}
}

func testResolve(t *testing.T, s store.Store) {
	ctx := context.Background()
	tid := tenant()

	want := newEndpoint(tid, "order.created", "order.updated")
	inactive := newEndpoint(tid, "order.created")
	inactive.Active = false
	create(t, s, want)
	create(t, s, inactive)
	create(t, s, newEndpoint(tenant(), "order.created"))
	create(t, s, newEndpoint(tid, "payment.failed"))

	got, err := s.Resolve(ctx, tid, "order.created")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 1 || got[0].ID.String() != want.ID.String() {
		t.Fatalf("Resolve returned %d endpoints, want only the active subscriber", len(got))
	}

	if got, _ := s.Resolve(ctx, tid, "order.cancelled"); len(got) != 0 {
		t.Fatalf("unsubscribed event resolved %d endpoints", len(got))
	}
}

func testRecordOutcomeThreshold(t *testing.T, s store.Store) {
	ctx := context.Background()
	tid := tenant()
	const threshold = 10

	ep := newEndpoint(tid, "order.created")
	create(t, s, ep)
	ts := at(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	for i := 1; i < threshold; i++ {
		got, err := s.RecordOutcome(ctx, ep.ID, false, threshold, ts)
		if err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
		if !got.Active || got.ConsecutiveFailures != i {
			t.Fatalf("after %d failures: active=%v failures=%d", i, got.Active, got.ConsecutiveFailures)
		}
	}

	got, err := s.RecordOutcome(ctx, ep.ID, false, threshold, ts)
	if err != nil {
		t.Fatalf("failure %d: %v", threshold, err)
	}
	if got.Active || got.ConsecutiveFailures != threshold {
		t.Fatalf("after %d failures: active=%v failures=%d, want disabled", threshold, got.Active, got.ConsecutiveFailures)
	}
	if r, _ := s.Resolve(ctx, tid, "order.created"); len(r) != 0 {
		t.Fatal("disabled endpoint still resolves")
	}

	got, _ = s.RecordOutcome(ctx, ep.ID, false, threshold, ts)
	if got.Active || got.ConsecutiveFailures != threshold+1 {
		t.Fatalf("failure past threshold: %+v", got)
	}

	later := ts.Add(time.Minute)
	got, err = s.RecordOutcome(ctx, ep.ID, true, threshold, later)
	if err != nil {
		t.Fatalf("success: %v", err)
	}
	if got.ConsecutiveFailures != 0 || got.LastTriggeredAt == nil || !got.LastTriggeredAt.Equal(later) {
		t.Fatalf("success did not reset: %+v", got)
	}
	if got.Active {
		t.Fatal("a success must not re-activate a disabled endpoint")
	}

	if _, err := s.RecordOutcome(ctx, id.NewEndpointID(), false, threshold, ts); !errors.Is(err, endpoint.ErrNotFound) {
		t.Fatalf("RecordOutcome(missing) = %v, want ErrNotFound", err)
	}
}

func testRecordOutcomeConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	const n = 10

	ep := newEndpoint(tenant(), "order.created")
	create(t, s, ep)

	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.RecordOutcome(ctx, ep.ID, false, n, time.Now()); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	got, err := s.GetEndpoint(ctx, ep.ID)
	if err != nil {
		t.Fatalf("GetEndpoint: %v", err)
	}
	if got.ConsecutiveFailures != n {
		t.Fatalf("lost increments: failures=%d, want %d", got.ConsecutiveFailures, n)
	}
	if got.Active {
		t.Fatalf("endpoint should be disabled after %d concurrent failures", n)
	}
}

func testAttempts(t *testing.T, s store.Store) {
	ctx := context.Background()
	tid := tenant()

	ep := newEndpoint(tid, "order.created")
	create(t, s, ep)
	base := at(time.Now())

	for i, ok := range []bool{true, false, true} {
		err := s.RecordAttempt(ctx, &delivery.Attempt{
			EventID:     id.NewEventID(),
			EndpointID:  ep.ID,
			TenantID:    tid,
			EventType:   "order.created",
			Success:     ok,
			StatusCode:  200 + i,
			LatencyMs:   10 * i,
			AttemptedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("RecordAttempt: %v", err)
		}
	}

	all, err := s.ListAttempts(ctx, ep.ID, delivery.ListOpts{})
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(all) != 3 || all[0].StatusCode != 202 || all[2].StatusCode != 200 {
		t.Fatalf("expected 3 attempts newest first, got %d", len(all))
	}
	if !all[0].AttemptedAt.Equal(base.Add(2 * time.Second)) {
		t.Fatalf("AttemptedAt = %v", all[0].AttemptedAt)
	}

	failed := false
	f, _ := s.ListAttempts(ctx, ep.ID, delivery.ListOpts{Success: &failed})
	if len(f) != 1 || f[0].StatusCode != 201 {
		t.Fatalf("failure filter: %+v", f)
	}

	page, _ := s.ListAttempts(ctx, ep.ID, delivery.ListOpts{Offset: 1, Limit: 1})
	if len(page) != 1 || page[0].StatusCode != 201 {
		t.Fatalf("page: %+v", page)
	}

	if err := s.DeleteEndpoint(ctx, ep.ID); err != nil {
		t.Fatalf("DeleteEndpoint: %v", err)
	}
	if left, _ := s.ListAttempts(ctx, ep.ID, delivery.ListOpts{}); len(left) != 0 {
		t.Fatalf("%d attempts survived endpoint deletion", len(left))
	}
}
