package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
	"github.com/xraph/herald/store/storetest"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	s := NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func testEndpoint(tenantID string, events ...string) *endpoint.Endpoint {
	return &endpoint.Endpoint{
		Entity:   entity.New(),
		ID:       id.NewEndpointID(),
		TenantID: tenantID,
		URL:      "https://example.com/hook",
		Secret:   "whsec_abc",
		Events:   events,
		Active:   true,
	}
}

func TestConformance(t *testing.T) {
	s, _ := newTestStore(t)
	storetest.Run(t, s)
}

func TestPing(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestEndpointRoundTrip(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	ep := testEndpoint("A", "order.created", "payment.failed")
	ep.Headers = map[string]string{"X-Env": "prod"}
	ep.RateLimit = 5
	if err := s.CreateEndpoint(ctx, ep); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists(prefixEndpoint + ep.ID.String()) {
		t.Fatal("expected endpoint document key")
	}

	got, err := s.GetEndpoint(ctx, ep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Secret != ep.Secret || got.Headers["X-Env"] != "prod" || got.RateLimit != 5 || len(got.Events) != 2 {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	if _, err := s.GetEndpoint(ctx, id.NewEndpointID()); !errors.Is(err, endpoint.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateReindexesSubscriptions(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ep := testEndpoint("A", "order.created")
	_ = s.CreateEndpoint(ctx, ep)

	ep.Events = []string{"payment.failed"}
	if err := s.UpdateEndpoint(ctx, ep); err != nil {
		t.Fatal(err)
	}

	if got, _ := s.Resolve(ctx, "A", "order.created"); len(got) != 0 {
		t.Fatalf("old subscription still resolves: %d", len(got))
	}
	if got, _ := s.Resolve(ctx, "A", "payment.failed"); len(got) != 1 {
		t.Fatalf("new subscription does not resolve: %d", len(got))
	}

	if err := s.UpdateEndpoint(ctx, testEndpoint("A", "order.created")); !errors.Is(err, endpoint.ErrNotFound) {
		t.Fatalf("update missing: %v", err)
	}
}

func TestResolveFilters(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	want := testEndpoint("A", "order.created")
	inactive := testEndpoint("A", "order.created")
	inactive.Active = false
	for _, ep := range []*endpoint.Endpoint{want, inactive, testEndpoint("B", "order.created"), testEndpoint("A", "payment.failed")} {
		if err := s.CreateEndpoint(ctx, ep); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Resolve(ctx, "A", "order.created")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID.String() != want.ID.String() {
		t.Fatalf("Resolve returned %d endpoints", len(got))
	}
}

func TestListEndpoints(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, tenant := range []string{"A", "B", "A"} {
		ep := testEndpoint(tenant, "order.created")
		ep.CreatedAt = base.Add(time.Duration(i) * time.Second)
		_ = s.CreateEndpoint(ctx, ep)
	}

	all, _ := s.ListEndpoints(ctx, endpoint.ListOpts{})
	if len(all) != 3 || all[0].CreatedAt.After(all[2].CreatedAt) {
		t.Fatalf("expected 3 endpoints in creation order, got %d", len(all))
	}
	a, _ := s.ListEndpoints(ctx, endpoint.ListOpts{TenantID: "A", Limit: 1, Offset: 1})
	if len(a) != 1 || a[0].TenantID != "A" {
		t.Fatalf("paged tenant list: %+v", a)
	}
}

func TestRecordOutcome(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ep := testEndpoint("A", "order.created")
	_ = s.CreateEndpoint(ctx, ep)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for range 2 {
		if _, err := s.RecordOutcome(ctx, ep.ID, false, 3, at); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := s.RecordOutcome(ctx, ep.ID, false, 3, at)
	if got.Active || got.ConsecutiveFailures != 3 {
		t.Fatalf("expected disabled at 3 failures, got %+v", got)
	}
	if r, _ := s.Resolve(ctx, "A", "order.created"); len(r) != 0 {
		t.Fatal("disabled endpoint still resolves")
	}

	got, _ = s.RecordOutcome(ctx, ep.ID, true, 3, at)
	if got.ConsecutiveFailures != 0 || got.LastTriggeredAt == nil || !got.LastTriggeredAt.Equal(at) {
		t.Fatalf("success: %+v", got)
	}

	if _, err := s.RecordOutcome(ctx, id.NewEndpointID(), false, 3, at); !errors.Is(err, endpoint.ErrNotFound) {
		t.Fatalf("missing: %v", err)
	}
}

func TestRecordOutcomeConcurrent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ep := testEndpoint("A", "order.created")
	_ = s.CreateEndpoint(ctx, ep)

	const n = 8
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.RecordOutcome(ctx, ep.ID, false, 100, time.Now()); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	got, _ := s.GetEndpoint(ctx, ep.ID)
	if got.ConsecutiveFailures != n {
		t.Fatalf("lost increments: %d, want %d", got.ConsecutiveFailures, n)
	}
}

func TestAttempts(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	ep := testEndpoint("A", "order.created")
	_ = s.CreateEndpoint(ctx, ep)
	base := time.Now().UTC()

	for i, ok := range []bool{true, false, true} {
		err := s.RecordAttempt(ctx, &delivery.Attempt{
			EventID:     id.NewEventID(),
			EndpointID:  ep.ID,
			TenantID:    "A",
			EventType:   "order.created",
			Success:     ok,
			StatusCode:  200 + i,
			AttemptedAt: base.Add(time.Duration(i) * time.Millisecond),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListAttempts(ctx, ep.ID, delivery.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].StatusCode != 202 {
		t.Fatalf("expected newest first, got %d", len(all))
	}

	failed := false
	f, _ := s.ListAttempts(ctx, ep.ID, delivery.ListOpts{Success: &failed})
	if len(f) != 1 || f[0].StatusCode != 201 {
		t.Fatalf("failure filter: %+v", f)
	}

	if err := s.DeleteEndpoint(ctx, ep.ID); err != nil {
		t.Fatal(err)
	}
	if mr.Exists(zAttemptEP + ep.ID.String()) {
		t.Fatal("attempt log should be removed with the endpoint")
	}
	if err := s.DeleteEndpoint(ctx, ep.ID); !errors.Is(err, endpoint.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}
