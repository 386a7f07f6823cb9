package herald_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/herald"
	"github.com/xraph/herald/catalog"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/store/memory"
)

func ctx() context.Context { return context.Background() }

func ptr[T any](v T) *T { return &v }

func setup(t *testing.T, opts ...herald.Option) *herald.Herald {
	t.Helper()
	opts = append([]herald.Option{herald.WithStore(memory.New())}, opts...)
	h, err := herald.New(opts...)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func createEndpoint(t *testing.T, h *herald.Herald, tenantID, url string, events ...string) *endpoint.Endpoint {
	t.Helper()
	ep, err := h.Endpoints().Create(ctx(), endpoint.Input{
		TenantID: tenantID,
		URL:      url,
		Events:   events,
	})
	if err != nil {
		t.Fatal(err)
	}
	return ep
}

// recorder counts requests per path and answers with status.
type recorder struct {
	mu     sync.Mutex
	hits   map[string]int
	bodies map[string][]byte
	status atomic.Int32
}

func newRecorder(t *testing.T, status int) (*recorder, *httptest.Server) {
	t.Helper()
	rec := &recorder{hits: make(map[string]int), bodies: make(map[string][]byte)}
	rec.status.Store(int32(status))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.hits[r.URL.Path]++
		rec.bodies[r.URL.Path] = body
		rec.mu.Unlock()
		w.WriteHeader(int(rec.status.Load()))
	}))
	t.Cleanup(srv.Close)
	return rec, srv
}

func (r *recorder) body(path string) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bodies[path]
}

func (r *recorder) count(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits[path]
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := herald.New(); !errors.Is(err, herald.ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got %v", err)
	}
	if _, err := herald.New(herald.WithStore(memory.New()), herald.WithConcurrency(0)); err == nil {
		t.Fatal("expected error for zero concurrency")
	}
}

func TestTenantAndEventScoping(t *testing.T) {
	h := setup(t)
	rec, srv := newRecorder(t, http.StatusOK)

	createEndpoint(t, h, "A", srv.URL+"/e1", catalog.OrderCreated)
	createEndpoint(t, h, "A", srv.URL+"/e2", catalog.PaymentFailed)
	createEndpoint(t, h, "B", srv.URL+"/e3", catalog.OrderCreated)

	reports := h.DispatchSync(ctx(), "A", catalog.OrderCreated, map[string]any{"order_id": "o1"})

	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	if rec.count("/e1") != 1 || rec.count("/e2") != 0 || rec.count("/e3") != 0 {
		t.Fatalf("unexpected hits: e1=%d e2=%d e3=%d", rec.count("/e1"), rec.count("/e2"), rec.count("/e3"))
	}

	var env map[string]any
	if err := json.Unmarshal(rec.body("/e1"), &env); err != nil {
		t.Fatal(err)
	}
	if env["event"] != catalog.OrderCreated {
		t.Fatalf("envelope event = %v", env["event"])
	}
	data, _ := env["data"].(map[string]any)
	if data["order_id"] != "o1" {
		t.Fatalf("envelope data = %v", env["data"])
	}
}

func TestTenFailuresDisableEndpoint(t *testing.T) {
	h := setup(t)
	rec, srv := newRecorder(t, http.StatusInternalServerError)
	admin := endpoint.Caller{SuperAdmin: true}

	ep := createEndpoint(t, h, "A", srv.URL+"/e1", catalog.OrderCreated)

	for i := 1; i <= 9; i++ {
		reports := h.DispatchSync(ctx(), "A", catalog.OrderCreated, nil)
		if len(reports) != 1 || reports[0].Outcome.Success || reports[0].Disabled {
			t.Fatalf("dispatch %d: unexpected report %+v", i, reports)
		}
	}

	got, err := h.Endpoints().Get(ctx(), ep.ID, admin)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Active || got.ConsecutiveFailures != 9 {
		t.Fatalf("after 9 failures: active=%v failures=%d", got.Active, got.ConsecutiveFailures)
	}

	reports := h.DispatchSync(ctx(), "A", catalog.OrderCreated, nil)
	if len(reports) != 1 || !reports[0].Disabled {
		t.Fatalf("10th dispatch should disable, got %+v", reports)
	}

	got, _ = h.Endpoints().Get(ctx(), ep.ID, admin)
	if got.Active || got.ConsecutiveFailures != 10 {
		t.Fatalf("after 10 failures: active=%v failures=%d", got.Active, got.ConsecutiveFailures)
	}

	// The 11th dispatch does not reach the endpoint.
	if reports := h.DispatchSync(ctx(), "A", catalog.OrderCreated, nil); len(reports) != 0 {
		t.Fatalf("disabled endpoint still matched: %+v", reports)
	}
	if rec.count("/e1") != 10 {
		t.Fatalf("expected 10 requests, got %d", rec.count("/e1"))
	}

	// Re-enabling clears the counter and makes it eligible again.
	rec.status.Store(http.StatusOK)
	updated, err := h.Endpoints().Update(ctx(), ep.ID, endpoint.Caller{TenantID: "A"}, endpoint.Patch{Active: ptr(true)})
	if err != nil {
		t.Fatal(err)
	}
	if !updated.Active || updated.ConsecutiveFailures != 0 {
		t.Fatalf("after re-enable: %+v", updated)
	}

	reports = h.DispatchSync(ctx(), "A", catalog.OrderCreated, nil)
	if len(reports) != 1 || !reports[0].Outcome.Success {
		t.Fatalf("re-enabled endpoint not delivered: %+v", reports)
	}
	got, _ = h.Endpoints().Get(ctx(), ep.ID, admin)
	if got.LastTriggeredAt == nil {
		t.Fatal("expected LastTriggeredAt after success")
	}
}

func TestSuccessResetsFailures(t *testing.T) {
	h := setup(t)
	rec, srv := newRecorder(t, http.StatusBadGateway)
	admin := endpoint.Caller{SuperAdmin: true}

	ep := createEndpoint(t, h, "A", srv.URL+"/e1", catalog.IoTAlert)
	for range 5 {
		h.DispatchSync(ctx(), "A", catalog.IoTAlert, nil)
	}

	rec.status.Store(http.StatusAccepted)
	h.DispatchSync(ctx(), "A", catalog.IoTAlert, nil)

	got, _ := h.Endpoints().Get(ctx(), ep.ID, admin)
	if got.ConsecutiveFailures != 0 || !got.Active {
		t.Fatalf("expected reset, got failures=%d active=%v", got.ConsecutiveFailures, got.Active)
	}
}

func TestDispatchDoesNotWaitForDelivery(t *testing.T) {
	h := setup(t, herald.WithRequestTimeout(2*time.Second))

	release := make(chan struct{})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	createEndpoint(t, h, "A", srv.URL, catalog.ShipmentDelivered)

	callerCtx, cancel := context.WithCancel(ctx())
	start := time.Now()
	h.Dispatch(callerCtx, "A", catalog.ShipmentDelivered, json.RawMessage(`{"id":"s1"}`))
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("Dispatch blocked on delivery")
	}

	// Cancelling the caller does not abort the attempt.
	cancel()
	close(release)

	if err := h.Stop(ctx()); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected delivery to complete, got %d", hits.Load())
	}
	if err := h.Stop(ctx()); !errors.Is(err, herald.ErrStopped) {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestSlowEndpointDoesNotDelayOthers(t *testing.T) {
	h := setup(t, herald.WithRequestTimeout(300*time.Millisecond))

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer slow.Close()
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer fast.Close()

	createEndpoint(t, h, "A", slow.URL, catalog.TokenMinted)
	createEndpoint(t, h, "A", fast.URL, catalog.TokenMinted)

	start := time.Now()
	reports := h.DispatchSync(ctx(), "A", catalog.TokenMinted, nil)
	if elapsed := time.Since(start); elapsed > 900*time.Millisecond {
		t.Fatalf("dispatch took %v; attempts were not concurrent or not bounded", elapsed)
	}

	var ok, failed int
	for _, r := range reports {
		if r.Outcome.Success {
			ok++
		} else {
			failed++
		}
	}
	if ok != 1 || failed != 1 {
		t.Fatalf("expected 1 success and 1 timeout, got %d/%d", ok, failed)
	}
}

func TestInvalidPayloadDropped(t *testing.T) {
	h := setup(t)
	rec, srv := newRecorder(t, http.StatusOK)
	createEndpoint(t, h, "A", srv.URL+"/e1", catalog.PaymentSucceeded)

	err := h.Catalog().SetSchema(catalog.PaymentSucceeded, json.RawMessage(`{
		"type": "object", "required": ["amount"]
	}`))
	if err != nil {
		t.Fatal(err)
	}

	if reports := h.DispatchSync(ctx(), "A", catalog.PaymentSucceeded, map[string]any{"x": 1}); reports != nil {
		t.Fatalf("invalid payload dispatched: %+v", reports)
	}
	h.DispatchSync(ctx(), "A", catalog.PaymentSucceeded, []byte(`not json`))
	if rec.count("/e1") != 0 {
		t.Fatal("invalid payload reached the endpoint")
	}

	h.DispatchSync(ctx(), "A", catalog.PaymentSucceeded, map[string]any{"amount": 5})
	if rec.count("/e1") != 1 {
		t.Fatal("valid payload was not delivered")
	}
}

func TestAttemptLog(t *testing.T) {
	h := setup(t)
	_, srv := newRecorder(t, http.StatusOK)
	ep := createEndpoint(t, h, "A", srv.URL, catalog.ListingCreated)

	h.DispatchSync(ctx(), "A", catalog.ListingCreated, nil)
	h.DispatchSync(ctx(), "A", catalog.ListingCreated, nil)

	attempts, err := h.Attempts(ctx(), ep.ID, endpoint.Caller{TenantID: "A"}, delivery.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
	if !attempts[0].Success || attempts[0].EventType != catalog.ListingCreated {
		t.Fatalf("unexpected attempt %+v", attempts[0])
	}
	if !strings.HasPrefix(attempts[0].EventID.String(), "evt_") {
		t.Fatalf("event id = %q", attempts[0].EventID)
	}

	if _, err := h.Attempts(ctx(), ep.ID, endpoint.Caller{TenantID: "B"}, delivery.ListOpts{}); !errors.Is(err, herald.ErrEndpointNotFound) {
		t.Fatalf("cross-tenant attempts: %v", err)
	}
}

func TestUnknownEventTypeMatchesNothing(t *testing.T) {
	h := setup(t)
	_, srv := newRecorder(t, http.StatusOK)
	createEndpoint(t, h, "A", srv.URL, "*")

	if reports := h.DispatchSync(ctx(), "A", "user.signup", nil); len(reports) != 0 {
		t.Fatalf("unknown event type matched: %+v", reports)
	}
}
