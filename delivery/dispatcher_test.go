package delivery_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/observability"
	"github.com/xraph/herald/ratelimit"
)

// fakeMatcher returns a fixed endpoint list.
type fakeMatcher struct {
	endpoints []*endpoint.Endpoint
	err       error
	calls     atomic.Int32
}

func (m *fakeMatcher) Match(_ context.Context, _, _ string) ([]*endpoint.Endpoint, error) {
	m.calls.Add(1)
	return m.endpoints, m.err
}

// fakeRegistry mimics the circuit breaker bookkeeping.
type fakeRegistry struct {
	mu        sync.Mutex
	threshold int
	failures  map[string]int
	successes map[string]int
}

func newFakeRegistry(threshold int) *fakeRegistry {
	return &fakeRegistry{threshold: threshold, failures: map[string]int{}, successes: map[string]int{}}
}

func (r *fakeRegistry) RecordOutcome(_ context.Context, epID id.ID, success bool) (*endpoint.Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := epID.String()
	if success {
		r.failures[key] = 0
		r.successes[key]++
	} else {
		r.failures[key]++
	}
	return &endpoint.Endpoint{
		ID:                  epID,
		ConsecutiveFailures: r.failures[key],
		Active:              r.failures[key] < r.threshold,
	}, nil
}

func (r *fakeRegistry) DisableThreshold() int { return r.threshold }

func (r *fakeRegistry) counts(epID id.ID) (failures, successes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures[epID.String()], r.successes[epID.String()]
}

// memAttempts collects attempt records.
type memAttempts struct {
	mu       sync.Mutex
	attempts []*delivery.Attempt
}

func (s *memAttempts) RecordAttempt(_ context.Context, a *delivery.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, a)
	return nil
}

func (s *memAttempts) ListAttempts(_ context.Context, _ id.ID, _ delivery.ListOpts) ([]*delivery.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*delivery.Attempt(nil), s.attempts...), nil
}

type rejectAll struct{}

func (rejectAll) ValidatePayload(string, json.RawMessage) error { return errors.New("bad payload") }

func okServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func failServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDispatchSyncReports(t *testing.T) {
	good := newTestEndpoint(okServer(t).URL)
	bad := newTestEndpoint(failServer(t).URL)
	reg := newFakeRegistry(10)

	d := delivery.NewDispatcher(
		&fakeMatcher{endpoints: []*endpoint.Endpoint{good, bad}},
		reg,
		delivery.NewExecutor(time.Second),
		delivery.DispatcherConfig{Concurrency: 4, RequestTimeout: time.Second},
		nil,
	)

	reports := d.DispatchSync(context.Background(), "tenant-1", "order.created", json.RawMessage(`{}`))
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if !reports[0].Outcome.Success || reports[0].Outcome.StatusCode != 204 {
		t.Errorf("good endpoint: %+v", reports[0].Outcome)
	}
	if reports[1].Outcome.Success || reports[1].Outcome.StatusCode != 500 {
		t.Errorf("bad endpoint: %+v", reports[1].Outcome)
	}

	if _, s := reg.counts(good.ID); s != 1 {
		t.Errorf("good successes = %d", s)
	}
	if f, _ := reg.counts(bad.ID); f != 1 {
		t.Errorf("bad failures = %d", f)
	}
}

func TestDispatchNoMatches(t *testing.T) {
	d := delivery.NewDispatcher(&fakeMatcher{}, newFakeRegistry(10), delivery.NewExecutor(time.Second),
		delivery.DispatcherConfig{}, nil)

	if got := d.DispatchSync(context.Background(), "t", "order.created", nil); len(got) != 0 {
		t.Fatalf("expected no reports, got %d", len(got))
	}
}

func TestDispatchMatcherError(t *testing.T) {
	d := delivery.NewDispatcher(&fakeMatcher{err: errors.New("db down")}, newFakeRegistry(10),
		delivery.NewExecutor(time.Second), delivery.DispatcherConfig{}, nil)

	if got := d.DispatchSync(context.Background(), "t", "order.created", nil); got != nil {
		t.Fatalf("expected nil reports, got %v", got)
	}
}

func TestDispatchConcurrencyLimit(t *testing.T) {
	var (
		current atomic.Int32
		peak    atomic.Int32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		current.Add(-1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	eps := make([]*endpoint.Endpoint, 8)
	for i := range eps {
		eps[i] = newTestEndpoint(srv.URL)
	}

	d := delivery.NewDispatcher(&fakeMatcher{endpoints: eps}, newFakeRegistry(10),
		delivery.NewExecutor(time.Second),
		delivery.DispatcherConfig{Concurrency: 2, RequestTimeout: time.Second}, nil)

	reports := d.DispatchSync(context.Background(), "t", "order.created", nil)
	if len(reports) != 8 {
		t.Fatalf("expected 8 reports, got %d", len(reports))
	}
	if p := peak.Load(); p > 2 {
		t.Fatalf("peak concurrency %d exceeds limit 2", p)
	}
}

func TestDispatchDetachedFromCaller(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ep := newTestEndpoint(srv.URL)
	reg := newFakeRegistry(10)
	d := delivery.NewDispatcher(&fakeMatcher{endpoints: []*endpoint.Endpoint{ep}}, reg,
		delivery.NewExecutor(5*time.Second),
		delivery.DispatcherConfig{Concurrency: 1, RequestTimeout: 5 * time.Second}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	d.Dispatch(ctx, "t", "order.created", nil)
	cancel()
	close(release)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := d.Stop(stopCtx); err != nil {
		t.Fatal(err)
	}

	if _, s := reg.counts(ep.ID); s != 1 {
		t.Fatalf("delivery should survive caller cancellation, successes = %d", s)
	}
}

func TestDispatchRequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ep := newTestEndpoint(srv.URL)
	d := delivery.NewDispatcher(&fakeMatcher{endpoints: []*endpoint.Endpoint{ep}}, newFakeRegistry(10),
		delivery.NewExecutor(10*time.Second),
		delivery.DispatcherConfig{Concurrency: 1, RequestTimeout: 50 * time.Millisecond}, nil)

	reports := d.DispatchSync(context.Background(), "t", "order.created", nil)
	if len(reports) != 1 || reports[0].Outcome.Success || reports[0].Outcome.Error == "" {
		t.Fatalf("expected timeout failure, got %+v", reports)
	}
}

func TestDispatchDisabledFlag(t *testing.T) {
	ep := newTestEndpoint(failServer(t).URL)
	reg := newFakeRegistry(2)
	reg.failures[ep.ID.String()] = 1

	reg2 := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg2)

	d := delivery.NewDispatcher(&fakeMatcher{endpoints: []*endpoint.Endpoint{ep}}, reg,
		delivery.NewExecutor(time.Second),
		delivery.DispatcherConfig{Concurrency: 1, Metrics: metrics}, nil)

	reports := d.DispatchSync(context.Background(), "t", "order.created", nil)
	if len(reports) != 1 || !reports[0].Disabled {
		t.Fatalf("expected the threshold-crossing attempt to be flagged, got %+v", reports)
	}
	if got := testutil.ToFloat64(metrics.EndpointsDisabled); got != 1 {
		t.Errorf("endpoints disabled = %v", got)
	}
	if got := testutil.ToFloat64(metrics.DeliveriesTotal.WithLabelValues("failure")); got != 1 {
		t.Errorf("failed deliveries = %v", got)
	}

	// Further failures past the threshold are not a new transition.
	reports = d.DispatchSync(context.Background(), "t", "order.created", nil)
	if reports[0].Disabled {
		t.Error("only the transition should be flagged")
	}
}

func TestDispatchValidatorRejects(t *testing.T) {
	m := &fakeMatcher{endpoints: []*endpoint.Endpoint{newTestEndpoint(okServer(t).URL)}}
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	d := delivery.NewDispatcher(m, newFakeRegistry(10), delivery.NewExecutor(time.Second),
		delivery.DispatcherConfig{Validator: rejectAll{}, Metrics: metrics}, nil)

	if got := d.DispatchSync(context.Background(), "t", "order.created", json.RawMessage(`{}`)); got != nil {
		t.Fatalf("expected dropped event, got %v", got)
	}
	if m.calls.Load() != 0 {
		t.Error("matcher should not run for a rejected payload")
	}
	if got := testutil.ToFloat64(metrics.PayloadsRejected.WithLabelValues("order.created")); got != 1 {
		t.Errorf("payloads rejected = %v", got)
	}
}

func TestDispatchAttemptLog(t *testing.T) {
	ep := newTestEndpoint(okServer(t).URL)
	log := &memAttempts{}

	d := delivery.NewDispatcher(&fakeMatcher{endpoints: []*endpoint.Endpoint{ep}}, newFakeRegistry(10),
		delivery.NewExecutor(time.Second),
		delivery.DispatcherConfig{Attempts: log}, nil)

	reports := d.DispatchSync(context.Background(), "t", "order.created", nil)
	got, _ := log.ListAttempts(context.Background(), ep.ID, delivery.ListOpts{})
	if len(got) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(got))
	}
	a := got[0]
	if a.EndpointID.String() != ep.ID.String() || a.TenantID != ep.TenantID || a.EventType != "order.created" {
		t.Errorf("attempt = %+v", a)
	}
	if a.EventID.String() != reports[0].Outcome.EventID.String() || !a.Success {
		t.Errorf("attempt does not match outcome: %+v", a)
	}
}

func TestDispatchRateLimited(t *testing.T) {
	ep := newTestEndpoint(okServer(t).URL)
	ep.RateLimit = 1

	lim := ratelimit.New()
	// Drain the single token so the next wait exceeds the attempt timeout.
	lim.Allow(ep.ID.String(), 1)

	d := delivery.NewDispatcher(&fakeMatcher{endpoints: []*endpoint.Endpoint{ep}}, newFakeRegistry(10),
		delivery.NewExecutor(time.Second),
		delivery.DispatcherConfig{Limiter: lim, RequestTimeout: 100 * time.Millisecond}, nil)

	reports := d.DispatchSync(context.Background(), "t", "order.created", nil)
	if len(reports) != 1 || reports[0].Outcome.Success {
		t.Fatalf("expected rate limited failure, got %+v", reports)
	}
	if reports[0].Outcome.EventID.IsNil() {
		t.Error("rate limited outcome should still carry an event ID")
	}
}

func TestStop(t *testing.T) {
	m := &fakeMatcher{endpoints: []*endpoint.Endpoint{newTestEndpoint(okServer(t).URL)}}
	d := delivery.NewDispatcher(m, newFakeRegistry(10), delivery.NewExecutor(time.Second),
		delivery.DispatcherConfig{}, nil)

	if err := d.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := d.Stop(context.Background()); !errors.Is(err, delivery.ErrStopped) {
		t.Fatalf("second Stop = %v, want ErrStopped", err)
	}

	d.Dispatch(context.Background(), "t", "order.created", nil)
	if got := d.DispatchSync(context.Background(), "t", "order.created", nil); got != nil {
		t.Fatalf("dispatch after stop returned %v", got)
	}
	if m.calls.Load() != 0 {
		t.Error("no matching should happen after Stop")
	}
}

func TestStopDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	d := delivery.NewDispatcher(&fakeMatcher{endpoints: []*endpoint.Endpoint{newTestEndpoint(srv.URL)}},
		newFakeRegistry(10), delivery.NewExecutor(5*time.Second),
		delivery.DispatcherConfig{RequestTimeout: 5 * time.Second}, nil)

	d.Dispatch(context.Background(), "t", "order.created", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := d.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

// goneRegistry reports every endpoint as deleted.
type goneRegistry struct{}

func (goneRegistry) RecordOutcome(context.Context, id.ID, bool) (*endpoint.Endpoint, error) {
	return nil, endpoint.ErrNotFound
}

func (goneRegistry) DisableThreshold() int { return 10 }

func TestDispatchEndpointDeletedMidFlight(t *testing.T) {
	ep := newTestEndpoint(okServer(t).URL)
	ep.RateLimit = 1
	log := &memAttempts{}
	lim := ratelimit.New()

	d := delivery.NewDispatcher(&fakeMatcher{endpoints: []*endpoint.Endpoint{ep}}, goneRegistry{},
		delivery.NewExecutor(time.Second),
		delivery.DispatcherConfig{Attempts: log, Limiter: lim}, nil)

	reports := d.DispatchSync(context.Background(), "t", "order.created", nil)
	if len(reports) != 1 || !reports[0].Outcome.Success || reports[0].Disabled {
		t.Fatalf("reports = %+v", reports)
	}
	if got, _ := log.ListAttempts(context.Background(), ep.ID, delivery.ListOpts{}); len(got) != 0 {
		t.Fatalf("recorded %d attempts for a deleted endpoint", len(got))
	}
	// The attempt spent the only token. A dropped bucket starts full.
	if !lim.Allow(ep.ID.String(), 1) {
		t.Fatal("rate limit bucket outlived the endpoint")
	}
}

func TestDispatchForget(t *testing.T) {
	ep := newTestEndpoint("http://unused.invalid")
	lim := ratelimit.New()
	d := delivery.NewDispatcher(&fakeMatcher{}, newFakeRegistry(10), delivery.NewExecutor(time.Second),
		delivery.DispatcherConfig{Limiter: lim}, nil)

	lim.Allow(ep.ID.String(), 1)
	if lim.Allow(ep.ID.String(), 1) {
		t.Fatal("bucket should be drained")
	}
	d.Forget(ep.ID)
	if !lim.Allow(ep.ID.String(), 1) {
		t.Fatal("Forget should drop the bucket")
	}

	// Without a limiter there is nothing to forget.
	delivery.NewDispatcher(&fakeMatcher{}, newFakeRegistry(10), delivery.NewExecutor(time.Second),
		delivery.DispatcherConfig{}, nil).Forget(ep.ID)
}

func TestDispatchMetricsBoundEventTypeLabels(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	d := delivery.NewDispatcher(&fakeMatcher{}, newFakeRegistry(10), delivery.NewExecutor(time.Second),
		delivery.DispatcherConfig{Metrics: metrics}, nil)

	for _, et := range []string{"order.created", "order.created", "x.custom", "y.custom", "order.*"} {
		d.DispatchSync(context.Background(), "t", et, nil)
	}

	if got := testutil.ToFloat64(metrics.EventsDispatchedTotal.WithLabelValues("order.created")); got != 2 {
		t.Errorf("order.created = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.EventsDispatchedTotal.WithLabelValues(observability.UnknownEventType)); got != 3 {
		t.Errorf("unknown = %v, want 3", got)
	}
	if n := testutil.CollectAndCount(metrics.EventsDispatchedTotal); n != 2 {
		t.Errorf("series = %d, want 2", n)
	}

	rejecting := delivery.NewDispatcher(&fakeMatcher{}, newFakeRegistry(10), delivery.NewExecutor(time.Second),
		delivery.DispatcherConfig{Validator: rejectAll{}, Metrics: metrics}, nil)
	rejecting.DispatchSync(context.Background(), "t", "z.custom", json.RawMessage(`{}`))
	if got := testutil.ToFloat64(metrics.PayloadsRejected.WithLabelValues(observability.UnknownEventType)); got != 1 {
		t.Errorf("rejected unknown = %v, want 1", got)
	}
}
