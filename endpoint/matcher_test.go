package endpoint_test

import (
	"context"
	"testing"

	"github.com/xraph/herald/catalog"
	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/store/memory"
)

func TestMatcher(t *testing.T) {
	s := memory.New()
	svc := endpoint.NewService(s, endpoint.Config{}, nil)
	m := endpoint.NewMatcher(s)

	e1 := mustCreate(t, svc, "A", catalog.OrderCreated)
	mustCreate(t, svc, "A", catalog.PaymentFailed)
	mustCreate(t, svc, "B", catalog.OrderCreated)
	off := mustCreate(t, svc, "A", catalog.OrderCreated)
	if _, err := svc.Update(ctx(), off.ID, tenantA, endpoint.Patch{Active: ptr(false)}); err != nil {
		t.Fatal(err)
	}

	got, err := m.Match(ctx(), "A", catalog.OrderCreated)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID.String() != e1.ID.String() {
		t.Fatalf("expected only e1, got %d endpoints", len(got))
	}
	if got[0].Secret != e1.Secret {
		t.Fatal("matched endpoints must carry the signing secret")
	}

	none, err := m.Match(ctx(), "A", "user.signup")
	if err != nil || len(none) != 0 {
		t.Fatalf("unknown type: %v, %d", err, len(none))
	}
}

// leakyStore returns every endpoint from Resolve, ignoring its filters.
type leakyStore struct {
	*memory.Store
}

func (l leakyStore) Resolve(c context.Context, _, _ string) ([]*endpoint.Endpoint, error) {
	return l.ListEndpoints(c, endpoint.ListOpts{})
}

func TestMatcherRefiltersStoreResults(t *testing.T) {
	s := memory.New()
	svc := endpoint.NewService(s, endpoint.Config{}, nil)

	mustCreate(t, svc, "B", catalog.OrderCreated)
	mustCreate(t, svc, "A", catalog.PaymentFailed)
	want := mustCreate(t, svc, "A", catalog.OrderCreated)

	got, err := endpoint.NewMatcher(leakyStore{s}).Match(ctx(), "A", catalog.OrderCreated)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID.String() != want.ID.String() {
		t.Fatalf("matcher leaked %d endpoints", len(got))
	}
}
