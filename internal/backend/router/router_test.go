package router

import (
	"context"
	"errors"
	"testing"

	"github.com/emberchat/emberchat/internal/backend"
	"github.com/emberchat/emberchat/internal/catalog"
	"github.com/emberchat/emberchat/internal/stream"
)

type fakeAdapter struct{ name string }

func (f *fakeAdapter) Stream(ctx context.Context, req backend.Request) (<-chan stream.Event, error) {
	ch := make(chan stream.Event)
	close(ch)
	return ch, nil
}

func TestRouteByBackendKind(t *testing.T) {
	remote := &fakeAdapter{name: "remote"}
	local := &fakeAdapter{name: "local"}

	r := New()
	if err := r.Register(catalog.KindRemote, remote); err != nil {
		t.Fatalf("Register(remote) error = %v", err)
	}
	if err := r.Register(catalog.KindLocalProcess, local); err != nil {
		t.Fatalf("Register(local) error = %v", err)
	}

	got, err := r.Route(catalog.ModelRef{Label: "m1", Kind: catalog.KindRemote})
	if err != nil {
		t.Fatalf("Route(remote) error = %v", err)
	}
	if got != backend.Adapter(remote) {
		t.Fatal("remote model routed to wrong adapter")
	}

	got, err = r.Route(catalog.ModelRef{Label: "m2", Kind: catalog.KindLocalProcess})
	if err != nil {
		t.Fatalf("Route(local) error = %v", err)
	}
	if got != backend.Adapter(local) {
		t.Fatal("local model routed to wrong adapter")
	}
}

func TestRouteUnregisteredKind(t *testing.T) {
	r := New()
	if _, err := r.Route(catalog.ModelRef{Label: "m", Kind: catalog.KindLoopback}); err == nil {
		t.Fatal("Route() succeeded for unregistered kind")
	}
}

func TestRegisterRejectsNilAndDuplicates(t *testing.T) {
	r := New()
	if err := r.Register(catalog.KindRemote, nil); err == nil {
		t.Fatal("Register accepted nil adapter")
	}
	if err := r.Register(catalog.KindRemote, &fakeAdapter{}); err != nil {
		t.Fatalf("Register error = %v", err)
	}
	if err := r.Register(catalog.KindRemote, &fakeAdapter{}); err == nil {
		t.Fatal("Register accepted duplicate kind")
	}
}

func TestAssertDeletable(t *testing.T) {
	r := New()

	err := r.AssertDeletable(catalog.ModelRef{Label: "seeded", Kind: catalog.KindRemote, BuiltIn: true})
	var serr *stream.Error
	if !errors.As(err, &serr) || serr.Kind != stream.ErrProtectedResource {
		t.Fatalf("AssertDeletable(built-in) = %v, want ProtectedResource", err)
	}

	if err := r.AssertDeletable(catalog.ModelRef{Label: "custom", Kind: catalog.KindRemote}); err != nil {
		t.Fatalf("AssertDeletable(custom) = %v, want nil", err)
	}
}
