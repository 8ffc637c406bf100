// Package router selects the adapter serving a model catalog entry and
// enforces the built-in-model protection rule on behalf of the CRUD boundary.
package router

import (
	"fmt"

	"github.com/emberchat/emberchat/internal/backend"
	"github.com/emberchat/emberchat/internal/catalog"
	"github.com/emberchat/emberchat/internal/stream"
)

// Router maps backend kinds to registered adapters. Registration happens at
// startup; routing calls are read-only and safe for concurrent use.
type Router struct {
	adapters map[catalog.BackendKind]backend.Adapter
}

// New creates an empty Router.
func New() *Router {
	return &Router{adapters: make(map[catalog.BackendKind]backend.Adapter)}
}

// Register binds an adapter to a backend kind.
func (r *Router) Register(kind catalog.BackendKind, a backend.Adapter) error {
	if a == nil {
		return fmt.Errorf("router: nil adapter for kind %q", kind)
	}
	if _, dup := r.adapters[kind]; dup {
		return fmt.Errorf("router: kind %q already registered", kind)
	}
	r.adapters[kind] = a
	return nil
}

// Route returns the adapter serving the model's backend kind.
func (r *Router) Route(ref catalog.ModelRef) (backend.Adapter, error) {
	a, ok := r.adapters[ref.Kind]
	if !ok {
		return nil, fmt.Errorf("router: no adapter registered for kind %q (model %q)", ref.Kind, ref.Label)
	}
	return a, nil
}

// AssertDeletable fails with a ProtectedResource error whenever the model's
// built-in flag is set. The CRUD layer must consult this before removing any
// catalog entry.
func (r *Router) AssertDeletable(ref catalog.ModelRef) error {
	if ref.BuiltIn {
		return stream.Errorf(stream.ErrProtectedResource, "model %q is built in and cannot be deleted", ref.Label)
	}
	return nil
}
