package stream

import (
	"context"
	"errors"
	"sync"
)

// ErrSessionBusy is returned by TryAcquire when the session already has an
// active stream.
var ErrSessionBusy = errors.New("stream: session already streaming")

// Registry serializes streams per conversation session: at most one active
// stream per session ID. Callers either wait for the prior stream to finish
// (Acquire) or reject immediately (TryAcquire) and may cancel the holder
// (Cancel). Different sessions never contend with each other beyond the map
// lock.
type Registry struct {
	mu     sync.Mutex
	active map[string]*Lease
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]*Lease)}
}

// Lease represents exclusive streaming rights for one session. Release must be
// called exactly once, on every exit path.
type Lease struct {
	registry  *Registry
	sessionID string
	cancel    context.CancelFunc
	done      chan struct{}
	once      sync.Once
}

// Acquire blocks until the session is free or ctx is done, then registers
// cancel as the teardown hook for the new stream.
func (r *Registry) Acquire(ctx context.Context, sessionID string, cancel context.CancelFunc) (*Lease, error) {
	for {
		r.mu.Lock()
		prior, busy := r.active[sessionID]
		if !busy {
			lease := &Lease{
				registry:  r,
				sessionID: sessionID,
				cancel:    cancel,
				done:      make(chan struct{}),
			}
			r.active[sessionID] = lease
			r.mu.Unlock()
			return lease, nil
		}
		r.mu.Unlock()

		select {
		case <-prior.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// TryAcquire registers a lease if the session is free, otherwise returns
// ErrSessionBusy without waiting.
func (r *Registry) TryAcquire(sessionID string, cancel context.CancelFunc) (*Lease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.active[sessionID]; busy {
		return nil, ErrSessionBusy
	}
	lease := &Lease{
		registry:  r,
		sessionID: sessionID,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	r.active[sessionID] = lease
	return lease, nil
}

// Cancel tears down the session's active stream, if any. It reports whether a
// stream was cancelled. The lease stays registered until its holder releases
// it, so a racing Acquire still waits for the teardown to finish.
func (r *Registry) Cancel(sessionID string) bool {
	r.mu.Lock()
	lease, ok := r.active[sessionID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	lease.cancel()
	return true
}

// Release frees the session for the next stream. Safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.registry.mu.Lock()
		if l.registry.active[l.sessionID] == l {
			delete(l.registry.active, l.sessionID)
		}
		l.registry.mu.Unlock()
		close(l.done)
	})
}
