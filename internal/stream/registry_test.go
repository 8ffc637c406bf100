package stream

import (
	"context"
	"testing"
	"time"
)

func TestRegistrySerializesPerSession(t *testing.T) {
	r := NewRegistry()

	lease, err := r.TryAcquire("sess-1", func() {})
	if err != nil {
		t.Fatalf("TryAcquire() error = %v", err)
	}

	if _, err := r.TryAcquire("sess-1", func() {}); err != ErrSessionBusy {
		t.Fatalf("second TryAcquire error = %v, want ErrSessionBusy", err)
	}

	// A different session never contends.
	other, err := r.TryAcquire("sess-2", func() {})
	if err != nil {
		t.Fatalf("TryAcquire(sess-2) error = %v", err)
	}
	other.Release()

	lease.Release()
	if _, err := r.TryAcquire("sess-1", func() {}); err != nil {
		t.Fatalf("TryAcquire after release error = %v", err)
	}
}

func TestRegistryAcquireWaitsForPrior(t *testing.T) {
	r := NewRegistry()
	first, err := r.TryAcquire("sess", func() {})
	if err != nil {
		t.Fatalf("TryAcquire() error = %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		lease, err := r.Acquire(context.Background(), "sess", func() {})
		if err != nil {
			t.Errorf("Acquire() error = %v", err)
			return
		}
		lease.Release()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("Acquire returned while prior lease still held")
	case <-time.After(50 * time.Millisecond):
	}

	first.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return after prior release")
	}
}

func TestRegistryAcquireHonorsContext(t *testing.T) {
	r := NewRegistry()
	lease, _ := r.TryAcquire("sess", func() {})
	defer lease.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := r.Acquire(ctx, "sess", func() {}); err == nil {
		t.Fatal("Acquire should fail when ctx expires while waiting")
	}
}

func TestRegistryCancelInvokesTeardown(t *testing.T) {
	r := NewRegistry()
	cancelled := make(chan struct{})
	lease, _ := r.TryAcquire("sess", func() { close(cancelled) })
	defer lease.Release()

	if !r.Cancel("sess") {
		t.Fatal("Cancel() = false, want true for active session")
	}
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("teardown hook not invoked")
	}

	if r.Cancel("missing") {
		t.Fatal("Cancel() = true for idle session")
	}
}

func TestLeaseReleaseIdempotent(t *testing.T) {
	r := NewRegistry()
	lease, _ := r.TryAcquire("sess", func() {})
	lease.Release()
	lease.Release() // must not panic on double close
}
