package chat

import (
	"context"
	"errors"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/emberchat/emberchat/internal/backend"
	"github.com/emberchat/emberchat/internal/backend/loopback"
	"github.com/emberchat/emberchat/internal/backend/router"
	"github.com/emberchat/emberchat/internal/catalog"
	"github.com/emberchat/emberchat/internal/store"
	"github.com/emberchat/emberchat/internal/store/sqlite"
	"github.com/emberchat/emberchat/internal/stream"
	"github.com/emberchat/emberchat/internal/transcript"
)

func newTestService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	st, err := sqlite.New(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	r := router.New()
	if err := r.Register(catalog.KindLoopback, loopback.New()); err != nil {
		t.Fatalf("register loopback: %v", err)
	}

	svc := New(Config{
		Store:    st,
		Router:   r,
		Template: "Stay in character.",
		Profile:  "The user prefers short answers.",
		Logger:   log.New(testWriter{t}, "", 0),
	})
	return svc, st
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func seedSession(t *testing.T, st store.Store) string {
	t.Helper()
	ctx := context.Background()
	if err := st.CreateCharacter(ctx, store.Character{ID: "c1", Name: "Mira", Persona: "An archivist."}); err != nil {
		t.Fatalf("create character: %v", err)
	}
	if err := st.CreateSession(ctx, store.Session{ID: "s1", CharacterID: "c1", Metadata: "first meeting"}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return "s1"
}

func TestRespondPersistsBothTurns(t *testing.T) {
	svc, st := newTestService(t)
	sessionID := seedSession(t, st)

	var forwarded string
	sink := func(delta string) {
		forwarded += delta
	}

	ref := catalog.ModelRef{ID: "echo", Label: "echo", Kind: catalog.KindLoopback}
	res, err := svc.Respond(context.Background(), sessionID, "hello there", ref, sink)
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if res.Err != nil {
		t.Fatalf("stream error = %v", res.Err)
	}
	if res.Text != "[echo] hello there" {
		t.Fatalf("Text = %q", res.Text)
	}
	if forwarded != res.Text {
		t.Fatalf("sink saw %q, result carries %q", forwarded, res.Text)
	}
	if res.Usage == nil || res.Usage.TotalTokens == 0 {
		t.Fatalf("Usage = %+v, want synthetic token counts", res.Usage)
	}

	msgs, err := st.ListMessages(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != string(transcript.RoleUser) || msgs[0].Text != "hello there" {
		t.Fatalf("first message = %+v", msgs[0])
	}
	if msgs[1].Role != string(transcript.RoleAssistant) || msgs[1].Text != res.Text {
		t.Fatalf("second message = %+v", msgs[1])
	}
}

func TestRespondRejectsUnknownSession(t *testing.T) {
	svc, _ := newTestService(t)

	ref := catalog.ModelRef{Label: "echo", Kind: catalog.KindLoopback}
	_, err := svc.Respond(context.Background(), "nope", "hi", ref, func(string) {})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Respond() error = %v, want ErrNotFound", err)
	}
}

// slowAdapter blocks mid-stream until its context dies, so a second request
// can observe the busy session and Cancel can be exercised.
type slowAdapter struct {
	started chan struct{}
}

func (a *slowAdapter) Stream(ctx context.Context, req backend.Request) (<-chan stream.Event, error) {
	ch := make(chan stream.Event, 1)
	go func() {
		defer close(ch)
		ch <- stream.DeltaEvent("partial ")
		close(a.started)
		<-ctx.Done()
	}()
	return ch, nil
}

func TestConcurrentRespondOnSameSessionIsBusy(t *testing.T) {
	st, err := sqlite.New(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	slow := &slowAdapter{started: make(chan struct{})}
	r := router.New()
	if err := r.Register(catalog.KindRemote, slow); err != nil {
		t.Fatalf("register: %v", err)
	}
	svc := New(Config{Store: st, Router: r, Logger: log.New(testWriter{t}, "", 0)})
	sessionID := seedSession(t, st)

	ref := catalog.ModelRef{Label: "slow", Kind: catalog.KindRemote}
	done := make(chan Result, 1)
	go func() {
		res, _ := svc.Respond(context.Background(), sessionID, "first", ref, func(string) {})
		done <- res
	}()

	select {
	case <-slow.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first stream never started")
	}

	_, err = svc.Respond(context.Background(), sessionID, "second", ref, func(string) {})
	if !errors.Is(err, stream.ErrSessionBusy) {
		t.Fatalf("second Respond() error = %v, want ErrSessionBusy", err)
	}

	if !svc.Cancel(sessionID) {
		t.Fatal("Cancel() = false for an active session")
	}
	select {
	case res := <-done:
		// The fragment emitted before cancellation must survive.
		if res.Text != "partial " {
			t.Fatalf("partial text = %q", res.Text)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first Respond did not return after Cancel")
	}

	if svc.Cancel(sessionID) {
		t.Fatal("Cancel() = true for an idle session")
	}
}
