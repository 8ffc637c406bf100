package remote

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/emberchat/emberchat/internal/backend"
	"github.com/emberchat/emberchat/internal/stream"
	"github.com/emberchat/emberchat/internal/testutil"
	"github.com/emberchat/emberchat/internal/transcript"
)

func request() backend.Request {
	return backend.Request{
		Model:  "remote-default",
		System: "stay in character",
		Messages: []transcript.Message{
			{Role: "user", Content: "Hello"},
		},
	}
}

func sseHandler(t *testing.T, chunks []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if accept := r.Header.Get("Accept"); accept != "text/event-stream" {
			t.Errorf("Accept header = %q, want text/event-stream", accept)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}
		for _, chunk := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
			flusher.Flush()
			time.Sleep(5 * time.Millisecond)
		}
	})
}

func collect(t *testing.T, events <-chan stream.Event) (string, *stream.Usage, *stream.Error, bool) {
	t.Helper()
	var (
		text     string
		usage    *stream.Usage
		serr     *stream.Error
		done     bool
		terminal bool
	)
	for ev := range events {
		if terminal && (ev.Delta != "" || ev.IsTerminal()) {
			t.Fatalf("event after terminal: %+v", ev)
		}
		switch {
		case ev.Err != nil:
			serr = ev.Err
			terminal = true
		case ev.Done:
			done = true
			terminal = true
		case ev.Usage != nil:
			usage = ev.Usage
		default:
			text += ev.Delta
		}
	}
	return text, usage, serr, done
}

func TestStreamSuccess(t *testing.T) {
	server := testutil.NewSSEServer(t, sseHandler(t, []string{
		`{"type":"message_start"}`,
		`{"type":"content_block_delta","delta":{"type":"text_delta","text":"Hel"}}`,
		`{"type":"content_block_delta","delta":{"type":"text_delta","text":"lo!"}}`,
		`{"type":"message_delta","usage":{"input_tokens":12,"output_tokens":3}}`,
		`{"type":"message_stop"}`,
	}))
	defer server.Close()

	a, err := New(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	events, err := a.Stream(context.Background(), request())
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	text, usage, serr, done := collect(t, events)
	if serr != nil {
		t.Fatalf("unexpected error event: %v", serr)
	}
	if !done {
		t.Fatal("stream did not end with Done")
	}
	if text != "Hello!" {
		t.Fatalf("accumulated text = %q, want %q", text, "Hello!")
	}
	if usage == nil || usage.TotalTokens != 15 {
		t.Fatalf("usage = %+v, want total 15", usage)
	}
}

func TestStreamNonSuccessStatus(t *testing.T) {
	server := testutil.NewSSEServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	a, _ := New(Config{BaseURL: server.URL})
	events, err := a.Stream(context.Background(), request())
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	text, _, serr, done := collect(t, events)
	if done {
		t.Fatal("stream reported Done on failure")
	}
	if serr == nil || serr.Kind != stream.ErrRemoteFailure {
		t.Fatalf("error = %v, want RemoteFailure", serr)
	}
	if text != "" {
		t.Fatalf("unexpected text before failure: %q", text)
	}
}

func TestStreamConnectFailure(t *testing.T) {
	a, _ := New(Config{BaseURL: "http://127.0.0.1:1", RequestTimeout: time.Second})
	events, err := a.Stream(context.Background(), request())
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	_, _, serr, _ := collect(t, events)
	if serr == nil || serr.Kind != stream.ErrUnavailable {
		t.Fatalf("error = %v, want Unavailable", serr)
	}
}

func TestStreamMalformedChunkPreservesPartialOutput(t *testing.T) {
	server := testutil.NewSSEServer(t, sseHandler(t, []string{
		`{"type":"content_block_delta","delta":{"type":"text_delta","text":"par"}}`,
		`{not json`,
	}))
	defer server.Close()

	a, _ := New(Config{BaseURL: server.URL})
	events, err := a.Stream(context.Background(), request())
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	text, _, serr, _ := collect(t, events)
	if serr == nil || serr.Kind != stream.ErrMalformedStream {
		t.Fatalf("error = %v, want MalformedStream", serr)
	}
	if text != "par" {
		t.Fatalf("partial text = %q, want %q", text, "par")
	}
}

func TestStreamCancellation(t *testing.T) {
	release := make(chan struct{})
	server := testutil.NewSSEServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprintf(w, "data: %s\n\n", `{"type":"content_block_delta","delta":{"type":"text_delta","text":"drip"}}`)
		flusher.Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	a, _ := New(Config{BaseURL: server.URL})
	events, err := a.Stream(ctx, request())
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	// First fragment proves the stream is live, then cancel mid-stream.
	if ev := <-events; ev.Delta != "drip" {
		t.Fatalf("first event = %+v, want drip delta", ev)
	}
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return // channel closed within the grace period, no further events
			}
		case <-deadline:
			t.Fatal("event channel not closed after cancellation")
		}
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New() accepted empty base url")
	}
}
