package stream

import (
	"context"
	"testing"
)

func feed(events ...Event) <-chan Event {
	ch := make(chan Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

func TestAggregateAccumulatesInOrder(t *testing.T) {
	var forwarded []string
	sink := func(delta string) { forwarded = append(forwarded, delta) }

	text, usage, err := Aggregate(context.Background(), feed(
		DeltaEvent("Hel"),
		DeltaEvent("lo!"),
		UsageEvent(Usage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7}),
		DoneEvent(),
	), sink)

	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if text != "Hello!" {
		t.Fatalf("finalText = %q, want %q", text, "Hello!")
	}
	if usage == nil || usage.TotalTokens != 7 {
		t.Fatalf("usage = %+v, want total 7", usage)
	}
	if len(forwarded) != 2 || forwarded[0] != "Hel" || forwarded[1] != "lo!" {
		t.Fatalf("sink received %v, want [Hel lo!]", forwarded)
	}
}

func TestAggregateReturnsPartialTextOnError(t *testing.T) {
	text, _, err := Aggregate(context.Background(), feed(
		DeltaEvent("Hi"),
		ErrorEvent(Errorf(ErrProcessFailure, "backend exited")),
	), nil)

	if err == nil {
		t.Fatal("expected terminal error")
	}
	var serr *Error
	if !asStreamError(err, &serr) || serr.Kind != ErrProcessFailure {
		t.Fatalf("error = %v, want ProcessFailure", err)
	}
	if text != "Hi" {
		t.Fatalf("partial text = %q, want %q", text, "Hi")
	}
}

func TestAggregateIgnoresEventsAfterTerminal(t *testing.T) {
	var forwarded []string
	sink := func(delta string) { forwarded = append(forwarded, delta) }

	// A misbehaving adapter emits a second terminal and a trailing delta.
	text, _, err := Aggregate(context.Background(), feed(
		DeltaEvent("ok"),
		DoneEvent(),
		DeltaEvent("ignored"),
		ErrorEvent(Errorf(ErrRemoteFailure, "late error")),
		DoneEvent(),
	), sink)

	if err != nil {
		t.Fatalf("terminal outcome changed after Done: %v", err)
	}
	if text != "ok" {
		t.Fatalf("finalText = %q, want %q", text, "ok")
	}
	if len(forwarded) != 1 {
		t.Fatalf("sink received %v after terminal event", forwarded)
	}
}

func TestAggregateCancelledStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Cancellation closes the channel without a terminal event.
	text, usage, err := Aggregate(ctx, feed(DeltaEvent("par"), DeltaEvent("tial")), nil)
	if err != context.Canceled {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if text != "partial" {
		t.Fatalf("text = %q, want %q", text, "partial")
	}
	if usage != nil {
		t.Fatalf("usage = %+v, want nil", usage)
	}
}

func asStreamError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if ok {
		*target = e
	}
	return ok
}
