package loopback

import (
	"context"
	"testing"

	"github.com/emberchat/emberchat/internal/backend"
	"github.com/emberchat/emberchat/internal/transcript"
)

func TestStreamEchoesLastUserMessage(t *testing.T) {
	a := New()
	events, err := a.Stream(context.Background(), backend.Request{
		Model: "echo",
		Messages: []transcript.Message{
			{Role: "user", Content: "first question"},
			{Role: "assistant", Content: "an answer"},
			{Role: "user", Content: "second question"},
		},
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	var (
		text     string
		usageOK  bool
		doneSeen bool
	)
	for ev := range events {
		switch {
		case ev.Err != nil:
			t.Fatalf("unexpected error event: %v", ev.Err)
		case ev.Done:
			doneSeen = true
		case ev.Usage != nil:
			usageOK = ev.Usage.TotalTokens > 0
		default:
			text += ev.Delta
		}
	}
	if text != "[echo] second question" {
		t.Fatalf("echoed text = %q", text)
	}
	if !usageOK || !doneSeen {
		t.Fatalf("usageOK=%v doneSeen=%v", usageOK, doneSeen)
	}
}

func TestStreamRequiresMessages(t *testing.T) {
	if _, err := New().Stream(context.Background(), backend.Request{Model: "echo"}); err == nil {
		t.Fatal("Stream() accepted an empty request")
	}
}
