// Package loopback provides a deterministic echo adapter for exercising the
// streaming pipeline without a real backend.
package loopback

import (
	"context"
	"errors"
	"strings"

	"github.com/emberchat/emberchat/internal/backend"
	"github.com/emberchat/emberchat/internal/stream"
)

// Ensure Adapter implements the backend capability.
var _ backend.Adapter = (*Adapter)(nil)

// Adapter echoes the last user message back as a short stream of fragments.
type Adapter struct{}

// New creates a loopback Adapter instance.
func New() *Adapter {
	return &Adapter{}
}

// Stream fabricates a deterministic reply: the last user message echoed in
// word-sized fragments, followed by synthetic usage and Done.
func (a *Adapter) Stream(ctx context.Context, req backend.Request) (<-chan stream.Event, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("loopback: no messages provided")
	}

	content := req.Messages[len(req.Messages)-1].Content
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if strings.EqualFold(req.Messages[i].Role, "user") {
			content = req.Messages[i].Content
			break
		}
	}
	reply := "[echo] " + strings.TrimSpace(content)

	ch := make(chan stream.Event, 4)
	go func() {
		defer close(ch)
		for _, word := range strings.SplitAfter(reply, " ") {
			if ctx.Err() != nil {
				return
			}
			if word == "" {
				continue
			}
			ch <- stream.DeltaEvent(word)
		}
		ch <- stream.UsageEvent(stream.Usage{
			PromptTokens:     len(req.Messages) * 10,
			CompletionTokens: len(reply) / 4,
			TotalTokens:      len(req.Messages)*10 + len(reply)/4,
		})
		ch <- stream.DoneEvent()
	}()
	return ch, nil
}
