// Package backend defines the polymorphic adapter capability that turns a
// composed prompt and a formatted conversation into a lazy sequence of
// normalized stream events.
package backend

import (
	"context"

	"github.com/emberchat/emberchat/internal/stream"
	"github.com/emberchat/emberchat/internal/transcript"
)

// Request carries both conversation shapes; each adapter consumes the one its
// wire protocol requires.
type Request struct {
	// Model is the backend-facing model label.
	Model string
	// System is the composed system prompt.
	System string
	// Messages is the structured role-tagged history (remote protocol).
	Messages []transcript.Message
	// Transcript is the flattened history (local subprocess stdin).
	Transcript string
}

// Adapter translates one backend's native streaming protocol into normalized
// events. Stream returns an error only for requests that are invalid before
// any backend work starts; backend failures arrive as a single terminal Error
// event on the channel. The channel is closed after the terminal event, and
// cancelling ctx tears the backend down and ends the sequence without
// requiring a terminal event.
type Adapter interface {
	Stream(ctx context.Context, req Request) (<-chan stream.Event, error)
}
