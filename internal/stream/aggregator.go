package stream

import (
	"context"
	"strings"
)

// Sink receives each text fragment as it arrives, before aggregation completes.
// A nil sink disables forwarding.
type Sink func(delta string)

// Aggregate consumes a normalized event channel until it closes, forwarding
// every fragment to sink in arrival order and accumulating the full text.
//
// It returns the accumulated text, the usage totals if the backend reported
// any, and the terminal error if the stream ended with one. On error the
// partial text is still returned so the caller can decide whether to persist a
// truncated message.
//
// Termination is idempotent: once a terminal event has been seen, any further
// events a misbehaving backend might emit are drained and ignored. A channel
// that closes without a terminal event (cancellation) yields ctx.Err() when
// the context was cancelled, otherwise a nil error.
func Aggregate(ctx context.Context, events <-chan Event, sink Sink) (string, *Usage, error) {
	var (
		text       strings.Builder
		usage      *Usage
		terminal   bool
		terminated error
		doneSeen   bool
	)

	for ev := range events {
		if terminal {
			continue
		}
		switch {
		case ev.Err != nil:
			terminal = true
			terminated = ev.Err
		case ev.Done:
			terminal = true
			doneSeen = true
		case ev.Usage != nil:
			u := *ev.Usage
			usage = &u
		case ev.Delta != "":
			text.WriteString(ev.Delta)
			if sink != nil {
				sink(ev.Delta)
			}
		}
	}

	if !terminal && !doneSeen && ctx.Err() != nil {
		return text.String(), usage, ctx.Err()
	}
	return text.String(), usage, terminated
}
