// Package stream defines the normalized event model shared by every model
// backend, plus the aggregation and per-session bookkeeping built on top of it.
package stream

import "fmt"

// ErrorKind classifies terminal stream failures.
type ErrorKind string

const (
	// ErrUnavailable means the backend executable or endpoint is not reachable.
	ErrUnavailable ErrorKind = "unavailable"
	// ErrTimeout means the backend exceeded its configured wall-clock ceiling.
	ErrTimeout ErrorKind = "timeout"
	// ErrProcessFailure means the local backend exited abnormally or never
	// produced a result record.
	ErrProcessFailure ErrorKind = "process_failure"
	// ErrRemoteFailure means the remote endpoint answered with a non-success status.
	ErrRemoteFailure ErrorKind = "remote_failure"
	// ErrMalformedStream means the protocol framing could not be parsed beyond
	// the recoverable skip policy.
	ErrMalformedStream ErrorKind = "malformed_stream"
	// ErrProtectedResource means an attempted deletion of a built-in model.
	ErrProtectedResource ErrorKind = "protected_resource"
)

// Error is a terminal stream failure carrying a kind and human-readable detail.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Errorf builds a stream Error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Usage carries token counts and the backend's cost estimate for a completed
// (or failed partway) generation.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd,omitempty"`
}

// Event is one normalized streaming event. Exactly one of the fields is
// meaningful per event: Delta for an incremental text fragment, Usage for the
// final token accounting, Err for a terminal failure, Done for terminal
// success. Adapters close the channel after the terminal event.
type Event struct {
	Delta string
	Usage *Usage
	Err   *Error
	Done  bool
}

// IsTerminal reports whether the event ends the stream.
func (e Event) IsTerminal() bool {
	return e.Done || e.Err != nil
}

// DeltaEvent wraps a text fragment.
func DeltaEvent(text string) Event { return Event{Delta: text} }

// UsageEvent wraps final usage totals.
func UsageEvent(u Usage) Event { return Event{Usage: &u} }

// DoneEvent marks terminal success.
func DoneEvent() Event { return Event{Done: true} }

// ErrorEvent marks terminal failure.
func ErrorEvent(err *Error) Event { return Event{Err: err} }
