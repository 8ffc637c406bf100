// Package transcript renders conversation history into the shapes the two
// backend protocols require: a role-tagged message array for the remote HTTP
// API and a flattened text transcript for the local subprocess stdin.
package transcript

import (
	"strings"
	"time"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one conversation entry. Insertion order is conversation order and is
// never reordered or deduplicated.
type Turn struct {
	Role Role
	Text string
	At   time.Time
}

// Message is a role-tagged entry in the structured wire shape.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Line markers for the flattened transcript. A line beginning with one of
// these starts a new turn; any other line continues the open turn's text.
const (
	userMarker      = "User: "
	assistantMarker = "Assistant: "
)

// Structured renders history as a message array for protocols that accept one.
func Structured(history []Turn) []Message {
	msgs := make([]Message, 0, len(history))
	for _, turn := range history {
		msgs = append(msgs, Message{Role: string(turn.Role), Content: turn.Text})
	}
	return msgs
}

// Flatten serializes history into a single text block, one marker-prefixed
// line per turn with continuation lines carrying embedded newlines. The
// rendering is lossless with respect to ordering and role attribution:
// ParseFlat recovers the original role/text pairs provided no message text
// line itself begins with a role marker.
func Flatten(history []Turn) string {
	var b strings.Builder
	for _, turn := range history {
		switch turn.Role {
		case RoleAssistant:
			b.WriteString(assistantMarker)
		default:
			b.WriteString(userMarker)
		}
		b.WriteString(turn.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// ParseFlat re-splits a flattened transcript into discrete turns, for
// round-trip checks and debug logging of what was fed to the local backend.
func ParseFlat(flat string) []Turn {
	var turns []Turn
	lines := strings.Split(flat, "\n")
	// Drop the trailing empty element produced by the final newline.
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, userMarker):
			turns = append(turns, Turn{Role: RoleUser, Text: strings.TrimPrefix(line, userMarker)})
		case strings.HasPrefix(line, assistantMarker):
			turns = append(turns, Turn{Role: RoleAssistant, Text: strings.TrimPrefix(line, assistantMarker)})
		default:
			if len(turns) == 0 {
				// Leading garbage with no open turn; treat as a user turn so
				// nothing is silently dropped.
				turns = append(turns, Turn{Role: RoleUser, Text: line})
				continue
			}
			turns[len(turns)-1].Text += "\n" + line
		}
	}
	return turns
}
