// Package prompt assembles the outbound system prompt from the independent
// context sources captured at request time.
package prompt

import "strings"

// Context is the immutable snapshot of prompt inputs for one request.
type Context struct {
	// Persona is the character definition text.
	Persona string
	// Template is the selected behavioral system-prompt template.
	Template string
	// Profile is the user-profile description.
	Profile string
	// Metadata holds free-form session notes.
	Metadata string
}

// Compose concatenates the context sources into the final system prompt.
//
// The section order persona -> template -> profile -> metadata is an external
// contract: reordering changes model behavior. Compose is deterministic; the
// same Context always produces byte-identical output. Empty sections are
// omitted entirely rather than contributing blank separators.
func Compose(pc Context) string {
	sections := make([]string, 0, 4)
	for _, s := range []string{pc.Persona, pc.Template, pc.Profile, pc.Metadata} {
		if strings.TrimSpace(s) == "" {
			continue
		}
		sections = append(sections, strings.TrimRight(s, "\n"))
	}
	return strings.Join(sections, "\n\n")
}
