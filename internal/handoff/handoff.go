// Package handoff preserves structured session progress across a
// context reset.
//
// Each handoff is persisted as a file pair sharing one id: a markdown
// rendering for humans and a JSON twin for the next automated session.
// The JSON write is the commit point; listing and pruning only consider
// committed pairs.
package handoff

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Handoff is an immutable record of session progress.
type Handoff struct {
	ID              string            `json:"id"`
	FromSession     string            `json:"from_session"`
	ToSession       string            `json:"to_session"`
	CompletedTasks  []string          `json:"completed_tasks"`
	NextSteps       []string          `json:"next_steps"`
	Artifacts       []string          `json:"artifacts"`
	Timestamp       time.Time         `json:"timestamp"`
	ContextSnapshot map[string]string `json:"context_snapshot,omitempty"`
	Notes           string            `json:"notes,omitempty"`
}

// Markdown renders the handoff with stable section ordering: metadata,
// completed tasks, next steps, artifacts, notes, context snapshot.
func (h *Handoff) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Handoff: %s -> %s\n\n", h.FromSession, h.ToSession)
	fmt.Fprintf(&b, "**Timestamp**: %s\n\n", h.Timestamp.Format(time.RFC3339))

	b.WriteString("## Completed Tasks\n")
	if len(h.CompletedTasks) == 0 {
		b.WriteString("*(no completed tasks)*\n")
	}
	for _, task := range h.CompletedTasks {
		fmt.Fprintf(&b, "- [x] %s\n", task)
	}

	b.WriteString("\n## Next Steps\n")
	if len(h.NextSteps) == 0 {
		b.WriteString("*(no next steps defined)*\n")
	}
	for i, step := range h.NextSteps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}

	b.WriteString("\n## Artifacts\n")
	if len(h.Artifacts) == 0 {
		b.WriteString("*(no artifacts)*\n")
	}
	for _, artifact := range h.Artifacts {
		fmt.Fprintf(&b, "- `%s`\n", artifact)
	}

	if h.Notes != "" {
		b.WriteString("\n## Notes\n")
		b.WriteString(h.Notes)
		b.WriteString("\n")
	}

	if len(h.ContextSnapshot) > 0 {
		b.WriteString("\n## Context Snapshot\n```json\n")
		// Keys sort deterministically under encoding/json.
		snapshot, err := json.MarshalIndent(h.ContextSnapshot, "", "  ")
		if err == nil {
			b.Write(snapshot)
		}
		b.WriteString("\n```\n")
	}

	return b.String()
}
