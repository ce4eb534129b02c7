// Package session coordinates the lifecycle automation: quality gates
// and alerting at session end, handoff capture and state backup around
// context compaction.
package session

import (
	"context"
	"fmt"
)

// Event identifies a lifecycle moment.
type Event string

const (
	// EventSessionStart fires when a new session begins.
	EventSessionStart Event = "session_start"

	// EventSessionEnd fires before a session terminates.
	EventSessionEnd Event = "session_end"

	// EventPreCompact fires before a context-compaction event.
	EventPreCompact Event = "pre_compact"

	// EventPostCompact fires after compaction completes.
	EventPostCompact Event = "post_compact"
)

// Handler reacts to one lifecycle event. The payload is event-specific
// state passed explicitly; handlers must not read ambient mutable state.
type Handler func(ctx context.Context, payload map[string]any) error

// Hooks dispatches lifecycle events to registered handlers.
type Hooks struct {
	handlers map[Event][]Handler
}

// NewHooks creates an empty hook registry.
func NewHooks() *Hooks {
	return &Hooks{
		handlers: make(map[Event][]Handler),
	}
}

// Register adds a handler for an event. Handlers run in registration
// order.
func (h *Hooks) Register(event Event, handler Handler) {
	h.handlers[event] = append(h.handlers[event], handler)
}

// Fire executes all handlers for the event. No registered handlers is
// not an error; the first handler error stops the chain.
func (h *Hooks) Fire(ctx context.Context, event Event, payload map[string]any) error {
	for _, handler := range h.handlers[event] {
		if err := handler(ctx, payload); err != nil {
			return fmt.Errorf("hook %s failed: %w", event, err)
		}
	}
	return nil
}
