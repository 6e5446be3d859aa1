package streaming

import (
	"context"
	"time"
)

// StreamEvent is a real-time workspace change notification.
type StreamEvent struct {
	Type       string    `json:"type"`
	ActionID   string    `json:"action_id,omitempty"`
	InstanceID string    `json:"instance_id,omitempty"`
	Payload    any       `json:"payload,omitempty"`
	At         time.Time `json:"at"`
}

// EventFilter selects the events a subscriber receives. Zero value matches all.
type EventFilter struct {
	ActionID   string   `json:"action_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
	// Prefixes matches event families such as "instance." or "graph.".
	Prefixes []string `json:"prefixes,omitempty"`
}

// EventHub provides pub/sub for workspace events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
