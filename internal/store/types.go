package store

import "time"

// Snapshot is a serialized graph document saved by name.
type Snapshot struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Format    string    `json:"format"`
	Content   string    `json:"content"`
	NodeCount int       `json:"node_count"`
	EdgeCount int       `json:"edge_count"`
	SavedAt   time.Time `json:"saved_at"`
}

// SnapshotFilter narrows ListSnapshots. Content is omitted from listings.
type SnapshotFilter struct {
	Name  string
	Limit int
}

// EventFilter narrows ListActionEvents.
type EventFilter struct {
	ActionID   string
	InstanceID string
	Type       string
	AfterID    int64
	Since      *time.Time
	Limit      int
}
