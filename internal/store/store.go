package store

import (
	"context"

	"github.com/rendis/graphspace/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Settings
	LoadSettings(ctx context.Context) (map[string]string, error)
	SaveSettings(ctx context.Context, values map[string]string) error

	// Graph snapshots
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
	LatestSnapshot(ctx context.Context, name string) (*Snapshot, error)
	ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]*Snapshot, error)
	PruneSnapshots(ctx context.Context, name string, keep int) (int64, error)

	// Action audit log (append-only)
	AppendActionEvent(ctx context.Context, ev *schema.ActionEvent) error
	ListActionEvents(ctx context.Context, filter EventFilter) ([]*schema.ActionEvent, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
