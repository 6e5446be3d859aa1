package schema

import "time"

// Event type constants published on the event hub and recorded in the action log.
const (
	EventActionRegistered   = "action.registered"
	EventActionUnregistered = "action.unregistered"

	EventInstanceCreated = "instance.created"
	EventInstanceUpdated = "instance.updated"
	EventInstanceRemoved = "instance.removed"

	EventGraphLoaded  = "graph.loaded"
	EventGraphChanged = "graph.changed"
	EventGraphCleared = "graph.cleared"

	EventLayoutApplied = "layout.applied"

	EventVisibleChanged = "visible.changed"

	EventSettingsChanged  = "settings.changed"
	EventSelectionChanged = "selection.changed"

	EventConfigurationStarted   = "configuration.started"
	EventConfigurationFinished  = "configuration.finished"
	EventConfigurationCancelled = "configuration.cancelled"
)

// ActionEvent is one entry of the append-only action audit log.
type ActionEvent struct {
	ID         int64          `json:"id"`
	Type       string         `json:"type"`
	ActionID   string         `json:"action_id"`
	InstanceID string         `json:"instance_id,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
