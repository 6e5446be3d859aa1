package actions

import (
	"context"

	"github.com/rendis/graphspace/pkg/schema"
)

// RunFunc is the executable body behind a capability handle. It receives
// validated parameters and returns the outcome stored on the instance.
type RunFunc func(ctx context.Context, params map[string]any) (schema.Outcome, error)

// PredicateState supplies the live variables EnabledWhen/VisibleWhen
// expressions are evaluated against.
type PredicateState func(ctx context.Context) map[string]any

// ActionRegistry is the catalog surface the execution engine depends on.
type ActionRegistry interface {
	Get(id string) (schema.ActionDefinition, error)
	Body(id string) (RunFunc, error)
	IsEnabled(ctx context.Context, id string) (bool, error)
	OnUnregister(fn func(id string))
}

// ActionInfo is the palette view of an action with its predicates resolved.
type ActionInfo struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Kind        schema.ActionKind `json:"kind"`
	Category    string            `json:"category,omitempty"`
	ParentID    string            `json:"parent_id,omitempty"`
	Enabled     bool              `json:"enabled"`
	Parameters  int               `json:"parameters"`
}

// TreeNode is one entry of the palette hierarchy.
type TreeNode struct {
	ActionInfo
	Children []TreeNode `json:"children,omitempty"`
}
