// Package selection tracks selected and hovered graph entities.
package selection

import (
	"context"
	"slices"
	"sync"

	"github.com/rendis/graphspace/pkg/schema"
)

// Graph is the read side of the entity store that selection needs.
type Graph interface {
	HasNode(id string) bool
	HasEdge(id string) bool
	Edges() []*schema.Edge
}

// Snapshot is a point-in-time copy of the selection, in selection order.
type Snapshot struct {
	Nodes       []string `json:"nodes"`
	Edges       []string `json:"edges"`
	HoveredNode string   `json:"hovered_node,omitempty"`
	HoveredEdge string   `json:"hovered_edge,omitempty"`
}

// Store holds the selection. Ids that do not exist in the graph are never selected.
type Store struct {
	graph Graph

	mu          sync.RWMutex
	nodes       []string
	edges       []string
	hoveredNode string
	hoveredEdge string

	hooksMu  sync.RWMutex
	onChange []func(ctx context.Context, s Snapshot)
}

func New(graph Graph) *Store {
	return &Store{graph: graph}
}

// OnChange registers a hook fired after the selected sets change.
func (s *Store) OnChange(fn func(ctx context.Context, snap Snapshot)) {
	s.hooksMu.Lock()
	s.onChange = append(s.onChange, fn)
	s.hooksMu.Unlock()
}

func (s *Store) changed(ctx context.Context) {
	snap := s.Snapshot()
	s.hooksMu.RLock()
	hooks := slices.Clone(s.onChange)
	s.hooksMu.RUnlock()
	for _, h := range hooks {
		h(ctx, snap)
	}
}

// SelectNode adds id, first clearing everything else when clearOthers is
// set. Unknown ids are ignored; the result reports whether id is now selected.
func (s *Store) SelectNode(ctx context.Context, id string, clearOthers bool) bool {
	if !s.graph.HasNode(id) {
		return false
	}
	s.mu.Lock()
	if clearOthers {
		s.nodes, s.edges = nil, nil
	}
	s.nodes = addUnique(s.nodes, id)
	s.mu.Unlock()
	s.changed(ctx)
	return true
}

// SelectEdge is SelectNode for edges.
func (s *Store) SelectEdge(ctx context.Context, id string, clearOthers bool) bool {
	if !s.graph.HasEdge(id) {
		return false
	}
	s.mu.Lock()
	if clearOthers {
		s.nodes, s.edges = nil, nil
	}
	s.edges = addUnique(s.edges, id)
	s.mu.Unlock()
	s.changed(ctx)
	return true
}

func (s *Store) DeselectNode(ctx context.Context, id string) {
	s.mu.Lock()
	s.nodes = slices.DeleteFunc(s.nodes, func(v string) bool { return v == id })
	s.mu.Unlock()
	s.changed(ctx)
}

func (s *Store) DeselectEdge(ctx context.Context, id string) {
	s.mu.Lock()
	s.edges = slices.DeleteFunc(s.edges, func(v string) bool { return v == id })
	s.mu.Unlock()
	s.changed(ctx)
}

// ToggleNode deselects a selected node, otherwise selects it alone.
func (s *Store) ToggleNode(ctx context.Context, id string) {
	if s.IsNodeSelected(id) {
		s.DeselectNode(ctx, id)
		return
	}
	s.SelectNode(ctx, id, true)
}

// ToggleEdge deselects a selected edge, otherwise selects it alone.
func (s *Store) ToggleEdge(ctx context.Context, id string) {
	if s.IsEdgeSelected(id) {
		s.DeselectEdge(ctx, id)
		return
	}
	s.SelectEdge(ctx, id, true)
}

func (s *Store) SetHoveredNode(id string) {
	s.mu.Lock()
	s.hoveredNode = id
	s.mu.Unlock()
}

func (s *Store) SetHoveredEdge(id string) {
	s.mu.Lock()
	s.hoveredEdge = id
	s.mu.Unlock()
}

func (s *Store) ClearHovered() {
	s.mu.Lock()
	s.hoveredNode, s.hoveredEdge = "", ""
	s.mu.Unlock()
}

// Clear deselects everything.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.nodes, s.edges = nil, nil
	s.mu.Unlock()
	s.changed(ctx)
}

// SelectConnectedNodes adds every neighbor of the selected nodes. Returns
// how many nodes were added.
func (s *Store) SelectConnectedNodes(ctx context.Context) int {
	edges := s.graph.Edges()

	s.mu.Lock()
	selected := toSet(s.nodes)
	before := len(s.nodes)
	for _, e := range edges {
		if selected[e.Source] {
			s.nodes = addUnique(s.nodes, e.Target)
		}
		if selected[e.Target] {
			s.nodes = addUnique(s.nodes, e.Source)
		}
	}
	added := len(s.nodes) - before
	s.mu.Unlock()

	if added > 0 {
		s.changed(ctx)
	}
	return added
}

// SelectEdgesBetweenNodes adds every edge whose endpoints are both selected.
func (s *Store) SelectEdgesBetweenNodes(ctx context.Context) int {
	edges := s.graph.Edges()

	s.mu.Lock()
	selected := toSet(s.nodes)
	before := len(s.edges)
	for _, e := range edges {
		if selected[e.Source] && selected[e.Target] {
			s.edges = addUnique(s.edges, e.ID)
		}
	}
	added := len(s.edges) - before
	s.mu.Unlock()

	if added > 0 {
		s.changed(ctx)
	}
	return added
}

// Prune drops ids that no longer exist, e.g. after a reload.
func (s *Store) Prune(ctx context.Context) {
	s.mu.Lock()
	n, e := len(s.nodes), len(s.edges)
	s.nodes = slices.DeleteFunc(s.nodes, func(id string) bool { return !s.graph.HasNode(id) })
	s.edges = slices.DeleteFunc(s.edges, func(id string) bool { return !s.graph.HasEdge(id) })
	if s.hoveredNode != "" && !s.graph.HasNode(s.hoveredNode) {
		s.hoveredNode = ""
	}
	if s.hoveredEdge != "" && !s.graph.HasEdge(s.hoveredEdge) {
		s.hoveredEdge = ""
	}
	pruned := n != len(s.nodes) || e != len(s.edges)
	s.mu.Unlock()

	if pruned {
		s.changed(ctx)
	}
}

func (s *Store) IsNodeSelected(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.nodes, id)
}

func (s *Store) IsEdgeSelected(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.edges, id)
}

// SelectedNodes returns the selected node ids in selection order.
func (s *Store) SelectedNodes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.nodes...)
}

// HasSelection reports whether anything is selected.
func (s *Store) HasSelection() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes) > 0 || len(s.edges) > 0
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Nodes:       append([]string{}, s.nodes...),
		Edges:       append([]string{}, s.edges...),
		HoveredNode: s.hoveredNode,
		HoveredEdge: s.hoveredEdge,
	}
}

func addUnique(list []string, id string) []string {
	if slices.Contains(list, id) {
		return list
	}
	return append(list, id)
}

func toSet(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}
