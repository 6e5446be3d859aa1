package graph

import (
	"github.com/rendis/graphspace/internal/graphfile"
	"github.com/rendis/graphspace/pkg/schema"
)

// Node returns a copy of the node with id.
func (s *Store) Node(id string) (*schema.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes.Get(id)
	return n.Clone(), ok
}

// Edge returns a copy of the edge with id.
func (s *Store) Edge(id string) (*schema.Edge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.edges.Get(id)
	return e.Clone(), ok
}

// HasNode reports whether id exists.
func (s *Store) HasNode(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes.Get(id)
	return ok
}

// HasEdge reports whether id exists.
func (s *Store) HasEdge(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.edges.Get(id)
	return ok
}

// Nodes returns copies of all nodes in insertion order.
func (s *Store) Nodes() []*schema.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*schema.Node, 0, s.nodes.Len())
	for p := s.nodes.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Value.Clone())
	}
	return out
}

// Edges returns copies of all edges in insertion order.
func (s *Store) Edges() []*schema.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*schema.Edge, 0, s.edges.Len())
	for p := s.edges.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Value.Clone())
	}
	return out
}

// Counts returns the node and edge totals.
func (s *Store) Counts() (nodes, edges int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes.Len(), s.edges.Len()
}

// Snapshot returns the whole graph as a file-level value.
func (s *Store) Snapshot() *schema.Graph {
	s.mu.RLock()
	name, desc := s.name, s.description
	s.mu.RUnlock()

	return &schema.Graph{
		Name:        name,
		Description: desc,
		Nodes:       s.Nodes(),
		Edges:       s.Edges(),
	}
}

// Export renders the graph as json or dot.
func (s *Store) Export(format string) ([]byte, error) {
	f, err := graphfile.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	return graphfile.Encode(s.Snapshot(), f)
}

// Name is the name of the loaded graph, taken from its file name.
func (s *Store) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// Loaded reports whether a graph file has been loaded since the last Clear.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Loading reports whether a load is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// LastError is the most recent parse or engine failure, cleared by the next load.
func (s *Store) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Revision increases with every change. Used to detect unsaved edits.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}
