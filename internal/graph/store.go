// Package graph holds the canonical node and edge maps of the workspace.
package graph

import (
	"context"
	"log/slog"
	"path"
	"slices"
	"sync"

	"github.com/rendis/graphspace/internal/graphfile"
	"github.com/rendis/graphspace/internal/layout"
	"github.com/rendis/graphspace/pkg/schema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ChangeKind tells listeners what happened to the graph.
type ChangeKind string

const (
	ChangeLoaded  ChangeKind = schema.EventGraphLoaded
	ChangeMutated ChangeKind = schema.EventGraphChanged
	ChangeLayout  ChangeKind = schema.EventLayoutApplied
	ChangeCleared ChangeKind = schema.EventGraphCleared
)

// Store is the source of truth for node and edge existence. Every mutation
// is applied locally first and then mirrored to the layout engine; the
// engine is only authoritative for positions after a layout pass.
type Store struct {
	adapter *layout.Adapter
	logger  *slog.Logger

	mu          sync.RWMutex
	name        string
	description string
	nodes       *orderedmap.OrderedMap[string, *schema.Node]
	edges       *orderedmap.OrderedMap[string, *schema.Edge]
	loaded      bool
	loading     bool
	lastErr     error
	revision    uint64

	hooksMu  sync.RWMutex
	onChange []func(ctx context.Context, kind ChangeKind)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates an empty store mirrored to adapter.
func NewStore(adapter *layout.Adapter, opts ...Option) *Store {
	s := &Store{
		adapter: adapter,
		logger:  slog.Default(),
		nodes:   orderedmap.New[string, *schema.Node](),
		edges:   orderedmap.New[string, *schema.Edge](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers a hook fired after every successful change.
func (s *Store) OnChange(fn func(ctx context.Context, kind ChangeKind)) {
	s.hooksMu.Lock()
	s.onChange = append(s.onChange, fn)
	s.hooksMu.Unlock()
}

func (s *Store) notify(ctx context.Context, kind ChangeKind) {
	s.hooksMu.RLock()
	hooks := slices.Clone(s.onChange)
	s.hooksMu.RUnlock()
	for _, h := range hooks {
		h(ctx, kind)
	}
}

// forward records a mirror failure and wraps it as LAYOUT_ENGINE_ERROR.
func (s *Store) forward(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if !schema.IsCode(err, schema.ErrCodeLayoutEngine) {
		err = schema.NewErrorf(schema.ErrCodeLayoutEngine, "mirror %s", op).WithCause(err)
	}
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.logger.WarnContext(ctx, "layout engine mirror failed", slog.String("op", op), slog.Any("error", err))
	return err
}

// AddNode inserts or replaces n. The local insert stands even if the
// engine mirror fails.
func (s *Store) AddNode(ctx context.Context, n *schema.Node) error {
	if n == nil || n.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "node id is empty")
	}
	n = n.Clone()
	if n.Label == "" {
		n.Label = n.ID
	}

	s.mu.Lock()
	s.nodes.Set(n.ID, n)
	s.revision++
	s.mu.Unlock()

	s.notify(ctx, ChangeMutated)
	return s.forward(ctx, "add_node", s.adapter.AddNode(ctx, n.ID, n.X, n.Y))
}

// AddEdge inserts or replaces e. Both endpoints must already exist.
func (s *Store) AddEdge(ctx context.Context, e *schema.Edge) error {
	if e == nil || e.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "edge id is empty")
	}
	e = e.Clone()

	s.mu.Lock()
	for _, end := range []string{e.Source, e.Target} {
		if _, ok := s.nodes.Get(end); !ok {
			s.mu.Unlock()
			return schema.NewErrorf(schema.ErrCodeNotFound, "edge %q endpoint %q not found", e.ID, end)
		}
	}
	s.edges.Set(e.ID, e)
	s.revision++
	s.mu.Unlock()

	s.notify(ctx, ChangeMutated)
	return s.forward(ctx, "add_edge", s.adapter.AddEdge(ctx, e.ID, e.Source, e.Target))
}

// RemoveNode deletes the node and every edge touching it. Reports whether
// the node existed.
func (s *Store) RemoveNode(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	if _, ok := s.nodes.Delete(id); !ok {
		s.mu.Unlock()
		return false, nil
	}
	var dangling []string
	for p := s.edges.Oldest(); p != nil; p = p.Next() {
		if p.Value.Source == id || p.Value.Target == id {
			dangling = append(dangling, p.Key)
		}
	}
	for _, k := range dangling {
		s.edges.Delete(k)
	}
	s.revision++
	s.mu.Unlock()

	s.notify(ctx, ChangeMutated)
	return true, s.forward(ctx, "remove_node", s.adapter.RemoveNode(ctx, id))
}

// RemoveEdge deletes one edge. Reports whether it existed.
func (s *Store) RemoveEdge(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	if _, ok := s.edges.Delete(id); !ok {
		s.mu.Unlock()
		return false, nil
	}
	s.revision++
	s.mu.Unlock()

	s.notify(ctx, ChangeMutated)
	return true, s.forward(ctx, "remove_edge", s.adapter.RemoveEdge(ctx, id))
}

// LoadGraph parses text through the layout engine and atomically replaces
// the graph. The format comes from name's extension. On failure the current
// graph is kept and the error is recorded.
func (s *Store) LoadGraph(ctx context.Context, name, text string) error {
	format, err := graphfile.FormatOf(name)
	if err != nil {
		s.setLastErr(err)
		return err
	}
	return s.Load(ctx, stem(name), text, format)
}

// Load is LoadGraph with an explicit format.
func (s *Store) Load(ctx context.Context, name, text string, format graphfile.Format) error {
	s.mu.Lock()
	s.loading = true
	s.lastErr = nil
	s.mu.Unlock()

	doc, err := s.adapter.Load(ctx, text, format)

	s.mu.Lock()
	s.loading = false
	if err != nil {
		s.lastErr = err
		s.mu.Unlock()
		s.logger.WarnContext(ctx, "graph load failed", slog.String("name", name), slog.Any("error", err))
		return err
	}
	s.nodes = orderedmap.New[string, *schema.Node]()
	s.edges = orderedmap.New[string, *schema.Edge]()
	for p := doc.Nodes.Oldest(); p != nil; p = p.Next() {
		if p.Value != nil {
			s.nodes.Set(p.Key, p.Value)
		}
	}
	for p := doc.Edges.Oldest(); p != nil; p = p.Next() {
		if p.Value != nil {
			s.edges.Set(p.Key, p.Value)
		}
	}
	s.name = name
	s.description = ""
	s.loaded = true
	s.revision++
	nodes, edges := s.nodes.Len(), s.edges.Len()
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "graph loaded",
		slog.String("name", name),
		slog.String("format", string(format)),
		slog.Int("nodes", nodes),
		slog.Int("edges", edges))
	s.notify(ctx, ChangeLoaded)
	return nil
}

// ApplyLayout runs a layout pass and merges only positions into existing nodes.
func (s *Store) ApplyLayout(ctx context.Context, opts layout.Options) error {
	positions, err := s.adapter.Layout(ctx, opts)
	if err != nil {
		s.setLastErr(err)
		return err
	}

	s.mu.Lock()
	for id, pos := range positions {
		if n, ok := s.nodes.Get(id); ok {
			updated := n.Clone()
			updated.X, updated.Y = pos[0], pos[1]
			s.nodes.Set(id, updated)
		}
	}
	s.revision++
	s.mu.Unlock()

	s.notify(ctx, ChangeLayout)
	return nil
}

// Clear empties the graph locally. The engine keeps its mirror until the next load.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.nodes = orderedmap.New[string, *schema.Node]()
	s.edges = orderedmap.New[string, *schema.Edge]()
	s.name, s.description = "", ""
	s.loaded = false
	s.lastErr = nil
	s.revision++
	s.mu.Unlock()

	s.notify(ctx, ChangeCleared)
}

func (s *Store) setLastErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func stem(name string) string {
	base := path.Base(name)
	return base[:len(base)-len(path.Ext(base))]
}

var _ layout.Applier = (*Store)(nil)
