package layout

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rendis/graphspace/internal/graphfile"
	"github.com/rendis/graphspace/pkg/schema"
)

// LocalEngine is an in-process Engine. It parses with graphfile, keeps a
// mirror of the graph and asks a Placer for coordinates.
type LocalEngine struct {
	placer Placer

	mu  sync.RWMutex
	doc *schema.GraphDocument
}

// NewLocalEngine creates an engine backed by placer. A nil placer uses CirclePlacer.
func NewLocalEngine(placer Placer) *LocalEngine {
	if placer == nil {
		placer = CirclePlacer{}
	}
	return &LocalEngine{placer: placer, doc: schema.NewGraphDocument()}
}

// ParseAndLoadGraph replaces the mirror with the parsed file. A failed parse
// leaves the mirror untouched.
func (e *LocalEngine) ParseAndLoadGraph(_ context.Context, text, fileType string) error {
	format, err := graphfile.ParseFormat(fileType)
	if err != nil {
		return err
	}
	g, err := graphfile.Parse([]byte(text), format)
	if err != nil {
		return err
	}
	doc := schema.DocumentFromGraph(g)

	e.mu.Lock()
	e.doc = doc
	e.mu.Unlock()
	return nil
}

func (e *LocalEngine) GetGraphJSON(context.Context) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	raw, err := json.Marshal(e.doc)
	if err != nil {
		return "", fmt.Errorf("encode graph: %w", err)
	}
	return string(raw), nil
}

func (e *LocalEngine) AddNode(_ context.Context, id string, x, y float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if n, ok := e.doc.Nodes.Get(id); ok {
		n.X, n.Y = x, y
		return nil
	}
	e.doc.Nodes.Set(id, &schema.Node{ID: id, Label: id, X: x, Y: y})
	return nil
}

func (e *LocalEngine) AddEdge(_ context.Context, id, source, target string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, end := range []string{source, target} {
		if _, ok := e.doc.Nodes.Get(end); !ok {
			return schema.NewErrorf(schema.ErrCodeNotFound, "edge %q endpoint %q not found", id, end)
		}
	}
	e.doc.Edges.Set(id, &schema.Edge{ID: id, Source: source, Target: target, Weight: 1})
	return nil
}

func (e *LocalEngine) RemoveNode(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.doc.Nodes.Delete(id)
	var dangling []string
	for p := e.doc.Edges.Oldest(); p != nil; p = p.Next() {
		if p.Value.Source == id || p.Value.Target == id {
			dangling = append(dangling, p.Key)
		}
	}
	for _, k := range dangling {
		e.doc.Edges.Delete(k)
	}
	return nil
}

func (e *LocalEngine) RemoveEdge(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.doc.Edges.Delete(id)
	return nil
}

// ApplyFcoseLayout places every node and records the new coordinates in the mirror.
func (e *LocalEngine) ApplyFcoseLayout(ctx context.Context, optionsJSON string) (string, error) {
	opts := DefaultOptions()
	if optionsJSON != "" {
		if err := json.Unmarshal([]byte(optionsJSON), &opts); err != nil {
			return "", fmt.Errorf("decode layout options: %w", err)
		}
	}

	e.mu.RLock()
	g := cloneGraph(e.doc)
	e.mu.RUnlock()

	positions, err := e.placer.Place(ctx, g, opts)
	if err != nil {
		return "", err
	}

	out := schema.LayoutDocument{Nodes: make(map[string]schema.LayoutEntry, len(positions))}
	e.mu.Lock()
	for id, pos := range positions {
		n, ok := e.doc.Nodes.Get(id)
		if !ok {
			continue
		}
		n.X, n.Y = pos[0], pos[1]
		p := pos
		out.Nodes[id] = schema.LayoutEntry{Position: &p}
	}
	e.mu.Unlock()

	raw, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode layout: %w", err)
	}
	return string(raw), nil
}

func cloneGraph(doc *schema.GraphDocument) *schema.Graph {
	g := doc.Graph()
	for i, n := range g.Nodes {
		g.Nodes[i] = n.Clone()
	}
	for i, ed := range g.Edges {
		g.Edges[i] = ed.Clone()
	}
	return g
}

var _ Engine = (*LocalEngine)(nil)
