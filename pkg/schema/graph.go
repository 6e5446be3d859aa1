package schema

import orderedmap "github.com/wk8/go-ordered-map/v2"

// Node is a graph vertex. Open-ended attributes live in Metadata.
type Node struct {
	ID       string         `json:"id"`
	Label    string         `json:"label"`
	X        float64        `json:"x"`
	Y        float64        `json:"y"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Type     string         `json:"type,omitempty"`
}

// Tags returns the node's tags, read from Metadata["tags"].
func (n *Node) Tags() []string {
	if n == nil || n.Metadata == nil {
		return nil
	}
	switch v := n.Metadata["tags"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, t := range v {
			if s, ok := t.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// Clone returns a copy with its own metadata map.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := *n
	out.Metadata = cloneMap(n.Metadata)
	return &out
}

// Edge is a directed connection between two node ids.
type Edge struct {
	ID       string         `json:"id"`
	Source   string         `json:"source"`
	Target   string         `json:"target"`
	Weight   float64        `json:"weight"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Type     string         `json:"type,omitempty"`
}

// Clone returns a copy with its own metadata map.
func (e *Edge) Clone() *Edge {
	if e == nil {
		return nil
	}
	out := *e
	out.Metadata = cloneMap(e.Metadata)
	return &out
}

// Graph is the file-level representation used by import and export.
// Nodes and Edges are ordered.
type Graph struct {
	Name        string  `json:"name,omitempty"`
	Description string  `json:"description,omitempty"`
	Nodes       []*Node `json:"nodes"`
	Edges       []*Edge `json:"edges"`
}

// GraphDocument is the layout engine's wire shape: entities keyed by id.
// Key order is the engine's insertion order.
type GraphDocument struct {
	Nodes *orderedmap.OrderedMap[string, *Node] `json:"nodes"`
	Edges *orderedmap.OrderedMap[string, *Edge] `json:"edges"`
}

// NewGraphDocument returns an empty document.
func NewGraphDocument() *GraphDocument {
	return &GraphDocument{
		Nodes: orderedmap.New[string, *Node](),
		Edges: orderedmap.New[string, *Edge](),
	}
}

// DocumentFromGraph keys g's entities by id, keeping file order.
func DocumentFromGraph(g *Graph) *GraphDocument {
	doc := NewGraphDocument()
	for _, n := range g.Nodes {
		doc.Nodes.Set(n.ID, n)
	}
	for _, e := range g.Edges {
		doc.Edges.Set(e.ID, e)
	}
	return doc
}

// Graph flattens the document back to ordered slices.
func (d *GraphDocument) Graph() *Graph {
	g := &Graph{Nodes: []*Node{}, Edges: []*Edge{}}
	if d == nil {
		return g
	}
	if d.Nodes != nil {
		for p := d.Nodes.Oldest(); p != nil; p = p.Next() {
			g.Nodes = append(g.Nodes, p.Value)
		}
	}
	if d.Edges != nil {
		for p := d.Edges.Oldest(); p != nil; p = p.Next() {
			g.Edges = append(g.Edges, p.Value)
		}
	}
	return g
}

// Position is an (x, y) pair as returned by a layout pass.
type Position [2]float64

// LayoutDocument is the layout engine's response to a layout request.
type LayoutDocument struct {
	Nodes map[string]LayoutEntry `json:"nodes"`
}

// LayoutEntry carries the computed position of one node.
type LayoutEntry struct {
	Position *Position `json:"position"`
}
