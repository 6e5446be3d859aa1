package graphfile

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rendis/graphspace/pkg/schema"
)

var (
	nodeFields = map[string]bool{"id": true, "label": true, "x": true, "y": true, "type": true, "metadata": true, "position": true}
	edgeFields = map[string]bool{"id": true, "source": true, "target": true, "weight": true, "type": true, "metadata": true}
)

// ParseJSON decodes either {nodes:[...], edges:[...], name?, description?}
// or a bare edge list [{source, target, ...}]. Missing ids are synthesized
// as node-<i> / edge-<i>; unknown fields land in Metadata.
func ParseJSON(data []byte) (*schema.Graph, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, parseError("invalid JSON graph").WithCause(err)
	}

	switch doc := raw.(type) {
	case []any:
		if isEdgeList(doc) {
			return parseEdgeList(doc)
		}
	case map[string]any:
		nodes, ok := doc["nodes"].([]any)
		if !ok {
			break
		}
		edges, ok := doc["edges"].([]any)
		if !ok && doc["edges"] != nil {
			break
		}
		g, err := parseNodesEdges(nodes, edges)
		if err != nil {
			return nil, err
		}
		g.Name = text(doc["name"])
		g.Description = text(doc["description"])
		return g, nil
	}
	return nil, parseError("invalid JSON graph format: missing nodes or edges arrays")
}

func isEdgeList(items []any) bool {
	if len(items) == 0 {
		return false
	}
	first, ok := items[0].(map[string]any)
	if !ok {
		return false
	}
	_, hasSource := first["source"]
	_, hasTarget := first["target"]
	return hasSource || hasTarget
}

func parseNodesEdges(nodes, edges []any) (*schema.Graph, error) {
	b := newBuilder()
	for i, item := range nodes {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, parseError("node %d is not an object", i)
		}
		b.putNode(nodeFromJSON(m, i))
	}
	for i, item := range edges {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, parseError("edge %d is not an object", i)
		}
		e, err := edgeFromJSON(m, i)
		if err != nil {
			return nil, err
		}
		b.putEdge(e)
	}
	return b.g, nil
}

func parseEdgeList(items []any) (*schema.Graph, error) {
	b := newBuilder()
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, parseError("edge %d is not an object", i)
		}
		e, err := edgeFromJSON(m, i)
		if err != nil {
			return nil, err
		}
		for _, end := range []struct{ id, labelKey string }{{e.Source, "sourceLabel"}, {e.Target, "targetLabel"}} {
			n := b.node(end.id)
			if l := text(m[end.labelKey]); l != "" && n.Label == n.ID {
				n.Label = l
			}
		}
		delete(e.Metadata, "sourceLabel")
		delete(e.Metadata, "targetLabel")
		if len(e.Metadata) == 0 {
			e.Metadata = nil
		}
		b.putEdge(e)
	}
	return b.g, nil
}

func nodeFromJSON(m map[string]any, i int) *schema.Node {
	n := &schema.Node{
		ID:   text(m["id"]),
		Type: text(m["type"]),
		X:    number(m["x"]),
		Y:    number(m["y"]),
	}
	if n.ID == "" {
		n.ID = "node-" + strconv.Itoa(i)
	}
	if pos, ok := m["position"].([]any); ok && len(pos) == 2 {
		n.X, n.Y = number(pos[0]), number(pos[1])
	}

	n.Metadata = extras(m, nodeFields)

	n.Label = text(m["label"])
	if n.Label == "" {
		n.Label = text(m["name"])
	}
	if n.Label == "" {
		n.Label = n.ID
	}
	return n
}

func edgeFromJSON(m map[string]any, i int) (*schema.Edge, error) {
	e := &schema.Edge{
		ID:     text(m["id"]),
		Source: text(m["source"]),
		Target: text(m["target"]),
		Type:   text(m["type"]),
		Weight: 1,
	}
	if e.Source == "" || e.Target == "" {
		return nil, parseError("edge %d needs both source and target", i)
	}
	if e.ID == "" {
		e.ID = "edge-" + strconv.Itoa(i)
	}
	if w, ok := m["weight"]; ok && w != nil {
		f, err := toFloat(w)
		if err != nil {
			return nil, parseError("edge %d: invalid weight", i).WithCause(err)
		}
		e.Weight = f
	}
	e.Metadata = extras(m, edgeFields)
	return e, nil
}

// extras merges an explicit metadata object with every non-core field.
func extras(m map[string]any, core map[string]bool) map[string]any {
	out := map[string]any{}
	if md, ok := m["metadata"].(map[string]any); ok {
		for k, v := range md {
			out[k] = v
		}
	}
	for k, v := range m {
		if !core[k] {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func number(v any) float64 {
	f, _ := toFloat(v)
	return f
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return t, nil
	case string:
		return strconv.ParseFloat(t, 64)
	}
	return 0, fmt.Errorf("not a number: %v", v)
}

// EncodeJSON writes the {nodes, edges, name, description} file shape.
func EncodeJSON(g *schema.Graph) ([]byte, error) {
	out, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode graph json: %w", err)
	}
	return out, nil
}
