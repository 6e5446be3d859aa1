// Package graphfile parses and encodes graph files (JSON, DOT, CSV).
package graphfile

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rendis/graphspace/pkg/schema"
)

// Format is a graph file type, identified by file extension.
type Format string

const (
	FormatJSON Format = "json"
	FormatDOT  Format = "dot"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts "json", ".DOT" and so on.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")))
	switch f {
	case FormatJSON, FormatDOT, FormatCSV:
		return f, nil
	}
	return "", schema.NewErrorf(schema.ErrCodeUnsupportedFormat, "unsupported file type %q", s)
}

// FormatOf derives the format from a file name's extension.
func FormatOf(name string) (Format, error) {
	ext := filepath.Ext(name)
	if ext == "" {
		return "", schema.NewErrorf(schema.ErrCodeUnsupportedFormat, "file %q has no extension", name)
	}
	return ParseFormat(ext)
}

// Parse decodes data in format f.
func Parse(data []byte, f Format) (*schema.Graph, error) {
	switch f {
	case FormatJSON:
		return ParseJSON(data)
	case FormatDOT:
		return ParseDOT(data)
	case FormatCSV:
		return ParseCSV(data)
	}
	return nil, schema.NewErrorf(schema.ErrCodeUnsupportedFormat, "unsupported file type %q", f)
}

// Encode renders g in format f. Only JSON and DOT are exportable.
func Encode(g *schema.Graph, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		return EncodeJSON(g)
	case FormatDOT:
		return []byte(EncodeDOT(g)), nil
	}
	return nil, schema.NewErrorf(schema.ErrCodeUnsupportedFormat, "unsupported export format %q", f)
}

func parseError(format string, args ...any) *schema.GraphspaceError {
	return schema.NewErrorf(schema.ErrCodeParse, format, args...)
}

// builder accumulates a graph, materializing edge endpoints on demand.
type builder struct {
	g     *schema.Graph
	nodes map[string]*schema.Node
	edges map[string]bool
}

func newBuilder() *builder {
	return &builder{
		g:     &schema.Graph{Nodes: []*schema.Node{}, Edges: []*schema.Edge{}},
		nodes: make(map[string]*schema.Node),
		edges: make(map[string]bool),
	}
}

// node returns the node with id, creating a bare one if needed.
func (b *builder) node(id string) *schema.Node {
	if n, ok := b.nodes[id]; ok {
		return n
	}
	n := &schema.Node{ID: id, Label: id}
	b.nodes[id] = n
	b.g.Nodes = append(b.g.Nodes, n)
	return n
}

// putNode inserts n, replacing the attributes of an earlier node with the same id in place.
func (b *builder) putNode(n *schema.Node) {
	if existing, ok := b.nodes[n.ID]; ok {
		*existing = *n
		return
	}
	b.nodes[n.ID] = n
	b.g.Nodes = append(b.g.Nodes, n)
}

// putEdge appends e, materializing its endpoints. A colliding id gets a numeric suffix.
func (b *builder) putEdge(e *schema.Edge) {
	b.node(e.Source)
	b.node(e.Target)
	if b.edges[e.ID] {
		base := e.ID
		for i := 2; b.edges[e.ID]; i++ {
			e.ID = base + "-" + strconv.Itoa(i)
		}
	}
	b.edges[e.ID] = true
	b.g.Edges = append(b.g.Edges, e)
}

// text renders scalar attribute values the way they appear in files.
func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []string:
		return strings.Join(t, ",")
	case []any:
		parts := make([]string, len(t))
		for i, p := range t {
			parts[i] = text(p)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(t)
	}
}

func splitTags(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
