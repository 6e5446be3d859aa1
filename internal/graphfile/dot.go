package graphfile

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/rendis/graphspace/pkg/schema"
)

const dotID = `("[^"]+"|[A-Za-z0-9_]+)`

var (
	dotGraphName = regexp.MustCompile(`(?:digraph|graph)\s+` + dotID)
	dotEdge      = regexp.MustCompile(`^` + dotID + `\s*(->|--)\s*` + dotID + `\s*(?:\[(.*)\])?\s*;?$`)
	dotNode      = regexp.MustCompile(`^` + dotID + `\s*(?:\[(.*)\])?\s*;?$`)
	dotAttr      = regexp.MustCompile(`([A-Za-z0-9_]+)\s*=\s*(?:"([^"]*)"|\{([^}]*)\}|([A-Za-z0-9_.\-]+))`)
	dotPlainID   = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

var dotKeywords = map[string]bool{"graph": true, "digraph": true, "node": true, "edge": true, "strict": true, "subgraph": true}

// ParseDOT reads the line-oriented DOT subset: one node or edge statement per
// line, attribute lists of key=value, key="value" or key={value}. Edge
// endpoints that were never declared become bare nodes. Edge ids default to
// source-target.
func ParseDOT(data []byte) (*schema.Graph, error) {
	if !bytes.Contains(data, []byte("graph")) {
		return nil, parseError("DOT input has no graph header")
	}

	b := newBuilder()
	if m := dotGraphName.FindSubmatch(data); m != nil {
		b.g.Name = unquote(string(m[1]))
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "//") || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "}" || strings.HasSuffix(line, "{") {
			continue
		}

		if m := dotEdge.FindStringSubmatch(line); m != nil {
			b.putEdge(dotEdgeFrom(unquote(m[1]), unquote(m[3]), parseDOTAttrs(m[4])))
			continue
		}
		if m := dotNode.FindStringSubmatch(line); m != nil {
			id := unquote(m[1])
			if dotKeywords[id] && !strings.HasPrefix(m[1], `"`) {
				continue
			}
			b.putNode(dotNodeFrom(id, parseDOTAttrs(m[2]), b.nodes[id]))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, parseError("read DOT input").WithCause(err)
	}
	return b.g, nil
}

// parseDOTAttrs returns attributes in source order.
func parseDOTAttrs(s string) [][2]string {
	var out [][2]string
	for _, m := range dotAttr.FindAllStringSubmatch(s, -1) {
		v := m[2]
		switch {
		case m[3] != "":
			v = m[3]
		case m[4] != "":
			v = m[4]
		}
		out = append(out, [2]string{m[1], v})
	}
	return out
}

func dotNodeFrom(id string, attrs [][2]string, prev *schema.Node) *schema.Node {
	n := &schema.Node{ID: id, Label: id}
	if prev != nil {
		n = prev.Clone()
	}
	for _, kv := range attrs {
		k, v := kv[0], kv[1]
		switch k {
		case "label":
			n.Label = v
		case "type":
			n.Type = v
		case "x":
			n.X, _ = strconv.ParseFloat(v, 64)
		case "y":
			n.Y, _ = strconv.ParseFloat(v, 64)
		case "tags":
			setMeta(&n.Metadata, k, splitTags(v))
		default:
			setMeta(&n.Metadata, k, v)
		}
	}
	return n
}

func dotEdgeFrom(source, target string, attrs [][2]string) *schema.Edge {
	e := &schema.Edge{ID: source + "-" + target, Source: source, Target: target, Weight: 1}
	for _, kv := range attrs {
		k, v := kv[0], kv[1]
		switch k {
		case "id":
			e.ID = v
		case "type":
			e.Type = v
		case "weight":
			if w, err := strconv.ParseFloat(v, 64); err == nil {
				e.Weight = w
			}
		default:
			setMeta(&e.Metadata, k, v)
		}
	}
	return e
}

func setMeta(m *map[string]any, k string, v any) {
	if *m == nil {
		*m = map[string]any{}
	}
	(*m)[k] = v
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// EncodeDOT renders g as a digraph that ParseDOT reads back with the same
// ids, labels and attributes. Double quotes inside values become single quotes.
func EncodeDOT(g *schema.Graph) string {
	var b strings.Builder

	name := "G"
	if g.Name != "" {
		name = dotQuoteID(g.Name)
	}
	fmt.Fprintf(&b, "digraph %s {\n", name)

	for _, n := range g.Nodes {
		attrs := [][2]string{{"label", n.Label}}
		if n.Type != "" {
			attrs = append(attrs, [2]string{"type", n.Type})
		}
		if n.X != 0 || n.Y != 0 {
			attrs = append(attrs, [2]string{"x", text(n.X)}, [2]string{"y", text(n.Y)})
		}
		attrs = append(attrs, metaAttrs(n.Metadata, "label", "type", "x", "y")...)
		fmt.Fprintf(&b, "  %s [%s];\n", dotQuoteID(n.ID), joinAttrs(attrs))
	}

	for _, e := range g.Edges {
		var attrs [][2]string
		if e.ID != e.Source+"-"+e.Target {
			attrs = append(attrs, [2]string{"id", e.ID})
		}
		if e.Weight != 1 {
			attrs = append(attrs, [2]string{"weight", text(e.Weight)})
		}
		if e.Type != "" {
			attrs = append(attrs, [2]string{"type", e.Type})
		}
		attrs = append(attrs, metaAttrs(e.Metadata, "id", "weight", "type")...)

		stmt := dotQuoteID(e.Source) + " -> " + dotQuoteID(e.Target)
		if len(attrs) > 0 {
			stmt += " [" + joinAttrs(attrs) + "]"
		}
		b.WriteString("  " + stmt + ";\n")
	}

	b.WriteString("}\n")
	return b.String()
}

func metaAttrs(md map[string]any, reserved ...string) [][2]string {
	keys := make([]string, 0, len(md))
	for k := range md {
		if dotPlainID.MatchString(k) && !slices.Contains(reserved, k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	out := make([][2]string, len(keys))
	for i, k := range keys {
		out[i] = [2]string{k, text(md[k])}
	}
	return out
}

func joinAttrs(attrs [][2]string) string {
	parts := make([]string, len(attrs))
	for i, kv := range attrs {
		parts[i] = kv[0] + `="` + strings.ReplaceAll(kv[1], `"`, `'`) + `"`
	}
	return strings.Join(parts, ", ")
}

func dotQuoteID(id string) string {
	if dotPlainID.MatchString(id) && !dotKeywords[id] {
		return id
	}
	return `"` + strings.ReplaceAll(id, `"`, `'`) + `"`
}
