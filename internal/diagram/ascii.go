package diagram

import (
	"fmt"
	"strings"
)

// markTag returns a short ASCII indicator for a node mark.
func markTag(m Mark) string {
	switch m {
	case MarkSelected:
		return " [SEL]"
	case MarkMatch:
		return " [HIT]"
	default:
		return ""
	}
}

// RenderASCII renders a DiagramModel as an adjacency listing: each node on its
// own line followed by its outgoing edges.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	if model.Title != "" {
		fmt.Fprintf(&b, "=== %s ===\n", model.Title)
	}
	fmt.Fprintf(&b, "%d nodes, %d edges\n\n", len(model.Nodes), len(model.Edges))

	out := make(map[string][]Edge, len(model.Nodes))
	for _, e := range model.Edges {
		out[e.From] = append(out[e.From], e)
	}
	labels := make(map[string]string, len(model.Nodes))
	for _, n := range model.Nodes {
		labels[n.ID] = n.Label
	}

	for _, n := range model.Nodes {
		b.WriteString(nodeLine(n))
		b.WriteByte('\n')
		edges := out[n.ID]
		for i, e := range edges {
			branch := "├"
			if i == len(edges)-1 {
				branch = "└"
			}
			fmt.Fprintf(&b, "  %s─→ %s", branch, firstLine(labels[e.To]))
			if e.Label != "" {
				fmt.Fprintf(&b, " (%s)", e.Label)
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func nodeLine(n *Node) string {
	line := firstLine(n.Label)
	if n.Label != n.ID {
		line += " <" + n.ID + ">"
	}
	if n.Type != "" {
		line += " : " + n.Type
	}
	return line + markTag(n.Mark)
}

// firstLine returns only the first line of a multi-line label.
func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}
