package diagram

import (
	"strconv"

	"github.com/rendis/graphspace/pkg/schema"
)

// BuildOptions controls how a graph maps to a DiagramModel.
type BuildOptions struct {
	Title     string
	Direction Direction
	Selected  []string // node ids drawn as selected
	Matches   []string // node ids drawn as search hits
}

// Build converts a graph into a DiagramModel. Edges whose endpoints are not in
// the graph are skipped; selection wins over a search match.
func Build(g *schema.Graph, opts BuildOptions) *DiagramModel {
	if opts.Direction == "" {
		opts.Direction = TopDown
	}
	title := opts.Title
	if title == "" && g != nil {
		title = g.Name
	}
	model := &DiagramModel{Title: title, Direction: opts.Direction}
	if g == nil {
		return model
	}

	marks := make(map[string]Mark, len(opts.Selected)+len(opts.Matches))
	for _, id := range opts.Matches {
		marks[id] = MarkMatch
	}
	for _, id := range opts.Selected {
		marks[id] = MarkSelected
	}

	present := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		label := n.Label
		if label == "" {
			label = n.ID
		}
		model.Nodes = append(model.Nodes, &Node{ID: n.ID, Label: label, Type: n.Type, Mark: marks[n.ID]})
		present[n.ID] = true
	}
	for _, e := range g.Edges {
		if !present[e.Source] || !present[e.Target] {
			continue
		}
		model.Edges = append(model.Edges, Edge{ID: e.ID, From: e.Source, To: e.Target, Label: edgeLabel(e)})
	}
	return model
}

func edgeLabel(e *schema.Edge) string {
	if e.Type != "" {
		return e.Type
	}
	if e.Weight != 0 && e.Weight != 1 {
		return strconv.FormatFloat(e.Weight, 'g', -1, 64)
	}
	return ""
}
