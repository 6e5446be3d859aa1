package layout

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
	"github.com/rendis/graphspace/pkg/schema"
)

// Placer computes coordinates for every node of g.
type Placer interface {
	Place(ctx context.Context, g *schema.Graph, opts Options) (map[string]schema.Position, error)
}

// CirclePlacer spaces nodes evenly on a circle in graph order. Deterministic.
type CirclePlacer struct{}

func (CirclePlacer) Place(_ context.Context, g *schema.Graph, opts Options) (map[string]schema.Position, error) {
	out := make(map[string]schema.Position, len(g.Nodes))
	n := len(g.Nodes)
	if n == 0 {
		return out, nil
	}
	if n == 1 {
		out[g.Nodes[0].ID] = schema.Position{opts.Padding, opts.Padding}
		return out, nil
	}

	radius := math.Max(opts.IdealEdgeLength, float64(n)*opts.NodeSeparation/(2*math.Pi))
	center := opts.Padding + radius
	for i, node := range g.Nodes {
		angle := 2 * math.Pi * float64(i) / float64(n)
		out[node.ID] = schema.Position{
			round(center + radius*math.Cos(angle)),
			round(center + radius*math.Sin(angle)),
		}
	}
	return out, nil
}

func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// GraphvizPlacer runs a graphviz layout engine: fdp for fcose, circo for
// concentric and dot for dagre.
type GraphvizPlacer struct{}

func graphvizLayout(a Algorithm) graphviz.Layout {
	switch a {
	case AlgorithmConcentric:
		return graphviz.CIRCO
	case AlgorithmDagre:
		return graphviz.DOT
	default:
		return graphviz.FDP
	}
}

const pointsPerInch = 72

func (GraphvizPlacer) Place(ctx context.Context, g *schema.Graph, opts Options) (map[string]schema.Position, error) {
	if len(g.Nodes) == 0 {
		return map[string]schema.Position{}, nil
	}

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("layout: create graphviz: %w", err)
	}
	defer gv.Close()
	gv.SetLayout(graphvizLayout(opts.Algorithm))

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("layout: create graph: %w", err)
	}
	defer graph.Close()

	gvNodes := make(map[string]*cgraph.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		gvNode, err := graph.CreateNodeByName(n.ID)
		if err != nil {
			return nil, fmt.Errorf("layout: create node %s: %w", n.ID, err)
		}
		gvNodes[n.ID] = gvNode
	}
	for _, e := range g.Edges {
		from, to := gvNodes[e.Source], gvNodes[e.Target]
		if from == nil || to == nil {
			continue
		}
		if _, err := graph.CreateEdgeByName(e.ID, from, to); err != nil {
			return nil, fmt.Errorf("layout: create edge %s: %w", e.ID, err)
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, graphviz.Format("plain"), &buf); err != nil {
		return nil, fmt.Errorf("layout: render: %w", err)
	}
	return parsePlain(buf.Bytes(), opts.Padding)
}

// parsePlain reads node centers from graphviz "plain" output, converting
// inches to points and flipping y so the origin is top-left.
func parsePlain(data []byte, padding float64) (map[string]schema.Position, error) {
	out := map[string]schema.Position{}
	height := 0.0

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		fields := plainFields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "graph":
			if len(fields) >= 4 {
				height, _ = strconv.ParseFloat(fields[3], 64)
			}
		case "node":
			if len(fields) < 4 {
				return nil, fmt.Errorf("layout: short plain node line %q", sc.Text())
			}
			x, errX := strconv.ParseFloat(fields[2], 64)
			y, errY := strconv.ParseFloat(fields[3], 64)
			if errX != nil || errY != nil {
				return nil, fmt.Errorf("layout: bad coordinates in %q", sc.Text())
			}
			out[fields[1]] = schema.Position{
				round(padding + x*pointsPerInch),
				round(padding + (height-y)*pointsPerInch),
			}
		case "stop":
			return out, nil
		}
	}
	return out, sc.Err()
}

// plainFields splits a plain-format line on spaces, honoring double quotes.
func plainFields(line string) []string {
	var fields []string
	var cur strings.Builder
	inQuote, escaped, quoted := false, false, false
	flush := func() {
		if cur.Len() > 0 || quoted {
			fields = append(fields, cur.String())
		}
		cur.Reset()
		quoted = false
	}
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case inQuote && r == '\\':
			escaped = true
		case r == '"':
			inQuote = !inQuote
			quoted = true
		case r == ' ' && !inQuote:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return fields
}
