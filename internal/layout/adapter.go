package layout

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rendis/graphspace/internal/graphfile"
	"github.com/rendis/graphspace/pkg/schema"
	"golang.org/x/time/rate"
)

// Adapter wraps an Engine with typed payloads and structured errors.
// Layout passes go through a token bucket so a burst of apply-layout
// executions cannot swamp the engine.
type Adapter struct {
	engine  Engine
	limiter *rate.Limiter
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithRateLimit allows perSecond layout passes with the given burst.
func WithRateLimit(perSecond float64, burst int) AdapterOption {
	return func(a *Adapter) {
		if perSecond <= 0 {
			a.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewAdapter creates an Adapter. Without WithRateLimit, passes are unthrottled.
func NewAdapter(engine Engine, opts ...AdapterOption) *Adapter {
	a := &Adapter{engine: engine, limiter: rate.NewLimiter(rate.Inf, 0)}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Load hands text to the engine's parser, then fetches the parsed graph.
// Parser failures surface as PARSE_ERROR.
func (a *Adapter) Load(ctx context.Context, text string, format graphfile.Format) (*schema.GraphDocument, error) {
	if err := a.engine.ParseAndLoadGraph(ctx, text, string(format)); err != nil {
		if schema.CodeOf(err) != "" {
			return nil, err
		}
		return nil, schema.NewErrorf(schema.ErrCodeParse, "parse %s graph", format).WithCause(err)
	}
	return a.Graph(ctx)
}

// Graph fetches the engine's current graph.
func (a *Adapter) Graph(ctx context.Context) (*schema.GraphDocument, error) {
	raw, err := a.engine.GetGraphJSON(ctx)
	if err != nil {
		return nil, engineError("get_graph_json", err)
	}
	doc := schema.NewGraphDocument()
	if err := json.Unmarshal([]byte(raw), doc); err != nil {
		return nil, engineError("get_graph_json", fmt.Errorf("decode graph: %w", err))
	}
	if doc.Nodes == nil || doc.Edges == nil {
		fresh := schema.NewGraphDocument()
		if doc.Nodes != nil {
			fresh.Nodes = doc.Nodes
		}
		if doc.Edges != nil {
			fresh.Edges = doc.Edges
		}
		doc = fresh
	}
	return doc, nil
}

// AddNode mirrors a node insertion.
func (a *Adapter) AddNode(ctx context.Context, id string, x, y float64) error {
	return engineError("add_node", a.engine.AddNode(ctx, id, x, y))
}

// AddEdge mirrors an edge insertion.
func (a *Adapter) AddEdge(ctx context.Context, id, source, target string) error {
	return engineError("add_edge", a.engine.AddEdge(ctx, id, source, target))
}

// RemoveNode mirrors a node removal.
func (a *Adapter) RemoveNode(ctx context.Context, id string) error {
	return engineError("remove_node", a.engine.RemoveNode(ctx, id))
}

// RemoveEdge mirrors an edge removal.
func (a *Adapter) RemoveEdge(ctx context.Context, id string) error {
	return engineError("remove_edge", a.engine.RemoveEdge(ctx, id))
}

// Layout runs one layout pass and returns the computed positions by node id.
func (a *Adapter) Layout(ctx context.Context, opts Options) (map[string]schema.Position, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, engineError("apply_fcose_layout", fmt.Errorf("rate limiter: %w", err))
	}

	body, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("encode layout options: %w", err)
	}
	raw, err := a.engine.ApplyFcoseLayout(ctx, string(body))
	if err != nil {
		return nil, engineError("apply_fcose_layout", err)
	}

	var doc schema.LayoutDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, engineError("apply_fcose_layout", fmt.Errorf("decode layout: %w", err))
	}
	out := make(map[string]schema.Position, len(doc.Nodes))
	for id, entry := range doc.Nodes {
		if entry.Position != nil {
			out[id] = *entry.Position
		}
	}
	return out, nil
}

func engineError(op string, err error) error {
	if err == nil {
		return nil
	}
	if schema.CodeOf(err) != "" {
		return err
	}
	return schema.NewErrorf(schema.ErrCodeLayoutEngine, "layout engine %s failed", op).WithCause(err)
}
