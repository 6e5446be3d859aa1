// Package filter derives the visible graph from the full graph and the
// outcomes of live action instances.
package filter

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/rendis/graphspace/internal/expressions"
	"github.com/rendis/graphspace/pkg/schema"
)

// Input is everything the pipeline reads. It never mutates any of it.
type Input struct {
	Nodes    []*schema.Node
	Edges    []*schema.Edge
	Outcomes []schema.Outcome // instance order
	Selected []string         // selected node ids, for scope=selected searches
}

// Result is the visible subgraph. Order follows Input.
type Result struct {
	NodeIDs []string       `json:"node_ids"`
	EdgeIDs []string       `json:"edge_ids"`
	Nodes   []*schema.Node `json:"nodes"`
	Edges   []*schema.Edge `json:"edges"`
}

// Pipeline applies filter and search outcomes. Compiled patterns and
// expressions are cached, so a Pipeline should be reused.
type Pipeline struct {
	expr   expressions.Engine
	logger *slog.Logger

	mu       sync.RWMutex
	patterns map[string]*regexp.Regexp
}

// New creates a Pipeline. expr evaluates expression criteria; nil uses an
// expr-lang engine.
func New(expr expressions.Engine, logger *slog.Logger) *Pipeline {
	if expr == nil {
		expr = expressions.NewExprEngine()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{expr: expr, logger: logger, patterns: make(map[string]*regexp.Regexp)}
}

// Apply computes the visible subgraph. Every filter and search outcome
// narrows the candidate set in order (logical AND); edges survive when both
// endpoints do.
func (p *Pipeline) Apply(ctx context.Context, in Input) Result {
	keep := make([]bool, len(in.Nodes))
	for i := range keep {
		keep[i] = true
	}

	var selected map[string]bool
	for _, o := range in.Outcomes {
		var match func(*schema.Node) bool
		switch {
		case o.Kind == schema.OutcomeFilter && o.Filter != nil:
			match = p.criterion(ctx, *o.Filter)
		case o.Kind == schema.OutcomeSearch && o.Search != nil:
			if o.Search.Scope == schema.ScopeSelected && selected == nil {
				selected = toSet(in.Selected)
			}
			match = p.search(*o.Search, selected)
		}
		if match == nil {
			continue
		}
		for i, n := range in.Nodes {
			if keep[i] && !match(n) {
				keep[i] = false
			}
		}
	}

	res := Result{NodeIDs: []string{}, EdgeIDs: []string{}, Nodes: []*schema.Node{}, Edges: []*schema.Edge{}}
	visible := make(map[string]bool, len(in.Nodes))
	for i, n := range in.Nodes {
		if keep[i] {
			visible[n.ID] = true
			res.NodeIDs = append(res.NodeIDs, n.ID)
			res.Nodes = append(res.Nodes, n)
		}
	}
	for _, e := range in.Edges {
		if visible[e.Source] && visible[e.Target] {
			res.EdgeIDs = append(res.EdgeIDs, e.ID)
			res.Edges = append(res.Edges, e)
		}
	}
	return res
}

// criterion returns the node predicate for c, or nil when c is a no-op.
func (p *Pipeline) criterion(ctx context.Context, c schema.FilterCriterion) func(*schema.Node) bool {
	switch c.Kind {
	case schema.FilterByName:
		if c.Pattern == "" {
			return nil
		}
		re := p.compile(wildcard(c.Pattern), c.CaseSensitive)
		return func(n *schema.Node) bool { return re.MatchString(n.Label) }

	case schema.FilterByContent:
		if c.Pattern == "" {
			return nil
		}
		re := p.compile(c.Pattern, c.CaseSensitive)
		return func(n *schema.Node) bool { return anyString(n, re) }

	case schema.FilterByTag:
		if len(c.Tags) == 0 {
			return nil
		}
		want := toSet(c.Tags)
		return func(n *schema.Node) bool {
			for _, t := range n.Tags() {
				if want[t] {
					return true
				}
			}
			return false
		}

	case schema.FilterByExpression:
		if strings.TrimSpace(c.Expression) == "" {
			return nil
		}
		return func(n *schema.Node) bool {
			ok, err := expressions.EvaluateBool(ctx, p.expr, c.Expression, nodeEnv(n))
			if err != nil {
				p.logger.DebugContext(ctx, "filter expression excluded node",
					slog.String("node_id", n.ID), slog.Any("error", err))
				return false
			}
			return ok
		}
	}
	return nil
}

func (p *Pipeline) search(s schema.SearchCriterion, selected map[string]bool) func(*schema.Node) bool {
	if s.Query == "" {
		return nil
	}
	re := p.compile(s.Query, false)
	return func(n *schema.Node) bool {
		if s.Scope == schema.ScopeSelected && !selected[n.ID] {
			return false
		}
		if s.IncludeContent {
			return anyString(n, re)
		}
		return re.MatchString(n.Label)
	}
}

// compile caches regexes by source. An invalid pattern is matched literally.
func (p *Pipeline) compile(pattern string, caseSensitive bool) *regexp.Regexp {
	src := pattern
	if !caseSensitive {
		src = "(?i)" + pattern
	}

	p.mu.RLock()
	re, ok := p.patterns[src]
	p.mu.RUnlock()
	if ok {
		return re
	}

	re, err := regexp.Compile(src)
	if err != nil {
		quoted := regexp.QuoteMeta(pattern)
		if !caseSensitive {
			quoted = "(?i)" + quoted
		}
		re = regexp.MustCompile(quoted)
	}

	p.mu.Lock()
	p.patterns[src] = re
	p.mu.Unlock()
	return re
}

// wildcard turns a glob with * into an anchored regex; everything else is literal.
func wildcard(pattern string) string {
	quoted := regexp.QuoteMeta(pattern)
	return "^" + strings.ReplaceAll(quoted, `\*`, ".*") + "$"
}

func anyString(n *schema.Node, re *regexp.Regexp) bool {
	if re.MatchString(n.ID) || re.MatchString(n.Label) || (n.Type != "" && re.MatchString(n.Type)) {
		return true
	}
	for _, v := range n.Metadata {
		if s, ok := v.(string); ok && re.MatchString(s) {
			return true
		}
	}
	return false
}

func nodeEnv(n *schema.Node) map[string]any {
	md := n.Metadata
	if md == nil {
		md = map[string]any{}
	}
	tags := n.Tags()
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"id":       n.ID,
		"label":    n.Label,
		"type":     n.Type,
		"x":        n.X,
		"y":        n.Y,
		"metadata": md,
		"tags":     tags,
	}
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, s := range items {
		out[s] = true
	}
	return out
}
