package actions

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/rendis/graphspace/internal/diagram"
	"github.com/rendis/graphspace/internal/expressions"
	"github.com/rendis/graphspace/internal/graphfile"
	"github.com/rendis/graphspace/internal/layout"
	"github.com/rendis/graphspace/internal/settings"
	"github.com/rendis/graphspace/pkg/schema"
)

// SettingsService is the settings surface the builtin bodies use.
type SettingsService interface {
	Update(ctx context.Context, patch map[string]any) (settings.Settings, error)
	ToggleTheme(ctx context.Context) (settings.Settings, error)
}

// GraphService is the entity store surface the builtin bodies use.
type GraphService interface {
	GraphLoader
	AddNode(ctx context.Context, n *schema.Node) error
	RemoveNode(ctx context.Context, id string) (bool, error)
	Snapshot() *schema.Graph
}

// SelectionService is the selection surface the builtin bodies use.
type SelectionService interface {
	SelectedNodes() []string
	SelectConnectedNodes(ctx context.Context) int
}

// LayoutService is the layout controller surface the builtin bodies use.
type LayoutService interface {
	Apply(ctx context.Context, algorithm layout.Algorithm, patch layout.OptionsPatch) error
	Undo(ctx context.Context) (bool, error)
	Reset(ctx context.Context) error
	Current() layout.Algorithm
	History() []layout.Algorithm
}

// Services are the collaborators behind the builtin capability handles.
type Services struct {
	Settings  SettingsService
	Graph     GraphService
	Selection SelectionService
	Layout    LayoutService
	Sources   SourceConfig
	// Visible returns the currently visible subgraph, used by graph.export.
	Visible func(ctx context.Context) *schema.Graph
	// Query evaluates graph.query expressions; nil uses a gojq engine.
	Query *expressions.GoJQEngine
}

// Builtin capability handles referenced by catalog.yaml.
const (
	CapSettingsEdit        = "settings.edit"
	CapSettingsToggleTheme = "settings.toggle_theme"
	CapSettingsFontSize    = "settings.font_size"
	CapSettingsFontFamily  = "settings.font_family"
	CapSettingsLineNumbers = "settings.line_numbers"

	CapFilterName       = "filter.name"
	CapFilterContent    = "filter.content"
	CapFilterTag        = "filter.tag"
	CapFilterExpression = "filter.expression"
	CapSearchNodes      = "search.nodes"

	CapGraphCreateNode     = "graph.create_node"
	CapGraphRemoveSelected = "graph.remove_selected"
	CapGraphOpen           = "graph.open"
	CapGraphSave           = "graph.save"
	CapGraphQuery          = "graph.query"
	CapGraphExport         = "graph.export"
	CapSelectionConnected  = "selection.connected"

	CapLayoutApply = "layout.apply"
	CapLayoutUndo  = "layout.undo"
	CapLayoutReset = "layout.reset"
)

// RegisterBuiltins binds every builtin capability handle in reg.
func RegisterBuiltins(reg *Registry, svc Services) error {
	if svc.Query == nil {
		svc.Query = expressions.NewGoJQEngine()
	}
	caps := map[string]RunFunc{
		CapSettingsEdit:        svc.editSettings("fontSize", "fontFamily", "showLineNumbers"),
		CapSettingsToggleTheme: svc.toggleTheme,
		CapSettingsFontSize:    svc.editSettings("fontSize"),
		CapSettingsFontFamily:  svc.editSettings("fontFamily"),
		CapSettingsLineNumbers: svc.editSettings("showLineNumbers"),

		CapFilterName:       patternFilter(schema.FilterByName),
		CapFilterContent:    patternFilter(schema.FilterByContent),
		CapFilterTag:        tagFilter,
		CapFilterExpression: expressionFilter,
		CapSearchNodes:      searchNodes,

		CapGraphCreateNode:     svc.createNode,
		CapGraphRemoveSelected: svc.removeSelected,
		CapGraphOpen:           openGraph(svc.Sources.withDefaults(), svc.Graph),
		CapGraphSave:           saveGraph(svc.Sources.withDefaults(), svc.Graph),
		CapGraphQuery:          svc.queryGraph,
		CapGraphExport:         svc.exportGraph,
		CapSelectionConnected:  svc.selectConnected,

		CapLayoutApply: svc.applyLayout,
		CapLayoutUndo:  svc.undoLayout,
		CapLayoutReset: svc.resetLayout,
	}
	for _, handle := range slices.Sorted(maps.Keys(caps)) {
		if err := reg.RegisterCapability(handle, caps[handle]); err != nil {
			return err
		}
	}
	return nil
}

// --- Settings ---

func (s Services) editSettings(keys ...string) RunFunc {
	return func(ctx context.Context, params map[string]any) (schema.Outcome, error) {
		patch := make(map[string]any, len(keys))
		for _, k := range keys {
			if v, ok := params[k]; ok && v != nil {
				patch[k] = v
			}
		}
		st, err := s.Settings.Update(ctx, patch)
		if err != nil {
			return schema.Outcome{}, err
		}
		return schema.DataOutcome(st.Map()), nil
	}
}

func (s Services) toggleTheme(ctx context.Context, _ map[string]any) (schema.Outcome, error) {
	st, err := s.Settings.ToggleTheme(ctx)
	if err != nil {
		return schema.Outcome{}, err
	}
	return schema.DataOutcome(map[string]any{"theme": string(st.Theme)}), nil
}

// --- Filters and search ---

func patternFilter(kind schema.FilterKind) RunFunc {
	return func(_ context.Context, params map[string]any) (schema.Outcome, error) {
		return schema.FilterOutcome(schema.FilterCriterion{
			Kind:          kind,
			Pattern:       stringParam(params, "pattern"),
			CaseSensitive: boolParam(params, "caseSensitive", false),
		}), nil
	}
}

func tagFilter(_ context.Context, params map[string]any) (schema.Outcome, error) {
	return schema.FilterOutcome(schema.FilterCriterion{
		Kind: schema.FilterByTag,
		Tags: stringsParam(params, "tags"),
	}), nil
}

func expressionFilter(_ context.Context, params map[string]any) (schema.Outcome, error) {
	return schema.FilterOutcome(schema.FilterCriterion{
		Kind:       schema.FilterByExpression,
		Expression: strings.TrimSpace(stringParam(params, "expression")),
	}), nil
}

func searchNodes(_ context.Context, params map[string]any) (schema.Outcome, error) {
	scope := schema.SearchScope(stringParam(params, "scope"))
	switch scope {
	case "":
		scope = schema.ScopeAll
	case schema.ScopeAll, schema.ScopeSelected, schema.ScopeVisible:
	default:
		return schema.Outcome{}, schema.NewErrorf(schema.ErrCodeValidation, "unknown search scope %q", scope)
	}
	return schema.SearchOutcome(schema.SearchCriterion{
		Query:          stringParam(params, "query"),
		IncludeContent: boolParam(params, "includeContent", true),
		Scope:          scope,
	}), nil
}

// --- Graph ---

func (s Services) createNode(ctx context.Context, params map[string]any) (schema.Outcome, error) {
	name := stringParam(params, "name")
	if name == "" {
		name = "New Node"
	}
	n := &schema.Node{
		ID:    "node-" + uuid.NewString()[:8],
		Label: name,
		Type:  stringParam(params, "type"),
	}
	if tags := stringsParam(params, "tags"); len(tags) > 0 {
		n.Metadata = map[string]any{"tags": tags}
	}
	if err := s.Graph.AddNode(ctx, n); err != nil {
		return schema.Outcome{}, err
	}
	return schema.NodeOutcome(n.Clone()), nil
}

func (s Services) removeSelected(ctx context.Context, _ map[string]any) (schema.Outcome, error) {
	var removed []string
	for _, id := range s.Selection.SelectedNodes() {
		ok, err := s.Graph.RemoveNode(ctx, id)
		if err != nil {
			return schema.Outcome{}, err
		}
		if ok {
			removed = append(removed, id)
		}
	}
	return schema.DataOutcome(map[string]any{"removed": removed}), nil
}

func (s Services) queryGraph(ctx context.Context, params map[string]any) (schema.Outcome, error) {
	query := stringParam(params, "query")
	input, err := expressions.ToJQInput(s.Graph.Snapshot())
	if err != nil {
		return schema.Outcome{}, err
	}
	value, err := s.Query.Evaluate(ctx, query, input)
	if err != nil {
		return schema.Outcome{}, err
	}
	return schema.QueryOutcome(query, value), nil
}

func (s Services) exportGraph(ctx context.Context, params map[string]any) (schema.Outcome, error) {
	g := s.Graph.Snapshot()
	if s.Visible != nil {
		g = s.Visible(ctx)
	}
	format := stringParam(params, "format")
	if format == "" {
		format = string(graphfile.FormatJSON)
	}

	var content string
	if format == "mermaid" {
		content = diagram.RenderMermaid(diagram.Build(g, diagram.BuildOptions{}))
	} else {
		f, err := graphfile.ParseFormat(format)
		if err != nil {
			return schema.Outcome{}, err
		}
		data, err := graphfile.Encode(g, f)
		if err != nil {
			return schema.Outcome{}, err
		}
		content = string(data)
	}
	return schema.DataOutcome(map[string]any{
		"format":  format,
		"content": content,
		"nodes":   len(g.Nodes),
		"edges":   len(g.Edges),
	}), nil
}

func (s Services) selectConnected(ctx context.Context, _ map[string]any) (schema.Outcome, error) {
	added := s.Selection.SelectConnectedNodes(ctx)
	return schema.DataOutcome(map[string]any{
		"added":    added,
		"selected": s.Selection.SelectedNodes(),
	}), nil
}

// --- Layout ---

func (s Services) applyLayout(ctx context.Context, params map[string]any) (schema.Outcome, error) {
	alg := layout.Algorithm(stringParam(params, "algorithm"))
	if alg == "" {
		alg = layout.AlgorithmFcose
	}
	patch, err := layout.PatchFromParams(params)
	if err != nil {
		return schema.Outcome{}, err
	}
	if err := s.Layout.Apply(ctx, alg, patch); err != nil {
		return schema.Outcome{}, err
	}
	return s.layoutState(), nil
}

func (s Services) undoLayout(ctx context.Context, _ map[string]any) (schema.Outcome, error) {
	ok, err := s.Layout.Undo(ctx)
	if err != nil {
		return schema.Outcome{}, err
	}
	out := s.layoutState()
	out.Data["undone"] = ok
	return out, nil
}

func (s Services) resetLayout(ctx context.Context, _ map[string]any) (schema.Outcome, error) {
	if err := s.Layout.Reset(ctx); err != nil {
		return schema.Outcome{}, err
	}
	return s.layoutState(), nil
}

func (s Services) layoutState() schema.Outcome {
	history := s.Layout.History()
	names := make([]string, len(history))
	for i, a := range history {
		names[i] = string(a)
	}
	return schema.DataOutcome(map[string]any{
		"algorithm": string(s.Layout.Current()),
		"history":   names,
	})
}

// --- Parameter helpers ---

func stringParam(params map[string]any, key string) string {
	switch v := params[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func boolParam(params map[string]any, key string, def bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return def
}

func stringsParam(params map[string]any, key string) []string {
	switch v := params[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		var out []string
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}
