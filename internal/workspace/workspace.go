// Package workspace wires the registry, execution engine, graph store,
// selection, settings and layout controller into one interactive session
// and keeps the visible graph current.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rendis/graphspace/internal/actions"
	"github.com/rendis/graphspace/internal/engine"
	"github.com/rendis/graphspace/internal/expressions"
	"github.com/rendis/graphspace/internal/filter"
	"github.com/rendis/graphspace/internal/graph"
	"github.com/rendis/graphspace/internal/layout"
	"github.com/rendis/graphspace/internal/selection"
	"github.com/rendis/graphspace/internal/settings"
	"github.com/rendis/graphspace/internal/store"
	"github.com/rendis/graphspace/internal/streaming"
	"github.com/rendis/graphspace/internal/validation"
	"github.com/rendis/graphspace/pkg/schema"
)

// Options configures a Workspace. Every field is optional.
type Options struct {
	// Store persists settings, snapshots and the action audit log.
	Store store.Store
	// LayoutEngine computes positions; nil uses an in-process engine.
	LayoutEngine layout.Engine
	// LayoutRate throttles layout passes per second; 0 is unlimited.
	LayoutRate float64
	// AutoLayout runs the current algorithm after every graph load.
	AutoLayout bool
	// Sources bounds the graph.open and graph.save actions.
	Sources  actions.SourceConfig
	Hub      streaming.EventHub
	Logger   *slog.Logger
	PoolSize int
}

// Workspace is one interactive graph exploration session.
type Workspace struct {
	registry  *actions.Registry
	engine    *engine.Engine
	graph     *graph.Store
	selection *selection.Store
	settings  *settings.Store
	layout    *layout.Controller
	pipeline  *filter.Pipeline
	hub       streaming.EventHub
	store     store.Store
	events    *store.EventLog
	logger    *slog.Logger

	autoLayout bool

	configMu  sync.Mutex
	configRun *configRun

	// recomputeMu orders pipeline runs so the stored result always reflects
	// the newest input.
	recomputeMu sync.Mutex
	mu          sync.RWMutex
	visible     filter.Result
	visibleRev  uint64
}

// New builds a workspace, registers the builtin actions and loads persisted
// settings when a store is configured.
func New(ctx context.Context, opts Options) (*Workspace, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hub := opts.Hub
	if hub == nil {
		hub = streaming.NewMemoryHub()
	}
	engineImpl := opts.LayoutEngine
	if engineImpl == nil {
		engineImpl = layout.NewLocalEngine(nil)
	}
	var adapterOpts []layout.AdapterOption
	if opts.LayoutRate > 0 {
		adapterOpts = append(adapterOpts, layout.WithRateLimit(opts.LayoutRate, 1))
	}

	w := &Workspace{
		hub:        hub,
		store:      opts.Store,
		logger:     logger,
		autoLayout: opts.AutoLayout,
		pipeline:   filter.New(expressions.NewExprEngine(), logger),
	}

	var persister settings.Persister
	var recorder engine.EventRecorder
	if opts.Store != nil {
		persister = opts.Store
		w.events = store.NewEventLog(opts.Store)
		recorder = w.events
	}

	w.graph = graph.NewStore(layout.NewAdapter(engineImpl, adapterOpts...), graph.WithLogger(logger))
	w.selection = selection.New(w.graph)
	w.settings = settings.New(persister, logger)
	w.layout = layout.NewController(w.graph)

	cel, err := expressions.NewCELEngine()
	if err != nil {
		return nil, err
	}
	w.registry = actions.NewRegistry(
		actions.WithPredicates(cel, w.PredicateState),
		actions.WithLogger(logger),
	)
	w.engine = engine.New(engine.Config{
		Registry:  w.registry,
		Validator: validation.NewJSONSchemaValidator(),
		Hub:       hub,
		Recorder:  recorder,
		Logger:    logger,
		PoolSize:  opts.PoolSize,
	})

	if err := actions.RegisterBuiltins(w.registry, actions.Services{
		Settings:  w.settings,
		Graph:     w.graph,
		Selection: w.selection,
		Layout:    w.layout,
		Sources:   opts.Sources,
		Visible:   w.VisibleGraph,
	}); err != nil {
		return nil, fmt.Errorf("register builtin capabilities: %w", err)
	}
	w.wire()
	if _, err := actions.LoadBuiltinCatalog(w.registry); err != nil {
		return nil, fmt.Errorf("load builtin catalog: %w", err)
	}

	if err := w.settings.Load(ctx); err != nil {
		logger.WarnContext(ctx, "settings not loaded, using defaults", slog.Any("error", err))
	}
	w.Recompute(ctx)
	return w, nil
}

// wire subscribes the workspace to every component's change hooks.
func (w *Workspace) wire() {
	w.registry.OnRegister(func(def schema.ActionDefinition) {
		w.publish(context.Background(), streaming.StreamEvent{Type: schema.EventActionRegistered, ActionID: def.ID})
	})
	w.registry.OnUnregister(func(id string) {
		w.publish(context.Background(), streaming.StreamEvent{Type: schema.EventActionUnregistered, ActionID: id})
	})

	w.engine.OnChange(func(ctx context.Context, _ engine.Change) {
		w.Recompute(ctx)
	})

	w.graph.OnChange(func(ctx context.Context, kind graph.ChangeKind) {
		switch kind {
		case graph.ChangeLoaded, graph.ChangeCleared:
			w.layout.ClearHistory()
			w.selection.Prune(ctx)
		case graph.ChangeMutated:
			w.selection.Prune(ctx)
		}
		nodes, edges := w.graph.Counts()
		w.publish(ctx, streaming.StreamEvent{
			Type:    string(kind),
			Payload: map[string]any{"name": w.graph.Name(), "nodes": nodes, "edges": edges},
		})
		w.Recompute(ctx)
	})

	w.selection.OnChange(func(ctx context.Context, snap selection.Snapshot) {
		w.publish(ctx, streaming.StreamEvent{Type: schema.EventSelectionChanged, Payload: snap})
		w.Recompute(ctx)
	})

	w.settings.OnChange(func(ctx context.Context, st settings.Settings) {
		w.publish(ctx, streaming.StreamEvent{Type: schema.EventSettingsChanged, Payload: st})
	})
}

func (w *Workspace) publish(ctx context.Context, ev streaming.StreamEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if err := w.hub.Publish(context.WithoutCancel(ctx), ev); err != nil {
		w.logger.WarnContext(ctx, "publish event", slog.String("type", ev.Type), slog.Any("error", err))
	}
}

// PredicateState is the variable set EnabledWhen/VisibleWhen predicates see.
func (w *Workspace) PredicateState(context.Context) map[string]any {
	nodes, edges := w.graph.Counts()
	snap := w.selection.Snapshot()
	return map[string]any{
		"settings": w.settings.Get().Map(),
		"graph": map[string]any{
			"loaded":        w.graph.Loaded(),
			"name":          w.graph.Name(),
			"nodes":         nodes,
			"edges":         edges,
			"layoutHistory": len(w.layout.History()),
		},
		"selection": map[string]any{
			"nodes": toAny(snap.Nodes),
			"edges": toAny(snap.Edges),
		},
	}
}

func toAny(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

// Recompute re-runs the filter pipeline over the full graph and every live
// instance outcome, stores the result and publishes visible.changed.
func (w *Workspace) Recompute(ctx context.Context) filter.Result {
	w.recomputeMu.Lock()
	res := w.pipeline.Apply(ctx, filter.Input{
		Nodes:    w.graph.Nodes(),
		Edges:    w.graph.Edges(),
		Outcomes: w.engine.Outcomes(),
		Selected: w.selection.SelectedNodes(),
	})

	w.mu.Lock()
	w.visible = res
	w.visibleRev++
	rev := w.visibleRev
	w.mu.Unlock()
	w.recomputeMu.Unlock()

	w.publish(ctx, streaming.StreamEvent{
		Type: schema.EventVisibleChanged,
		Payload: map[string]any{
			"revision": rev,
			"nodes":    len(res.NodeIDs),
			"edges":    len(res.EdgeIDs),
		},
	})
	return res
}

// Visible returns the last computed visible subgraph.
func (w *Workspace) Visible() filter.Result {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.visible
}

// VisibleGraph returns the visible subgraph as a graph document named after
// the loaded graph.
func (w *Workspace) VisibleGraph(context.Context) *schema.Graph {
	res := w.Visible()
	return &schema.Graph{Name: w.graph.Name(), Nodes: res.Nodes, Edges: res.Edges}
}

// LoadGraph replaces the graph from file content, taking the format from
// name's extension. With AutoLayout the current algorithm runs afterwards.
func (w *Workspace) LoadGraph(ctx context.Context, name, text string) error {
	if err := w.graph.LoadGraph(ctx, name, text); err != nil {
		return err
	}
	if w.autoLayout {
		if err := w.layout.Apply(ctx, "", layout.OptionsPatch{}); err != nil {
			w.logger.WarnContext(ctx, "initial layout failed", slog.Any("error", err))
		}
	}
	return nil
}

// SaveSnapshot stores the full graph under its name.
func (w *Workspace) SaveSnapshot(ctx context.Context, format string) (*store.Snapshot, error) {
	if w.store == nil {
		return nil, schema.NewError(schema.ErrCodeStore, "no store configured")
	}
	if !w.graph.Loaded() {
		return nil, schema.NewError(schema.ErrCodeValidation, "no graph loaded")
	}
	if format == "" {
		format = "json"
	}
	data, err := w.graph.Export(format)
	if err != nil {
		return nil, err
	}
	nodes, edges := w.graph.Counts()
	snap := &store.Snapshot{
		Name:      w.graph.Name(),
		Format:    format,
		Content:   string(data),
		NodeCount: nodes,
		EdgeCount: edges,
	}
	if err := w.store.SaveSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// RestoreSnapshot reloads the newest snapshot saved under name.
func (w *Workspace) RestoreSnapshot(ctx context.Context, name string) error {
	if w.store == nil {
		return schema.NewError(schema.ErrCodeStore, "no store configured")
	}
	snap, err := w.store.LatestSnapshot(ctx, name)
	if err != nil {
		return err
	}
	return w.LoadGraph(ctx, snap.Name+"."+snap.Format, snap.Content)
}

// Close waits for in-flight async executions.
func (w *Workspace) Close() {
	w.engine.Close()
}

func (w *Workspace) Registry() *actions.Registry { return w.registry }
func (w *Workspace) Engine() *engine.Engine      { return w.engine }
func (w *Workspace) Graph() *graph.Store         { return w.graph }
func (w *Workspace) Selection() *selection.Store { return w.selection }
func (w *Workspace) Settings() *settings.Store   { return w.settings }
func (w *Workspace) Layout() *layout.Controller  { return w.layout }
func (w *Workspace) Hub() streaming.EventHub     { return w.hub }
func (w *Workspace) Store() store.Store          { return w.store }
func (w *Workspace) EventLog() *store.EventLog   { return w.events }
