package actions

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/rendis/graphspace/internal/expressions"
	"github.com/rendis/graphspace/pkg/schema"
)

// Registry is the thread-safe action catalog. Definitions keep their
// registration order; bodies are resolved through the capability table.
type Registry struct {
	mu    sync.RWMutex
	order []string
	defs  map[string]*schema.ActionDefinition
	caps  map[string]RunFunc

	hooksMu      sync.RWMutex
	onRegister   []func(def schema.ActionDefinition)
	onUnregister []func(id string)

	cel    *expressions.CELEngine
	state  PredicateState
	logger *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithPredicates enables EnabledWhen/VisibleWhen evaluation.
func WithPredicates(engine *expressions.CELEngine, state PredicateState) Option {
	return func(r *Registry) {
		r.cel = engine
		r.state = state
	}
}

// WithLogger sets the logger used for predicate failures.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		defs:   make(map[string]*schema.ActionDefinition),
		caps:   make(map[string]RunFunc),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SetPredicateState replaces the predicate state provider.
func (r *Registry) SetPredicateState(state PredicateState) {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
}

// RegisterCapability binds handle to fn. Handles are unique.
func (r *Registry) RegisterCapability(handle string, fn RunFunc) error {
	if handle == "" {
		return schema.NewError(schema.ErrCodeValidation, "capability handle is empty")
	}
	if fn == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "capability %q has nil body", handle)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.caps[handle]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "capability %q already registered", handle)
	}
	r.caps[handle] = fn
	return nil
}

// Capabilities returns every registered handle, sorted.
func (r *Registry) Capabilities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.caps))
	for h := range r.caps {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Register inserts def, or replaces the definition with the same id in place.
func (r *Registry) Register(def schema.ActionDefinition) error {
	if def.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "action id is empty")
	}
	switch def.Kind {
	case "":
		def.Kind = schema.ActionKindSingleton
	case schema.ActionKindSingleton, schema.ActionKindRepeatable:
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown action kind %q", def.Kind).WithAction(def.ID)
	}
	if err := r.checkPredicates(def); err != nil {
		return err
	}

	stored := def.Clone()

	r.mu.Lock()
	if stored.Capability != "" {
		if _, ok := r.caps[stored.Capability]; !ok {
			r.mu.Unlock()
			return schema.NewErrorf(schema.ErrCodeValidation, "unknown capability %q", stored.Capability).WithAction(def.ID)
		}
	}
	if _, exists := r.defs[stored.ID]; !exists {
		r.order = append(r.order, stored.ID)
	}
	r.defs[stored.ID] = &stored
	r.mu.Unlock()

	r.hooksMu.RLock()
	hooks := slices.Clone(r.onRegister)
	r.hooksMu.RUnlock()
	for _, h := range hooks {
		h(stored.Clone())
	}
	return nil
}

func (r *Registry) checkPredicates(def schema.ActionDefinition) error {
	for _, expr := range []string{def.EnabledWhen, def.VisibleWhen} {
		if expr == "" {
			continue
		}
		if r.cel == nil {
			return schema.NewError(schema.ErrCodeValidation, "predicates require a CEL engine").WithAction(def.ID)
		}
		if err := r.cel.Check(expr); err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation, "invalid predicate %q", expr).
				WithAction(def.ID).WithCause(err)
		}
	}
	return nil
}

// Unregister removes the action and notifies unregister hooks. Children are
// left untouched and surface as roots. Reports whether the action existed.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	if _, ok := r.defs[id]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.defs, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	r.mu.Unlock()

	r.hooksMu.RLock()
	hooks := slices.Clone(r.onUnregister)
	r.hooksMu.RUnlock()
	for _, h := range hooks {
		h(id)
	}
	return true
}

// OnRegister adds a hook fired after every successful Register.
func (r *Registry) OnRegister(fn func(def schema.ActionDefinition)) {
	r.hooksMu.Lock()
	r.onRegister = append(r.onRegister, fn)
	r.hooksMu.Unlock()
}

// OnUnregister adds a hook fired after an action is removed.
func (r *Registry) OnUnregister(fn func(id string)) {
	r.hooksMu.Lock()
	r.onUnregister = append(r.onUnregister, fn)
	r.hooksMu.Unlock()
}

// Get returns a copy of the action definition.
func (r *Registry) Get(id string) (schema.ActionDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[id]
	if !ok {
		return schema.ActionDefinition{}, schema.NewErrorf(schema.ErrCodeNotFound, "action %q not registered", id)
	}
	return def.Clone(), nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.defs[id]
	return ok
}

// Body resolves the action's capability handle. Actions without a
// capability act as grouping nodes and produce no outcome.
func (r *Registry) Body(id string) (RunFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "action %q not registered", id)
	}
	if def.Capability == "" {
		return noop, nil
	}
	fn, ok := r.caps[def.Capability]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "capability %q not registered", def.Capability).WithAction(id)
	}
	return fn, nil
}

func noop(context.Context, map[string]any) (schema.Outcome, error) {
	return schema.NoOutcome(), nil
}

// All returns every definition in registration order, ignoring predicates.
func (r *Registry) All() []schema.ActionDefinition {
	return r.collect(func(*schema.ActionDefinition) bool { return true })
}

// Count returns the number of registered actions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// Visible returns the actions whose VisibleWhen currently holds.
func (r *Registry) Visible(ctx context.Context) []schema.ActionDefinition {
	state := r.snapshotState(ctx)
	out := make([]schema.ActionDefinition, 0)
	for _, def := range r.All() {
		if r.predicate(ctx, def.ID, def.VisibleWhen, state) {
			out = append(out, def)
		}
	}
	return out
}

// Enabled returns the actions that are both visible and enabled.
func (r *Registry) Enabled(ctx context.Context) []schema.ActionDefinition {
	state := r.snapshotState(ctx)
	out := make([]schema.ActionDefinition, 0)
	for _, def := range r.All() {
		if r.predicate(ctx, def.ID, def.VisibleWhen, state) && r.predicate(ctx, def.ID, def.EnabledWhen, state) {
			out = append(out, def)
		}
	}
	return out
}

// IsEnabled evaluates the action's EnabledWhen predicate now.
func (r *Registry) IsEnabled(ctx context.Context, id string) (bool, error) {
	def, err := r.Get(id)
	if err != nil {
		return false, err
	}
	return r.eval(ctx, def.EnabledWhen, r.snapshotState(ctx))
}

// IsVisible evaluates the action's VisibleWhen predicate now.
func (r *Registry) IsVisible(ctx context.Context, id string) (bool, error) {
	def, err := r.Get(id)
	if err != nil {
		return false, err
	}
	return r.eval(ctx, def.VisibleWhen, r.snapshotState(ctx))
}

// Roots returns actions with no parent, or whose parent is not registered.
func (r *Registry) Roots() []schema.ActionDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]schema.ActionDefinition, 0)
	for _, id := range r.order {
		def := r.defs[id]
		if def.ParentID == "" {
			out = append(out, def.Clone())
			continue
		}
		if _, ok := r.defs[def.ParentID]; !ok {
			out = append(out, def.Clone())
		}
	}
	return out
}

// Children returns the actions whose ParentID equals parentID.
func (r *Registry) Children(parentID string) []schema.ActionDefinition {
	if parentID == "" {
		return nil
	}
	return r.collect(func(d *schema.ActionDefinition) bool { return d.ParentID == parentID })
}

// Categories returns distinct non-empty categories in first-seen order.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, id := range r.order {
		c := r.defs[id].Category
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// InCategory returns the actions tagged with category.
func (r *Registry) InCategory(category string) []schema.ActionDefinition {
	return r.collect(func(d *schema.ActionDefinition) bool { return d.Category == category })
}

// Search returns visible actions whose id, title, description or keywords
// contain query, case-insensitively. An empty query matches everything.
func (r *Registry) Search(ctx context.Context, query string) []schema.ActionDefinition {
	q := strings.ToLower(strings.TrimSpace(query))
	visible := r.Visible(ctx)
	if q == "" {
		return visible
	}

	out := make([]schema.ActionDefinition, 0)
	for _, def := range visible {
		if matchesQuery(def, q) {
			out = append(out, def)
		}
	}
	return out
}

func matchesQuery(def schema.ActionDefinition, q string) bool {
	if strings.Contains(strings.ToLower(def.ID), q) ||
		strings.Contains(strings.ToLower(def.Title), q) ||
		strings.Contains(strings.ToLower(def.Description), q) {
		return true
	}
	for _, k := range def.Keywords {
		if strings.Contains(strings.ToLower(k), q) {
			return true
		}
	}
	return false
}

// Tree returns the visible hierarchy starting at Roots. Hidden actions
// prune their whole subtree.
func (r *Registry) Tree(ctx context.Context) []TreeNode {
	state := r.snapshotState(ctx)
	all := r.All()

	byParent := make(map[string][]schema.ActionDefinition)
	known := make(map[string]struct{}, len(all))
	for _, d := range all {
		known[d.ID] = struct{}{}
	}
	roots := make([]schema.ActionDefinition, 0)
	for _, d := range all {
		if _, ok := known[d.ParentID]; d.ParentID == "" || !ok {
			roots = append(roots, d)
			continue
		}
		byParent[d.ParentID] = append(byParent[d.ParentID], d)
	}

	visited := make(map[string]struct{}, len(all))
	var build func(defs []schema.ActionDefinition) []TreeNode
	build = func(defs []schema.ActionDefinition) []TreeNode {
		out := make([]TreeNode, 0, len(defs))
		for _, d := range defs {
			if _, seen := visited[d.ID]; seen {
				continue
			}
			visited[d.ID] = struct{}{}
			if !r.predicate(ctx, d.ID, d.VisibleWhen, state) {
				continue
			}
			node := TreeNode{ActionInfo: r.info(ctx, d, state)}
			node.Children = build(byParent[d.ID])
			out = append(out, node)
		}
		return out
	}
	return build(roots)
}

// Infos returns the visible actions as palette entries.
func (r *Registry) Infos(ctx context.Context) []ActionInfo {
	state := r.snapshotState(ctx)
	out := make([]ActionInfo, 0)
	for _, d := range r.All() {
		if r.predicate(ctx, d.ID, d.VisibleWhen, state) {
			out = append(out, r.info(ctx, d, state))
		}
	}
	return out
}

func (r *Registry) info(ctx context.Context, d schema.ActionDefinition, state map[string]any) ActionInfo {
	return ActionInfo{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		Kind:        d.Kind,
		Category:    d.Category,
		ParentID:    d.ParentID,
		Enabled:     r.predicate(ctx, d.ID, d.EnabledWhen, state),
		Parameters:  len(d.Parameters),
	}
}

// AddChild links childID under parentID. Both ChildrenIDs and the child's
// ParentID are updated; adding an existing link is a no-op.
func (r *Registry) AddChild(parentID, childID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	parent, ok := r.defs[parentID]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "action %q not registered", parentID)
	}
	child, ok := r.defs[childID]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "action %q not registered", childID)
	}
	if parentID == childID {
		return schema.NewError(schema.ErrCodeValidation, "action cannot be its own parent").WithAction(childID)
	}

	if prev, ok := r.defs[child.ParentID]; ok && child.ParentID != parentID {
		p := prev.Clone()
		p.ChildrenIDs = slices.DeleteFunc(p.ChildrenIDs, func(s string) bool { return s == childID })
		r.defs[p.ID] = &p
	}

	p := parent.Clone()
	if !slices.Contains(p.ChildrenIDs, childID) {
		p.ChildrenIDs = append(p.ChildrenIDs, childID)
	}
	r.defs[parentID] = &p

	c := child.Clone()
	c.ParentID = parentID
	r.defs[childID] = &c
	return nil
}

// RemoveChild unlinks childID from parentID. Missing links are ignored.
func (r *Registry) RemoveChild(parentID, childID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	parent, ok := r.defs[parentID]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "action %q not registered", parentID)
	}

	p := parent.Clone()
	p.ChildrenIDs = slices.DeleteFunc(p.ChildrenIDs, func(s string) bool { return s == childID })
	r.defs[parentID] = &p

	if child, ok := r.defs[childID]; ok && child.ParentID == parentID {
		c := child.Clone()
		c.ParentID = ""
		r.defs[childID] = &c
	}
	return nil
}

func (r *Registry) collect(keep func(*schema.ActionDefinition) bool) []schema.ActionDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]schema.ActionDefinition, 0, len(r.order))
	for _, id := range r.order {
		if d := r.defs[id]; keep(d) {
			out = append(out, d.Clone())
		}
	}
	return out
}

func (r *Registry) snapshotState(ctx context.Context) map[string]any {
	r.mu.RLock()
	state := r.state
	r.mu.RUnlock()
	if state == nil {
		return map[string]any{}
	}
	return state(ctx)
}

// predicate evaluates expression, treating failures as false.
func (r *Registry) predicate(ctx context.Context, id, expression string, state map[string]any) bool {
	ok, err := r.eval(ctx, expression, state)
	if err != nil {
		r.logger.WarnContext(ctx, "action predicate failed",
			slog.String("action_id", id),
			slog.String("expression", expression),
			slog.Any("error", err))
		return false
	}
	return ok
}

func (r *Registry) eval(ctx context.Context, expression string, state map[string]any) (bool, error) {
	if expression == "" {
		return true, nil
	}
	if r.cel == nil {
		return false, schema.NewError(schema.ErrCodeValidation, "predicates require a CEL engine")
	}
	return expressions.EvaluateBool(ctx, r.cel, expression, state)
}

var _ ActionRegistry = (*Registry)(nil)
