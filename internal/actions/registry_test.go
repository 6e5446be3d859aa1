package actions

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rendis/graphspace/internal/expressions"
	"github.com/rendis/graphspace/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echo(_ context.Context, params map[string]any) (schema.Outcome, error) {
	return schema.DataOutcome(params), nil
}

func newTestRegistry(t *testing.T, state map[string]any) *Registry {
	t.Helper()
	cel, err := expressions.NewCELEngine()
	require.NoError(t, err)
	r := NewRegistry(WithPredicates(cel, func(context.Context) map[string]any { return state }))
	require.NoError(t, r.RegisterCapability("echo", echo))
	return r
}

func def(id, parent string) schema.ActionDefinition {
	return schema.ActionDefinition{ID: id, Title: id, ParentID: parent, Capability: "echo"}
}

func ids(defs []schema.ActionDefinition) []string {
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.ID)
	}
	return out
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := newTestRegistry(t, nil)
	require.NoError(t, r.Register(def("a", "")))

	got, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, schema.ActionKindSingleton, got.Kind, "kind defaults to singleton")
	assert.True(t, r.Has("a"))
}

func TestRegistry_ReplaceKeepsPosition(t *testing.T) {
	r := newTestRegistry(t, nil)
	require.NoError(t, r.Register(def("a", "")))
	require.NoError(t, r.Register(def("b", "")))
	require.NoError(t, r.Register(def("c", "")))

	replaced := def("b", "")
	replaced.Title = "Bravo"
	require.NoError(t, r.Register(replaced))

	assert.Equal(t, 3, r.Count())
	assert.Equal(t, []string{"a", "b", "c"}, ids(r.All()))
	got, _ := r.Get("b")
	assert.Equal(t, "Bravo", got.Title)
}

func TestRegistry_RegisterValidation(t *testing.T) {
	r := newTestRegistry(t, nil)

	err := r.Register(schema.ActionDefinition{})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	err = r.Register(schema.ActionDefinition{ID: "x", Capability: "missing"})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	err = r.Register(schema.ActionDefinition{ID: "x", Kind: "sometimes"})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	err = r.Register(schema.ActionDefinition{ID: "x", EnabledWhen: "graph.loaded &&"})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	assert.Equal(t, 0, r.Count())
}

func TestRegistry_PredicatesWithoutEngine(t *testing.T) {
	r := NewRegistry()
	err := r.Register(schema.ActionDefinition{ID: "x", VisibleWhen: "true"})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestRegistry_RegisterCopiesDefinition(t *testing.T) {
	r := newTestRegistry(t, nil)
	d := def("a", "")
	d.Keywords = []string{"one"}
	require.NoError(t, r.Register(d))

	d.Keywords[0] = "mutated"
	got, _ := r.Get("a")
	assert.Equal(t, []string{"one"}, got.Keywords)
}

func TestRegistry_GetNotFound(t *testing.T) {
	r := newTestRegistry(t, nil)
	_, err := r.Get("nope")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestRegistry_Capabilities(t *testing.T) {
	r := newTestRegistry(t, nil)

	err := r.RegisterCapability("echo", echo)
	assert.True(t, schema.IsCode(err, schema.ErrCodeConflict))
	assert.True(t, schema.IsCode(r.RegisterCapability("", echo), schema.ErrCodeValidation))
	assert.True(t, schema.IsCode(r.RegisterCapability("nil", nil), schema.ErrCodeValidation))
	assert.Equal(t, []string{"echo"}, r.Capabilities())
}

func TestRegistry_Body(t *testing.T) {
	r := newTestRegistry(t, nil)
	require.NoError(t, r.Register(def("a", "")))
	require.NoError(t, r.Register(schema.ActionDefinition{ID: "group"}))

	body, err := r.Body("a")
	require.NoError(t, err)
	out, err := body(context.Background(), map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, "v", out.Data["k"])

	body, err = r.Body("group")
	require.NoError(t, err)
	out, err = body(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, schema.OutcomeNone, out.Kind)

	_, err = r.Body("missing")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestRegistry_UnregisterFiresHooks(t *testing.T) {
	r := newTestRegistry(t, nil)
	require.NoError(t, r.Register(def("parent", "")))
	require.NoError(t, r.Register(def("child", "parent")))

	var removed []string
	r.OnUnregister(func(id string) { removed = append(removed, id) })

	assert.True(t, r.Unregister("parent"))
	assert.False(t, r.Unregister("parent"))
	assert.Equal(t, []string{"parent"}, removed)

	child, err := r.Get("child")
	require.NoError(t, err)
	assert.Equal(t, "parent", child.ParentID, "stale parent is kept")
	assert.Equal(t, []string{"child"}, ids(r.Roots()), "orphan surfaces as root")
}

func TestRegistry_OnRegisterHook(t *testing.T) {
	r := newTestRegistry(t, nil)
	var seen []string
	r.OnRegister(func(d schema.ActionDefinition) { seen = append(seen, d.ID) })

	require.NoError(t, r.Register(def("a", "")))
	require.NoError(t, r.Register(def("a", "")))
	assert.Equal(t, []string{"a", "a"}, seen)
}

func TestRegistry_Hierarchy(t *testing.T) {
	r := newTestRegistry(t, nil)
	require.NoError(t, r.Register(def("child-early", "root")))
	require.NoError(t, r.Register(def("root", "")))
	require.NoError(t, r.Register(def("child-late", "root")))
	require.NoError(t, r.Register(def("other", "")))

	assert.Equal(t, []string{"root", "other"}, ids(r.Roots()))
	assert.Equal(t, []string{"child-early", "child-late"}, ids(r.Children("root")))
	assert.Empty(t, r.Children(""))
}

func TestRegistry_ChildrenIgnoresChildrenIDs(t *testing.T) {
	r := newTestRegistry(t, nil)
	p := def("p", "")
	p.ChildrenIDs = []string{"ghost"}
	require.NoError(t, r.Register(p))
	require.NoError(t, r.Register(def("real", "p")))

	assert.Equal(t, []string{"real"}, ids(r.Children("p")))
}

func TestRegistry_Categories(t *testing.T) {
	r := newTestRegistry(t, nil)
	for _, d := range []schema.ActionDefinition{
		{ID: "s", Category: "System"},
		{ID: "n", Category: "Nodes"},
		{ID: "s2", Category: "System"},
		{ID: "none"},
	} {
		require.NoError(t, r.Register(d))
	}

	assert.Equal(t, []string{"System", "Nodes"}, r.Categories())
	assert.Equal(t, []string{"s", "s2"}, ids(r.InCategory("System")))
}

func TestRegistry_PredicatesReevaluated(t *testing.T) {
	state := map[string]any{
		"settings":  map[string]any{"theme": "light"},
		"selection": map[string]any{"nodes": []string{}},
	}
	r := newTestRegistry(t, state)

	dark := def("dark-only", "")
	dark.VisibleWhen = `settings.theme == "dark"`
	needsSel := def("needs-selection", "")
	needsSel.EnabledWhen = `size(selection.nodes) > 0`
	require.NoError(t, r.Register(dark))
	require.NoError(t, r.Register(needsSel))

	ctx := context.Background()
	assert.Equal(t, []string{"needs-selection"}, ids(r.Visible(ctx)))
	assert.Empty(t, r.Enabled(ctx))

	ok, err := r.IsEnabled(ctx, "needs-selection")
	require.NoError(t, err)
	assert.False(t, ok)

	state["settings"] = map[string]any{"theme": "dark"}
	state["selection"] = map[string]any{"nodes": []string{"a"}}

	assert.Equal(t, []string{"dark-only", "needs-selection"}, ids(r.Visible(ctx)))
	assert.Equal(t, []string{"dark-only", "needs-selection"}, ids(r.Enabled(ctx)))

	ok, err = r.IsVisible(ctx, "dark-only")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegistry_PredicateErrorHidesAction(t *testing.T) {
	r := newTestRegistry(t, map[string]any{})
	d := def("broken", "")
	d.VisibleWhen = `settings.missing == 1`
	require.NoError(t, r.Register(d))

	assert.Empty(t, r.Visible(context.Background()))
	_, err := r.IsVisible(context.Background(), "broken")
	assert.Error(t, err)
}

func TestRegistry_IsEnabledNotFound(t *testing.T) {
	r := newTestRegistry(t, nil)
	_, err := r.IsEnabled(context.Background(), "nope")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestRegistry_Search(t *testing.T) {
	r := newTestRegistry(t, nil)
	a := def("filter-by-tag", "")
	a.Title = "Filter by Tag"
	a.Keywords = []string{"label"}
	b := def("toggle-theme", "")
	b.Description = "Switch between light and dark"
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))

	ctx := context.Background()
	assert.Equal(t, []string{"filter-by-tag"}, ids(r.Search(ctx, "TAG")))
	assert.Equal(t, []string{"filter-by-tag"}, ids(r.Search(ctx, "label")))
	assert.Equal(t, []string{"toggle-theme"}, ids(r.Search(ctx, "dark")))
	assert.Len(t, r.Search(ctx, ""), 2)
}

func TestRegistry_Tree(t *testing.T) {
	state := map[string]any{"graph": map[string]any{"loaded": false}}
	r := newTestRegistry(t, state)
	require.NoError(t, r.Register(def("root", "")))
	require.NoError(t, r.Register(def("a", "root")))
	hidden := def("hidden", "root")
	hidden.VisibleWhen = "graph.loaded"
	require.NoError(t, r.Register(hidden))
	require.NoError(t, r.Register(def("under-hidden", "hidden")))
	disabled := def("b", "a")
	disabled.EnabledWhen = "graph.loaded"
	require.NoError(t, r.Register(disabled))

	tree := r.Tree(context.Background())
	require.Len(t, tree, 1)
	assert.Equal(t, "root", tree[0].ID)
	require.Len(t, tree[0].Children, 1)
	assert.Equal(t, "a", tree[0].Children[0].ID)
	require.Len(t, tree[0].Children[0].Children, 1)
	assert.False(t, tree[0].Children[0].Children[0].Enabled)
}

func TestRegistry_AddRemoveChild(t *testing.T) {
	r := newTestRegistry(t, nil)
	require.NoError(t, r.Register(def("p1", "")))
	require.NoError(t, r.Register(def("p2", "")))
	require.NoError(t, r.Register(def("c", "")))

	require.NoError(t, r.AddChild("p1", "c"))
	require.NoError(t, r.AddChild("p1", "c"))
	p1, _ := r.Get("p1")
	c, _ := r.Get("c")
	assert.Equal(t, []string{"c"}, p1.ChildrenIDs)
	assert.Equal(t, "p1", c.ParentID)

	require.NoError(t, r.AddChild("p2", "c"))
	p1, _ = r.Get("p1")
	p2, _ := r.Get("p2")
	assert.Empty(t, p1.ChildrenIDs)
	assert.Equal(t, []string{"c"}, p2.ChildrenIDs)

	require.NoError(t, r.RemoveChild("p2", "c"))
	require.NoError(t, r.RemoveChild("p2", "c"))
	p2, _ = r.Get("p2")
	c, _ = r.Get("c")
	assert.Empty(t, p2.ChildrenIDs)
	assert.Empty(t, c.ParentID)

	err := r.AddChild("missing", "c")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
	err = r.AddChild("c", "c")
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := newTestRegistry(t, nil)
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_ = r.Register(def(string(rune('a'+n%26)), ""))
		}(i)
		go func() {
			defer wg.Done()
			_ = r.Visible(context.Background())
		}()
	}
	wg.Wait()
	assert.Equal(t, 26, r.Count())
}

func TestLoadBuiltinCatalog_RequiresCapabilities(t *testing.T) {
	r := newTestRegistry(t, nil)
	n, err := LoadBuiltinCatalog(r)
	require.Error(t, err)
	var gerr *schema.GraphspaceError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, schema.ErrCodeValidation, gerr.Code)
	assert.Greater(t, n, 0, "grouping entries before the first capability register fine")
}

func TestParseCatalog(t *testing.T) {
	c, err := ParseCatalog(builtinCatalog)
	require.NoError(t, err)

	byID := make(map[string]schema.ActionDefinition)
	for _, d := range c.Actions {
		byID[d.ID] = d
	}
	fs := byID["font-size"]
	assert.Equal(t, "settings", fs.ParentID)
	require.Len(t, fs.Parameters, 1)
	require.NotNil(t, fs.Parameters[0].Validation)
	assert.Equal(t, 8.0, *fs.Parameters[0].Validation.Min)
	assert.Equal(t, schema.ActionKindRepeatable, byID["filter-by-name"].Kind)
	assert.Equal(t, "*", byID["filter-by-name"].Parameters[0].Default)

	_, err = ParseCatalog([]byte("actions: [: bad"))
	assert.Error(t, err)
}
