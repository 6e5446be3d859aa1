package workspace

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/graphspace/internal/filter"
	"github.com/rendis/graphspace/internal/store"
	"github.com/rendis/graphspace/internal/streaming"
	"github.com/rendis/graphspace/pkg/schema"
)

const demoGraph = `{
  "nodes": [
    {"id": "a", "label": "Alpha", "tags": ["core"]},
    {"id": "b", "label": "Beta", "type": "service"},
    {"id": "c", "label": "Another"}
  ],
  "edges": [
    {"id": "a-b", "source": "a", "target": "b"},
    {"id": "a-c", "source": "a", "target": "c"}
  ]
}`

func openStore(t *testing.T, path string) *store.LibSQLStore {
	t.Helper()
	s, err := store.NewLibSQLStore("file:" + path)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newWorkspace(t *testing.T, opts Options) *Workspace {
	t.Helper()
	w, err := New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w
}

func TestNew_RegistersCatalog(t *testing.T) {
	w := newWorkspace(t, Options{})

	assert.True(t, w.Registry().Has("filter-by-name"))
	assert.True(t, w.Registry().Has("open-graph"))
	assert.Empty(t, w.Visible().NodeIDs)
}

func TestFilterNarrowsVisible(t *testing.T) {
	w := newWorkspace(t, Options{})
	ctx := context.Background()
	require.NoError(t, w.LoadGraph(ctx, "demo.json", demoGraph))
	assert.Equal(t, []string{"a", "b", "c"}, w.Visible().NodeIDs)

	inst, err := w.Engine().Execute(ctx, "filter-by-name", map[string]any{"pattern": "a*"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, w.Visible().NodeIDs)
	assert.Equal(t, []string{"a-c"}, w.Visible().EdgeIDs)

	_, err = w.Engine().UpdateInstance(ctx, inst.ID, map[string]any{"pattern": "beta"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, w.Visible().NodeIDs)

	require.True(t, w.Engine().RemoveInstance(ctx, inst.ID))
	assert.Len(t, w.Visible().NodeIDs, 3)
}

func TestVisibleChangedPublished(t *testing.T) {
	w := newWorkspace(t, Options{})
	ctx := context.Background()

	ch, cancel, err := w.Hub().Subscribe(ctx, streaming.EventFilter{EventTypes: []string{schema.EventVisibleChanged}})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, w.LoadGraph(ctx, "demo.json", demoGraph))

	select {
	case ev := <-ch:
		assert.Equal(t, schema.EventVisibleChanged, ev.Type)
		payload, ok := ev.Payload.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, 3, payload["nodes"])
	case <-time.After(time.Second):
		t.Fatal("no visible.changed event")
	}
}

func TestReloadPrunesSelection(t *testing.T) {
	w := newWorkspace(t, Options{})
	ctx := context.Background()
	require.NoError(t, w.LoadGraph(ctx, "demo.json", demoGraph))

	w.Selection().SelectNode(ctx, "b", true)
	require.Equal(t, []string{"b"}, w.Selection().SelectedNodes())

	require.NoError(t, w.LoadGraph(ctx, "other.json", `{"nodes":[{"id":"a"}],"edges":[]}`))
	assert.Empty(t, w.Selection().SelectedNodes())
}

func TestPredicatesFollowState(t *testing.T) {
	w := newWorkspace(t, Options{})
	ctx := context.Background()

	enabled, err := w.Registry().IsEnabled(ctx, "export-graph")
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, w.LoadGraph(ctx, "demo.json", demoGraph))
	enabled, err = w.Registry().IsEnabled(ctx, "export-graph")
	require.NoError(t, err)
	assert.True(t, enabled)

	enabled, err = w.Registry().IsEnabled(ctx, "remove-selected-nodes")
	require.NoError(t, err)
	assert.False(t, enabled)

	w.Selection().SelectNode(ctx, "a", true)
	enabled, err = w.Registry().IsEnabled(ctx, "remove-selected-nodes")
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestExportFormats(t *testing.T) {
	w := newWorkspace(t, Options{})
	ctx := context.Background()
	require.NoError(t, w.LoadGraph(ctx, "demo.json", demoGraph))

	_, err := w.Engine().Execute(ctx, "filter-by-name", map[string]any{"pattern": "Beta"})
	require.NoError(t, err)

	data, mediaType, err := w.Export(ctx, "mermaid", true)
	require.NoError(t, err)
	assert.Contains(t, mediaType, "text/plain")
	assert.Contains(t, string(data), "Beta")
	assert.NotContains(t, string(data), "Alpha")

	data, _, err = w.Export(ctx, "dot", false)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Alpha")

	_, _, err = w.Export(ctx, "bmp", true)
	assert.True(t, schema.IsCode(err, schema.ErrCodeUnsupportedFormat))
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "ws.db"))
	w := newWorkspace(t, Options{Store: s})
	ctx := context.Background()

	_, err := w.SaveSnapshot(ctx, "")
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	require.NoError(t, w.LoadGraph(ctx, "demo.json", demoGraph))
	snap, err := w.SaveSnapshot(ctx, "json")
	require.NoError(t, err)
	assert.Equal(t, "demo", snap.Name)
	assert.Equal(t, 3, snap.NodeCount)

	w.Graph().Clear(ctx)
	assert.False(t, w.Graph().Loaded())

	require.NoError(t, w.RestoreSnapshot(ctx, "demo"))
	assert.Equal(t, "demo", w.Graph().Name())
	assert.Len(t, w.Visible().NodeIDs, 3)
}

func TestSettingsPersistAcrossSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ws.db")
	ctx := context.Background()

	s := openStore(t, path)
	w := newWorkspace(t, Options{Store: s})
	_, err := w.Engine().Execute(ctx, "font-size", map[string]any{"fontSize": 20})
	require.NoError(t, err)
	w.Close()
	require.NoError(t, s.Close())

	s2 := openStore(t, path)
	w2 := newWorkspace(t, Options{Store: s2})
	assert.Equal(t, 20, w2.Settings().Get().FontSize)
}

func TestExecutionsAreAudited(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "ws.db"))
	w := newWorkspace(t, Options{Store: s})
	ctx := context.Background()
	require.NoError(t, w.LoadGraph(ctx, "demo.json", demoGraph))

	inst, err := w.Engine().Execute(ctx, "filter-by-tag", map[string]any{"tags": []any{"core"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, w.Visible().NodeIDs)

	history, err := w.EventLog().InstanceHistory(ctx, inst.ID)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, schema.EventInstanceCreated, history[0].Type)
}

func TestRecomputeKeepsNewestResult(t *testing.T) {
	w := newWorkspace(t, Options{})
	ctx := context.Background()
	require.NoError(t, w.LoadGraph(ctx, "demo.json", demoGraph))

	patterns := []string{"a*", "b*", "*", "another"}
	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inst, err := w.Engine().Execute(ctx, "filter-by-name", map[string]any{"pattern": patterns[i%len(patterns)]})
			if !assert.NoError(t, err) {
				return
			}
			if i%2 == 0 {
				w.Engine().RemoveInstance(ctx, inst.ID)
			}
		}()
	}
	wg.Wait()

	want := w.pipeline.Apply(ctx, filter.Input{
		Nodes:    w.Graph().Nodes(),
		Edges:    w.Graph().Edges(),
		Outcomes: w.Engine().Outcomes(),
		Selected: w.Selection().SelectedNodes(),
	})
	assert.Equal(t, want.NodeIDs, w.Visible().NodeIDs)
	assert.Equal(t, want.EdgeIDs, w.Visible().EdgeIDs)
}

func TestConfigureRunsPendingAction(t *testing.T) {
	w := newWorkspace(t, Options{})
	ctx := context.Background()
	require.NoError(t, w.LoadGraph(ctx, "demo.json", demoGraph))

	events, cancel, err := w.Hub().Subscribe(ctx, streaming.EventFilter{Prefixes: []string{"configuration."}})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, w.Configure(ctx, "filter-by-tag"))
	require.NoError(t, w.Configure(ctx, "filter-by-name"))
	pending, ok := w.PendingConfiguration()
	require.True(t, ok)
	assert.Equal(t, "filter-by-name", pending)

	inst, ok, err := w.FinishConfiguration(ctx, map[string]any{"pattern": "beta"})
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, inst)
	assert.Equal(t, "filter-by-name", inst.ActionID)
	assert.Empty(t, w.Engine().InstancesOf("filter-by-tag"))
	assert.Equal(t, []string{"b"}, w.Visible().NodeIDs)

	inst, ok, err = w.FinishConfiguration(ctx, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, inst)

	require.NoError(t, w.Configure(ctx, "filter-by-name"))
	assert.True(t, w.CancelConfiguration(ctx))
	assert.False(t, w.CancelConfiguration(ctx))

	err = w.Configure(ctx, "missing")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	var types []string
	for len(types) < 5 {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			t.Fatalf("timed out, got %v", types)
		}
	}
	assert.Equal(t, []string{
		schema.EventConfigurationStarted,
		schema.EventConfigurationStarted,
		schema.EventConfigurationFinished,
		schema.EventConfigurationStarted,
		schema.EventConfigurationCancelled,
	}, types)
}
