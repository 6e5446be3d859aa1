package panel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/graphspace/internal/store"
	"github.com/rendis/graphspace/internal/workspace"
	"github.com/rendis/graphspace/pkg/schema"
)

const panelGraph = `{"nodes":[{"id":"a","label":"Alpha"},{"id":"b","label":"Beta"}],"edges":[{"id":"a-b","source":"a","target":"b"}]}`

func newTestPanel(t *testing.T, withStore bool) (*workspace.Workspace, http.Handler) {
	t.Helper()
	opts := workspace.Options{}
	if withStore {
		s, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "panel.db"))
		require.NoError(t, err)
		require.NoError(t, s.Migrate(context.Background()))
		t.Cleanup(func() { _ = s.Close() })
		opts.Store = s
	}
	ws, err := workspace.New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(ws.Close)
	return ws, NewPanelServer(PanelDeps{Workspace: ws}).Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func loadPanelGraph(t *testing.T, h http.Handler) {
	t.Helper()
	body, err := json.Marshal(map[string]string{"name": "demo.json", "content": panelGraph})
	require.NoError(t, err)
	rec := do(t, h, http.MethodPost, "/api/graph", string(body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestPages_Render(t *testing.T) {
	_, h := newTestPanel(t, true)
	loadPanelGraph(t, h)

	for _, path := range []string{"/", "/actions", "/actions?q=filter", "/events"} {
		rec := do(t, h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html", path)
	}

	rec := do(t, h, http.MethodGet, "/", "")
	assert.Contains(t, rec.Body.String(), "graph TD")
}

func TestListActions(t *testing.T) {
	_, h := newTestPanel(t, false)

	rec := do(t, h, http.MethodGet, "/api/actions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	infos := decode[[]map[string]any](t, rec)
	assert.NotEmpty(t, infos)

	rec = do(t, h, http.MethodGet, "/api/actions?q=theme", "")
	require.Equal(t, http.StatusOK, rec.Code)
	found := decode[[]map[string]any](t, rec)
	var ids []any
	for _, f := range found {
		ids = append(ids, f["id"])
	}
	assert.Contains(t, ids, "toggle-theme")

	rec = do(t, h, http.MethodGet, "/api/actions/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecuteLifecycle(t *testing.T) {
	_, h := newTestPanel(t, false)
	loadPanelGraph(t, h)

	rec := do(t, h, http.MethodPost, "/api/actions/filter-by-name/execute", `{"pattern":"al*"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	inst := decode[schema.ActionInstance](t, rec)

	rec = do(t, h, http.MethodGet, "/api/graph/visible", "")
	visible := decode[map[string]any](t, rec)
	assert.Equal(t, []any{"a"}, visible["node_ids"])

	rec = do(t, h, http.MethodPut, "/api/instances/"+inst.ID, `{"pattern":"b*"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	visible = decode[map[string]any](t, do(t, h, http.MethodGet, "/api/graph/visible", ""))
	assert.Equal(t, []any{"b"}, visible["node_ids"])

	rec = do(t, h, http.MethodGet, "/api/instances?action_id=filter-by-name", "")
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	rec = do(t, h, http.MethodDelete, "/api/instances/"+inst.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["removed"])

	// Removing an absent instance is a no-op, not an error.
	rec = do(t, h, http.MethodDelete, "/api/instances/"+inst.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode[map[string]any](t, rec)["removed"])
}

type finishResponse struct {
	Finished bool                   `json:"finished"`
	Instance *schema.ActionInstance `json:"instance"`
}

func TestConfigurationSession(t *testing.T) {
	_, h := newTestPanel(t, false)
	loadPanelGraph(t, h)

	rec := do(t, h, http.MethodGet, "/api/configure", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode[map[string]any](t, rec)["pending"])

	rec = do(t, h, http.MethodPost, "/api/actions/filter-by-tag/configure", "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	// A second session replaces the first; filter-by-tag never runs.
	rec = do(t, h, http.MethodPost, "/api/actions/filter-by-name/configure", "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/configure", "")
	pending := decode[map[string]any](t, rec)
	assert.Equal(t, true, pending["pending"])
	assert.Equal(t, "filter-by-name", pending["action_id"])

	rec = do(t, h, http.MethodPost, "/api/configure/finish", `{"pattern":"al*"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	finished := decode[finishResponse](t, rec)
	assert.True(t, finished.Finished)
	require.NotNil(t, finished.Instance)
	assert.Equal(t, "filter-by-name", finished.Instance.ActionID)
	assert.NotEmpty(t, finished.Instance.ID)

	rec = do(t, h, http.MethodGet, "/api/instances?action_id=filter-by-tag", "")
	assert.Empty(t, decode[[]map[string]any](t, rec))
	rec = do(t, h, http.MethodGet, "/api/instances?action_id=filter-by-name", "")
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	visible := decode[map[string]any](t, do(t, h, http.MethodGet, "/api/graph/visible", ""))
	assert.Equal(t, []any{"a"}, visible["node_ids"])

	// The session is cleared once finished.
	rec = do(t, h, http.MethodPost, "/api/configure/finish", `{"pattern":"b*"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[finishResponse](t, rec).Finished)
}

func TestConfigurationSession_CancelAndErrors(t *testing.T) {
	_, h := newTestPanel(t, false)
	loadPanelGraph(t, h)

	rec := do(t, h, http.MethodPost, "/api/actions/missing/configure", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/actions/filter-by-name/configure", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	rec = do(t, h, http.MethodDelete, "/api/configure", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["cancelled"])

	rec = do(t, h, http.MethodPost, "/api/configure/finish", `{"pattern":"a*"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[finishResponse](t, rec).Finished)
	rec = do(t, h, http.MethodGet, "/api/instances", "")
	assert.Empty(t, decode[[]map[string]any](t, rec))

	// Parameters are validated when the session finishes.
	rec = do(t, h, http.MethodPost, "/api/actions/filter-by-name/configure", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/configure/finish", `{"pattern":5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	rec = do(t, h, http.MethodGet, "/api/configure", "")
	assert.Equal(t, false, decode[map[string]any](t, rec)["pending"])
}

func TestStatus(t *testing.T) {
	_, h := newTestPanel(t, false)
	loadPanelGraph(t, h)
	rec := do(t, h, http.MethodPost, "/api/actions/filter-by-name/execute", `{"pattern":"al*"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[map[string]any](t, rec)
	assert.Equal(t, float64(1), status["instances"])
	graph := status["graph"].(map[string]any)
	assert.Equal(t, float64(2), graph["nodes"])
	assert.Equal(t, float64(1), graph["visible_nodes"])
	pool := status["pool"].(map[string]any)
	assert.Contains(t, pool, "active")
	assert.Contains(t, pool, "completed")
}

func TestExecuteErrors(t *testing.T) {
	_, h := newTestPanel(t, false)

	rec := do(t, h, http.MethodPost, "/api/actions/missing/execute", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// export-graph is disabled until a graph is loaded.
	rec = do(t, h, http.MethodPost, "/api/actions/export-graph/execute", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decode[map[string]map[string]any](t, rec)
	assert.Equal(t, schema.ErrCodeDisabled, body["error"]["code"])

	rec = do(t, h, http.MethodPost, "/api/actions/font-size/execute", `{"fontSize":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoadGraph_Errors(t *testing.T) {
	_, h := newTestPanel(t, false)

	rec := do(t, h, http.MethodPost, "/api/graph", `{"content":"{}"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/graph?name=g.dot", strings.NewReader("digraph g {\n  a -> b\n}\n"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "g", decode[map[string]any](t, rec)["name"])

	rec = do(t, h, http.MethodPost, "/api/graph", `{"name":"g.xml","content":"<x/>"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportGraph(t *testing.T) {
	_, h := newTestPanel(t, false)
	loadPanelGraph(t, h)

	rec := do(t, h, http.MethodGet, "/api/graph/export?format=mermaid", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Alpha")

	rec = do(t, h, http.MethodGet, "/api/graph/export?format=dot&scope=all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/vnd.graphviz", rec.Header().Get("Content-Type"))

	rec = do(t, h, http.MethodGet, "/api/graph/export?format=gif", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSelectionAndSettings(t *testing.T) {
	ws, h := newTestPanel(t, false)
	loadPanelGraph(t, h)

	rec := do(t, h, http.MethodPost, "/api/selection/nodes/a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a"}, ws.Selection().SelectedNodes())

	rec = do(t, h, http.MethodPost, "/api/selection/nodes/zzz", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/selection", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, ws.Selection().SelectedNodes())

	rec = do(t, h, http.MethodPatch, "/api/settings", `{"theme":"dark"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "dark", decode[map[string]any](t, rec)["theme"])

	rec = do(t, h, http.MethodPatch, "/api/settings", `{"fontSize":2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSnapshotsAndEvents(t *testing.T) {
	_, h := newTestPanel(t, true)
	loadPanelGraph(t, h)

	rec := do(t, h, http.MethodPost, "/api/snapshots", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/snapshots?name=demo", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	rec = do(t, h, http.MethodPost, "/api/snapshots/demo/restore", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/snapshots/missing/restore", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/actions/toggle-theme/execute", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/events?action_id=toggle-theme", "")
	require.Equal(t, http.StatusOK, rec.Code)
	events := decode[[]map[string]any](t, rec)
	require.NotEmpty(t, events)
	assert.Equal(t, schema.EventInstanceCreated, events[0]["type"])
}

func TestSnapshots_NoStore(t *testing.T) {
	_, h := newTestPanel(t, false)
	rec := do(t, h, http.MethodGet, "/api/snapshots", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSSE_StreamsEvents(t *testing.T) {
	ws, h := newTestPanel(t, false)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse/events?types=graph.loaded", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.NoError(t, ws.LoadGraph(context.Background(), "demo.json", panelGraph))

	buf := make([]byte, 4096)
	n, err := resp.Body.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "event: graph.loaded")
}
