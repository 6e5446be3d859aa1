package panel

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rendis/graphspace/internal/store"
)

const maxGraphBody = 10 << 20

// --- Actions and instances ---

func (s *PanelServer) handleListActions(w http.ResponseWriter, r *http.Request) {
	reg := s.deps.Workspace.Registry()
	if q := r.URL.Query().Get("q"); q != "" {
		writeJSON(w, http.StatusOK, reg.Search(r.Context(), q))
		return
	}
	writeJSON(w, http.StatusOK, reg.Infos(r.Context()))
}

func (s *PanelServer) handleActionTree(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Workspace.Registry().Tree(r.Context()))
}

func (s *PanelServer) handleGetAction(w http.ResponseWriter, r *http.Request) {
	def, err := s.deps.Workspace.Registry().Get(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// handleExecute runs an action. The body is the parameter object.
func (s *PanelServer) handleExecute(w http.ResponseWriter, r *http.Request) {
	params, err := decodeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	inst, err := s.deps.Workspace.Engine().Execute(r.Context(), r.PathValue("id"), params)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (s *PanelServer) handleListInstances(w http.ResponseWriter, r *http.Request) {
	eng := s.deps.Workspace.Engine()
	if actionID := r.URL.Query().Get("action_id"); actionID != "" {
		writeJSON(w, http.StatusOK, eng.InstancesOf(actionID))
		return
	}
	writeJSON(w, http.StatusOK, eng.Instances())
}

func (s *PanelServer) handleUpdateInstance(w http.ResponseWriter, r *http.Request) {
	params, err := decodeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	inst, err := s.deps.Workspace.Engine().UpdateInstance(r.Context(), r.PathValue("id"), params)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// handleRemoveInstance drops an instance. Removing an unknown id is a no-op.
func (s *PanelServer) handleRemoveInstance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	removed := s.deps.Workspace.Engine().RemoveInstance(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed, "id": id})
}

// --- Configuration sessions ---

// handleConfigure starts collecting parameters for an action. Finishing the
// session executes it.
func (s *PanelServer) handleConfigure(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Workspace.Configure(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"pending": true, "action_id": id})
}

func (s *PanelServer) handlePendingConfiguration(w http.ResponseWriter, r *http.Request) {
	actionID, pending := s.deps.Workspace.PendingConfiguration()
	writeJSON(w, http.StatusOK, map[string]any{"pending": pending, "action_id": actionID})
}

// handleFinishConfiguration resolves the pending session with the body as
// parameters and returns the resulting instance.
func (s *PanelServer) handleFinishConfiguration(w http.ResponseWriter, r *http.Request) {
	params, err := decodeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	inst, ok, err := s.deps.Workspace.FinishConfiguration(r.Context(), params)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"finished": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"finished": true, "instance": inst})
}

func (s *PanelServer) handleCancelConfiguration(w http.ResponseWriter, r *http.Request) {
	cancelled := s.deps.Workspace.CancelConfiguration(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": cancelled})
}

// handleStatus reports graph, instance and async pool counters.
func (s *PanelServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	ws := s.deps.Workspace
	nodes, edges := ws.Graph().Counts()
	visible := ws.Visible()
	pendingAction, _ := ws.PendingConfiguration()
	writeJSON(w, http.StatusOK, map[string]any{
		"graph": map[string]any{
			"name":          ws.Graph().Name(),
			"nodes":         nodes,
			"edges":         edges,
			"visible_nodes": len(visible.NodeIDs),
			"visible_edges": len(visible.EdgeIDs),
		},
		"actions":     ws.Registry().Count(),
		"instances":   len(ws.Engine().Instances()),
		"pool":        ws.Engine().PoolStats(),
		"configuring": pendingAction,
	})
}

// --- Graph ---

// handleLoadGraph replaces the graph. It accepts either a JSON body
// {"name": "g.dot", "content": "..."} or raw file content with ?name=.
func (s *PanelServer) handleLoadGraph(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxGraphBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
		return
	}
	if len(raw) > maxGraphBody {
		writeError(w, http.StatusRequestEntityTooLarge, "graph exceeds 10MB")
		return
	}

	name, text := r.URL.Query().Get("name"), string(raw)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") && name == "" {
		var body struct {
			Name    string `json:"name"`
			Content string `json:"content"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
			return
		}
		name, text = body.Name, body.Content
	}
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	ws := s.deps.Workspace
	if err := ws.LoadGraph(r.Context(), name, text); err != nil {
		writeDomainError(w, err)
		return
	}
	nodes, edges := ws.Graph().Counts()
	writeJSON(w, http.StatusCreated, map[string]any{
		"name":  ws.Graph().Name(),
		"nodes": nodes,
		"edges": edges,
	})
}

func (s *PanelServer) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Workspace.Graph().Snapshot())
}

func (s *PanelServer) handleVisibleGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Workspace.Visible())
}

// handleExportGraph renders ?format= (json, dot, mermaid, text, png, svg)
// of the visible graph, or the full graph with ?scope=all.
func (s *PanelServer) handleExportGraph(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data, mediaType, err := s.deps.Workspace.Export(r.Context(), q.Get("format"), q.Get("scope") != "all")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", mediaType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *PanelServer) handleToggleNode(w http.ResponseWriter, r *http.Request) {
	ws := s.deps.Workspace
	id := r.PathValue("id")
	if !ws.Graph().HasNode(id) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("node %q not found", id))
		return
	}
	ws.Selection().ToggleNode(r.Context(), id)
	writeJSON(w, http.StatusOK, ws.Selection().Snapshot())
}

func (s *PanelServer) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	ws := s.deps.Workspace
	ws.Selection().Clear(r.Context())
	writeJSON(w, http.StatusOK, ws.Selection().Snapshot())
}

// --- Settings ---

func (s *PanelServer) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Workspace.Settings().Get())
}

func (s *PanelServer) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	patch, err := decodeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := s.deps.Workspace.Settings().Update(r.Context(), patch)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// --- Snapshots and audit log ---

func (s *PanelServer) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Workspace.Store()
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "no store configured")
		return
	}
	snaps, err := st.ListSnapshots(r.Context(), store.SnapshotFilter{
		Name:  r.URL.Query().Get("name"),
		Limit: queryInt(r, "limit", 50),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *PanelServer) handleSaveSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Workspace.SaveSnapshot(r.Context(), r.URL.Query().Get("format"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":    snap.ID,
		"name":  snap.Name,
		"nodes": snap.NodeCount,
		"edges": snap.EdgeCount,
	})
}

func (s *PanelServer) handleRestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.deps.Workspace.RestoreSnapshot(r.Context(), name); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true", "name": name})
}

func (s *PanelServer) handleListEvents(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Workspace.Store()
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "no store configured")
		return
	}
	q := r.URL.Query()
	events, err := st.ListActionEvents(r.Context(), store.EventFilter{
		ActionID:   q.Get("action_id"),
		InstanceID: q.Get("instance_id"),
		Type:       q.Get("type"),
		AfterID:    int64(queryInt(r, "after", 0)),
		Limit:      queryInt(r, "limit", 100),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
