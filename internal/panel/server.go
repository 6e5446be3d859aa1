// Package panel serves the browser workspace: an HTML palette and graph
// view, a JSON API over the workspace and an SSE event stream.
package panel

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"github.com/rendis/graphspace/internal/workspace"
)

//go:embed templates static
var content embed.FS

// PanelDeps holds the dependencies for the panel server.
type PanelDeps struct {
	Workspace *workspace.Workspace
	Logger    *slog.Logger
}

// PanelServer serves the web panel.
type PanelServer struct {
	deps  PanelDeps
	pages map[string]*template.Template
}

// NewPanelServer creates a new PanelServer with parsed templates.
func NewPanelServer(deps PanelDeps) *PanelServer {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	funcMap := template.FuncMap{
		"json":      toJSON,
		"timeAgo":   timeAgo,
		"kindBadge": kindBadge,
		"truncate":  truncate,
	}

	base := template.Must(
		template.New("").Funcs(funcMap).ParseFS(content, "templates/base.html"),
	)

	// Each page clones the base so its {{define "content"}} stays private.
	pageFiles := []string{
		"dashboard.html",
		"actions.html",
		"events.html",
	}

	pages := make(map[string]*template.Template, len(pageFiles))
	for _, pf := range pageFiles {
		clone := template.Must(base.Clone())
		pages[pf] = template.Must(clone.ParseFS(content, "templates/"+pf))
	}

	return &PanelServer{
		deps:  deps,
		pages: pages,
	}
}

// Handler returns the HTTP handler for the panel routes.
func (s *PanelServer) Handler() http.Handler {
	mux := http.NewServeMux()

	staticFS, _ := fs.Sub(content, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	// Pages.
	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /actions", s.handleActionsPage)
	mux.HandleFunc("GET /events", s.handleEventsPage)

	// SSE streams.
	mux.HandleFunc("GET /sse/events", s.handleSSEGlobal)
	mux.HandleFunc("GET /sse/actions/{id}", s.handleSSEAction)

	// Actions and instances.
	mux.HandleFunc("GET /api/actions", s.handleListActions)
	mux.HandleFunc("GET /api/actions/tree", s.handleActionTree)
	mux.HandleFunc("GET /api/actions/{id}", s.handleGetAction)
	mux.HandleFunc("POST /api/actions/{id}/execute", s.handleExecute)
	mux.HandleFunc("GET /api/instances", s.handleListInstances)
	mux.HandleFunc("PUT /api/instances/{id}", s.handleUpdateInstance)
	mux.HandleFunc("DELETE /api/instances/{id}", s.handleRemoveInstance)
	mux.HandleFunc("POST /api/actions/{id}/configure", s.handleConfigure)
	mux.HandleFunc("GET /api/configure", s.handlePendingConfiguration)
	mux.HandleFunc("POST /api/configure/finish", s.handleFinishConfiguration)
	mux.HandleFunc("DELETE /api/configure", s.handleCancelConfiguration)
	mux.HandleFunc("GET /api/status", s.handleStatus)

	// Graph.
	mux.HandleFunc("POST /api/graph", s.handleLoadGraph)
	mux.HandleFunc("GET /api/graph", s.handleGetGraph)
	mux.HandleFunc("GET /api/graph/visible", s.handleVisibleGraph)
	mux.HandleFunc("GET /api/graph/export", s.handleExportGraph)
	mux.HandleFunc("POST /api/selection/nodes/{id}", s.handleToggleNode)
	mux.HandleFunc("DELETE /api/selection", s.handleClearSelection)

	// Settings, snapshots and the audit log.
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PATCH /api/settings", s.handlePatchSettings)
	mux.HandleFunc("GET /api/snapshots", s.handleListSnapshots)
	mux.HandleFunc("POST /api/snapshots", s.handleSaveSnapshot)
	mux.HandleFunc("POST /api/snapshots/{name}/restore", s.handleRestoreSnapshot)
	mux.HandleFunc("GET /api/events", s.handleListEvents)

	return mux
}

// renderPage executes a page template by name.
func (s *PanelServer) renderPage(w http.ResponseWriter, page string, data any) {
	tmpl, ok := s.pages[page]
	if !ok {
		s.deps.Logger.Error("template not found", "page", page)
		http.Error(w, fmt.Sprintf("template %q not found", page), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base", data); err != nil {
		s.deps.Logger.Error("template render error", "page", page, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
