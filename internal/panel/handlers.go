package panel

import (
	"net/http"

	"github.com/rendis/graphspace/internal/actions"
	"github.com/rendis/graphspace/internal/diagram"
	"github.com/rendis/graphspace/internal/settings"
	"github.com/rendis/graphspace/pkg/schema"
)

// --- Page data types ---

type pageData struct {
	Title  string
	Active string
	Theme  string
}

type dashboardData struct {
	pageData
	GraphName    string
	Loaded       bool
	TotalNodes   int
	TotalEdges   int
	VisibleNodes int
	VisibleEdges int
	Selected     []string
	Instances    []*schema.ActionInstance
	Diagram      string
	LastError    string
}

type actionsData struct {
	pageData
	Tree  []actions.TreeNode
	Query string
	Found []schema.ActionDefinition
}

type eventsData struct {
	pageData
	Events   []*schema.ActionEvent
	ActionID string
	Type     string
	Enabled  bool
}

func (s *PanelServer) page(title, active string) pageData {
	theme := string(settings.ThemeLight)
	if ws := s.deps.Workspace; ws != nil {
		theme = string(ws.Settings().Get().Theme)
	}
	return pageData{Title: title, Active: active, Theme: theme}
}

// --- Page handlers ---

func (s *PanelServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ws := s.deps.Workspace
	g := ws.Graph()
	nodes, edges := g.Counts()
	visible := ws.Visible()

	data := dashboardData{
		pageData:     s.page("Workspace", "dashboard"),
		GraphName:    g.Name(),
		Loaded:       g.Loaded(),
		TotalNodes:   nodes,
		TotalEdges:   edges,
		VisibleNodes: len(visible.NodeIDs),
		VisibleEdges: len(visible.EdgeIDs),
		Selected:     ws.Selection().SelectedNodes(),
		Instances:    ws.Engine().Instances(),
	}
	if err := g.LastError(); err != nil {
		data.LastError = err.Error()
	}
	if data.Loaded {
		model := diagram.Build(ws.VisibleGraph(r.Context()), diagram.BuildOptions{
			Title:    g.Name(),
			Selected: data.Selected,
		})
		data.Diagram = diagram.RenderMermaid(model)
	}

	s.renderPage(w, "dashboard.html", data)
}

func (s *PanelServer) handleActionsPage(w http.ResponseWriter, r *http.Request) {
	reg := s.deps.Workspace.Registry()
	data := actionsData{
		pageData: s.page("Actions", "actions"),
		Tree:     reg.Tree(r.Context()),
		Query:    r.URL.Query().Get("q"),
	}
	if data.Query != "" {
		data.Found = reg.Search(r.Context(), data.Query)
	}
	s.renderPage(w, "actions.html", data)
}

func (s *PanelServer) handleEventsPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	data := eventsData{
		pageData: s.page("Events", "events"),
		ActionID: q.Get("action_id"),
		Type:     q.Get("type"),
	}

	if log := s.deps.Workspace.EventLog(); log != nil {
		data.Enabled = true
		events, err := log.Tail(ctx, int64(queryInt(r, "after", 0)), queryInt(r, "limit", 100))
		if err != nil {
			s.deps.Logger.Error("list action events", "error", err)
		}
		for _, ev := range events {
			if data.ActionID != "" && ev.ActionID != data.ActionID {
				continue
			}
			if data.Type != "" && ev.Type != data.Type {
				continue
			}
			data.Events = append(data.Events, ev)
		}
	}

	s.renderPage(w, "events.html", data)
}
