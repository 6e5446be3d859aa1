// Package mcp exposes a graphspace workspace to agents as MCP tools over
// stdio.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/graphspace/internal/streaming"
	"github.com/rendis/graphspace/internal/workspace"
)

// GraphspaceServerDeps holds the dependencies for creating a GraphspaceServer.
type GraphspaceServerDeps struct {
	Workspace *workspace.Workspace
	Logger    *slog.Logger
	Version   string
}

// GraphspaceServer wraps an MCP server with workspace tool handlers.
type GraphspaceServer struct {
	ws        *workspace.Workspace
	logger    *slog.Logger
	sessions  *SessionRegistry
	notifier  ClientNotifier
	mcpServer *server.MCPServer
}

// NewGraphspaceServer creates a GraphspaceServer with every tool registered.
func NewGraphspaceServer(deps GraphspaceServerDeps) *GraphspaceServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &GraphspaceServer{
		ws:       deps.Workspace,
		logger:   logger,
		sessions: NewSessionRegistry(),
	}

	mcpSrv := server.NewMCPServer(
		"graphspace",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Graphspace is an interactive graph exploration workspace. Load a graph with graphspace.load_graph, "+
			"list palette actions with graphspace.actions and run them with graphspace.execute. Filter and search actions "+
			"narrow the visible graph; read it with graphspace.visible or render it with graphspace.export. Adjust or drop "+
			"running filters with graphspace.update_instance and graphspace.remove_instance. To collect parameters "+
			"before running an action, open a session with graphspace.configure (mode start) and finish it with params."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv, s.sessions)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *GraphspaceServer) Serve(ctx context.Context) error {
	go s.forwardEvents(ctx)
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *GraphspaceServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// forwardEvents pushes visible-graph and instance changes to every client
// that identified itself with a client_id.
func (s *GraphspaceServer) forwardEvents(ctx context.Context) {
	ch, cancel, err := s.ws.Hub().Subscribe(ctx, streaming.EventFilter{
		Prefixes: []string{"visible.", "instance.", "graph."},
	})
	if err != nil {
		s.logger.Warn("mcp event forwarding disabled", slog.Any("error", err))
		return
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			payload := map[string]any{
				"level":  "info",
				"logger": "graphspace",
				"data": map[string]any{
					"type":        ev.Type,
					"action_id":   ev.ActionID,
					"instance_id": ev.InstanceID,
					"payload":     ev.Payload,
				},
			}
			for _, clientID := range s.sessions.Clients() {
				if err := s.notifier.Notify(ctx, clientID, payload); err != nil {
					s.logger.Debug("notify client", slog.String("client_id", clientID), slog.Any("error", err))
				}
			}
		}
	}
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *GraphspaceServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: actionsTool(), Handler: s.handleActions},
		{Tool: executeTool(), Handler: s.handleExecute},
		{Tool: updateInstanceTool(), Handler: s.handleUpdateInstance},
		{Tool: removeInstanceTool(), Handler: s.handleRemoveInstance},
		{Tool: instancesTool(), Handler: s.handleInstances},
		{Tool: loadGraphTool(), Handler: s.handleLoadGraph},
		{Tool: visibleTool(), Handler: s.handleVisible},
		{Tool: exportTool(), Handler: s.handleExport},
		{Tool: selectTool(), Handler: s.handleSelect},
		{Tool: configureTool(), Handler: s.handleConfigure},
	}
}

// --- Tool definitions ---

func actionsTool() mcp.Tool {
	return mcp.NewTool("graphspace.actions",
		mcp.WithDescription("List palette actions with their enabled state"),
		mcp.WithString("query", mcp.Description("Case-insensitive search over id, title, description and keywords")),
		mcp.WithBoolean("tree", mcp.Description("Return the parent/child hierarchy instead of a flat list")),
	)
}

func executeTool() mcp.Tool {
	return mcp.NewTool("graphspace.execute",
		mcp.WithDescription("Execute an action and return the resulting instance"),
		mcp.WithString("action_id", mcp.Required(), mcp.Description("ID of the action to run")),
		mcp.WithObject("params", mcp.Description("Action parameters; omitted parameters take their defaults")),
		mcp.WithString("client_id", mcp.Description("Caller identity; registered clients receive workspace change notifications")),
	)
}

func updateInstanceTool() mcp.Tool {
	return mcp.NewTool("graphspace.update_instance",
		mcp.WithDescription("Re-run an instance with new parameters"),
		mcp.WithString("instance_id", mcp.Required(), mcp.Description("ID of the instance to update")),
		mcp.WithObject("params", mcp.Required(), mcp.Description("Replacement parameters")),
	)
}

func removeInstanceTool() mcp.Tool {
	return mcp.NewTool("graphspace.remove_instance",
		mcp.WithDescription("Remove an instance, dropping its filter or search"),
		mcp.WithString("instance_id", mcp.Required(), mcp.Description("ID of the instance to remove")),
	)
}

func instancesTool() mcp.Tool {
	return mcp.NewTool("graphspace.instances",
		mcp.WithDescription("List live action instances in execution order"),
		mcp.WithString("action_id", mcp.Description("Only instances of this action")),
	)
}

func loadGraphTool() mcp.Tool {
	return mcp.NewTool("graphspace.load_graph",
		mcp.WithDescription("Replace the workspace graph from JSON, DOT or CSV text"),
		mcp.WithString("name", mcp.Required(), mcp.Description("File name; the extension selects the format, e.g. deps.dot")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Graph file content")),
	)
}

func visibleTool() mcp.Tool {
	return mcp.NewTool("graphspace.visible",
		mcp.WithDescription("Return the visible subgraph after every active filter and search"),
	)
}

func exportTool() mcp.Tool {
	return mcp.NewTool("graphspace.export",
		mcp.WithDescription("Render the visible graph as JSON, DOT, Mermaid, text or an image"),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("json", "dot", "mermaid", "text", "png", "svg"),
			mcp.Description("Output format"),
		),
		mcp.WithString("scope", mcp.Enum("visible", "all"), mcp.Description("visible (default) or the full graph")),
	)
}

func selectTool() mcp.Tool {
	return mcp.NewTool("graphspace.select",
		mcp.WithDescription("Change the node selection"),
		mcp.WithString("mode", mcp.Required(),
			mcp.Enum("only", "add", "toggle", "clear", "connected"),
			mcp.Description("only selects one node, add extends, toggle flips, clear empties, connected adds neighbours"),
		),
		mcp.WithString("node_id", mcp.Description("Target node for only, add and toggle")),
	)
}

func configureTool() mcp.Tool {
	return mcp.NewTool("graphspace.configure",
		mcp.WithDescription("Collect parameters for an action, then execute it when the session finishes"),
		mcp.WithString("mode", mcp.Required(),
			mcp.Enum("start", "finish", "cancel", "status"),
			mcp.Description("start replaces any pending session; finish executes the pending action with params"),
		),
		mcp.WithString("action_id", mcp.Description("Action to configure, required for start")),
		mcp.WithObject("params", mcp.Description("Parameters for finish")),
	)
}
