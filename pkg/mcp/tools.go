package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// handleActions lists the visible palette actions.
func (s *GraphspaceServer) handleActions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reg := s.ws.Registry()
	if req.GetBool("tree", false) {
		return marshalResult(map[string]any{"actions": reg.Tree(ctx)})
	}
	if q := req.GetString("query", ""); q != "" {
		return marshalResult(map[string]any{"actions": reg.Search(ctx, q)})
	}
	return marshalResult(map[string]any{"actions": reg.Infos(ctx)})
}

// handleExecute runs an action.
func (s *GraphspaceServer) handleExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actionID, err := req.RequireString("action_id")
	if err != nil {
		return mcp.NewToolResultError("action_id is required"), nil
	}
	if clientID := req.GetString("client_id", ""); clientID != "" {
		s.captureSession(ctx, clientID)
	}
	params := mcp.ParseStringMap(req, "params", nil)

	inst, execErr := s.ws.Engine().Execute(ctx, actionID, params)
	if execErr != nil {
		return toolError("execute", execErr), nil
	}
	return marshalResult(inst)
}

// handleUpdateInstance re-runs an instance with new params.
func (s *GraphspaceServer) handleUpdateInstance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instanceID, err := req.RequireString("instance_id")
	if err != nil {
		return mcp.NewToolResultError("instance_id is required"), nil
	}
	params := mcp.ParseStringMap(req, "params", nil)

	inst, updErr := s.ws.Engine().UpdateInstance(ctx, instanceID, params)
	if updErr != nil {
		return toolError("update instance", updErr), nil
	}
	return marshalResult(inst)
}

// handleRemoveInstance drops an instance.
func (s *GraphspaceServer) handleRemoveInstance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instanceID, err := req.RequireString("instance_id")
	if err != nil {
		return mcp.NewToolResultError("instance_id is required"), nil
	}
	removed := s.ws.Engine().RemoveInstance(ctx, instanceID)
	return marshalResult(map[string]any{
		"removed":     removed,
		"instance_id": instanceID,
	})
}

// handleInstances lists live instances.
func (s *GraphspaceServer) handleInstances(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	eng := s.ws.Engine()
	if actionID := req.GetString("action_id", ""); actionID != "" {
		return marshalResult(map[string]any{"instances": eng.InstancesOf(actionID)})
	}
	return marshalResult(map[string]any{"instances": eng.Instances()})
}

// handleLoadGraph replaces the graph.
func (s *GraphspaceServer) handleLoadGraph(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required"), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError("content is required"), nil
	}

	if loadErr := s.ws.LoadGraph(ctx, name, content); loadErr != nil {
		return toolError("load graph", loadErr), nil
	}
	g := s.ws.Graph()
	nodes, edges := g.Counts()
	visible := s.ws.Visible()
	return marshalResult(map[string]any{
		"name":          g.Name(),
		"nodes":         nodes,
		"edges":         edges,
		"visible_nodes": len(visible.NodeIDs),
		"visible_edges": len(visible.EdgeIDs),
	})
}

// handleVisible returns the visible subgraph.
func (s *GraphspaceServer) handleVisible(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return marshalResult(s.ws.Visible())
}

// handleExport renders the graph in the requested format.
func (s *GraphspaceServer) handleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	visibleOnly := req.GetString("scope", "visible") != "all"

	data, mediaType, expErr := s.ws.Export(ctx, format, visibleOnly)
	if expErr != nil {
		return toolError("export", expErr), nil
	}
	if format == "png" {
		return mcp.NewToolResultImage("graph diagram", base64.StdEncoding.EncodeToString(data), mediaType), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleSelect changes the node selection.
func (s *GraphspaceServer) handleSelect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mode, err := req.RequireString("mode")
	if err != nil {
		return mcp.NewToolResultError("mode is required"), nil
	}
	sel := s.ws.Selection()
	nodeID := req.GetString("node_id", "")

	switch mode {
	case "clear":
		sel.Clear(ctx)
	case "connected":
		sel.SelectConnectedNodes(ctx)
	case "only", "add", "toggle":
		if nodeID == "" {
			return mcp.NewToolResultError("node_id is required for mode " + mode), nil
		}
		if !s.ws.Graph().HasNode(nodeID) {
			return mcp.NewToolResultError(fmt.Sprintf("node %q not found", nodeID)), nil
		}
		switch mode {
		case "only":
			sel.SelectNode(ctx, nodeID, true)
		case "add":
			sel.SelectNode(ctx, nodeID, false)
		default:
			sel.ToggleNode(ctx, nodeID)
		}
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown mode %q", mode)), nil
	}
	return marshalResult(sel.Snapshot())
}

// handleConfigure drives the configuration session: start collecting
// parameters for an action, finish it (executing the action), cancel it, or
// report what is pending.
func (s *GraphspaceServer) handleConfigure(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mode, err := req.RequireString("mode")
	if err != nil {
		return mcp.NewToolResultError("mode is required"), nil
	}

	switch mode {
	case "start":
		actionID, err := req.RequireString("action_id")
		if err != nil {
			return mcp.NewToolResultError("action_id is required for mode start"), nil
		}
		if cfgErr := s.ws.Configure(ctx, actionID); cfgErr != nil {
			return toolError("configure", cfgErr), nil
		}
		return marshalResult(map[string]any{"pending": true, "action_id": actionID})
	case "finish":
		params := mcp.ParseStringMap(req, "params", nil)
		inst, ok, finErr := s.ws.FinishConfiguration(ctx, params)
		if finErr != nil {
			return toolError("finish configuration", finErr), nil
		}
		return marshalResult(map[string]any{"finished": ok, "instance": inst})
	case "cancel":
		return marshalResult(map[string]any{"cancelled": s.ws.CancelConfiguration(ctx)})
	case "status":
		actionID, pending := s.ws.PendingConfiguration()
		return marshalResult(map[string]any{"pending": pending, "action_id": actionID})
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown mode %q", mode)), nil
	}
}

// --- Helpers ---

// captureSession maps the client ID to its current MCP session for notifications.
func (s *GraphspaceServer) captureSession(ctx context.Context, clientID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(clientID, session.SessionID())
	}
}

// toolError reports a failed operation. Domain errors carry their code in
// the message, e.g. "execute failed: [DISABLED] ...".
func toolError(op string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", op, err))
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
