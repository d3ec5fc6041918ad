package mcp

import (
	"context"
	"encoding/json"
)

// ToolAdapter exposes one remote MCP tool through the native tool
// interface. The registry name is "<server>_<tool>" so tools from
// different servers cannot collide.
type ToolAdapter struct {
	server string
	tool   Tool
	client *Client
}

// NewToolAdapter wraps an MCP tool definition for the tool registry.
func NewToolAdapter(server string, tool Tool, client *Client) *ToolAdapter {
	return &ToolAdapter{server: server, tool: tool, client: client}
}

func (a *ToolAdapter) Name() string {
	return a.server + "_" + a.tool.Name
}

func (a *ToolAdapter) Description() string {
	return "[" + a.server + "] " + a.tool.Description
}

func (a *ToolAdapter) Parameters() json.RawMessage {
	if len(a.tool.InputSchema) == 0 {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return a.tool.InputSchema
}

// Execute calls through to the server. Failures come back as error
// strings; nothing raises into the agent loop.
func (a *ToolAdapter) Execute(ctx context.Context, args map[string]any) string {
	return a.client.CallTool(ctx, a.server, a.tool.Name, args)
}

// Server returns the MCP server providing this tool.
func (a *ToolAdapter) Server() string { return a.server }

// OriginalName returns the tool name as reported by the server.
func (a *ToolAdapter) OriginalName() string { return a.tool.Name }
