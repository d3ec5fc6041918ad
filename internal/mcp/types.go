// Package mcp provides a Model Context Protocol client. It connects to
// capability servers over stdio or SSE, caches their tool and resource
// listings, and exposes each remote tool through the native tool registry.
package mcp

import (
	"encoding/json"
	"fmt"
)

const (
	protocolVersion = "2024-11-05"
	clientName      = "nanobot"
	clientVersion   = "0.1.0"
)

// JSONRPCRequest is a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse is a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCNotification is a JSON-RPC 2.0 notification (no ID).
type JSONRPCNotification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCError is a JSON-RPC 2.0 error.
type JSONRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Tool is a tool definition as reported by an MCP server.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Resource is a resource definition as reported by an MCP server.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ContentBlock is one entry of a tools/call or resources/read result.
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	URI      string `json:"uri,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// CallToolResult holds the result of tools/call.
type CallToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

type listToolsResult struct {
	Tools []Tool `json:"tools"`
}

type listResourcesResult struct {
	Resources []Resource `json:"resources"`
}

type readResourceResult struct {
	Contents []ContentBlock `json:"contents"`
}

type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      clientInfo     `json:"clientInfo"`
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type readResourceParams struct {
	URI string `json:"uri"`
}

// CoerceContent folds content blocks into the single string fed back to
// the LLM. Unknown block types are skipped; empty content reads as
// success so the model does not retry a tool that worked.
func CoerceContent(blocks []ContentBlock) string {
	out := ""
	n := 0
	for _, b := range blocks {
		var part string
		switch b.Type {
		case "text":
			part = b.Text
		case "resource":
			part = fmt.Sprintf("[Resource: %s]", b.URI)
		case "image":
			mime := b.MimeType
			if mime == "" {
				mime = "image/png"
			}
			part = fmt.Sprintf("[Image: %s, %d chars]", mime, len(b.Data))
		default:
			continue
		}
		if n > 0 {
			out += "\n"
		}
		out += part
		n++
	}
	if n == 0 {
		return "Tool executed successfully"
	}
	return out
}
