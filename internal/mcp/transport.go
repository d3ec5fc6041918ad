package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lukelzlz/nanobot/internal/config"
)

// Transport carries JSON-RPC traffic to a single MCP server.
type Transport interface {
	// Connect establishes the transport and performs the MCP
	// initialize handshake.
	Connect(ctx context.Context) error

	// Close tears the transport down. Pending calls fail with a
	// connection-closed error.
	Close() error

	// Call sends a request and waits for its response.
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)

	// Notify sends a notification; no response is expected.
	Notify(ctx context.Context, method string, params any) error

	// Connected reports whether the transport is usable.
	Connected() bool
}

// newTransport builds a transport from a validated server config.
func newTransport(cfg config.MCPServerConfig) (Transport, error) {
	if err := ValidateServerConfig(cfg); err != nil {
		return nil, err
	}
	switch cfg.Transport {
	case "sse":
		return newSSETransport(cfg), nil
	case "stdio", "":
		return newStdioTransport(cfg), nil
	default:
		return nil, fmt.Errorf("unknown transport type: %s", cfg.Transport)
	}
}

// initialize runs the MCP handshake on a freshly connected transport.
func initialize(ctx context.Context, t Transport) error {
	params := initializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      clientInfo{Name: clientName, Version: clientVersion},
	}
	if _, err := t.Call(ctx, "initialize", params); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if err := t.Notify(ctx, "notifications/initialized", nil); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}
	return nil
}
