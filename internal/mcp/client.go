package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/lukelzlz/nanobot/internal/config"
)

// ReconnectCallback is invoked after a server comes back, so its tools
// can be re-registered.
type ReconnectCallback func(server string, tools []Tool)

// Client manages connections to multiple MCP servers. One mutex guards
// the (transports, tools, resources) triple so readers always observe a
// consistent view.
type Client struct {
	cfg    config.MCPConfig
	logger *slog.Logger

	mu         sync.Mutex
	transports map[string]Transport
	tools      map[string][]Tool
	resources  map[string][]Resource
	configs    map[string]config.MCPServerConfig
	attempts   map[string]int

	callbacks []ReconnectCallback
	healthWG  sync.WaitGroup
}

// NewClient creates an MCP client from config.
func NewClient(cfg config.MCPConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		logger:     logger.With("component", "mcp"),
		transports: make(map[string]Transport),
		tools:      make(map[string][]Tool),
		resources:  make(map[string][]Resource),
		configs:    make(map[string]config.MCPServerConfig),
		attempts:   make(map[string]int),
	}
}

// Connect establishes a connection to one server and caches its tool and
// resource listings. Listing failures are tolerated; the server stays
// connected with empty caches.
func (c *Client) Connect(ctx context.Context, serverCfg config.MCPServerConfig) error {
	if !serverCfg.Enabled {
		c.logger.Info("MCP server disabled, skipping", "server", serverCfg.Name)
		return nil
	}
	c.logger.Info("connecting to MCP server", "server", serverCfg.Name)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.configs[serverCfg.Name] = serverCfg
	if _, ok := c.transports[serverCfg.Name]; ok {
		c.logger.Warn("MCP server already connected", "server", serverCfg.Name)
		return nil
	}
	delete(c.attempts, serverCfg.Name)

	transport, err := newTransport(serverCfg)
	if err != nil {
		return fmt.Errorf("connect %s: %w", serverCfg.Name, err)
	}
	if err := transport.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s: %w", serverCfg.Name, err)
	}
	c.transports[serverCfg.Name] = transport
	c.refreshCachesLocked(ctx, serverCfg.Name, transport)
	return nil
}

// refreshCachesLocked re-lists tools and resources. Callers hold c.mu.
func (c *Client) refreshCachesLocked(ctx context.Context, name string, transport Transport) {
	tools, err := listTools(ctx, transport)
	if err != nil {
		c.logger.Warn("failed to list tools", "server", name, "error", err)
		tools = nil
	} else {
		c.logger.Info("MCP server provides tools", "server", name, "count", len(tools))
	}
	c.tools[name] = tools

	resources, err := listResources(ctx, transport)
	if err != nil {
		c.logger.Warn("failed to list resources", "server", name, "error", err)
		resources = nil
	} else {
		c.logger.Info("MCP server provides resources", "server", name, "count", len(resources))
	}
	c.resources[name] = resources
}

// Disconnect tears down one server connection.
func (c *Client) Disconnect(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if transport, ok := c.transports[name]; ok {
		c.logger.Info("disconnecting from MCP server", "server", name)
		transport.Close()
		delete(c.transports, name)
		delete(c.tools, name)
		delete(c.resources, name)
	}
}

// DisconnectAll tears down every connection.
func (c *Client) DisconnectAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, transport := range c.transports {
		transport.Close()
		delete(c.transports, name)
	}
	c.tools = make(map[string][]Tool)
	c.resources = make(map[string][]Resource)
}

// CachedTools returns the cached tool list for a server.
func (c *Client) CachedTools(server string) []Tool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tools[server]
}

// CachedResources returns the cached resource list for a server.
func (c *Client) CachedResources(server string) []Resource {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resources[server]
}

// CallTool invokes a tool on a server and coerces the content blocks
// into a single string. Transport failures come back as error strings,
// never as panics into the agent loop.
func (c *Client) CallTool(ctx context.Context, server, name string, args map[string]any) string {
	c.mu.Lock()
	transport, ok := c.transports[server]
	c.mu.Unlock()
	if !ok {
		return fmt.Sprintf("Error: MCP server %s not connected", server)
	}

	raw, err := transport.Call(ctx, "tools/call", callToolParams{Name: name, Arguments: args})
	if err != nil {
		c.logger.Error("tool call failed", "server", server, "tool", name, "error", err)
		return fmt.Sprintf("Error: %v", err)
	}
	var result CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return CoerceContent(result.Content)
}

// ReadResource reads one resource from a server.
func (c *Client) ReadResource(ctx context.Context, server, uri string) string {
	c.mu.Lock()
	transport, ok := c.transports[server]
	c.mu.Unlock()
	if !ok {
		return fmt.Sprintf("Error: MCP server %s not connected", server)
	}

	raw, err := transport.Call(ctx, "resources/read", readResourceParams{URI: uri})
	if err != nil {
		c.logger.Error("resource read failed", "server", server, "uri", uri, "error", err)
		return fmt.Sprintf("Error: %v", err)
	}
	var result readResourceResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	var parts []string
	for _, block := range result.Contents {
		if block.Type == "text" || block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ServerNames returns the connected server names.
func (c *Client) ServerNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.transports))
	for name := range c.transports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsConnected reports whether a server's transport is usable.
func (c *Client) IsConnected(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	transport, ok := c.transports[name]
	return ok && transport.Connected()
}

// Health maps each known server to its current transport health.
func (c *Client) Health() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]bool, len(c.transports))
	for name, transport := range c.transports {
		out[name] = transport.Connected()
	}
	return out
}

// StatusSummary renders server status for the agent context.
func (c *Client) StatusSummary() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.transports) == 0 {
		return ""
	}

	names := make([]string, 0, len(c.transports))
	for name := range c.transports {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := []string{"## MCP Servers"}
	for _, name := range names {
		status := "✗"
		if t := c.transports[name]; t != nil && t.Connected() {
			status = "✓"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", name, status))

		tools := c.tools[name]
		if len(tools) > 0 {
			shown := tools
			if len(shown) > 5 {
				shown = shown[:5]
			}
			toolNames := make([]string, len(shown))
			for i, t := range shown {
				toolNames[i] = t.Name
			}
			lines = append(lines, fmt.Sprintf("  Tools: %s", strings.Join(toolNames, ", ")))
			if len(tools) > 5 {
				lines = append(lines, fmt.Sprintf("    ... and %d more", len(tools)-5))
			}
		}
		if n := len(c.resources[name]); n > 0 {
			lines = append(lines, fmt.Sprintf("  Resources: %d available", n))
		}
	}
	return strings.Join(lines, "\n")
}

// OnReconnect registers a callback invoked after a successful reconnect.
func (c *Client) OnReconnect(cb ReconnectCallback) {
	c.mu.Lock()
	c.callbacks = append(c.callbacks, cb)
	c.mu.Unlock()
}

func listTools(ctx context.Context, t Transport) ([]Tool, error) {
	raw, err := t.Call(ctx, "tools/list", struct{}{})
	if err != nil {
		return nil, err
	}
	var result listToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

func listResources(ctx context.Context, t Transport) ([]Resource, error) {
	raw, err := t.Call(ctx, "resources/list", struct{}{})
	if err != nil {
		return nil, err
	}
	var result listResourcesResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return result.Resources, nil
}
