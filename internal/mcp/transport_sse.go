package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lukelzlz/nanobot/internal/config"
)

// sseTransport talks to an HTTP-hosted MCP server. Requests are plain
// JSON-RPC POSTs against a discovered endpoint; the common endpoint
// paths are probed at connect time.
type sseTransport struct {
	cfg    config.MCPServerConfig
	logger *slog.Logger
	client *http.Client

	baseURL   string
	endpoint  string
	nextID    atomic.Int64
	connected atomic.Bool
}

func newSSETransport(cfg config.MCPServerConfig) *sseTransport {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &sseTransport{
		cfg:     cfg,
		logger:  slog.Default().With("component", "mcp", "server", cfg.Name, "transport", "sse"),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
	}
}

func (t *sseTransport) Connect(ctx context.Context) error {
	t.discoverEndpoint(ctx)
	t.connected.Store(true)
	t.logger.Info("SSE transport ready", "endpoint", t.endpoint)
	return nil
}

// discoverEndpoint probes the usual MCP endpoint paths and keeps the
// first one that answers 200. Nothing answering defaults to /mcp.
func (t *sseTransport) discoverEndpoint(ctx context.Context) {
	for _, path := range []string{"/mcp", "/sse", "/"} {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+path, nil)
		if err != nil {
			continue
		}
		resp, err := t.client.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			t.endpoint = t.baseURL + path
			return
		}
	}
	t.endpoint = t.baseURL + "/mcp"
}

func (t *sseTransport) Close() error {
	t.connected.Store(false)
	t.endpoint = ""
	return nil
}

func (t *sseTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.connected.Load() {
		return nil, fmt.Errorf("not connected")
	}

	req := JSONRPCRequest{JSONRPC: "2.0", ID: t.nextID.Add(1), Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = data
	}
	body, _ := json.Marshal(req)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("Request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	var rpcResp JSONRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("%s", rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

func (t *sseTransport) Notify(ctx context.Context, method string, params any) error {
	if !t.connected.Load() {
		return fmt.Errorf("not connected")
	}
	notif := JSONRPCNotification{JSONRPC: "2.0", Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		notif.Params = data
	}
	body, _ := json.Marshal(notif)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("Request error: %w", err)
	}
	resp.Body.Close()
	return nil
}

func (t *sseTransport) Connected() bool {
	return t.connected.Load()
}
