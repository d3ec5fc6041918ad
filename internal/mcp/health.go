package mcp

import (
	"context"
	"time"

	"github.com/lukelzlz/nanobot/internal/config"
)

// StartHealthCheck launches the background loop that watches server
// health and reconnects dropped servers with exponential backoff.
func (c *Client) StartHealthCheck(ctx context.Context) {
	hc := c.cfg.HealthCheck
	if !hc.Enabled {
		c.logger.Info("MCP health check disabled")
		return
	}
	interval := hc.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	c.logger.Info("starting MCP health check", "interval", interval)

	c.healthWG.Add(1)
	go func() {
		defer c.healthWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.checkAndReconnect(ctx)
			}
		}
	}()
}

// WaitHealthCheck blocks until the health loop has exited.
func (c *Client) WaitHealthCheck() {
	c.healthWG.Wait()
}

func (c *Client) checkAndReconnect(ctx context.Context) {
	c.mu.Lock()
	var down []config.MCPServerConfig
	for name, cfg := range c.configs {
		if !cfg.Enabled {
			continue
		}
		transport, ok := c.transports[name]
		if !ok || !transport.Connected() {
			down = append(down, cfg)
		}
	}
	c.mu.Unlock()

	for _, cfg := range down {
		c.reconnectServer(ctx, cfg)
	}
}

// reconnectServer retries one server with delay base*2^attempts capped
// at the configured maximum. Attempts reset on success; after max
// attempts the server is given up on until the next manual connect.
func (c *Client) reconnectServer(ctx context.Context, cfg config.MCPServerConfig) {
	hc := c.cfg.HealthCheck

	c.mu.Lock()
	attempts := c.attempts[cfg.Name]
	if hc.ReconnectMaxAttempts > 0 && attempts >= hc.ReconnectMaxAttempts {
		c.mu.Unlock()
		c.logger.Warn("MCP server reconnection giving up",
			"server", cfg.Name, "attempts", attempts)
		return
	}
	c.attempts[cfg.Name] = attempts + 1
	c.mu.Unlock()

	base := hc.ReconnectBaseDelay
	if base <= 0 {
		base = time.Second
	}
	maxDelay := hc.ReconnectMaxDelay
	if maxDelay <= 0 {
		maxDelay = time.Minute
	}
	delay := base << uint(attempts)
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}

	c.logger.Info("attempting MCP server reconnect",
		"server", cfg.Name, "attempt", attempts+1, "delay", delay)

	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	c.mu.Lock()
	if old, ok := c.transports[cfg.Name]; ok {
		old.Close()
		delete(c.transports, cfg.Name)
	}
	c.mu.Unlock()

	transport, err := newTransport(cfg)
	if err != nil {
		c.logger.Error("MCP server reconnect failed", "server", cfg.Name, "error", err)
		return
	}
	if err := transport.Connect(ctx); err != nil {
		c.logger.Error("MCP server reconnect failed", "server", cfg.Name, "error", err)
		return
	}

	c.mu.Lock()
	c.transports[cfg.Name] = transport
	c.refreshCachesLocked(ctx, cfg.Name, transport)
	delete(c.attempts, cfg.Name)
	tools := c.tools[cfg.Name]
	callbacks := append([]ReconnectCallback(nil), c.callbacks...)
	c.mu.Unlock()

	c.logger.Info("reconnected MCP server", "server", cfg.Name)
	for _, cb := range callbacks {
		cb(cfg.Name, tools)
	}
}
