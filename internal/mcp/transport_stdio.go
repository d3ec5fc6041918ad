package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/lukelzlz/nanobot/internal/config"
)

const terminateGrace = 5 * time.Second

// stdioTransport spawns the server as a subprocess and exchanges
// newline-delimited JSON-RPC messages over its stdin/stdout. Responses
// are matched to requests through a pending map keyed by request id.
type stdioTransport struct {
	cfg    config.MCPServerConfig
	logger *slog.Logger

	process *exec.Cmd
	stdin   io.WriteCloser
	stderr  io.ReadCloser

	pending   map[int64]chan *JSONRPCResponse
	pendingMu sync.Mutex
	nextID    atomic.Int64

	connected atomic.Bool
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func newStdioTransport(cfg config.MCPServerConfig) *stdioTransport {
	return &stdioTransport{
		cfg:      cfg,
		logger:   slog.Default().With("component", "mcp", "server", cfg.Name, "transport", "stdio"),
		pending:  make(map[int64]chan *JSONRPCResponse),
		stopChan: make(chan struct{}),
	}
}

func (t *stdioTransport) Connect(ctx context.Context) error {
	t.process = exec.Command(t.cfg.Command, t.cfg.Args...)
	t.process.Env = sanitizeEnv(t.cfg.Env, t.logger)

	var err error
	t.stdin, err = t.process.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := t.process.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	t.stderr, _ = t.process.StderrPipe()

	if err := t.process.Start(); err != nil {
		return fmt.Errorf("start process: %w", err)
	}
	t.connected.Store(true)
	t.logger.Info("started MCP server process",
		"command", t.cfg.Command, "pid", t.process.Process.Pid)

	t.wg.Add(1)
	go t.readLoop(stdout)

	if t.stderr != nil {
		t.wg.Add(1)
		go t.logStderr()
	}

	if err := initialize(ctx, t); err != nil {
		t.Close()
		return err
	}
	return nil
}

// Close terminates the subprocess: SIGTERM, then SIGKILL after a grace
// period. All pending calls fail with a connection-closed error.
func (t *stdioTransport) Close() error {
	t.connected.Store(false)
	t.stopOnce.Do(func() { close(t.stopChan) })

	if t.stdin != nil {
		t.stdin.Close()
	}
	if t.process != nil && t.process.Process != nil {
		t.process.Process.Signal(syscall.SIGTERM)
		done := make(chan struct{})
		go func() {
			t.process.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(terminateGrace):
			t.process.Process.Kill()
			<-done
		}
	}

	t.failPending("Connection closed")
	t.wg.Wait()
	return nil
}

func (t *stdioTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.connected.Load() {
		return nil, fmt.Errorf("not connected")
	}

	id := t.nextID.Add(1)
	req := JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = data
	}

	respChan := make(chan *JSONRPCResponse, 1)
	t.pendingMu.Lock()
	t.pending[id] = respChan
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
	}()

	data, _ := json.Marshal(req)
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	timeout := t.cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-respChan:
		if resp.Error != nil {
			return nil, fmt.Errorf("%s", resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("Request timeout")
	case <-t.stopChan:
		return nil, fmt.Errorf("Connection closed")
	}
}

func (t *stdioTransport) Notify(_ context.Context, method string, params any) error {
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
	data, _ := json.Marshal(notif)
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write notification: %w", err)
	}
	return nil
}

func (t *stdioTransport) Connected() bool {
	return t.connected.Load()
}

// readLoop reads one JSON-RPC message per line and completes the
// matching pending call. EOF fails everything still in flight.
func (t *stdioTransport) readLoop(stdout io.Reader) {
	defer t.wg.Done()
	defer t.connected.Store(false)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-t.stopChan:
			return
		default:
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp JSONRPCResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			t.logger.Error("failed to parse JSON-RPC message", "error", err)
			continue
		}
		if resp.ID == nil {
			// Notification from the server; nothing consumes these yet.
			continue
		}

		var id int64
		switch v := resp.ID.(type) {
		case float64:
			id = int64(v)
		case int64:
			id = v
		default:
			t.logger.Warn("unexpected response ID type", "id", resp.ID)
			continue
		}

		t.pendingMu.Lock()
		if ch, ok := t.pending[id]; ok {
			select {
			case ch <- &resp:
			default:
			}
			delete(t.pending, id)
		}
		t.pendingMu.Unlock()
	}

	t.failPending("Connection closed")
}

func (t *stdioTransport) failPending(msg string) {
	t.pendingMu.Lock()
	for id, ch := range t.pending {
		select {
		case ch <- &JSONRPCResponse{Error: &JSONRPCError{Message: msg}}:
		default:
		}
		delete(t.pending, id)
	}
	t.pendingMu.Unlock()
}

func (t *stdioTransport) logStderr() {
	defer t.wg.Done()
	scanner := bufio.NewScanner(t.stderr)
	for scanner.Scan() {
		select {
		case <-t.stopChan:
			return
		default:
		}
		if line := scanner.Text(); line != "" {
			t.logger.Debug("server stderr", "message", line)
		}
	}
}
