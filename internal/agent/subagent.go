package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/lukelzlz/nanobot/internal/bus"
)

// SubagentManager runs spawned background tasks. Each task is one direct
// agent turn in its own session; completion is announced back through the
// bus as a system-channel message so the parent conversation picks it up.
type SubagentManager struct {
	loop   *Loop
	bus    *bus.MessageBus
	logger *slog.Logger

	mu      sync.Mutex
	running map[string]string // id -> label

	wg sync.WaitGroup
}

// NewSubagentManager creates a manager bound to the given loop and bus.
func NewSubagentManager(loop *Loop, b *bus.MessageBus, logger *slog.Logger) *SubagentManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubagentManager{
		loop:    loop,
		bus:     b,
		logger:  logger.With("component", "subagent"),
		running: make(map[string]string),
	}
}

// Spawn starts a background task and returns its id immediately. The task
// runs in its own goroutine; the result is announced to the origin chat via
// a system message.
func (m *SubagentManager) Spawn(ctx context.Context, task, label, originChannel, originChatID string) (string, error) {
	if strings.TrimSpace(task) == "" {
		return "", fmt.Errorf("task must not be empty")
	}
	id := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	if label == "" {
		label = id
	}

	m.mu.Lock()
	m.running[id] = label
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.running, id)
			m.mu.Unlock()
		}()
		m.run(context.WithoutCancel(ctx), id, label, task, originChannel, originChatID)
	}()

	m.logger.Info("subagent spawned", "id", id, "label", label)
	return id, nil
}

// Running lists the in-flight task ids.
func (m *SubagentManager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	return ids
}

// Wait blocks until all spawned tasks finish.
func (m *SubagentManager) Wait() {
	m.wg.Wait()
}

func (m *SubagentManager) run(ctx context.Context, id, label, task, originChannel, originChatID string) {
	result, err := m.loop.ProcessDirect(ctx, task,
		fmt.Sprintf("subagent:%s", id), originChannel, originChatID)

	var content string
	if err != nil {
		m.logger.Error("subagent failed", "id", id, "error", err)
		content = fmt.Sprintf("Subagent '%s' failed: %v", label, err)
	} else {
		content = fmt.Sprintf("Subagent '%s' completed.\n\nResult:\n%s", label, result)
	}

	announce := bus.InboundMessage{
		Channel:  bus.ChannelSystem,
		SenderID: "subagent:" + label,
		ChatID:   originChannel + ":" + originChatID,
		Content:  content,
	}
	if err := m.bus.PublishInbound(ctx, announce); err != nil {
		m.logger.Error("subagent announce failed", "id", id, "error", err)
	}
}
