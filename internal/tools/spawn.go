package tools

import (
	"context"
	"encoding/json"
	"sync"
)

// Spawner starts a background agent task. The result is announced back to
// the originating chat as a system message once the task finishes.
type Spawner interface {
	Spawn(ctx context.Context, task, label, originChannel, originChatID string) (string, error)
}

// SpawnTool hands long-running work to a background subagent so the main
// loop stays responsive.
type SpawnTool struct {
	Manager Spawner

	mu      sync.Mutex
	channel string
	chatID  string
}

type spawnArgs struct {
	Task  string `json:"task" jsonschema:"description=The task for the subagent to perform"`
	Label string `json:"label,omitempty" jsonschema:"description=Optional short label for the task"`
}

// SetContext records where the subagent's result should be announced.
func (t *SpawnTool) SetContext(channel, chatID string) {
	t.mu.Lock()
	t.channel = channel
	t.chatID = chatID
	t.mu.Unlock()
}

func (t *SpawnTool) Name() string { return "spawn" }

func (t *SpawnTool) Description() string {
	return "Spawn a background subagent to work on a task. The result is announced back to this chat when done."
}

func (t *SpawnTool) Parameters() json.RawMessage {
	return reflectSchema(spawnArgs{})
}

func (t *SpawnTool) Execute(ctx context.Context, args map[string]any) string {
	var a spawnArgs
	if err := decodeArgs(args, &a); err != nil {
		return errorf("invalid arguments: %v", err)
	}
	if a.Task == "" {
		return "Error: 'task' parameter is required"
	}

	t.mu.Lock()
	channel, chatID := t.channel, t.chatID
	t.mu.Unlock()

	id, err := t.Manager.Spawn(ctx, a.Task, a.Label, channel, chatID)
	if err != nil {
		return errorf("spawning subagent: %v", err)
	}
	return "Spawned subagent " + id + ". I'll report back when it finishes."
}
