package tools

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/lukelzlz/nanobot/internal/bus"
)

// MessageTool sends a message to the current chat mid-turn, before the
// final response. The agent loop points it at the active conversation
// with SetContext before each turn.
type MessageTool struct {
	Publish func(ctx context.Context, msg bus.OutboundMessage) error

	mu      sync.Mutex
	channel string
	chatID  string
}

type messageArgs struct {
	Content string `json:"content" jsonschema:"description=The message text to send"`
	Channel string `json:"channel,omitempty" jsonschema:"description=Optional channel override"`
	ChatID  string `json:"chat_id,omitempty" jsonschema:"description=Optional chat ID override"`
}

// SetContext routes subsequent sends to the given conversation.
func (t *MessageTool) SetContext(channel, chatID string) {
	t.mu.Lock()
	t.channel = channel
	t.chatID = chatID
	t.mu.Unlock()
}

func (t *MessageTool) Name() string { return "message" }

func (t *MessageTool) Description() string {
	return "Send a message to the user on the current channel. Use this for progress updates during long tasks."
}

func (t *MessageTool) Parameters() json.RawMessage {
	return reflectSchema(messageArgs{})
}

func (t *MessageTool) Execute(ctx context.Context, args map[string]any) string {
	var a messageArgs
	if err := decodeArgs(args, &a); err != nil {
		return errorf("invalid arguments: %v", err)
	}
	if a.Content == "" {
		return "Error: 'content' parameter is required"
	}

	t.mu.Lock()
	channel, chatID := t.channel, t.chatID
	t.mu.Unlock()
	if a.Channel != "" {
		channel = a.Channel
	}
	if a.ChatID != "" {
		chatID = a.ChatID
	}
	if channel == "" || chatID == "" {
		return "Error: no active chat to send to"
	}

	if err := t.Publish(ctx, bus.OutboundMessage{
		Channel: channel,
		ChatID:  chatID,
		Content: a.Content,
	}); err != nil {
		return errorf("sending message: %v", err)
	}
	return "Message sent."
}
