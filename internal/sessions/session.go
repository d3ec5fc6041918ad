// Package sessions persists per-conversation LLM history. One JSON file per
// session key; the stored sequence is exactly the LLM-visible history.
package sessions

import (
	"time"

	"github.com/lukelzlz/nanobot/internal/providers"
)

// Session is one persistent conversation. The agent loop owns a session
// exclusively while processing a message.
type Session struct {
	Key       string              `json:"key"`
	Messages  []providers.Message `json:"messages"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// AppendUser appends a user message.
func (s *Session) AppendUser(content string) {
	s.append(providers.Message{Role: providers.RoleUser, Content: content})
}

// AppendAssistant appends an assistant message, optionally carrying tool
// calls. An empty content with tool calls is stored as "".
func (s *Session) AppendAssistant(content string, toolCalls []providers.ToolCall) {
	s.append(providers.Message{
		Role:      providers.RoleAssistant,
		Content:   content,
		ToolCalls: toolCalls,
	})
}

// AppendToolResult appends a tool-role message linked to its originating
// tool call.
func (s *Session) AppendToolResult(toolCallID, name, content string) {
	s.append(providers.Message{
		Role:       providers.RoleTool,
		Content:    content,
		ToolCallID: toolCallID,
		Name:       name,
	})
}

// History returns the stored message sequence.
func (s *Session) History() []providers.Message {
	return s.Messages
}

// SetHistory replaces the stored sequence (summarization rewrite).
func (s *Session) SetHistory(messages []providers.Message) {
	s.Messages = messages
	s.UpdatedAt = time.Now()
}

func (s *Session) append(msg providers.Message) {
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now()
}
