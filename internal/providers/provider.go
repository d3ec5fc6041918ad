// Package providers adapts LLM vendor SDKs to the single chat interface the
// agent loop consumes. Adapters never surface transport failures as errors:
// a failed call yields a Response whose Content carries the error text and
// whose FinishReason is "error", which the loop treats as terminal text.
package providers

import (
	"context"
	"encoding/json"
)

// Role constants for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ContentPart is one element of a multi-part user message (vision input).
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// ToolCall is an LLM-emitted instruction to invoke a registered tool.
// Arguments are JSON strings on the wire but are parsed to maps before the
// loop dispatches them.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ArgumentsJSON renders the arguments as the wire-level JSON string.
func (tc ToolCall) ArgumentsJSON() string {
	if tc.Arguments == nil {
		return "{}"
	}
	data, err := json.Marshal(tc.Arguments)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Message is one LLM-visible chat message. Content holds the plain-text body;
// Parts, when non-empty, replaces it with multi-part content on the wire.
type Message struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	Parts      []ContentPart `json:"parts,omitempty"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	Name       string        `json:"name,omitempty"`
}

// ToolDefinition describes a callable tool in provider-neutral form.
// Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Request is a single chat completion request.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature float32
}

// Usage reports token accounting when the vendor returns it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the provider-neutral completion result.
type Response struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        Usage
}

// HasToolCalls reports whether the model requested tool execution.
func (r *Response) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// ErrorResponse wraps a failure into the terminal-text convention.
func ErrorResponse(err error) *Response {
	return &Response{
		Content:      "Error calling LLM: " + err.Error(),
		FinishReason: "error",
	}
}

// Provider is the interface the agent loop and summarizer call.
type Provider interface {
	// Name returns the stable lowercase provider identifier.
	Name() string

	// Chat sends one completion request. Transport and vendor failures are
	// folded into the Response per the error-as-content convention; a non-nil
	// error indicates a misconfigured provider.
	Chat(ctx context.Context, req *Request) (*Response, error)

	// SupportsVision reports whether the model accepts image input.
	SupportsVision(model string) bool
}
