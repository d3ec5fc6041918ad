package providers

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider adapts the Anthropic Messages API. System prompts ride in
// a dedicated request field and tool results are delivered as user-role
// content blocks, so the generic message list is reshaped on the way in.
type AnthropicProvider struct {
	client       anthropic.Client
	configured   bool
	defaultModel string
}

// NewAnthropicProvider creates the adapter. An empty API key yields a
// provider that errors on Chat.
func NewAnthropicProvider(apiKey, baseURL, defaultModel string) *AnthropicProvider {
	p := &AnthropicProvider{defaultModel: defaultModel}
	if apiKey == "" {
		return p
	}
	options := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}
	p.client = anthropic.NewClient(options...)
	p.configured = true
	return p
}

// Name returns the provider identifier.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Chat sends a non-streaming Messages API request.
func (p *AnthropicProvider) Chat(ctx context.Context, req *Request) (*Response, error) {
	if !p.configured {
		return nil, errors.New("anthropic provider is not configured")
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  p.convertMessages(req.Messages),
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}
	if system := systemText(req.Messages); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		tools, err := p.convertTools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return ErrorResponse(err), nil
	}
	return p.parseMessage(msg), nil
}

func (p *AnthropicProvider) parseMessage(msg *anthropic.Message) *Response {
	out := &Response{
		FinishReason: "stop",
		Usage: Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
	var text strings.Builder
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(variant.Text)
		case anthropic.ToolUseBlock:
			args := map[string]any{}
			if len(variant.Input) > 0 {
				if err := json.Unmarshal(variant.Input, &args); err != nil {
					args = map[string]any{"raw": string(variant.Input)}
				}
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        variant.ID,
				Name:      variant.Name,
				Arguments: args,
			})
		}
	}
	out.Content = text.String()
	if msg.StopReason == anthropic.StopReasonToolUse {
		out.FinishReason = "tool_calls"
	}
	return out
}

// convertMessages reshapes the generic list into Anthropic's alternating
// user/assistant form: system messages are skipped (handled in params.System)
// and consecutive tool results collapse into one user message.
func (p *AnthropicProvider) convertMessages(messages []Message) []anthropic.MessageParam {
	var result []anthropic.MessageParam
	var pendingToolResults []anthropic.ContentBlockParamUnion

	flushToolResults := func() {
		if len(pendingToolResults) > 0 {
			result = append(result, anthropic.NewUserMessage(pendingToolResults...))
			pendingToolResults = nil
		}
	}

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			continue
		case RoleTool:
			pendingToolResults = append(pendingToolResults,
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
			continue
		}
		flushToolResults()

		var content []anthropic.ContentBlockParamUnion
		if len(msg.Parts) > 0 {
			for _, part := range msg.Parts {
				switch part.Type {
				case "image_url":
					if mediaType, data, ok := splitDataURL(part.ImageURL); ok {
						content = append(content,
							anthropic.NewImageBlockBase64(mediaType, data))
					}
				default:
					if part.Text != "" {
						content = append(content, anthropic.NewTextBlock(part.Text))
					}
				}
			}
		} else if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		for _, tc := range msg.ToolCalls {
			args := tc.Arguments
			if args == nil {
				args = map[string]any{}
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, args, tc.Name))
		}
		if len(content) == 0 {
			continue
		}
		if msg.Role == RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	flushToolResults()
	return result
}

func (p *AnthropicProvider) convertTools(tools []ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Parameters, &schema); err != nil {
			return nil, errors.New("invalid tool schema for " + tool.Name + ": " + err.Error())
		}
		param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if param.OfTool == nil {
			return nil, errors.New("invalid tool schema for " + tool.Name)
		}
		param.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, param)
	}
	return result, nil
}

// SupportsVision reports vision capability from model-name conventions.
func (p *AnthropicProvider) SupportsVision(model string) bool {
	if model == "" {
		model = p.defaultModel
	}
	return modelSupportsVision(model, false)
}

// systemText collects the content of leading system messages.
func systemText(messages []Message) string {
	var parts []string
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			parts = append(parts, msg.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// splitDataURL decomposes "data:<mime>;base64,<data>" into its parts.
func splitDataURL(url string) (mediaType, data string, ok bool) {
	if !strings.HasPrefix(url, "data:") {
		return "", "", false
	}
	rest := strings.TrimPrefix(url, "data:")
	sep := strings.Index(rest, ";base64,")
	if sep < 0 {
		return "", "", false
	}
	return rest[:sep], rest[sep+len(";base64,"):], true
}

// MIMEFromPath resolves an image MIME type from a file extension.
func MIMEFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return ""
	}
}
