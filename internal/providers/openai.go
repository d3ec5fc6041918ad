package providers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider speaks the OpenAI-compatible chat completion API. A custom
// base URL covers OpenRouter, vLLM, and Zhipu deployments with the same
// adapter.
type OpenAIProvider struct {
	client       *openai.Client
	name         string
	defaultModel string
	openRouter   bool
}

// NewOpenAIProvider creates an adapter for the given API key and optional
// base URL. An empty key yields a provider that errors on Chat, which allows
// delayed configuration.
func NewOpenAIProvider(apiKey, baseURL, defaultModel string) *OpenAIProvider {
	p := &OpenAIProvider{
		name:         "openai",
		defaultModel: defaultModel,
		openRouter: strings.HasPrefix(apiKey, "sk-or-") ||
			strings.Contains(baseURL, "openrouter"),
	}
	if p.openRouter {
		p.name = "openrouter"
	}
	if apiKey == "" && baseURL == "" {
		return p
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	p.client = openai.NewClientWithConfig(cfg)
	return p
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string { return p.name }

// Chat sends a non-streaming chat completion request.
func (p *OpenAIProvider) Chat(ctx context.Context, req *Request) (*Response, error) {
	if p.client == nil {
		return nil, errors.New("openai provider is not configured")
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    p.convertMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = p.convertTools(req.Tools)
		chatReq.ToolChoice = "auto"
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return ErrorResponse(err), nil
	}
	if len(resp.Choices) == 0 {
		return &Response{FinishReason: "stop"}, nil
	}
	return p.parseChoice(resp), nil
}

func (p *OpenAIProvider) parseChoice(resp openai.ChatCompletionResponse) *Response {
	choice := resp.Choices[0]
	out := &Response{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if out.FinishReason == "" {
		out.FinishReason = "stop"
	}
	for _, tc := range choice.Message.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				args = map[string]any{"raw": tc.Function.Arguments}
			}
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return out
}

func (p *OpenAIProvider) convertMessages(messages []Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{Role: msg.Role}

		if len(msg.Parts) > 0 {
			parts := make([]openai.ChatMessagePart, 0, len(msg.Parts))
			for _, part := range msg.Parts {
				switch part.Type {
				case "image_url":
					parts = append(parts, openai.ChatMessagePart{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: part.ImageURL},
					})
				default:
					parts = append(parts, openai.ChatMessagePart{
						Type: openai.ChatMessagePartTypeText,
						Text: part.Text,
					})
				}
			}
			oaiMsg.MultiContent = parts
		} else {
			oaiMsg.Content = msg.Content
		}

		if msg.Role == RoleTool {
			oaiMsg.ToolCallID = msg.ToolCallID
			oaiMsg.Name = msg.Name
		}
		for _, tc := range msg.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.ArgumentsJSON(),
				},
			})
		}
		result = append(result, oaiMsg)
	}
	return result
}

func (p *OpenAIProvider) convertTools(tools []ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		var schema map[string]any
		if err := json.Unmarshal(tool.Parameters, &schema); err != nil || schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schema,
			},
		}
	}
	return result
}

// SupportsVision reports vision capability from model-name conventions.
func (p *OpenAIProvider) SupportsVision(model string) bool {
	if model == "" {
		model = p.defaultModel
	}
	return modelSupportsVision(model, p.openRouter)
}
