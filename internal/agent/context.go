package agent

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lukelzlz/nanobot/internal/config"
	"github.com/lukelzlz/nanobot/internal/mcp"
	"github.com/lukelzlz/nanobot/internal/memory"
	"github.com/lukelzlz/nanobot/internal/providers"
	"github.com/lukelzlz/nanobot/internal/skills"
)

// bootstrapFiles are loaded from the workspace root into the system prompt,
// in this order, each prefixed with its filename as an H2.
var bootstrapFiles = []string{"AGENTS.md", "SOUL.md", "USER.md", "TOOLS.md", "IDENTITY.md"}

const memoryDays = 3

// ContextBuilder assembles the LLM input: system prompt from workspace
// documents, processed history, and the current user content.
type ContextBuilder struct {
	workspace string
	memory    *memory.Store
	skills    *skills.Loader
	mcp       *mcp.Client
	sumCfg    config.SummarizationConfig

	summarizer *Summarizer

	mu          sync.Mutex
	summarizing map[string]struct{}
}

// NewContextBuilder creates a builder for the given workspace. mcpClient may
// be nil when MCP is disabled.
func NewContextBuilder(workspace string, mcpClient *mcp.Client, sumCfg config.SummarizationConfig) *ContextBuilder {
	return &ContextBuilder{
		workspace:   workspace,
		memory:      memory.NewStore(workspace),
		skills:      skills.NewLoader(workspace, ""),
		mcp:         mcpClient,
		sumCfg:      sumCfg,
		summarizing: make(map[string]struct{}),
	}
}

// Skills exposes the loader for reload diffing.
func (b *ContextBuilder) Skills() *skills.Loader { return b.skills }

// SetSummarizer installs the conversation summarizer.
func (b *ContextBuilder) SetSummarizer(s *Summarizer) {
	b.summarizer = s
}

// BuildSystemPrompt concatenates identity, bootstrap files, memory, active
// skills, and the skills catalogue, separated by horizontal rules.
func (b *ContextBuilder) BuildSystemPrompt() string {
	parts := []string{b.identity()}

	if bootstrap := b.loadBootstrapFiles(); bootstrap != "" {
		parts = append(parts, bootstrap)
	}
	if mem := b.memory.Context(memoryDays); mem != "" {
		parts = append(parts, mem)
	}

	if always := b.skills.AlwaysSkills(); len(always) > 0 {
		if content := b.skills.LoadForContext(always); content != "" {
			parts = append(parts, "# Active Skills\n\n"+content)
		}
	}

	var mcpStatus map[string]bool
	if b.mcp != nil {
		mcpStatus = b.mcp.Health()
	}
	if summary := b.skills.Summary(mcpStatus); summary != "" {
		parts = append(parts, fmt.Sprintf(`# Skills

The following skills extend your capabilities. To use a skill, read its SKILL.md file using the read_file tool.
Skills with available="false" need dependencies installed first - you can try installing them with apt/brew.

%s`, summary))
	}

	return strings.Join(parts, "\n\n---\n\n")
}

func (b *ContextBuilder) identity() string {
	now := time.Now().Format("2006-01-02 15:04 (Monday)")
	workspace := b.workspace
	if abs, err := filepath.Abs(workspace); err == nil {
		workspace = abs
	}

	return fmt.Sprintf(`# nanobot 🐈

You are nanobot, a helpful AI assistant. You have access to tools that allow you to:
- Read, write, and edit files
- Execute shell commands
- Search the web and fetch web pages
- Send messages to users on chat channels
- Spawn subagents for complex background tasks

## Current Time
%s

## Workspace
Your workspace is at: %s
- Memory files: %s/memory/MEMORY.md
- Daily notes: %s/memory/YYYY-MM-DD.md
- Custom skills: %s/skills/{skill-name}/SKILL.md

IMPORTANT: When responding to direct questions or conversations, reply directly with your text response.
Only use the 'message' tool when you need to send a message to a specific chat channel (like WhatsApp).
For normal conversation, just respond with text - do not call the message tool.

Always be helpful, accurate, and concise. When using tools, explain what you're doing.
When remembering something, write to %s/memory/MEMORY.md`,
		now, workspace, workspace, workspace, workspace, workspace)
}

func (b *ContextBuilder) loadBootstrapFiles() string {
	var parts []string
	for _, name := range bootstrapFiles {
		data, err := os.ReadFile(filepath.Join(b.workspace, name))
		if err != nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("## %s\n\n%s", name, string(data)))
	}
	return strings.Join(parts, "\n\n")
}

// BuildMessages produces the full LLM message list: system prompt, the
// (possibly summarized) history, and the current user message.
func (b *ContextBuilder) BuildMessages(ctx context.Context, history []providers.Message, current string, media []string, supportsVision bool, sessionKey string) []providers.Message {
	messages := []providers.Message{
		{Role: providers.RoleSystem, Content: b.BuildSystemPrompt()},
	}
	messages = append(messages, b.maybeSummarize(ctx, history, sessionKey)...)
	messages = append(messages, b.buildUserMessage(current, media, supportsVision))
	return messages
}

// buildUserMessage attaches images as base64 data URLs when the provider
// supports vision. Non-image and unreadable paths are dropped silently.
func (b *ContextBuilder) buildUserMessage(text string, media []string, supportsVision bool) providers.Message {
	msg := providers.Message{Role: providers.RoleUser, Content: text}
	if len(media) == 0 || !supportsVision {
		return msg
	}

	var parts []providers.ContentPart
	for _, path := range media {
		mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
		if !strings.HasPrefix(mimeType, "image/") {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		parts = append(parts, providers.ContentPart{
			Type: "image_url",
			ImageURL: fmt.Sprintf("data:%s;base64,%s",
				mimeType, base64.StdEncoding.EncodeToString(data)),
		})
	}
	if len(parts) == 0 {
		return msg
	}
	msg.Parts = append(parts, providers.ContentPart{Type: "text", Text: text})
	return msg
}

// maybeSummarize compresses the history when it exceeds the trigger
// threshold. A session already mid-summarization returns unchanged.
func (b *ContextBuilder) maybeSummarize(ctx context.Context, history []providers.Message, sessionKey string) []providers.Message {
	if !b.sumCfg.Enabled || b.summarizer == nil {
		return history
	}

	if sessionKey != "" {
		b.mu.Lock()
		if _, busy := b.summarizing[sessionKey]; busy {
			b.mu.Unlock()
			return history
		}
		b.summarizing[sessionKey] = struct{}{}
		b.mu.Unlock()
		defer func() {
			b.mu.Lock()
			delete(b.summarizing, sessionKey)
			b.mu.Unlock()
		}()
	}

	if !b.summarizer.ShouldSummarize(history, b.sumCfg.ThresholdLow, b.sumCfg.ThresholdHigh) {
		return history
	}

	t1, t2 := thresholds(b.sumCfg.ThresholdLow, b.sumCfg.ThresholdHigh)
	preserved, tailTokens := preservedTail(history, t1)
	preservedSet := make(map[int]struct{}, len(preserved))
	for _, i := range preserved {
		preservedSet[i] = struct{}{}
	}

	var compress []providers.Message
	for i, msg := range history {
		if msg.Role == providers.RoleTool {
			continue
		}
		if _, keep := preservedSet[i]; keep {
			continue
		}
		compress = append(compress, msg)
	}
	if len(compress) == 0 {
		return history
	}

	budget := t2 - tailTokens
	if budget < 50 {
		budget = 50
	}
	summary := b.summarizer.Summarize(ctx, compress, "", b.sumCfg.TargetLength, budget)
	if summary == "" {
		return TruncateToTail(history, t1)
	}
	return ApplySummary(history, summary, t1)
}
