// Package agent runs the tool-calling loop: it consumes inbound messages,
// assembles LLM context from the workspace, dispatches tool calls, and
// publishes replies back onto the bus.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lukelzlz/nanobot/internal/bus"
	"github.com/lukelzlz/nanobot/internal/config"
	"github.com/lukelzlz/nanobot/internal/cron"
	"github.com/lukelzlz/nanobot/internal/mcp"
	"github.com/lukelzlz/nanobot/internal/providers"
	"github.com/lukelzlz/nanobot/internal/sessions"
	"github.com/lukelzlz/nanobot/internal/skills"
	"github.com/lukelzlz/nanobot/internal/tools"
)

const consumeWait = time.Second

// ReloadResult reports the skill diff after a context reload.
type ReloadResult struct {
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []string `json:"modified"`
}

// Loop is the main consumer of the inbound queue.
type Loop struct {
	cfg      *config.Config
	bus      *bus.MessageBus
	provider providers.Provider
	model    string
	logger   *slog.Logger

	registry *tools.Registry
	sessions *sessions.Store
	mcp      *mcp.Client

	mu            sync.Mutex
	builder       *ContextBuilder
	skillSnapshot map[string]string

	messageTool *tools.MessageTool
	spawnTool   *tools.SpawnTool
	subagents   *SubagentManager

	wg sync.WaitGroup
}

// New wires the loop with its default tool set. cronService provides the
// cron tool's backend; mcpClient may be nil.
func New(cfg *config.Config, b *bus.MessageBus, provider providers.Provider, model string, cronService *cron.Service, mcpClient *mcp.Client, logger *slog.Logger) (*Loop, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "agent")

	store, err := sessions.NewStore(filepath.Join(cfg.DataDir, "sessions"), logger)
	if err != nil {
		return nil, err
	}

	l := &Loop{
		cfg:      cfg,
		bus:      b,
		provider: provider,
		model:    model,
		logger:   logger,
		registry: tools.NewRegistry(logger),
		sessions: store,
		mcp:      mcpClient,
	}
	l.builder = NewContextBuilder(cfg.Workspace, mcpClient, cfg.Agent.Summarization)
	l.skillSnapshot = l.builder.Skills().Snapshot()
	if cfg.Agent.Summarization.Enabled {
		l.builder.SetSummarizer(NewSummarizer(provider, model, logger))
	}

	l.subagents = NewSubagentManager(l, b, logger)
	l.registerDefaultTools(cronService)
	return l, nil
}

// Registry exposes the tool registry (MCP registration, tests).
func (l *Loop) Registry() *tools.Registry { return l.registry }

func (l *Loop) registerDefaultTools(cronService *cron.Service) {
	restrict := l.cfg.Tools.RestrictToWorkspace
	fs := &tools.FileTools{Workspace: l.cfg.Workspace, RestrictToWorkspace: restrict}
	l.registry.Register(&tools.ReadFileTool{FS: fs})
	l.registry.Register(&tools.WriteFileTool{FS: fs})
	l.registry.Register(&tools.EditFileTool{FS: fs})
	l.registry.Register(&tools.ListDirTool{FS: fs})

	l.registry.Register(&tools.ExecTool{
		Timeout:             l.cfg.Tools.ExecTimeout,
		WorkingDir:          l.cfg.Workspace,
		RestrictToWorkspace: restrict,
	})

	l.registry.Register(&tools.WebSearchTool{APIKey: l.cfg.Tools.BraveAPIKey})
	l.registry.Register(&tools.WebFetchTool{})

	l.messageTool = &tools.MessageTool{Publish: l.bus.PublishOutbound}
	l.registry.Register(l.messageTool)

	l.spawnTool = &tools.SpawnTool{Manager: l.subagents}
	l.registry.Register(l.spawnTool)

	if cronService != nil {
		l.registry.Register(&tools.CronTool{Service: cronService})
	}
}

// RegisterMCPTools connects every enabled MCP server and registers its tools
// under "<server>_<tool>" names. Connection failures are logged, not fatal.
func (l *Loop) RegisterMCPTools(ctx context.Context) {
	if l.mcp == nil {
		return
	}
	for _, serverCfg := range l.cfg.MCP.Servers {
		if !serverCfg.Enabled {
			continue
		}
		if err := l.mcp.Connect(ctx, serverCfg); err != nil {
			l.logger.Error("mcp connect failed", "server", serverCfg.Name, "error", err)
			continue
		}
		l.registerServerTools(serverCfg.Name, l.mcp.CachedTools(serverCfg.Name))
	}
	l.mcp.OnReconnect(func(server string, serverTools []mcp.Tool) {
		l.registerServerTools(server, serverTools)
	})
}

func (l *Loop) registerServerTools(server string, serverTools []mcp.Tool) {
	for _, t := range serverTools {
		l.registry.Register(mcp.NewToolAdapter(server, t, l.mcp))
	}
	l.logger.Info("registered mcp tools", "server", server, "count", len(serverTools))
}

// Run consumes inbound messages until ctx is cancelled. Processing failures
// answer the originating chat with a terse apology.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("agent loop started")
	l.wg.Add(1)
	defer l.wg.Done()

	for {
		msg, err := l.bus.ConsumeInbound(ctx, consumeWait)
		if errors.Is(err, bus.ErrTimeout) {
			continue
		}
		if err != nil {
			l.logger.Info("agent loop stopping")
			return nil
		}

		response, err := l.process(ctx, msg)
		if err != nil {
			l.logger.Error("error processing message", "error", err)
			l.publish(ctx, bus.OutboundMessage{
				Channel: msg.Channel,
				ChatID:  msg.ChatID,
				Content: fmt.Sprintf("Sorry, I encountered an error: %v", err),
			})
			continue
		}
		if response != nil {
			l.publish(ctx, *response)
		}
	}
}

// Stop waits for in-flight processing to finish.
func (l *Loop) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) publish(ctx context.Context, msg bus.OutboundMessage) {
	if err := l.bus.PublishOutbound(ctx, msg); err != nil {
		l.logger.Error("publish failed", "channel", msg.Channel, "error", err)
	}
}

// process handles one inbound message through the tool loop. System-channel
// messages route back to their origin conversation.
func (l *Loop) process(ctx context.Context, msg bus.InboundMessage) (*bus.OutboundMessage, error) {
	if msg.Channel == bus.ChannelSystem {
		return l.processSystem(ctx, msg)
	}

	l.logger.Info("processing message", "channel", msg.Channel, "sender", msg.SenderID)

	sessionKey := msg.SessionKeyOrDefault()
	session, err := l.sessions.GetOrCreate(sessionKey)
	if err != nil {
		return nil, err
	}

	l.messageTool.SetContext(msg.Channel, msg.ChatID)
	l.spawnTool.SetContext(msg.Channel, msg.ChatID)

	builder := l.currentBuilder()
	messages := builder.BuildMessages(ctx, session.History(), msg.Content,
		msg.Media, l.provider.SupportsVision(l.model), sessionKey)

	final := l.toolLoop(ctx, messages)

	session.AppendUser(msg.Content)
	session.AppendAssistant(final, nil)
	if err := l.sessions.Save(session); err != nil {
		l.logger.Error("session save failed", "key", sessionKey, "error", err)
	}

	return &bus.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Content: final}, nil
}

// processSystem handles a synthetic message (subagent announce). ChatID
// carries "origin_channel:origin_chat_id"; the reply goes to the origin.
func (l *Loop) processSystem(ctx context.Context, msg bus.InboundMessage) (*bus.OutboundMessage, error) {
	l.logger.Info("processing system message", "sender", msg.SenderID)

	originChannel := "cli"
	originChatID := msg.ChatID
	if idx := strings.Index(msg.ChatID, ":"); idx >= 0 {
		originChannel = msg.ChatID[:idx]
		originChatID = msg.ChatID[idx+1:]
	}

	sessionKey := originChannel + ":" + originChatID
	session, err := l.sessions.GetOrCreate(sessionKey)
	if err != nil {
		return nil, err
	}

	l.messageTool.SetContext(originChannel, originChatID)
	l.spawnTool.SetContext(originChannel, originChatID)

	builder := l.currentBuilder()
	messages := builder.BuildMessages(ctx, session.History(), msg.Content,
		nil, l.provider.SupportsVision(l.model), sessionKey)

	final := l.toolLoopWithFallback(ctx, messages, "Background task completed.")

	session.AppendUser(fmt.Sprintf("[System: %s] %s", msg.SenderID, msg.Content))
	session.AppendAssistant(final, nil)
	if err := l.sessions.Save(session); err != nil {
		l.logger.Error("session save failed", "key", sessionKey, "error", err)
	}

	return &bus.OutboundMessage{Channel: originChannel, ChatID: originChatID, Content: final}, nil
}

// toolLoop drives the LLM until it stops requesting tools or the iteration
// cap is reached.
func (l *Loop) toolLoop(ctx context.Context, messages []providers.Message) string {
	return l.toolLoopWithFallback(ctx, messages,
		"I've completed processing but have no response to give.")
}

func (l *Loop) toolLoopWithFallback(ctx context.Context, messages []providers.Message, fallback string) string {
	maxIterations := l.cfg.Agent.MaxIterations
	for iteration := 0; iteration < maxIterations; iteration++ {
		resp, err := l.provider.Chat(ctx, &providers.Request{
			Model:       l.model,
			Messages:    messages,
			Tools:       l.registry.Definitions(),
			MaxTokens:   l.cfg.Agent.MaxTokens,
			Temperature: l.cfg.Agent.Temperature,
		})
		if err != nil {
			resp = providers.ErrorResponse(err)
		}

		if !resp.HasToolCalls() {
			if resp.Content != "" {
				return resp.Content
			}
			return fallback
		}

		messages = append(messages, providers.Message{
			Role:      providers.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			l.logger.Debug("executing tool", "tool", call.Name, "arguments", call.ArgumentsJSON())
			result := l.registry.Execute(ctx, call.Name, call.Arguments)
			messages = append(messages, providers.Message{
				Role:       providers.RoleTool,
				Content:    result,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
	}
	return fallback
}

// ProcessDirect runs one agent turn synchronously, bypassing the bus. Used
// by the CLI channel and cron jobs.
func (l *Loop) ProcessDirect(ctx context.Context, content, sessionKey, channel, chatID string) (string, error) {
	if sessionKey == "" {
		sessionKey = "cli:direct"
	}
	if channel == "" {
		channel = "cli"
	}
	if chatID == "" {
		chatID = "direct"
	}
	response, err := l.process(ctx, bus.InboundMessage{
		Channel:    channel,
		SenderID:   "system",
		ChatID:     chatID,
		Content:    content,
		SessionKey: sessionKey,
	})
	if err != nil {
		return "", err
	}
	if response == nil {
		return "", nil
	}
	return response.Content, nil
}

// ReloadContext rebuilds the context builder so new skills and workspace
// documents take effect, and reports the skill diff since the last reload.
func (l *Loop) ReloadContext() ReloadResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.builder = NewContextBuilder(l.cfg.Workspace, l.mcp, l.cfg.Agent.Summarization)
	if l.cfg.Agent.Summarization.Enabled {
		l.builder.SetSummarizer(NewSummarizer(l.provider, l.model, l.logger))
	}

	snapshot := l.builder.Skills().Snapshot()
	added, removed, modified := skills.Diff(l.skillSnapshot, snapshot)
	l.skillSnapshot = snapshot

	l.logger.Info("reloaded context",
		"added", added, "removed", removed, "modified", modified)
	return ReloadResult{Added: added, Removed: removed, Modified: modified}
}

func (l *Loop) currentBuilder() *ContextBuilder {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.builder
}
