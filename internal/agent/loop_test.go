package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lukelzlz/nanobot/internal/bus"
	"github.com/lukelzlz/nanobot/internal/config"
	"github.com/lukelzlz/nanobot/internal/providers"
	"github.com/lukelzlz/nanobot/internal/sessions"
)

// brokenSessions returns a store whose load fails for key "telegram:c": the
// session file path is occupied by a directory.
func brokenSessions(t *testing.T) *sessions.Store {
	t.Helper()
	dir := t.TempDir()
	store, err := sessions.NewStore(dir, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "telegram_c.json"), 0o755); err != nil {
		t.Fatal(err)
	}
	return store
}

// scriptedProvider replays canned responses and records every request.
type scriptedProvider struct {
	responses []*providers.Response
	requests  []*providers.Request
	vision    bool
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) SupportsVision(model string) bool { return p.vision }

func (p *scriptedProvider) Chat(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	p.requests = append(p.requests, req)
	if len(p.responses) == 0 {
		return &providers.Response{Content: "done"}, nil
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

type stubTool struct {
	name   string
	result string
	calls  []map[string]any
}

func (t *stubTool) Name() string        { return t.name }
func (t *stubTool) Description() string { return "stub" }
func (t *stubTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{}}`)
}
func (t *stubTool) Execute(ctx context.Context, args map[string]any) string {
	t.calls = append(t.calls, args)
	return t.result
}

func newTestLoop(t *testing.T, p providers.Provider) (*Loop, *bus.MessageBus) {
	t.Helper()
	cfg := &config.Config{
		Workspace: t.TempDir(),
		DataDir:   t.TempDir(),
	}
	cfg.ApplyDefaults()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	b := bus.New(logger)
	loop, err := New(cfg, b, p, "test-model", nil, nil, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return loop, b
}

func TestProcessPlainResponse(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.Response{
		{Content: "hello back"},
	}}
	loop, _ := newTestLoop(t, p)

	out, err := loop.process(context.Background(), bus.InboundMessage{
		Channel:  "telegram",
		SenderID: "u1",
		ChatID:   "chat1",
		Content:  "hello",
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Channel != "telegram" || out.ChatID != "chat1" || out.Content != "hello back" {
		t.Fatalf("out = %+v", out)
	}

	// History persisted as (user, assistant) pair.
	sess, err := loop.sessions.GetOrCreate("telegram:chat1")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	history := sess.History()
	if len(history) != 2 || history[0].Role != providers.RoleUser || history[1].Role != providers.RoleAssistant {
		t.Fatalf("history = %+v", history)
	}
}

func TestProcessExecutesToolCalls(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.Response{
		{ToolCalls: []providers.ToolCall{
			{ID: "call_1", Name: "stub", Arguments: map[string]any{"x": float64(1)}},
		}},
		{Content: "used the tool"},
	}}
	loop, _ := newTestLoop(t, p)
	tool := &stubTool{name: "stub", result: "stub result"}
	loop.registry.Register(tool)

	out, err := loop.process(context.Background(), bus.InboundMessage{
		Channel: "cli", SenderID: "u", ChatID: "c", Content: "go",
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Content != "used the tool" {
		t.Fatalf("content = %q", out.Content)
	}
	if len(tool.calls) != 1 {
		t.Fatalf("tool calls = %d", len(tool.calls))
	}

	// Second request carries the assistant tool-call message and the tool
	// result linked by id.
	second := p.requests[1].Messages
	last := second[len(second)-1]
	if last.Role != providers.RoleTool || last.ToolCallID != "call_1" || last.Content != "stub result" {
		t.Fatalf("tool message = %+v", last)
	}
	prev := second[len(second)-2]
	if prev.Role != providers.RoleAssistant || len(prev.ToolCalls) != 1 {
		t.Fatalf("assistant message = %+v", prev)
	}
}

func TestProcessIterationCap(t *testing.T) {
	// Every response requests another tool call; the loop must give up with
	// the fallback text.
	var responses []*providers.Response
	for i := 0; i < 30; i++ {
		responses = append(responses, &providers.Response{ToolCalls: []providers.ToolCall{
			{ID: "call_x", Name: "stub", Arguments: map[string]any{}},
		}})
	}
	p := &scriptedProvider{responses: responses}
	loop, _ := newTestLoop(t, p)
	loop.registry.Register(&stubTool{name: "stub", result: "ok"})

	out, err := loop.process(context.Background(), bus.InboundMessage{
		Channel: "cli", SenderID: "u", ChatID: "c", Content: "loop forever",
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Content != "I've completed processing but have no response to give." {
		t.Fatalf("content = %q", out.Content)
	}
	if len(p.requests) != loop.cfg.Agent.MaxIterations {
		t.Fatalf("requests = %d, want %d", len(p.requests), loop.cfg.Agent.MaxIterations)
	}
}

func TestProcessSystemMessageRoutesToOrigin(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.Response{
		{Content: "noted"},
	}}
	loop, _ := newTestLoop(t, p)

	out, err := loop.process(context.Background(), bus.InboundMessage{
		Channel:  bus.ChannelSystem,
		SenderID: "subagent:research",
		ChatID:   "telegram:chat42",
		Content:  "Task finished.",
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Channel != "telegram" || out.ChatID != "chat42" {
		t.Fatalf("out = %+v", out)
	}

	sess, _ := loop.sessions.GetOrCreate("telegram:chat42")
	history := sess.History()
	if len(history) != 2 {
		t.Fatalf("history = %+v", history)
	}
	if !strings.HasPrefix(history[0].Content, "[System: subagent:research]") {
		t.Fatalf("user entry = %q", history[0].Content)
	}
}

func TestProcessSystemMessageFallbackOrigin(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.Response{{Content: ""}}}
	loop, _ := newTestLoop(t, p)

	out, err := loop.process(context.Background(), bus.InboundMessage{
		Channel:  bus.ChannelSystem,
		SenderID: "cron",
		ChatID:   "noseparator",
		Content:  "ping",
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Channel != "cli" || out.ChatID != "noseparator" {
		t.Fatalf("out = %+v", out)
	}
	if out.Content != "Background task completed." {
		t.Fatalf("content = %q", out.Content)
	}
}

func TestProcessDirectDefaults(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.Response{
		{Content: "direct reply"},
	}}
	loop, _ := newTestLoop(t, p)

	got, err := loop.ProcessDirect(context.Background(), "hi", "", "", "")
	if err != nil {
		t.Fatalf("ProcessDirect: %v", err)
	}
	if got != "direct reply" {
		t.Fatalf("got %q", got)
	}
	sess, _ := loop.sessions.GetOrCreate("cli:direct")
	if len(sess.History()) != 2 {
		t.Fatal("default session not used")
	}
}

func TestRunRepliesWithApologyOnError(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.Response{
		{Content: "ok"},
	}}
	loop, b := newTestLoop(t, p)

	// Force a processing failure by breaking the session directory.
	loop.sessions = brokenSessions(t)

	var got bus.OutboundMessage
	done := make(chan struct{})
	b.Subscribe("telegram", func(ctx context.Context, msg bus.OutboundMessage) {
		got = msg
		close(done)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.StartDispatcher(ctx)
	go loop.Run(ctx)

	if err := b.PublishInbound(ctx, bus.InboundMessage{
		Channel: "telegram", SenderID: "u", ChatID: "c", Content: "hi",
	}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("no reply")
	}
	if !strings.HasPrefix(got.Content, "Sorry, I encountered an error:") {
		t.Fatalf("content = %q", got.Content)
	}
	if got.ChatID != "c" {
		t.Fatalf("chat = %q", got.ChatID)
	}
}

func TestReloadContextReportsSkillDiff(t *testing.T) {
	p := &scriptedProvider{}
	loop, _ := newTestLoop(t, p)

	skillDir := filepath.Join(loop.cfg.Workspace, "skills", "notes")
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte("# Notes\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	diff := loop.ReloadContext()
	if len(diff.Added) != 1 || diff.Added[0] != "notes" {
		t.Fatalf("diff = %+v", diff)
	}

	// No change on the next reload.
	diff = loop.ReloadContext()
	if len(diff.Added) != 0 || len(diff.Removed) != 0 || len(diff.Modified) != 0 {
		t.Fatalf("diff = %+v", diff)
	}
}
