package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lukelzlz/nanobot/internal/config"
	"github.com/lukelzlz/nanobot/internal/providers"
)

func TestBuildSystemPromptBootstrapOrder(t *testing.T) {
	workspace := t.TempDir()
	for _, name := range []string{"SOUL.md", "AGENTS.md", "USER.md"} {
		if err := os.WriteFile(filepath.Join(workspace, name), []byte("content of "+name), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	b := NewContextBuilder(workspace, nil, config.SummarizationConfig{})
	prompt := b.BuildSystemPrompt()

	agents := strings.Index(prompt, "## AGENTS.md")
	soul := strings.Index(prompt, "## SOUL.md")
	user := strings.Index(prompt, "## USER.md")
	if agents < 0 || soul < 0 || user < 0 {
		t.Fatalf("bootstrap sections missing:\n%s", prompt)
	}
	if !(agents < soul && soul < user) {
		t.Fatal("bootstrap files out of order")
	}
	if !strings.Contains(prompt, "\n\n---\n\n") {
		t.Fatal("missing section separator")
	}
	if !strings.Contains(prompt, "## Current Time") {
		t.Fatal("missing identity block")
	}
}

func TestBuildSystemPromptIncludesMemory(t *testing.T) {
	workspace := t.TempDir()
	memDir := filepath.Join(workspace, "memory")
	if err := os.MkdirAll(memDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(memDir, "MEMORY.md"), []byte("user prefers tea"), 0o644); err != nil {
		t.Fatal(err)
	}

	b := NewContextBuilder(workspace, nil, config.SummarizationConfig{})
	prompt := b.BuildSystemPrompt()
	if !strings.Contains(prompt, "user prefers tea") {
		t.Fatal("memory content missing")
	}
}

func TestBuildSystemPromptSkillsCatalogue(t *testing.T) {
	workspace := t.TempDir()
	skillDir := filepath.Join(workspace, "skills", "weather")
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		t.Fatal(err)
	}
	skill := "---\nname: weather\ndescription: check the weather\n---\n\nUse the forecast API.\n"
	if err := os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte(skill), 0o644); err != nil {
		t.Fatal(err)
	}

	b := NewContextBuilder(workspace, nil, config.SummarizationConfig{})
	prompt := b.BuildSystemPrompt()
	if !strings.Contains(prompt, "<skills>") {
		t.Fatal("skills catalogue missing")
	}
	if !strings.Contains(prompt, "<name>weather</name>") {
		t.Fatal("skill entry missing")
	}
	// Not marked always, so the body stays out of the prompt.
	if strings.Contains(prompt, "Use the forecast API.") {
		t.Fatal("non-always skill body leaked into prompt")
	}
}

func TestBuildSystemPromptActiveSkills(t *testing.T) {
	workspace := t.TempDir()
	skillDir := filepath.Join(workspace, "skills", "greeting")
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		t.Fatal(err)
	}
	skill := "---\nname: greeting\nalways: true\n---\n\nAlways greet warmly.\n"
	if err := os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte(skill), 0o644); err != nil {
		t.Fatal(err)
	}

	b := NewContextBuilder(workspace, nil, config.SummarizationConfig{})
	prompt := b.BuildSystemPrompt()
	if !strings.Contains(prompt, "# Active Skills") {
		t.Fatal("active skills section missing")
	}
	if !strings.Contains(prompt, "Always greet warmly.") {
		t.Fatal("always skill body missing")
	}
}

func TestBuildMessagesShape(t *testing.T) {
	b := NewContextBuilder(t.TempDir(), nil, config.SummarizationConfig{})
	history := []providers.Message{
		{Role: providers.RoleUser, Content: "earlier"},
		{Role: providers.RoleAssistant, Content: "reply"},
	}
	msgs := b.BuildMessages(context.Background(), history, "now", nil, false, "k")

	if len(msgs) != 4 {
		t.Fatalf("len = %d", len(msgs))
	}
	if msgs[0].Role != providers.RoleSystem {
		t.Fatal("first message must be system")
	}
	if msgs[3].Role != providers.RoleUser || msgs[3].Content != "now" {
		t.Fatalf("last = %+v", msgs[3])
	}
}

func TestBuildUserMessageVision(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "photo.png")
	if err := os.WriteFile(img, []byte("fakepng"), 0o644); err != nil {
		t.Fatal(err)
	}
	notImage := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(notImage, []byte("text"), 0o644); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(dir, "gone.png")

	b := NewContextBuilder(dir, nil, config.SummarizationConfig{})

	// Without vision support the media are ignored.
	msg := b.buildUserMessage("look", []string{img}, false)
	if len(msg.Parts) != 0 || msg.Content != "look" {
		t.Fatalf("msg = %+v", msg)
	}

	// With vision: image becomes a data URL part, non-images and missing
	// files are dropped, text part comes last.
	msg = b.buildUserMessage("look", []string{img, notImage, missing}, true)
	if len(msg.Parts) != 2 {
		t.Fatalf("parts = %d", len(msg.Parts))
	}
	if msg.Parts[0].Type != "image_url" || !strings.HasPrefix(msg.Parts[0].ImageURL, "data:image/png;base64,") {
		t.Fatalf("image part = %+v", msg.Parts[0])
	}
	if msg.Parts[1].Type != "text" || msg.Parts[1].Text != "look" {
		t.Fatalf("text part = %+v", msg.Parts[1])
	}
}

func TestMaybeSummarizeGuard(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.Response{
		{Content: "condensed"},
	}}
	cfg := config.SummarizationConfig{Enabled: true, ThresholdLow: 50, ThresholdHigh: 100, TargetLength: 50}
	b := NewContextBuilder(t.TempDir(), nil, cfg)
	b.SetSummarizer(NewSummarizer(p, "test-model", nil))

	history := makeHistory(20, strings.Repeat("abcd", 25))

	// Session already in flight: history returned unchanged.
	b.summarizing["busy"] = struct{}{}
	out := b.maybeSummarize(context.Background(), history, "busy")
	if len(out) != len(history) {
		t.Fatal("in-flight session must not be summarized")
	}

	out = b.maybeSummarize(context.Background(), history, "free")
	if len(out) >= len(history) {
		t.Fatalf("no compression: %d -> %d", len(history), len(out))
	}
	if !strings.HasPrefix(out[0].Content, "[AutoSummary]\n") {
		t.Fatalf("first = %q", out[0].Content)
	}
	if _, busy := b.summarizing["free"]; busy {
		t.Fatal("guard not released")
	}
}

func TestMaybeSummarizeFallback(t *testing.T) {
	// Provider failures fold into an error response, which triggers the
	// truncate-to-tail fallback.
	p := &scriptedProvider{responses: []*providers.Response{
		{Content: "boom", FinishReason: "error"},
	}}
	cfg := config.SummarizationConfig{Enabled: true, ThresholdLow: 50, ThresholdHigh: 100}
	b := NewContextBuilder(t.TempDir(), nil, cfg)
	b.SetSummarizer(NewSummarizer(p, "test-model", nil))

	history := makeHistory(20, strings.Repeat("abcd", 25))
	out := b.maybeSummarize(context.Background(), history, "k")
	if len(out) == 0 || len(out) >= len(history) {
		t.Fatalf("tail size = %d", len(out))
	}
	for _, msg := range out {
		if strings.HasPrefix(msg.Content, "[AutoSummary]") {
			t.Fatal("fallback must not add a summary")
		}
	}
}
