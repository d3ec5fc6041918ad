package providers

import (
	"errors"
	"testing"

	"github.com/lukelzlz/nanobot/internal/config"
)

func TestArgumentsJSON(t *testing.T) {
	tc := ToolCall{ID: "c1", Name: "exec"}
	if got := tc.ArgumentsJSON(); got != "{}" {
		t.Fatalf("nil args = %q", got)
	}
	tc.Arguments = map[string]any{"command": "ls"}
	if got := tc.ArgumentsJSON(); got != `{"command":"ls"}` {
		t.Fatalf("args = %q", got)
	}
}

func TestErrorResponse(t *testing.T) {
	resp := ErrorResponse(errors.New("boom"))
	if resp.FinishReason != "error" || resp.Content != "Error calling LLM: boom" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.HasToolCalls() {
		t.Fatal("error response claims tool calls")
	}
}

func TestSplitDataURL(t *testing.T) {
	mime, data, ok := splitDataURL("data:image/png;base64,aGk=")
	if !ok || mime != "image/png" || data != "aGk=" {
		t.Fatalf("split = %q %q %v", mime, data, ok)
	}
	if _, _, ok := splitDataURL("https://example.com/a.png"); ok {
		t.Fatal("plain url accepted")
	}
	if _, _, ok := splitDataURL("data:image/png,raw"); ok {
		t.Fatal("non-base64 data url accepted")
	}
}

func TestMIMEFromPath(t *testing.T) {
	cases := map[string]string{
		"photo.JPG":  "image/jpeg",
		"shot.png":   "image/png",
		"anim.gif":   "image/gif",
		"pic.webp":   "image/webp",
		"notes.txt":  "",
		"no-ext-img": "",
	}
	for path, want := range cases {
		if got := MIMEFromPath(path); got != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}
}

func TestModelSupportsVision(t *testing.T) {
	vision := []string{
		"claude-sonnet-4-20250514",
		"claude-3-5-sonnet-latest",
		"gpt-4o-mini",
		"gemini-1.5-pro",
		"qwen2-vl-72b",
	}
	for _, model := range vision {
		if !modelSupportsVision(model, false) {
			t.Errorf("%s: expected vision support", model)
		}
	}
	text := []string{"gpt-3.5-turbo", "claude-2.1", "llama-3-70b", "deepseek-chat"}
	for _, model := range text {
		if modelSupportsVision(model, false) {
			t.Errorf("%s: unexpected vision support", model)
		}
	}
	// OpenRouter ids get the looser keyword match.
	if !modelSupportsVision("mistralai/pixtral-vision", true) {
		t.Error("openrouter vision id should support vision")
	}
	if modelSupportsVision("mistralai/pixtral-vision", false) {
		t.Error("keyword match should only apply to openrouter ids")
	}
}

func TestSystemText(t *testing.T) {
	messages := []Message{
		{Role: RoleSystem, Content: "first"},
		{Role: RoleSystem, Content: "second"},
		{Role: RoleUser, Content: "hi"},
	}
	if got := systemText(messages); got != "first\n\nsecond" {
		t.Fatalf("systemText = %q", got)
	}
	if got := systemText(nil); got != "" {
		t.Fatalf("empty systemText = %q", got)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.DefaultProvider = "anthropic"
	cfg.LLM.Providers = map[string]config.LLMProviderConfig{
		"anthropic": {APIKey: "k", DefaultModel: "claude-sonnet-4-20250514"},
	}
	provider, model, err := FromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if provider.Name() != "anthropic" || model != "claude-sonnet-4-20250514" {
		t.Fatalf("provider = %q model = %q", provider.Name(), model)
	}

	// agent.model overrides the provider default.
	cfg.Agent.Model = "claude-opus-4-20250514"
	_, model, _ = FromConfig(cfg)
	if model != "claude-opus-4-20250514" {
		t.Fatalf("model override = %q", model)
	}

	cfg.LLM.DefaultProvider = "mystery"
	if _, _, err := FromConfig(cfg); err == nil {
		t.Fatal("unknown provider accepted")
	}
}
