package mcp

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/lukelzlz/nanobot/internal/config"
)

func TestValidateServerConfigStdio(t *testing.T) {
	ok := config.MCPServerConfig{
		Name: "fs", Transport: "stdio",
		Command: "npx", Args: []string{"-y", "@modelcontextprotocol/server-filesystem"},
	}
	if err := ValidateServerConfig(ok); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	bad := []config.MCPServerConfig{
		{Name: "a", Transport: "stdio"},
		{Name: "b", Transport: "stdio", Command: "bash", Args: []string{"-c", "evil"}},
		{Name: "c", Transport: "stdio", Command: "npx", Args: []string{"x; rm -rf /"}},
		{Name: "d", Transport: "stdio", Command: "npx", Args: []string{"$(whoami)"}},
		{Name: "e", Transport: "stdio", Command: "/opt/evil/npx-lookalike"},
		{Name: "f", Transport: "carrier-pigeon"},
	}
	for _, cfg := range bad {
		if err := ValidateServerConfig(cfg); err == nil {
			t.Errorf("%s: accepted %+v", cfg.Name, cfg)
		}
	}
}

func TestValidateURL(t *testing.T) {
	allowed := []string{
		"http://localhost:3000/sse",
		"http://127.0.0.1:8080/sse",
		"https://mcp.example.com/sse",
	}
	for _, raw := range allowed {
		if err := ValidateURL(raw); err != nil {
			t.Errorf("%s rejected: %v", raw, err)
		}
	}

	blocked := []struct{ url, want string }{
		{"http://169.254.169.254/latest/meta-data", "metadata"},
		{"http://10.0.0.5/sse", "private"},
		{"http://192.168.1.10:9000/sse", "private"},
		{"http://0.0.0.0/sse", "private"},
		{"ftp://example.com/sse", "scheme"},
	}
	for _, tc := range blocked {
		err := ValidateURL(tc.url)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: got %v, want %q", tc.url, err, tc.want)
		}
	}
}

func TestSanitizeEnvDoesNotInherit(t *testing.T) {
	t.Setenv("NANOBOT_PARENT_SECRET", "leak-me")
	env := sanitizeEnv(map[string]string{"MCP_FLAG": "on"}, slog.Default())

	got := map[string]string{}
	for _, kv := range env {
		parts := strings.SplitN(kv, "=", 2)
		got[parts[0]] = parts[1]
	}
	if _, leaked := got["NANOBOT_PARENT_SECRET"]; leaked {
		t.Fatal("parent environment leaked into server env")
	}
	if got["MCP_FLAG"] != "on" {
		t.Fatalf("custom var missing: %v", got)
	}
	for _, base := range []string{"PATH", "HOME", "LANG"} {
		if _, ok := got[base]; !ok {
			t.Errorf("base var %s missing", base)
		}
	}
}

func TestCoerceContent(t *testing.T) {
	got := CoerceContent([]ContentBlock{
		{Type: "text", Text: "line one"},
		{Type: "resource", URI: "file:///tmp/report.md"},
		{Type: "image", MimeType: "image/jpeg", Data: "abcd"},
		{Type: "mystery"},
	})
	want := "line one\n[Resource: file:///tmp/report.md]\n[Image: image/jpeg, 4 chars]"
	if got != want {
		t.Fatalf("coerce = %q", got)
	}

	if got := CoerceContent(nil); got != "Tool executed successfully" {
		t.Fatalf("empty coerce = %q", got)
	}
	// Image without a mime type defaults to png.
	got = CoerceContent([]ContentBlock{{Type: "image", Data: "xy"}})
	if got != "[Image: image/png, 2 chars]" {
		t.Fatalf("default mime = %q", got)
	}
}

func TestToolAdapterNaming(t *testing.T) {
	adapter := NewToolAdapter("github", Tool{Name: "create_issue", Description: "Create an issue"}, nil)
	if adapter.Name() != "github_create_issue" {
		t.Fatalf("name = %q", adapter.Name())
	}
	if adapter.Description() != "[github] Create an issue" {
		t.Fatalf("description = %q", adapter.Description())
	}
	if string(adapter.Parameters()) != `{"type":"object","properties":{}}` {
		t.Fatalf("fallback schema = %s", adapter.Parameters())
	}
	if adapter.Server() != "github" || adapter.OriginalName() != "create_issue" {
		t.Fatalf("identity = %q %q", adapter.Server(), adapter.OriginalName())
	}
}
