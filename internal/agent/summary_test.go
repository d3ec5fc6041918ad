package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/lukelzlz/nanobot/internal/providers"
)

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcdefgh", 2},
		{"你好世界", 4},
		{"hi 你好", 2},
	}
	for _, tc := range cases {
		if got := estimateTokens(tc.text); got != tc.want {
			t.Errorf("estimateTokens(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestThresholdsFixup(t *testing.T) {
	t1, t2 := thresholds(3000, 4000)
	if t1 != 3000 || t2 != 4000 {
		t.Fatalf("got (%d, %d)", t1, t2)
	}
	t1, t2 = thresholds(4000, 3000)
	if t2 != t1+200 {
		t.Fatalf("inverted thresholds not fixed: (%d, %d)", t1, t2)
	}
}

func TestRemoveJSONBlocks(t *testing.T) {
	text := "before\n```json\n{\"a\": 1}\n```\nafter"
	got := removeJSONBlocks(text)
	if strings.Contains(got, "\"a\"") {
		t.Fatalf("json fence survived: %q", got)
	}
	if !strings.Contains(got, "before") || !strings.Contains(got, "after") {
		t.Fatalf("prose stripped: %q", got)
	}

	short := "{\"x\": 1}"
	if got := removeJSONBlocks(short); got != short {
		t.Fatalf("small json stripped: %q", got)
	}
}

func TestRemoveToolTraces(t *testing.T) {
	text := "keep this\n\"tool_call_id\": \"call_abc\",\nand this"
	got := removeToolTraces(text)
	if strings.Contains(got, "tool_call_id") {
		t.Fatalf("trace survived: %q", got)
	}
	if !strings.Contains(got, "keep this") || !strings.Contains(got, "and this") {
		t.Fatalf("prose stripped: %q", got)
	}
}

func TestCleanContentExclusions(t *testing.T) {
	tool := providers.Message{Role: providers.RoleTool, Content: "output"}
	if cleanContent(tool, false) != "" {
		t.Fatal("tool message should never count")
	}
	system := providers.Message{Role: providers.RoleSystem, Content: "prompt"}
	if cleanContent(system, false) != "prompt" {
		t.Fatal("system message should count for total")
	}
	if cleanContent(system, true) != "" {
		t.Fatal("system message should not count for tail")
	}
}

func makeHistory(n int, content string) []providers.Message {
	msgs := make([]providers.Message, 0, n)
	for i := 0; i < n; i++ {
		role := providers.RoleUser
		if i%2 == 1 {
			role = providers.RoleAssistant
		}
		msgs = append(msgs, providers.Message{Role: role, Content: content})
	}
	return msgs
}

func TestShouldSummarize(t *testing.T) {
	s := NewSummarizer(&scriptedProvider{}, "test-model", nil)

	small := makeHistory(4, "short message")
	if s.ShouldSummarize(small, 100, 200) {
		t.Fatal("small history should not trigger")
	}

	big := makeHistory(40, strings.Repeat("wordwordword ", 20))
	if !s.ShouldSummarize(big, 100, 200) {
		t.Fatal("large history should trigger")
	}
}

func TestApplySummaryShape(t *testing.T) {
	history := makeHistory(20, strings.Repeat("abcd", 25))
	out := ApplySummary(history, "the summary", 100)

	if out[0].Role != providers.RoleAssistant {
		t.Fatalf("first role = %q", out[0].Role)
	}
	if !strings.HasPrefix(out[0].Content, "[AutoSummary]\n") {
		t.Fatalf("missing prefix: %q", out[0].Content)
	}
	if len(out) >= len(history) {
		t.Fatalf("no compression: %d -> %d", len(history), len(out))
	}
	// Preserved tail keeps original order and ends with the newest message.
	if out[len(out)-1].Content != history[len(history)-1].Content ||
		out[len(out)-1].Role != history[len(history)-1].Role {
		t.Fatal("newest message not preserved")
	}
}

func TestTruncateToTail(t *testing.T) {
	history := makeHistory(20, strings.Repeat("abcd", 25))
	out := TruncateToTail(history, 100)
	if len(out) == 0 || len(out) >= len(history) {
		t.Fatalf("unexpected tail size %d", len(out))
	}
	for _, msg := range out {
		if strings.HasPrefix(msg.Content, "[AutoSummary]") {
			t.Fatal("fallback must not add a summary message")
		}
	}
}

func TestSummarizeUsesBudget(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.Response{
		{Content: "condensed"},
	}}
	s := NewSummarizer(p, "test-model", nil)
	msgs := makeHistory(6, "something happened here")

	got := s.Summarize(context.Background(), msgs, "", 300, 123)
	if got != "condensed" {
		t.Fatalf("summary = %q", got)
	}
	if len(p.requests) != 1 {
		t.Fatalf("requests = %d", len(p.requests))
	}
	req := p.requests[0]
	if req.Messages[0].Role != providers.RoleSystem {
		t.Fatal("missing system instruction")
	}
	if !strings.Contains(req.Messages[1].Content, "<= 123") {
		t.Fatalf("budget clause missing: %q", req.Messages[1].Content)
	}
}

func TestSummarizeStripsFences(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.Response{
		{Content: "summary\n```\ncode\n```\ndone"},
	}}
	s := NewSummarizer(p, "test-model", nil)
	got := s.Summarize(context.Background(), makeHistory(4, "hello there"), "", 300, 0)
	if strings.Contains(got, "code") {
		t.Fatalf("fence survived: %q", got)
	}
}
