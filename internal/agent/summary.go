package agent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/lukelzlz/nanobot/internal/providers"
)

// Summary defaults applied when the configuration leaves them zero.
const (
	defaultThresholdLow  = 3000
	defaultThresholdHigh = 4000
	defaultTargetLength  = 300
)

const summarySystemPrompt = "You are a dialog summarizer. Retain facts, entities, constraints, and unfinished items."

const defaultSummaryPrompt = "Generate a structured summary of the conversation history, extracting key points, current state, and unfinished items."

var (
	jsonFenceRe  = regexp.MustCompile("(?mis)```(?:json)?\\s*[\r\n]+[\\s\\S]*?```")
	largeFenceRe = regexp.MustCompile("(?mis)```[\\s\\S]{40,}?```")
	anyFenceRe   = regexp.MustCompile("(?mis)```[\\s\\S]*?```")

	jsonObjectRe = regexp.MustCompile(`(?ms)^\s*\{[\s\S]{30,}?\}\s*$`)
	jsonArrayRe  = regexp.MustCompile(`(?ms)^\s*\[[\s\S]{30,}?\]\s*$`)
	hugeObjectRe = regexp.MustCompile(`(?ms)^\s*\{[\s\S]{80,}?\}\s*$`)

	toolTraceRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*"?tool_calls"?\s*:`),
		regexp.MustCompile(`(?i)^\s*"?tool_call_id"?\s*:`),
		regexp.MustCompile(`(?i)^\s*"?function"?\s*:`),
		regexp.MustCompile(`(?i)^\s*"?type"?\s*:\s*"?function"?`),
		regexp.MustCompile(`(?i)^\s*"id"\s*:\s*"?call_[^"]+"?`),
	}
)

// Summarizer compresses long conversation histories with a dual-threshold
// strategy: once the estimated total exceeds the trigger threshold T2, every
// message outside the most recent T1 tokens is folded into one assistant
// message prefixed "[AutoSummary]".
type Summarizer struct {
	provider providers.Provider
	model    string
	logger   *slog.Logger
}

// NewSummarizer creates a summarizer that generates summaries with the given
// provider and model.
func NewSummarizer(provider providers.Provider, model string, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{
		provider: provider,
		model:    model,
		logger:   logger.With("component", "summary"),
	}
}

// estimateTokens approximates token count: ASCII runs about 4 chars per
// token, everything else about 1 char per token.
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	ascii := 0
	nonASCII := 0
	for _, r := range text {
		if r < 128 {
			ascii++
		} else {
			nonASCII++
		}
	}
	// Integer division floors the ASCII estimate on purpose.
	n := ascii/4 + nonASCII
	if n < 1 {
		return 1
	}
	return n
}

// thresholds returns (T1, T2), bumping T2 above T1 when the configuration
// inverts them.
func thresholds(low, high int) (int, int) {
	if low <= 0 {
		low = defaultThresholdLow
	}
	if high <= 0 {
		high = defaultThresholdHigh
	}
	if high <= low {
		high = low + 200
	}
	return low, high
}

func removeJSONBlocks(text string) string {
	if text == "" {
		return text
	}
	text = jsonFenceRe.ReplaceAllString(text, "")
	text = largeFenceRe.ReplaceAllString(text, "")

	stripIfJSON := func(block string) string {
		if len(block) >= 80 && (strings.Count(block, ":") >= 2 || strings.Count(block, `"`) >= 4) {
			return ""
		}
		return block
	}
	text = jsonObjectRe.ReplaceAllStringFunc(text, stripIfJSON)
	text = jsonArrayRe.ReplaceAllStringFunc(text, stripIfJSON)
	return text
}

func removeToolTraces(text string) string {
	if text == "" {
		return text
	}
	lines := strings.Split(text, "\n")
	filtered := lines[:0]
	for _, line := range lines {
		drop := false
		for _, re := range toolTraceRes {
			if re.MatchString(line) {
				drop = true
				break
			}
		}
		if !drop {
			filtered = append(filtered, line)
		}
	}
	return hugeObjectRe.ReplaceAllString(strings.Join(filtered, "\n"), "")
}

// flattenContent reduces a message to plain text, collecting text parts of
// multi-part content.
func flattenContent(msg providers.Message) string {
	if len(msg.Parts) == 0 {
		return msg.Content
	}
	var parts []string
	for _, p := range msg.Parts {
		if p.Type == "text" && p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// cleanContent returns the countable content of a message, or "" when the
// message is excluded. Tool messages never count; system messages count for
// the total but not for the preserved tail.
func cleanContent(msg providers.Message, forTail bool) string {
	if msg.Role == providers.RoleTool {
		return ""
	}
	content := flattenContent(msg)
	if content == "" {
		return ""
	}
	if msg.Role == providers.RoleSystem {
		if forTail {
			return ""
		}
		return content
	}
	return removeToolTraces(removeJSONBlocks(content))
}

func countTokens(history []providers.Message) int {
	total := 0
	for _, msg := range history {
		if content := cleanContent(msg, false); content != "" {
			total += estimateTokens(content)
		}
	}
	return total
}

// preservedTail walks the history newest-first and returns the ascending
// indices of messages that fit within retainTokens, plus their token total.
func preservedTail(history []providers.Message, retainTokens int) ([]int, int) {
	tailTokens := 0
	var indices []int
	for i := len(history) - 1; i >= 0; i-- {
		content := cleanContent(history[i], true)
		if content == "" {
			continue
		}
		n := estimateTokens(content)
		if tailTokens+n > retainTokens {
			break
		}
		tailTokens += n
		indices = append(indices, i)
	}
	for i, j := 0, len(indices)-1; i < j; i, j = i+1, j-1 {
		indices[i], indices[j] = indices[j], indices[i]
	}
	return indices, tailTokens
}

// ShouldSummarize reports whether the history's estimated size exceeds the
// trigger threshold.
func (s *Summarizer) ShouldSummarize(history []providers.Message, low, high int) bool {
	_, t2 := thresholds(low, high)
	total := countTokens(history)
	s.logger.Debug("token check", "total", total, "trigger", t2)
	return total > t2
}

// buildSource renders the compression set as "role: content" lines with JSON
// blobs and tool traces stripped.
func buildSource(messages []providers.Message) string {
	var parts []string
	for _, msg := range messages {
		if msg.Role == providers.RoleTool {
			continue
		}
		content := flattenContent(msg)
		if content == "" {
			continue
		}
		if msg.Role == providers.RoleUser || msg.Role == providers.RoleAssistant {
			content = removeToolTraces(removeJSONBlocks(content))
		}
		if content != "" {
			parts = append(parts, msg.Role+": "+content)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// Summarize generates a summary of the given messages within the token
// budget. Returns "" when generation fails or yields nothing.
func (s *Summarizer) Summarize(ctx context.Context, messages []providers.Message, prompt string, targetLength, budget int) string {
	source := buildSource(messages)
	if source == "" {
		return ""
	}
	if prompt == "" {
		prompt = defaultSummaryPrompt
	}
	if targetLength <= 0 {
		targetLength = defaultTargetLength
	}
	if budget <= 0 {
		budget = targetLength
	}

	userPrompt := fmt.Sprintf(
		"%s\n\nTarget length (approx tokens) <= %d.\n\nSummarize the following conversation:\n\n%s",
		prompt, budget, source)

	resp, err := s.provider.Chat(ctx, &providers.Request{
		Model: s.model,
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: summarySystemPrompt},
			{Role: providers.RoleUser, Content: userPrompt},
		},
		MaxTokens:   targetLength,
		Temperature: 0.3,
	})
	if err != nil || resp == nil || resp.FinishReason == "error" {
		s.logger.Error("summary generation failed", "error", err)
		return ""
	}

	summary := strings.TrimSpace(anyFenceRe.ReplaceAllString(resp.Content, ""))
	s.logger.Debug("summary generated", "chars", len(summary), "tokens", estimateTokens(summary))
	return summary
}

// ApplySummary builds the compressed history: one assistant message carrying
// the summary followed by the preserved tail.
func ApplySummary(history []providers.Message, summary string, retainTokens int) []providers.Message {
	indices, _ := preservedTail(history, retainTokens)
	out := make([]providers.Message, 0, len(indices)+1)
	out = append(out, providers.Message{
		Role:    providers.RoleAssistant,
		Content: "[AutoSummary]\n" + summary,
	})
	for _, i := range indices {
		out = append(out, history[i])
	}
	return out
}

// TruncateToTail is the fallback when summary generation fails: only the
// preserved tail survives.
func TruncateToTail(history []providers.Message, retainTokens int) []providers.Message {
	indices, _ := preservedTail(history, retainTokens)
	out := make([]providers.Message, 0, len(indices))
	for _, i := range indices {
		out = append(out, history[i])
	}
	return out
}
