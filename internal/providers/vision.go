package providers

import "strings"

// modelSupportsVision classifies a model identifier by the naming conventions
// the major vendors use for image-capable models.
func modelSupportsVision(model string, openRouter bool) bool {
	lower := strings.ToLower(model)

	if strings.Contains(lower, "claude") {
		for _, pattern := range []string{
			"claude-sonnet-4", "claude-opus-4",
			"claude-3-5-sonnet", "claude-3-5-haiku",
		} {
			if strings.Contains(lower, pattern) {
				return true
			}
		}
		return false
	}

	if strings.Contains(lower, "gpt") {
		for _, pattern := range []string{
			"gpt-4o", "gpt-4.1", "gpt-4-turbo", "chatgpt-4o",
		} {
			if strings.Contains(lower, pattern) {
				return true
			}
		}
		return false
	}

	if strings.Contains(lower, "gemini") {
		return strings.Contains(lower, "2.0-flash") || strings.Contains(lower, "1.5")
	}

	if strings.Contains(lower, "llama") && strings.Contains(lower, "vision") {
		return true
	}
	if strings.Contains(lower, "grok") && strings.Contains(lower, "vision") {
		return true
	}
	if strings.Contains(lower, "qwen") &&
		(strings.Contains(lower, "vl") || strings.Contains(lower, "vision")) {
		return true
	}

	if openRouter {
		for _, kw := range []string{"vision", "vl", "visual", "claude-3", "claude-4", "gpt-4o"} {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}
