package engine

import "strings"

// EstimateTokens provides a rough token count estimation.
// Uses a simple heuristic: ~4 characters per token for English/code.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}

	charCount := len([]rune(text))
	whitespaceCount := strings.Count(text, " ") + strings.Count(text, "\n") + strings.Count(text, "\t")

	// (characters / 4) + (whitespace / 6): whitespace-heavy text has fewer
	// characters per token.
	estimated := (charCount / 4) + (whitespaceCount / 6)
	if estimated < 1 {
		return 1
	}
	return estimated
}

// messageOverhead approximates the role name and separators of one message.
const messageOverhead = 4

// EstimateUsage approximates token usage of one chat call, for providers
// that do not report it.
func EstimateUsage(messages []ChatMessage, completion string) Usage {
	prompt := 0
	for _, msg := range messages {
		prompt += EstimateTokens(string(msg.Role)) + EstimateTokens(msg.Content) + messageOverhead
	}
	out := EstimateTokens(completion)
	return Usage{Prompt: prompt, Completion: out, Total: prompt + out}
}

// usageOrEstimate returns the provider's usage when it reported any.
func usageOrEstimate(reported Usage, messages []ChatMessage, completion string) (Usage, bool) {
	if reported.Total > 0 || reported.Prompt > 0 || reported.Completion > 0 {
		if reported.Total == 0 {
			reported.Total = reported.Prompt + reported.Completion
		}
		return reported, false
	}
	return EstimateUsage(messages, completion), true
}
