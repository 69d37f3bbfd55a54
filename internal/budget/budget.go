// Package budget bounds the text handed to LLM prompts. Because the service
// supports multiple LLM backends with different tokenizers, it uses a
// conservative character-based heuristic: 1 token ≈ 4 characters (English
// prose). This deliberately under-estimates token counts to leave headroom
// for model-specific overhead.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English prose; 3 would be
	// more aggressive but risks overflowing context windows.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input context budget in
	// tokens. Conservative enough to fit 8k-context models while leaving
	// room for the output.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// Truncate caps s at maxBytes, appending no marker. Used for hard per-field
// caps such as the synthesis section extracts.
func Truncate(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes]
}

// TruncateToTokens caps s at roughly maxTokens using the character
// heuristic. Used to keep whole-document text inside a prompt budget.
func TruncateToTokens(s string, maxTokens int) string {
	return Truncate(s, maxTokens*charsPerToken)
}
