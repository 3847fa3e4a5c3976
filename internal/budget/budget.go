// Package budget estimates prompt sizes for the chat backends kbrag talks
// to. The backends use different tokenizers, so a character heuristic of
// 1 token ≈ 4 characters stands in for all of them.
package budget

import (
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

const (
	charsPerToken = 4

	// perMessageOverhead approximates the role/framing tokens most chat APIs
	// add around each message.
	perMessageOverhead = 4

	// DefaultMaxContextTokens is the input budget assumed when
	// MODEL_MAX_CONTEXT_TOKENS is unset. It fits 8k-context models with room
	// for the answer.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s. Any non-empty string counts as
// at least one token.
func Estimate(s string) int {
	n := utf8.RuneCountInString(s) / charsPerToken
	if n == 0 && s != "" {
		return 1
	}
	return n
}

// EstimateMessages sums role, content and framing overhead over msgs.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		if m == nil {
			continue
		}
		total += perMessageOverhead + Estimate(string(m.Role)) + Estimate(m.Content)
	}
	return total
}

// Report is the outcome of [Check].
type Report struct {
	Tokens int
	Max    int
}

// Over reports whether the estimate exceeds the budget.
func (r Report) Over() bool { return r.Max > 0 && r.Tokens > r.Max }

// Check estimates msgs against maxTokens. A non-positive maxTokens uses
// [DefaultMaxContextTokens].
func Check(msgs []*schema.Message, maxTokens int) Report {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}
	return Report{Tokens: EstimateMessages(msgs), Max: maxTokens}
}
