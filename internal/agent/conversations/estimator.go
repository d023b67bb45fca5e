package conversations

import (
	"unicode/utf8"

	"github.com/Chative-core-poc-v1/convoengine/internal/agent/model"
)

// Token heuristic: one token per CharsPerToken runes of content (rounded up), plus
// MessageOverhead per message for role and framing, plus ToolCallOverhead and the
// name/arguments text for every tool call. It deliberately over-counts rather than
// under-counts; callers must not treat it as tokenizer-exact.
const (
	CharsPerToken    = 4
	MessageOverhead  = 4
	ToolCallOverhead = 8
)

// Estimator returns the cost of a message sequence under one metric.
type Estimator func(msgs []*model.Message) int

// CountMessages is the message-count metric.
func CountMessages(msgs []*model.Message) int {
	return len(msgs)
}

// ApproxTokens is the approximate token metric.
func ApproxTokens(msgs []*model.Message) int {
	total := 0
	for _, m := range msgs {
		total += MessageTokens(m)
	}
	return total
}

// MessageTokens estimates the tokens of a single message.
func MessageTokens(m *model.Message) int {
	if m == nil || m.Message == nil {
		return 0
	}
	n := MessageOverhead + ceilDiv(utf8.RuneCountInString(m.Content), CharsPerToken)
	for _, tc := range m.ToolCalls {
		text := utf8.RuneCountInString(tc.Function.Name) + utf8.RuneCountInString(tc.Function.Arguments)
		n += ToolCallOverhead + ceilDiv(text, CharsPerToken)
	}
	return n
}

// EstimatorFor picks the metric a strategy budgets against.
func EstimatorFor(strategy model.Strategy) Estimator {
	if strategy == model.StrategyTrimTokens {
		return ApproxTokens
	}
	return CountMessages
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
