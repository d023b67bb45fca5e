package conversations

import (
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/convoengine/internal/core/error"
)

// Reduction is the result of applying a strategy to a message log.
// Kept is always a suffix of the input and Removed the matching prefix.
type Reduction struct {
	Kept    []*model.Message
	Removed []*model.Message
}

// Reduce selects the window of msgs to keep under strategy and budget.
//
// Windows never start with a tool result whose request was cut off, and a
// non-empty log always yields a non-empty window.
func Reduce(msgs []*model.Message, strategy model.Strategy, budget int) (Reduction, error) {
	var start int
	switch strategy {
	case model.StrategyKeepAll, model.StrategySummarize:
		// summarize bounds the live log itself; the window is everything live.
		start = 0
	case model.StrategyTrimCount, model.StrategyTrimTokens:
		start = trimStart(msgs, EstimatorFor(strategy), budget)
	case model.StrategyDeleteOldest:
		start = keepLastStart(msgs, budget)
	default:
		return Reduction{}, errx.Configuration("unknown messages strategy %q", strategy)
	}

	red := Reduction{Kept: msgs[start:], Removed: msgs[:start]}
	if len(msgs) > 0 && len(red.Kept) == 0 {
		return Reduction{}, errx.BudgetExhausted("strategy %s with budget %d kept no messages", strategy, budget)
	}
	return red, nil
}

// trimStart walks backward accumulating cost while it fits the budget, then moves
// the cut forward onto a user message. Without a user message inside the budget it
// starts on the first message that is not an orphaned tool result; without that
// either, it falls back to the smallest coherent tail.
func trimStart(msgs []*model.Message, cost Estimator, budget int) int {
	n := len(msgs)
	if n == 0 {
		return 0
	}

	start, used := n, 0
	for i := n - 1; i >= 0; i-- {
		c := cost(msgs[i : i+1])
		if used+c > budget {
			break
		}
		used += c
		start = i
	}
	if start == n {
		return coherentTailStart(msgs)
	}

	if i := indexFrom(msgs, start, (*model.Message).IsUser); i >= 0 {
		return i
	}
	if i := indexFrom(msgs, start, notTool); i >= 0 {
		return i
	}
	return coherentTailStart(msgs)
}

// keepLastStart keeps the last n messages, extending the window backward when its
// first message would be a tool result separated from its request.
func keepLastStart(msgs []*model.Message, n int) int {
	start := len(msgs) - n
	if start < 0 {
		start = 0
	}
	for start > 0 && start < len(msgs) && msgs[start].IsTool() {
		start--
	}
	return start
}

// SplitForSummary partitions msgs into the prefix to summarize and the retained
// tail of at most tail messages. The tail starts on a user message when one is
// available, otherwise on the first message that is not a tool result.
func SplitForSummary(msgs []*model.Message, tail int) (older, kept []*model.Message) {
	n := len(msgs)
	if n <= tail {
		return nil, msgs
	}
	start := n - tail
	if start < 0 {
		start = 0
	}
	switch i := indexFrom(msgs, start, (*model.Message).IsUser); {
	case i >= 0:
		start = i
	default:
		if j := indexFrom(msgs, start, notTool); j >= 0 {
			start = j
		} else {
			start = coherentTailStart(msgs)
		}
	}
	return msgs[:start], msgs[start:]
}

// coherentTailStart is the start of the smallest suffix that contains the latest
// message and no orphaned tool result.
func coherentTailStart(msgs []*model.Message) int {
	i := len(msgs) - 1
	for i > 0 && msgs[i].IsTool() {
		i--
	}
	if i < 0 {
		return 0
	}
	return i
}

func indexFrom(msgs []*model.Message, from int, pred func(*model.Message) bool) int {
	for i := from; i < len(msgs); i++ {
		if pred(msgs[i]) {
			return i
		}
	}
	return -1
}

func notTool(m *model.Message) bool { return !m.IsTool() }
