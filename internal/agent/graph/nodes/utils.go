package nodes

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/convoengine/internal/agent/model"
)

const DefaultMaxToolIterations = 10

// ===== Small helpers to keep nodes simple/readable =====

// normalizeMaxIterations returns a sane default when the provided value is invalid.
func normalizeMaxIterations(n int) int {
	if n <= 0 {
		return DefaultMaxToolIterations
	}
	return n
}

// incrementIterationAndCheck counts one tool dispatch and reports whether the
// turn is now past its cap.
func incrementIterationAndCheck(t *model.Turn, max int) bool {
	t.Iterations++
	return t.Iterations > normalizeMaxIterations(max)
}

// fillToolCallIDs gives every tool call without an id a turn-unique "call_<n>" id.
// Some back-ends omit ids, and tool results must point back at their call.
func fillToolCallIDs(t *model.Turn, msg *schema.Message) {
	if msg == nil {
		return
	}
	for i := range msg.ToolCalls {
		if strings.TrimSpace(msg.ToolCalls[i].ID) == "" {
			t.ToolCallIDSeq++
			msg.ToolCalls[i].ID = fmt.Sprintf("call_%d", t.ToolCallIDSeq)
		}
	}
}

// MaxRunSteps bounds the compiled graph: one gate, one retrieval, one summary
// and a converse/tools pair per allowed iteration, plus the failing extra pair.
func MaxRunSteps(maxIterations int) int {
	steps := 10 + normalizeMaxIterations(maxIterations)*2
	if steps < 20 {
		steps = 20
	}
	return steps
}
