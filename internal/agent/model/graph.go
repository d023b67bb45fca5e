package model

// Turn is the working state of one pass through the turn router.
// Concurrency model:
//   - A Turn is created per ProcessTurn call and flows through the graph nodes
//     one node at a time; nodes never run concurrently on the same Turn.
//   - State is a clone of the host's ConversationState. It is handed back only
//     when the whole turn succeeds, so a failed turn commits nothing.
type Turn struct {
	State *ConversationState
	Run   RunContext

	Gate GateResult
	// Reply is the latest assistant message produced by the converse stage.
	Reply *Message
	// Iterations counts tool dispatches in this turn.
	Iterations int
	// ToolCallIDSeq synthesizes tool_call ids when a back-end omits them.
	ToolCallIDSeq int
	// Path records the router states visited, in order.
	Path []string
	// Summarized is set when the summarize stage ran in this turn.
	Summarized bool

	// Accumulated total LLM cost (USD) across model invocations for this turn
	TotalCostUSD float64
}

// Visit appends a router state to the turn's path.
func (t *Turn) Visit(node string) {
	t.Path = append(t.Path, node)
}

// TurnResult is what the engine hands back to the host for a completed turn.
type TurnResult struct {
	State   *ConversationState
	Reply   *Message
	Gate    GateResult
	Path    []string
	CostUSD float64
}
