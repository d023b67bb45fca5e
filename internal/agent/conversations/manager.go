package conversations

import (
	"context"

	"github.com/Chative-core-poc-v1/convoengine/internal/agent/model"
	logx "github.com/Chative-core-poc-v1/convoengine/pkg/logger"
)

// MessagesManager applies a run's messages strategy to a conversation state.
type MessagesManager struct {
	run model.RunContext
}

func NewMessagesManager(run model.RunContext) *MessagesManager {
	return &MessagesManager{run: run}
}

// Window returns the messages to send to the model for this call.
//
// delete-oldest discards the removed prefix from the live set; the trim
// strategies only narrow the window and leave the live set untouched.
func (mm *MessagesManager) Window(state *model.ConversationState) ([]*model.Message, error) {
	live := state.Messages()
	red, err := Reduce(live, mm.run.Strategy, mm.run.Budget)
	if err != nil {
		return nil, err
	}
	if mm.run.Strategy == model.StrategyDeleteOldest && len(red.Removed) > 0 {
		state.Remove(ids(red.Removed)...)
		logx.Debug().
			Str("conversation_id", state.ConversationID).
			Int("removed", len(red.Removed)).
			Msg("deleted oldest messages")
	}
	return red.Kept, nil
}

// NeedsCompaction reports whether the summarize strategy's threshold is exceeded.
func (mm *MessagesManager) NeedsCompaction(state *model.ConversationState) bool {
	return mm.run.Strategy == model.StrategySummarize && state.Len() > mm.run.SummarizeThreshold
}

// Compact summarizes every live message older than the retained tail into
// state.Summary and logically deletes them. It returns the number of messages removed.
func (mm *MessagesManager) Compact(ctx context.Context, state *model.ConversationState, s *Summarizer) (int, error) {
	older, _ := SplitForSummary(state.Messages(), mm.run.RetainTail)
	if len(older) == 0 {
		return 0, nil
	}

	summary, err := s.Summarize(ctx, state.Summary, older)
	if err != nil {
		return 0, err
	}
	state.Summary = summary
	state.Remove(ids(older)...)

	logx.Info().
		Str("conversation_id", state.ConversationID).
		Int("summarized", len(older)).
		Int("live", state.Len()).
		Msg("conversation compacted")
	return len(older), nil
}

func ids(msgs []*model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
