// Package search holds the search decision gate and the retrieval stage.
package search

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/convoengine/internal/agent/graph/parsers"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/graph/prompts"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/llm"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/convoengine/internal/core/error"
	logx "github.com/Chative-core-poc-v1/convoengine/pkg/logger"
)

const gateStage = "search_decision"

// Gate decides whether a turn needs fresh external information.
type Gate struct {
	invoker llm.Invoker
	opts    llm.Options
	timeout time.Duration
}

func NewGate(invoker llm.Invoker, opts llm.Options, timeout time.Duration) *Gate {
	opts.Tools = nil
	// classification wants a short deterministic answer
	opts.Temperature = 0
	return &Gate{invoker: invoker, opts: opts, timeout: timeout}
}

// Decide applies, in order: no providers answers from history; a conversation
// without an assistant turn searches; otherwise a classification call decides.
// An unreadable classification falls back to searching.
func (g *Gate) Decide(ctx context.Context, state *model.ConversationState, providers []string) (model.GateResult, error) {
	if len(providers) == 0 {
		return model.GateResult{Decision: model.AnswerFromHistory, Justification: "no search providers enabled"}, nil
	}
	if !state.HasAssistantTurn() {
		return model.GateResult{Decision: model.NeedsNewSearch, Justification: "first turn of the conversation"}, nil
	}

	history, latest := splitLatest(state.Messages())
	msgs, err := prompts.RenderGate(ctx, prompts.GateInput{
		History:  history,
		Contexts: prompts.ContextBlocks(state.RetrievedContext),
		Latest:   latest,
	})
	if err != nil {
		return model.GateResult{}, errx.Invocation(gateStage, err)
	}

	out, err := llm.Call(ctx, g.invoker, g.timeout, gateStage, msgs, g.opts)
	if err != nil {
		return model.GateResult{}, err
	}

	res, err := parsers.ParseDecision(out.Content)
	if err != nil {
		logx.Warn().
			Err(err).
			Str("conversation_id", state.ConversationID).
			Msg("unreadable search decision; searching")
		return model.GateResult{Decision: model.NeedsNewSearch, Justification: "classifier answer could not be parsed"}, nil
	}
	return res, nil
}

// splitLatest separates the latest user message from the history before it.
func splitLatest(msgs []*model.Message) ([]*schema.Message, string) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].IsUser() {
			return model.Schema(msgs[:i]), msgs[i].Content
		}
	}
	return model.Schema(msgs), ""
}
