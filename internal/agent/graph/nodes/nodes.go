// Package nodes holds the turn router's states and the branch conditions between them.
package nodes

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"

	"github.com/Chative-core-poc-v1/convoengine/internal/agent/conversations"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/graph/prompts"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/graph/search"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/graph/tools"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/llm"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/metrics"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/model"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/providers"
	errx "github.com/Chative-core-poc-v1/convoengine/internal/core/error"
	logx "github.com/Chative-core-poc-v1/convoengine/pkg/logger"
)

const (
	NodeSearchDecision = "SEARCH_DECISION"
	NodeRetrieve       = "RETRIEVE"
	NodeConverse       = "CONVERSE"
	NodeTools          = "TOOLS"
	NodeSummarize      = "SUMMARIZE"
)

const (
	converseStage = "converse"
	toolsStage    = "tools"
)

// Stages is everything the router needs for one turn: the resolved model, the
// enabled tools and providers, and the run's reduction policy.
type Stages struct {
	Invoker      llm.Invoker
	Options      llm.Options
	ModelTimeout time.Duration
	ToolTimeout  time.Duration

	Gate       *search.Gate
	Retriever  *search.Retriever
	Providers  []providers.Provider
	Manager    *conversations.MessagesManager
	Summarizer *conversations.Summarizer
	Dispatcher *tools.Dispatcher
	ToolNames  []string

	MaxIterations int
	Metrics       *metrics.Metrics

	mu      sync.Mutex
	failure error
}

// fail records the first typed error a node returned, so the engine can report
// it even when the graph runtime wraps it.
func (s *Stages) fail(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure == nil {
		s.failure = err
	}
	return err
}

// Err returns the first error recorded by a node, if any.
func (s *Stages) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

func (s *Stages) providerNames() []string {
	out := make([]string, len(s.Providers))
	for i, p := range s.Providers {
		out[i] = p.Name()
	}
	return out
}

func (s *Stages) enter(t *model.Turn, node string) {
	t.Visit(node)
	s.Metrics.Transition(node)
}

// NewSearchDecisionNode runs the gate and stores its decision on the turn.
func NewSearchDecisionNode(s *Stages) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, t *model.Turn) (*model.Turn, error) {
		s.enter(t, NodeSearchDecision)

		res, err := s.Gate.Decide(ctx, t.State, s.providerNames())
		if err != nil {
			return nil, s.fail(err)
		}
		t.Gate = res
		s.Metrics.Decision(string(res.Decision))

		logx.Debug().
			Str("conversation_id", t.State.ConversationID).
			Str("decision", string(res.Decision)).
			Str("justification", res.Justification).
			Msg("search decision")
		return t, nil
	})
}

// NewSearchDecisionCondition routes to retrieval only when a new search is needed.
func NewSearchDecisionCondition(s *Stages) func(context.Context, *model.Turn) (string, error) {
	return func(ctx context.Context, t *model.Turn) (string, error) {
		if t.Gate.Decision.NeedsSearch() && len(s.Providers) > 0 {
			return NodeRetrieve, nil
		}
		return NodeConverse, nil
	}
}

// NewRetrieveNode refreshes the retrieved context. Provider failures never fail the turn.
func NewRetrieveNode(s *Stages) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, t *model.Turn) (*model.Turn, error) {
		s.enter(t, NodeRetrieve)

		for _, o := range s.Retriever.Retrieve(ctx, t.State, s.Providers) {
			s.Metrics.ProviderSearch(o.Provider, o.Documents, o.Duration, o.Err)
		}
		return t, nil
	})
}

// NewConverseNode reduces the history, renders the prompt and calls the model.
// The reply is appended to the conversation before routing.
func NewConverseNode(s *Stages) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, t *model.Turn) (*model.Turn, error) {
		s.enter(t, NodeConverse)

		before := t.State.Len()
		window, err := s.Manager.Window(t.State)
		if err != nil {
			return nil, s.fail(err)
		}
		s.Metrics.Reduced(string(t.Run.Strategy), before-t.State.Len())

		msgs, err := prompts.RenderConversation(ctx, prompts.ConversationInput{
			Summary:      t.State.Summary,
			Contexts:     prompts.ContextBlocks(t.State.RetrievedContext),
			Tools:        s.ToolNames,
			ShellTimeout: s.ToolTimeout,
		}, model.Schema(window))
		if err != nil {
			return nil, s.fail(fmt.Errorf("render conversation prompt: %w", err))
		}

		out, err := llm.Call(ctx, s.Invoker, s.ModelTimeout, converseStage, msgs, s.Options)
		if err != nil {
			return nil, s.fail(err)
		}
		fillToolCallIDs(t, out)

		reply := model.NewMessage(out)
		t.State.Append(reply)
		t.Reply = reply

		if len(out.ToolCalls) > 0 {
			logx.Debug().
				Str("conversation_id", t.State.ConversationID).
				Int("tool_count", len(out.ToolCalls)).
				Msg("Calling tools")
		} else {
			logx.Debug().
				Str("conversation_id", t.State.ConversationID).
				Int("window", len(window)).
				Msg("AI response ready")
		}
		return t, nil
	})
}

// NewConverseCondition sends a tool-call reply to TOOLS, an over-threshold
// summarize conversation to SUMMARIZE, and everything else to END.
func NewConverseCondition(s *Stages) func(context.Context, *model.Turn) (string, error) {
	return func(ctx context.Context, t *model.Turn) (string, error) {
		if t.Reply.IsToolRequest() {
			return NodeTools, nil
		}
		if s.Manager.NeedsCompaction(t.State) {
			return NodeSummarize, nil
		}
		return compose.END, nil
	}
}

// NewToolsNode dispatches the reply's tool calls and appends one result per call.
func NewToolsNode(s *Stages) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, t *model.Turn) (*model.Turn, error) {
		s.enter(t, NodeTools)

		if incrementIterationAndCheck(t, s.MaxIterations) {
			limit := normalizeMaxIterations(s.MaxIterations)
			logx.Warn().
				Str("conversation_id", t.State.ConversationID).
				Int("tool_iterations", t.Iterations).
				Int("max_tool_iterations", limit).
				Msg("Tool iteration limit exceeded")
			return nil, s.fail(errx.Invocation(toolsStage,
				fmt.Errorf("%w: %d dispatches allowed", errx.ErrIterationLimit, limit)))
		}

		results, err := s.Dispatcher.Dispatch(ctx, t.Reply.Message)
		if err != nil {
			return nil, s.fail(errx.Invocation(toolsStage, err))
		}
		for _, m := range results {
			t.State.Append(model.NewMessage(m))
			s.Metrics.ToolCall(m.ToolName)
		}

		logx.Debug().
			Str("conversation_id", t.State.ConversationID).
			Int("tool_iterations", t.Iterations).
			Int("results", len(results)).
			Msg("Tool execution done")
		return t, nil
	})
}

// NewSummarizeNode folds everything older than the retained tail into the summary.
func NewSummarizeNode(s *Stages) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, t *model.Turn) (*model.Turn, error) {
		s.enter(t, NodeSummarize)

		n, err := s.Manager.Compact(ctx, t.State, s.Summarizer)
		if err != nil {
			return nil, s.fail(err)
		}
		t.Summarized = true
		s.Metrics.Reduced(string(t.Run.Strategy), n)
		return t, nil
	})
}
