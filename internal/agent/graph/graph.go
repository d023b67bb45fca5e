// Package graph is the conversation engine: it runs one user turn through the
// turn router and hands back the new conversation state.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"

	"github.com/Chative-core-poc-v1/convoengine/internal/agent/conversations"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/graph/nodes"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/graph/observers"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/graph/search"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/graph/tools"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/llm"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/metrics"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/model"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/providers"
	errx "github.com/Chative-core-poc-v1/convoengine/internal/core/error"
	logx "github.com/Chative-core-poc-v1/convoengine/pkg/logger"
)

const graphName = "turn_router"

// Limits bounds every external call and the retrieved context size.
type Limits struct {
	ModelTimeout    time.Duration
	ToolTimeout     time.Duration
	ProviderTimeout time.Duration
	Retrieval       providers.Limits
	// SummaryMaxWords bounds the running summary; zero keeps the summarizer default.
	SummaryMaxWords int
}

// DefaultLimits mirrors the environment defaults.
var DefaultLimits = Limits{
	ModelTimeout:    60 * time.Second,
	ToolTimeout:     60 * time.Second,
	ProviderTimeout: 15 * time.Second,
	Retrieval:       providers.Limits{MaxDocuments: 3, MaxDocumentChars: 4000},
	SummaryMaxWords: conversations.DefaultMaxWords,
}

// Dependencies are the capabilities injected into the engine.
type Dependencies struct {
	Factory   llm.Factory
	Tools     tools.Registry
	Providers providers.Registry
	// Metrics may be nil.
	Metrics *metrics.Metrics
	Limits  Limits
}

// Engine processes turns. It holds no conversation state of its own and is
// safe for concurrent use across conversations.
type Engine struct {
	deps Dependencies
}

func New(ctx context.Context, deps Dependencies) (*Engine, error) {
	if deps.Factory == nil {
		return nil, errx.Configuration("model factory is nil")
	}
	if deps.Tools == nil {
		deps.Tools = tools.Registry{}
	}
	if deps.Providers == nil {
		deps.Providers = providers.Registry{}
	}
	logx.Debug().
		Strs("tools", deps.Tools.Names()).
		Strs("providers", deps.Providers.Names()).
		Msg("Engine ready")
	return &Engine{deps: deps}, nil
}

// ProcessTurn runs one user turn against state and returns the new state. state
// itself is never modified; on error nothing of the turn is kept.
func (e *Engine) ProcessTurn(ctx context.Context, state *model.ConversationState, rc model.RunContext, incoming *model.Message) (*model.ConversationState, error) {
	res, err := e.Run(ctx, state, rc, incoming)
	if err != nil {
		return nil, err
	}
	return res.State, nil
}

// Run is ProcessTurn with the turn's reply, gate decision, path and cost.
func (e *Engine) Run(ctx context.Context, state *model.ConversationState, rc model.RunContext, incoming *model.Message) (*model.TurnResult, error) {
	start := time.Now()
	res, err := e.run(ctx, state, rc, incoming)
	e.deps.Metrics.Turn(outcome(err), time.Since(start))
	return res, err
}

func (e *Engine) run(ctx context.Context, state *model.ConversationState, rc model.RunContext, incoming *model.Message) (*model.TurnResult, error) {
	if state == nil {
		return nil, errx.Configuration("conversation state is nil")
	}
	if !incoming.IsUser() {
		return nil, errx.Configuration("incoming message must be a user message, got role %q", incoming.Role())
	}
	rc, err := rc.Canonical()
	if err != nil {
		return nil, err
	}

	stages, meter, err := e.prepare(ctx, state.ConversationID, rc)
	if err != nil {
		return nil, err
	}
	runnable, err := buildGraph(ctx, stages)
	if err != nil {
		return nil, err
	}

	turn := &model.Turn{State: state.Clone(), Run: rc}
	turn.State.Append(incoming)

	out, err := runnable.Invoke(ctx, turn, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		if errx.KindOf(err) == "" {
			if typed := stages.Err(); typed != nil {
				err = typed
			}
		}
		logx.Error().
			Err(err).
			Str("conversation_id", state.ConversationID).
			Strs("path", turn.Path).
			Msg("Turn failed; nothing committed")
		return nil, err
	}

	out.TotalCostUSD = meter.TotalUSD()
	out.State.Turns++

	logx.Info().
		Str("conversation_id", state.ConversationID).
		Strs("path", out.Path).
		Str("decision", string(out.Gate.Decision)).
		Int("live", out.State.Len()).
		Float64("cost_usd", out.TotalCostUSD).
		Msg("Turn done")

	return &model.TurnResult{
		State:   out.State,
		Reply:   out.Reply,
		Gate:    out.Gate,
		Path:    out.Path,
		CostUSD: out.TotalCostUSD,
	}, nil
}

// prepare resolves everything the run context names. Every configuration error
// surfaces here, before any external call.
func (e *Engine) prepare(ctx context.Context, conversationID string, rc model.RunContext) (*nodes.Stages, *nodes.Meter, error) {
	resolved, err := e.deps.Factory.Resolve(ctx, rc.Model)
	if err != nil {
		return nil, nil, err
	}
	enabled, infos, err := e.deps.Tools.Select(ctx, rc.Tools)
	if err != nil {
		return nil, nil, err
	}
	ps, err := e.deps.Providers.Select(rc.Providers)
	if err != nil {
		return nil, nil, err
	}
	dispatcher, err := tools.NewDispatcher(ctx, enabled, rc.Tools)
	if err != nil {
		return nil, nil, err
	}

	limits := e.deps.Limits
	meter := nodes.NewMeter(resolved.Invoker, resolved.Backend, resolved.Model, conversationID, e.deps.Metrics)
	opts := llm.Options{Model: resolved.Model, Temperature: rc.Temperature, MaxTokens: rc.MaxTokens}
	converseOpts := opts
	converseOpts.Tools = infos

	return &nodes.Stages{
		Invoker:       meter,
		Options:       converseOpts,
		ModelTimeout:  limits.ModelTimeout,
		ToolTimeout:   limits.ToolTimeout,
		Gate:          search.NewGate(meter, opts, limits.ModelTimeout),
		Retriever:     search.NewRetriever(meter, opts, limits.ModelTimeout, limits.ProviderTimeout, limits.Retrieval),
		Providers:     ps,
		Manager:       conversations.NewMessagesManager(rc),
		Summarizer:    conversations.NewSummarizer(meter, opts, limits.ModelTimeout).WithMaxWords(limits.SummaryMaxWords),
		Dispatcher:    dispatcher,
		ToolNames:     rc.Tools,
		MaxIterations: rc.MaxToolIterations,
		Metrics:       e.deps.Metrics,
	}, meter, nil
}

// GraphBuilder handles the construction of the turn router graph.
type GraphBuilder struct {
	stages *nodes.Stages
	graph  *compose.Graph[*model.Turn, *model.Turn]
}

// buildGraph constructs and compiles the router for one turn.
func buildGraph(ctx context.Context, s *nodes.Stages) (compose.Runnable[*model.Turn, *model.Turn], error) {
	b := &GraphBuilder{
		stages: s,
		graph:  compose.NewGraph[*model.Turn, *model.Turn](),
	}
	if err := b.addNodes(); err != nil {
		return nil, err
	}
	if err := b.addEdges(); err != nil {
		return nil, err
	}
	if err := b.addBranches(); err != nil {
		return nil, err
	}
	return b.compile(ctx)
}

// addNodes adds all router states to the graph
func (b *GraphBuilder) addNodes() error {
	lambdas := []struct {
		key    string
		lambda *compose.Lambda
	}{
		{nodes.NodeSearchDecision, nodes.NewSearchDecisionNode(b.stages)},
		{nodes.NodeRetrieve, nodes.NewRetrieveNode(b.stages)},
		{nodes.NodeConverse, nodes.NewConverseNode(b.stages)},
		{nodes.NodeTools, nodes.NewToolsNode(b.stages)},
		{nodes.NodeSummarize, nodes.NewSummarizeNode(b.stages)},
	}
	for _, l := range lambdas {
		if err := b.graph.AddLambdaNode(l.key, l.lambda, compose.WithNodeName(l.key)); err != nil {
			return fmt.Errorf("error adding node %s: %w", l.key, err)
		}
	}
	return nil
}

// addEdges creates the unconditional transitions
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeSearchDecision},
		{nodes.NodeRetrieve, nodes.NodeConverse},
		{nodes.NodeTools, nodes.NodeConverse},
		{nodes.NodeSummarize, compose.END},
	}
	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			return fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates the conditional transitions
func (b *GraphBuilder) addBranches() error {
	searchBranch := compose.NewGraphBranch(
		nodes.NewSearchDecisionCondition(b.stages),
		map[string]bool{
			nodes.NodeRetrieve: true,
			nodes.NodeConverse: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeSearchDecision, searchBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding search branch")
		return fmt.Errorf("error adding search branch: %w", err)
	}

	replyBranch := compose.NewGraphBranch(
		nodes.NewConverseCondition(b.stages),
		map[string]bool{
			nodes.NodeTools:     true,
			nodes.NodeSummarize: true,
			compose.END:         true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeConverse, replyBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding reply branch")
		return fmt.Errorf("error adding reply branch: %w", err)
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[*model.Turn, *model.Turn], error) {
	runnable, err := b.graph.Compile(ctx,
		compose.WithGraphName(graphName),
		compose.WithMaxRunSteps(nodes.MaxRunSteps(b.stages.MaxIterations)),
	)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}
	return runnable, nil
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if k := errx.KindOf(err); k != "" {
		return string(k)
	}
	return string(errx.KindInternal)
}
