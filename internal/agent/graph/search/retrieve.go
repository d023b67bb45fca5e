package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/convoengine/internal/agent/graph/parsers"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/graph/prompts"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/llm"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/model"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/providers"
	errx "github.com/Chative-core-poc-v1/convoengine/internal/core/error"
	logx "github.com/Chative-core-poc-v1/convoengine/pkg/logger"
)

const (
	queriesStage  = "query_generation"
	retrieveStage = "retrieve"
)

// Outcome is what one provider contributed to a retrieval.
type Outcome struct {
	Provider  string
	Query     string
	Documents int
	Duration  time.Duration
	Err       error
}

// Retriever runs every enabled provider concurrently and folds the results into
// the conversation's retrieved context.
type Retriever struct {
	invoker         llm.Invoker
	opts            llm.Options
	modelTimeout    time.Duration
	providerTimeout time.Duration
	limits          providers.Limits
}

func NewRetriever(invoker llm.Invoker, opts llm.Options, modelTimeout, providerTimeout time.Duration, limits providers.Limits) *Retriever {
	opts.Tools = nil
	opts.Temperature = 0
	return &Retriever{
		invoker:         invoker,
		opts:            opts,
		modelTimeout:    modelTimeout,
		providerTimeout: providerTimeout,
		limits:          limits,
	}
}

// Retrieve replaces each provider's context entry with its latest result. A
// failing, timed out or empty provider leaves its entry absent; it never fails
// the turn. State is written only after every provider has returned.
func (r *Retriever) Retrieve(ctx context.Context, state *model.ConversationState, ps []providers.Provider) []Outcome {
	if len(ps) == 0 {
		return nil
	}
	q := r.queries(ctx, state)

	outcomes := make([]Outcome, len(ps))
	texts := make([]string, len(ps))
	var wg sync.WaitGroup
	for i, p := range ps {
		wg.Add(1)
		go func(i int, p providers.Provider) {
			defer wg.Done()
			query := q.Natural
			if p.Style() == providers.KeywordQuery {
				query = q.Keyword
			}
			outcomes[i], texts[i] = r.search(ctx, p, query)
		}(i, p)
	}
	wg.Wait()

	for i, o := range outcomes {
		switch {
		case o.Err != nil:
			state.DropContext(o.Provider)
			logx.Warn().
				Err(o.Err).
				Str("conversation_id", state.ConversationID).
				Str("provider", o.Provider).
				Dur("duration", o.Duration).
				Msg("provider failed; context entry dropped")
			continue
		case texts[i] == "":
			state.DropContext(o.Provider)
		default:
			state.SetContext(o.Provider, texts[i])
		}
		logx.Debug().
			Str("conversation_id", state.ConversationID).
			Str("provider", o.Provider).
			Str("query", o.Query).
			Int("documents", o.Documents).
			Dur("duration", o.Duration).
			Msg("provider searched")
	}
	return outcomes
}

func (r *Retriever) search(ctx context.Context, p providers.Provider, query string) (Outcome, string) {
	o := Outcome{Provider: p.Name(), Query: query}
	start := time.Now()

	callCtx := ctx
	if r.providerTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.providerTimeout)
		defer cancel()
	}

	docs, err := searchWithContext(callCtx, p, query)
	o.Duration = time.Since(start)
	if err != nil {
		o.Err = errx.Invocation(retrieveStage, err)
		return o, ""
	}
	o.Documents = len(docs)
	return o, providers.Format(docs, r.limits)
}

// searchWithContext returns as soon as ctx is done, even if the provider
// ignores cancellation.
func searchWithContext(ctx context.Context, p providers.Provider, query string) ([]providers.Document, error) {
	type result struct {
		docs []providers.Document
		err  error
	}
	done := make(chan result, 1)
	go func() {
		docs, err := p.Search(ctx, query)
		done <- result{docs, err}
	}()
	select {
	case res := <-done:
		return res.docs, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// queries makes the single shared query generation call. When it fails, both
// query forms fall back to the latest user message.
func (r *Retriever) queries(ctx context.Context, state *model.ConversationState) parsers.Queries {
	history, latest := splitLatest(state.Messages())

	q, err := r.generate(ctx, history, latest)
	if err != nil {
		logx.Warn().
			Err(err).
			Str("conversation_id", state.ConversationID).
			Msg("query generation failed; searching with the user message")
		latest = strings.TrimSpace(latest)
		return parsers.Queries{Keyword: latest, Natural: latest}
	}
	return q
}

func (r *Retriever) generate(ctx context.Context, history []*schema.Message, latest string) (parsers.Queries, error) {
	msgs, err := prompts.RenderQueries(ctx, prompts.QueriesInput{History: history, Latest: latest})
	if err != nil {
		return parsers.Queries{}, err
	}
	out, err := llm.Call(ctx, r.invoker, r.modelTimeout, queriesStage, msgs, r.opts)
	if err != nil {
		return parsers.Queries{}, err
	}
	return parsers.ParseQueries(out.Content)
}
