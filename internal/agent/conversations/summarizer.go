package conversations

import (
	"context"
	"strings"
	"time"

	"github.com/Chative-core-poc-v1/convoengine/internal/agent/graph/prompts"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/llm"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/convoengine/internal/core/error"
	logx "github.com/Chative-core-poc-v1/convoengine/pkg/logger"
)

const (
	summarizeStage  = "summarize"
	DefaultMaxWords = 250
)

// Summarizer folds discarded messages into a running digest with one model call.
type Summarizer struct {
	invoker  llm.Invoker
	opts     llm.Options
	timeout  time.Duration
	maxWords int
}

func NewSummarizer(invoker llm.Invoker, opts llm.Options, timeout time.Duration) *Summarizer {
	// Summaries are plain text; never expose tools to this call.
	opts.Tools = nil
	return &Summarizer{invoker: invoker, opts: opts, timeout: timeout, maxWords: DefaultMaxWords}
}

// WithMaxWords bounds the digest length requested from the model.
func (s *Summarizer) WithMaxWords(n int) *Summarizer {
	if n > 0 {
		s.maxWords = n
	}
	return s
}

// Summarize returns a fresh summary of discarded when prior is empty, otherwise
// prior extended with discarded. With nothing discarded prior is returned as is.
func (s *Summarizer) Summarize(ctx context.Context, prior string, discarded []*model.Message) (string, error) {
	if len(discarded) == 0 {
		return prior, nil
	}

	msgs, err := prompts.RenderSummary(ctx, prompts.SummaryInput{
		Prior:     prior,
		Discarded: model.Schema(discarded),
		MaxWords:  s.maxWords,
	})
	if err != nil {
		return "", errx.Invocation(summarizeStage, err)
	}

	out, err := llm.Call(ctx, s.invoker, s.timeout, summarizeStage, msgs, s.opts)
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(out.Content)
	if summary == "" {
		return "", errx.Invocation(summarizeStage, llm.ErrEmptyReply)
	}

	logx.Debug().
		Int("discarded", len(discarded)).
		Bool("extended", prior != "").
		Int("summary_chars", len(summary)).
		Msg("summary updated")
	return summary, nil
}
