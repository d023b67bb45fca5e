package nodes

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/convoengine/internal/agent/llm"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/metrics"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/model"
	logx "github.com/Chative-core-poc-v1/convoengine/pkg/logger"
)

// Meter is an llm.Invoker that prices every reply's token usage and keeps the
// running total of a turn. One Meter serves one turn.
type Meter struct {
	inner          llm.Invoker
	backend        string
	model          string
	conversationID string
	metrics        *metrics.Metrics

	mu    sync.Mutex
	total float64
}

func NewMeter(inner llm.Invoker, backend, modelName, conversationID string, m *metrics.Metrics) *Meter {
	return &Meter{
		inner:          inner,
		backend:        backend,
		model:          modelName,
		conversationID: conversationID,
		metrics:        m,
	}
}

func (mt *Meter) Invoke(ctx context.Context, msgs []*schema.Message, opts llm.Options) (*schema.Message, error) {
	out, err := mt.inner.Invoke(ctx, msgs, opts)
	mt.metrics.ModelCall(mt.backend, mt.model, err)
	if err != nil || out == nil || out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return out, err
	}

	usage := out.ResponseMeta.Usage
	inC, outC, totalC := model.ComputeCost(usage, model.ResolvePricing(mt.model))

	mt.mu.Lock()
	mt.total += totalC
	running := mt.total
	mt.mu.Unlock()
	mt.metrics.ModelCost(mt.backend, mt.model, totalC)

	logx.Debug().
		Str("conversation_id", mt.conversationID).
		Str("backend", mt.backend).
		Str("model", mt.model).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Float64("turn_cost_usd", running).
		Msg("LLM usage")
	return out, nil
}

// TotalUSD is the cost of every priced reply seen so far.
func (mt *Meter) TotalUSD() float64 {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.total
}
