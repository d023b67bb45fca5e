// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "convoengine"

// Metrics groups the engine collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Turns counts finished turns.
	// Labels: outcome (ok|invocation|configuration|budget_exhausted|internal)
	Turns *prometheus.CounterVec

	// TurnDuration measures end to end turn latency in seconds.
	TurnDuration prometheus.Histogram

	// Decisions counts search gate outcomes.
	// Labels: decision
	Decisions *prometheus.CounterVec

	// Transitions counts router state visits.
	// Labels: state
	Transitions *prometheus.CounterVec

	// ModelCalls counts model invocations.
	// Labels: backend, model, status (success|error)
	ModelCalls *prometheus.CounterVec

	// ModelCostUSD accumulates the estimated model spend.
	// Labels: backend, model
	ModelCostUSD *prometheus.CounterVec

	// ProviderSearches counts provider calls.
	// Labels: provider, status (success|empty|error)
	ProviderSearches *prometheus.CounterVec

	// ProviderDuration measures provider latency in seconds.
	// Labels: provider
	ProviderDuration *prometheus.HistogramVec

	// ToolCalls counts dispatched tool calls.
	// Labels: tool
	ToolCalls *prometheus.CounterVec

	// Reductions counts messages removed from the live set.
	// Labels: strategy
	Reductions *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. Passing nil uses the
// default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of processed turns by outcome",
		}, []string{"outcome"}),

		TurnDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Duration of a whole turn in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),

		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_decisions_total",
			Help:      "Total number of search gate decisions",
		}, []string{"decision"}),

		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "router_transitions_total",
			Help:      "Total number of router state visits",
		}, []string{"state"}),

		ModelCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Total number of model invocations by back-end, model and status",
		}, []string{"backend", "model", "status"}),

		ModelCostUSD: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_cost_usd_total",
			Help:      "Estimated model spend in USD",
		}, []string{"backend", "model"}),

		ProviderSearches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_searches_total",
			Help:      "Total number of provider searches by status",
		}, []string{"provider", "status"}),

		ProviderDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_search_duration_seconds",
			Help:      "Duration of provider searches in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"provider"}),

		ToolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of dispatched tool calls",
		}, []string{"tool"}),

		Reductions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reduced_messages_total",
			Help:      "Total number of messages removed from the live set",
		}, []string{"strategy"}),
	}
}

func (m *Metrics) Turn(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(outcome).Inc()
	m.TurnDuration.Observe(d.Seconds())
}

func (m *Metrics) Decision(decision string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) Transition(state string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(state).Inc()
}

func (m *Metrics) ModelCall(backend, model string, err error) {
	if m == nil {
		return
	}
	m.ModelCalls.WithLabelValues(backend, model, status(err)).Inc()
}

func (m *Metrics) ModelCost(backend, model string, usd float64) {
	if m == nil || usd <= 0 {
		return
	}
	m.ModelCostUSD.WithLabelValues(backend, model).Add(usd)
}

// ProviderSearch records one provider call. documents is ignored when err is set.
func (m *Metrics) ProviderSearch(provider string, documents int, d time.Duration, err error) {
	if m == nil {
		return
	}
	st := status(err)
	if err == nil && documents == 0 {
		st = "empty"
	}
	m.ProviderSearches.WithLabelValues(provider, st).Inc()
	m.ProviderDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) ToolCall(tool string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool).Inc()
}

func (m *Metrics) Reduced(strategy string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Reductions.WithLabelValues(strategy).Add(float64(n))
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
