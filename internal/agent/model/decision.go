package model

import "strings"

// Decision is the outcome of the search decision gate.
type Decision string

const (
	AnswerFromContext Decision = "answer_from_context"
	AnswerFromHistory Decision = "answer_from_history"
	NeedsNewSearch    Decision = "needs_new_search"
)

// Decisions lists every valid Decision, in prompt order.
var Decisions = []Decision{AnswerFromContext, AnswerFromHistory, NeedsNewSearch}

// ParseDecision matches s against the known decisions, ignoring case and surrounding space.
func ParseDecision(s string) (Decision, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, d := range Decisions {
		if string(d) == s {
			return d, true
		}
	}
	return "", false
}

func (d Decision) NeedsSearch() bool { return d == NeedsNewSearch }

// GateResult is a decision plus the classifier's justification, kept for logging only.
type GateResult struct {
	Decision      Decision `json:"decision"`
	Justification string   `json:"justification,omitempty"`
}
