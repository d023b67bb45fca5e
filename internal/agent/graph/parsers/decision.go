package parsers

import (
	"fmt"
	"strings"

	"github.com/Chative-core-poc-v1/convoengine/internal/agent/model"
)

// ErrUnknownDecision is returned when the classifier answered outside the enumeration.
var ErrUnknownDecision = fmt.Errorf("decision outside %v", model.Decisions)

// ParseDecision reads {"decision": ..., "justification": ...} from a gate reply.
// A reply that is not JSON but names exactly one decision is accepted as well.
func ParseDecision(content string) (model.GateResult, error) {
	obj, err := extractObject("decision_parser", content)
	if err != nil {
		if d, ok := soleDecision(content); ok {
			return model.GateResult{Decision: d, Justification: snippet(content)}, nil
		}
		return model.GateResult{}, err
	}

	raw := field(obj, "decision")
	d, ok := model.ParseDecision(raw)
	if !ok {
		return model.GateResult{}, fmt.Errorf("%w: %q", ErrUnknownDecision, raw)
	}
	return model.GateResult{
		Decision:      d,
		Justification: field(obj, "justification"),
	}, nil
}

// soleDecision matches free text that mentions exactly one decision value.
func soleDecision(content string) (model.Decision, bool) {
	lower := strings.ToLower(content)
	var found model.Decision
	n := 0
	for _, d := range model.Decisions {
		if strings.Contains(lower, string(d)) {
			found = d
			n++
		}
	}
	return found, n == 1
}
