package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/convoengine/internal/agent/model"
)

var (
	//go:embed template/persona.txt
	personaPrompt string
	//go:embed template/gate.txt
	gatePrompt string
	//go:embed template/gate_input.txt
	gateInputPrompt string
	//go:embed template/queries.txt
	queriesPrompt string
	//go:embed template/queries_input.txt
	queriesInputPrompt string
	//go:embed template/summary.txt
	summaryPrompt string
	//go:embed template/summary_input.txt
	summaryInputPrompt string
)

const historyKey = "history"

// ContextBlock is one provider's retrieved text, rendered in provider-name order.
type ContextBlock struct {
	Provider string
	Text     string
}

// ContextBlocks orders a provider → text map by provider name, skipping blanks.
func ContextBlocks(m map[string]string) []ContextBlock {
	out := make([]ContextBlock, 0, len(m))
	for p, text := range m {
		if strings.TrimSpace(text) == "" {
			continue
		}
		out = append(out, ContextBlock{Provider: p, Text: text})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// ConversationInput feeds the persona template.
type ConversationInput struct {
	Summary      string
	Contexts     []ContextBlock
	Tools        []string
	ShellTimeout time.Duration
}

// RenderConversation builds the converse-stage prompt: one system message holding
// the persona, the summary block and the retrieved context blocks, followed by
// the reduced history window.
func RenderConversation(ctx context.Context, in ConversationInput, history []*schema.Message) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(personaPrompt),
		schema.MessagesPlaceholder(historyKey, false),
	)
	hasShell := false
	for _, t := range in.Tools {
		if t == "shell" {
			hasShell = true
		}
	}
	msgs, err := tpl.Format(ctx, map[string]any{
		"Summary":      in.Summary,
		"Contexts":     in.Contexts,
		"Tools":        in.Tools,
		"ToolList":     strings.Join(in.Tools, ", "),
		"HasShell":     hasShell,
		"ShellTimeout": in.ShellTimeout.String(),
		historyKey:     history,
	})
	if err != nil {
		return nil, fmt.Errorf("conversation prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return nil, fmt.Errorf("conversation prompt render: empty result")
	}
	return msgs, nil
}

// GateInput feeds the search decision classifier.
type GateInput struct {
	History  []*schema.Message
	Contexts []ContextBlock
	Latest   string
}

// RenderGate builds the classification prompt for the search decision gate.
func RenderGate(ctx context.Context, in GateInput) ([]*schema.Message, error) {
	decisions := make([]string, len(model.Decisions))
	for i, d := range model.Decisions {
		decisions[i] = string(d)
	}
	return renderPair(ctx, "gate", gatePrompt, gateInputPrompt, map[string]any{
		"DecisionList": strings.Join(decisions, ", "),
		"History":      Transcript(in.History),
		"Contexts":     in.Contexts,
		"Latest":       in.Latest,
	})
}

// QueriesInput feeds the shared query generation call.
type QueriesInput struct {
	History []*schema.Message
	Latest  string
}

// RenderQueries builds the prompt that yields both the keyword and the natural-language query.
func RenderQueries(ctx context.Context, in QueriesInput) ([]*schema.Message, error) {
	return renderPair(ctx, "queries", queriesPrompt, queriesInputPrompt, map[string]any{
		"History": Transcript(in.History),
		"Latest":  in.Latest,
	})
}

// SummaryInput feeds the summarizer. Prior is empty for a fresh summary.
type SummaryInput struct {
	Prior     string
	Discarded []*schema.Message
	MaxWords  int
}

// RenderSummary builds the fresh-or-extend summary prompt.
func RenderSummary(ctx context.Context, in SummaryInput) ([]*schema.Message, error) {
	maxWords := in.MaxWords
	if maxWords <= 0 {
		maxWords = 250
	}
	return renderPair(ctx, "summary", summaryPrompt, summaryInputPrompt, map[string]any{
		"MaxWords":   maxWords,
		"Prior":      strings.TrimSpace(in.Prior),
		"Transcript": Transcript(in.Discarded),
	})
}

// renderPair renders a system + user template pair through the eino prompt
// component so prompt callbacks fire.
func renderPair(ctx context.Context, name, system, user string, vars map[string]any) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("%s prompt render: %w", name, err)
	}
	if len(msgs) != 2 {
		return nil, fmt.Errorf("%s prompt render: got %d messages, want 2", name, len(msgs))
	}
	return msgs, nil
}

// Transcript renders messages as plain text for prompts that must not replay raw
// tool-call turns to the model.
func Transcript(msgs []*schema.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		if m == nil {
			continue
		}
		switch m.Role {
		case schema.Tool:
			name := m.ToolName
			if name == "" {
				name = m.ToolCallID
			}
			fmt.Fprintf(&sb, "[tool %s]: %s\n", name, strings.TrimSpace(m.Content))
		default:
			if c := strings.TrimSpace(m.Content); c != "" {
				fmt.Fprintf(&sb, "[%s]: %s\n", m.Role, c)
			}
			for _, tc := range m.ToolCalls {
				fmt.Fprintf(&sb, "[%s called %s(%s)]\n", m.Role, tc.Function.Name, tc.Function.Arguments)
			}
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
