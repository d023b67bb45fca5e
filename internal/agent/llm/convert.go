package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
)

// toolParameters renders a tool's parameters as a JSON schema object.
func toolParameters(info *schema.ToolInfo) (map[string]any, error) {
	empty := map[string]any{"type": "object", "properties": map[string]any{}}
	if info == nil || info.ParamsOneOf == nil {
		return empty, nil
	}
	js, err := info.ParamsOneOf.ToJSONSchema()
	if err != nil {
		return nil, fmt.Errorf("tool %s schema: %w", info.Name, err)
	}
	if js == nil {
		return empty, nil
	}
	raw, err := json.Marshal(js)
	if err != nil {
		return nil, fmt.Errorf("tool %s schema: %w", info.Name, err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("tool %s schema: %w", info.Name, err)
	}
	if _, ok := out["properties"]; !ok {
		out["properties"] = map[string]any{}
	}
	return out, nil
}

// argumentsMap parses tool call arguments, returning an empty map on invalid JSON.
func argumentsMap(arguments string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(arguments) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return map[string]any{}
	}
	return args
}

// argumentsJSON renders tool call arguments back to the JSON text eino carries.
func argumentsJSON(args any) string {
	if args == nil {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// splitSystem pulls leading and interleaved system messages into one preamble for
// back-ends that take the system prompt out of band.
func splitSystem(msgs []*schema.Message) (string, []*schema.Message) {
	var system []string
	rest := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		if m.Role == schema.System {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}

func usage(prompt, completion int) *schema.ResponseMeta {
	return &schema.ResponseMeta{
		Usage: &schema.TokenUsage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
	}
}
