package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	logx "github.com/Chative-core-poc-v1/convoengine/pkg/logger"
)

// UnavailableMessage is the tool result for a call to a tool that is not enabled.
const UnavailableMessage = "Error: tool %q is not available. Available tools: %s. Answer without it or use one of the available tools."

// Dispatcher executes tool calls through an eino ToolsNode.
type Dispatcher struct {
	node *compose.ToolsNode
}

// NewDispatcher builds a dispatcher over the enabled tools. Calls are executed
// sequentially, in request order.
func NewDispatcher(ctx context.Context, enabled []tool.BaseTool, names []string) (*Dispatcher, error) {
	available := strings.Join(names, ", ")
	if available == "" {
		available = "none"
	}

	node, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               enabled,
		ExecuteSequentially: true,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			logx.Warn().
				Str("tool_name", name).
				Str("arguments", input).
				Msg("Tool not available; returning unavailable result")
			return fmt.Sprintf(UnavailableMessage, name, available), nil
		},
		ToolArgumentsHandler: sanitizeArguments,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return nil, fmt.Errorf("failed to create tools node: %w", err)
	}
	return &Dispatcher{node: node}, nil
}

// Dispatch runs every tool call of request and returns one tool message per call,
// in call order, each tagged with its tool_call_id.
func (d *Dispatcher) Dispatch(ctx context.Context, request *schema.Message) ([]*schema.Message, error) {
	if request == nil || len(request.ToolCalls) == 0 {
		return nil, nil
	}
	out, err := d.node.Invoke(ctx, request)
	if err != nil {
		return nil, err
	}
	if len(out) != len(request.ToolCalls) {
		return nil, fmt.Errorf("tools node returned %d results for %d calls", len(out), len(request.ToolCalls))
	}
	for i, m := range out {
		call := request.ToolCalls[i]
		if m.ToolCallID == "" {
			m.ToolCallID = call.ID
		}
		if m.ToolName == "" {
			m.ToolName = call.Function.Name
		}
	}
	return out, nil
}

// sanitizeArguments is best effort and never fails: arithmetic operands given as
// strings are coerced to numbers and empty arguments become an empty object.
func sanitizeArguments(ctx context.Context, name, arguments string) (string, error) {
	if strings.TrimSpace(arguments) == "" {
		return "{}", nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(arguments), &m); err != nil {
		// keep original if not JSON
		return arguments, nil
	}

	switch name {
	case ToolAdd, ToolMultiply, ToolDivide:
		for _, k := range []string{"a", "b"} {
			if v, ok := m[k].(string); ok {
				if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
					m[k] = f
				}
			}
		}
	case ToolShell:
		if v, ok := m["command"]; ok {
			m["command"] = strings.TrimSpace(fmt.Sprint(v))
		}
	case ToolSQLQuery:
		if v, ok := m["query"]; ok {
			m["query"] = strings.TrimSpace(fmt.Sprint(v))
		}
	}

	b, err := json.Marshal(m)
	if err != nil {
		return arguments, nil
	}
	return string(b), nil
}
