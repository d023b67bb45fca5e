package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cloudwego/eino/schema"

	errx "github.com/Chative-core-poc-v1/convoengine/internal/core/error"
)

type AnthropicConfig struct {
	APIKey  string
	BaseURL string
}

// Anthropic invokes Claude models through the Messages API.
type Anthropic struct {
	client anthropic.Client
}

func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, errx.Configuration("anthropic back-end requires ANTHROPIC_API_KEY")
	}
	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	return &Anthropic{client: anthropic.NewClient(options...)}, nil
}

func (a *Anthropic) GetType() string { return "Anthropic" }

func (a *Anthropic) Invoke(ctx context.Context, msgs []*schema.Message, opts Options) (*schema.Message, error) {
	system, rest := splitSystem(msgs)
	messages, err := toAnthropicMessages(rest)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(opts.Model),
		Messages:    messages,
		MaxTokens:   int64(opts.MaxTokens),
		Temperature: anthropic.Float(float64(opts.Temperature)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(opts.Tools) > 0 {
		tools, err := toAnthropicTools(opts.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}

	out := schema.AssistantMessage("", nil)
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, schema.ToolCall{
				ID:   block.ID,
				Type: "function",
				Function: schema.FunctionCall{
					Name:      block.Name,
					Arguments: string(block.Input),
				},
			})
		}
	}
	out.ResponseMeta = usage(int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens))
	out.ResponseMeta.FinishReason = string(resp.StopReason)
	return out, nil
}

// leadingUserPlaceholder opens a window whose first kept turn is the assistant's.
const leadingUserPlaceholder = "(earlier conversation omitted)"

// toAnthropicMessages maps tool results onto user turns and merges consecutive
// turns of the same role, since the API requires strict alternation starting
// with a user turn.
func toAnthropicMessages(msgs []*schema.Message) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	var blocks []anthropic.ContentBlockParamUnion
	var role schema.RoleType

	flush := func() {
		if len(blocks) == 0 {
			return
		}
		if role == schema.Assistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
		blocks = nil
	}

	for _, m := range msgs {
		r := schema.User
		if m.Role == schema.Assistant {
			r = schema.Assistant
		}
		if r != role {
			flush()
			role = r
		}

		switch m.Role {
		case schema.Tool:
			blocks = append(blocks, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
		default:
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input map[string]any
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Function.Name))
			}
		}
	}
	flush()
	if len(out) > 0 && out[0].Role == anthropic.MessageParamRoleAssistant {
		out = append([]anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(leadingUserPlaceholder)),
		}, out...)
	}
	return out, nil
}

func toAnthropicTools(infos []*schema.ToolInfo) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(infos))
	for _, info := range infos {
		params, err := toolParameters(info)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("tool %s schema: %w", info.Name, err)
		}
		var inputSchema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(raw, &inputSchema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", info.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(inputSchema, info.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", info.Name)
		}
		toolParam.OfTool.Description = anthropic.String(info.Desc)
		out = append(out, toolParam)
	}
	return out, nil
}
