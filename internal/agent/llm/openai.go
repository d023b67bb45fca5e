package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"
	openai "github.com/sashabaranov/go-openai"

	errx "github.com/Chative-core-poc-v1/convoengine/internal/core/error"
)

type OpenAIConfig struct {
	APIKey string
	// BaseURL targets OpenAI compatible servers when set.
	BaseURL string
}

// OpenAI invokes chat completion models through go-openai.
type OpenAI struct {
	client *openai.Client
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errx.Configuration("openai back-end requires OPENAI_API_KEY")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(clientConfig)}, nil
}

func (o *OpenAI) GetType() string { return "OpenAI" }

func (o *OpenAI) Invoke(ctx context.Context, msgs []*schema.Message, opts Options) (*schema.Message, error) {
	req := openai.ChatCompletionRequest{
		Model:       opts.Model,
		Messages:    toOpenAIMessages(msgs),
		Temperature: opts.Temperature,
	}
	if opts.MaxTokens > 0 {
		req.MaxCompletionTokens = opts.MaxTokens
	}
	if len(opts.Tools) > 0 {
		tools, err := toOpenAITools(opts.Tools)
		if err != nil {
			return nil, err
		}
		req.Tools = tools
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyReply
	}

	choice := resp.Choices[0].Message
	out := schema.AssistantMessage(choice.Content, nil)
	for _, tc := range choice.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, schema.ToolCall{
			ID:   tc.ID,
			Type: string(tc.Type),
			Function: schema.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	out.ResponseMeta = usage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	out.ResponseMeta.FinishReason = string(resp.Choices[0].FinishReason)
	return out, nil
}

func toOpenAIMessages(msgs []*schema.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		msg := openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
		switch m.Role {
		case schema.Assistant:
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
		case schema.Tool:
			msg.Role = openai.ChatMessageRoleTool
			msg.ToolCallID = m.ToolCallID
		}
		out = append(out, msg)
	}
	return out
}

func toOpenAITools(infos []*schema.ToolInfo) ([]openai.Tool, error) {
	out := make([]openai.Tool, 0, len(infos))
	for _, info := range infos {
		params, err := toolParameters(info)
		if err != nil {
			return nil, err
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        info.Name,
				Description: info.Desc,
				Parameters:  params,
			},
		})
	}
	return out, nil
}
