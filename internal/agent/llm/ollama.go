package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cloudwego/eino/schema"
	"github.com/ollama/ollama/api"

	errx "github.com/Chative-core-poc-v1/convoengine/internal/core/error"
)

type OllamaConfig struct {
	Host string
}

// Ollama invokes local models through the Ollama chat API, non-streaming.
type Ollama struct {
	client *api.Client
}

func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	if cfg.Host == "" {
		return nil, errx.Configuration("ollama back-end requires OLLAMA_HOST")
	}
	parsedURL, err := url.Parse(cfg.Host)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, errx.Configuration("invalid OLLAMA_HOST %q", cfg.Host)
	}
	return &Ollama{client: api.NewClient(parsedURL, http.DefaultClient)}, nil
}

func (o *Ollama) GetType() string { return "Ollama" }

func (o *Ollama) Invoke(ctx context.Context, msgs []*schema.Message, opts Options) (*schema.Message, error) {
	tools, err := toOllamaTools(opts.Tools)
	if err != nil {
		return nil, err
	}
	stream := false
	req := &api.ChatRequest{
		Model:    opts.Model,
		Messages: toOllamaMessages(msgs),
		Tools:    tools,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": opts.Temperature,
			"num_predict": opts.MaxTokens,
		},
	}

	var final api.ChatResponse
	var content string
	var calls []api.ToolCall
	respFunc := func(resp api.ChatResponse) error {
		content += resp.Message.Content
		calls = append(calls, resp.Message.ToolCalls...)
		if resp.Done {
			final = resp
		}
		return nil
	}
	if err := o.client.Chat(ctx, req, respFunc); err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}

	out := schema.AssistantMessage(content, nil)
	for _, call := range calls {
		out.ToolCalls = append(out.ToolCalls, schema.ToolCall{
			Type: "function",
			Function: schema.FunctionCall{
				Name:      call.Function.Name,
				Arguments: argumentsJSON(call.Function.Arguments),
			},
		})
	}
	out.ResponseMeta = usage(final.PromptEvalCount, final.EvalCount)
	out.ResponseMeta.FinishReason = final.DoneReason
	return out, nil
}

func toOllamaMessages(msgs []*schema.Message) []api.Message {
	out := make([]api.Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		msg := api.Message{
			Role:    string(m.Role),
			Content: m.Content,
		}
		switch m.Role {
		case schema.Assistant:
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{
					Function: api.ToolCallFunction{
						Name:      tc.Function.Name,
						Arguments: argumentsMap(tc.Function.Arguments),
					},
				})
			}
		case schema.Tool:
			msg.ToolName = m.ToolName
		}
		out = append(out, msg)
	}
	return out
}

func toOllamaTools(infos []*schema.ToolInfo) ([]api.Tool, error) {
	if len(infos) == 0 {
		return nil, nil
	}
	out := make([]api.Tool, 0, len(infos))
	for _, info := range infos {
		params, err := toolParameters(info)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("tool %s schema: %w", info.Name, err)
		}
		var fp api.ToolFunctionParameters
		if err := json.Unmarshal(raw, &fp); err != nil {
			return nil, fmt.Errorf("tool %s schema: %w", info.Name, err)
		}
		out = append(out, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        info.Name,
				Description: info.Desc,
				Parameters:  fp,
			},
		})
	}
	return out, nil
}
