package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	errx "github.com/Chative-core-poc-v1/convoengine/internal/core/error"
	logx "github.com/Chative-core-poc-v1/convoengine/pkg/logger"
)

type GeminiConfig struct {
	APIKey  string
	BaseURL string
}

// Gemini invokes Google Gemini models through the eino gemini chat model.
type Gemini struct {
	client *genai.Client
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errx.Configuration("gemini back-end requires GEMINI_API_KEY")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}
	return &Gemini{client: client}, nil
}

func (g *Gemini) GetType() string { return "Gemini" }

// IsCallbacksEnabled reports that the eino gemini chat model emits its own callbacks.
func (g *Gemini) IsCallbacksEnabled() bool { return true }

// Invoke builds a chat model per call so concurrent calls never share bound tools.
func (g *Gemini) Invoke(ctx context.Context, msgs []*schema.Message, opts Options) (*schema.Message, error) {
	temperature := opts.Temperature
	maxTokens := opts.MaxTokens
	cm, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      g.client,
		Model:       opts.Model,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating gemini chat model: %w", err)
	}
	if len(opts.Tools) > 0 {
		if err := cm.BindTools(opts.Tools); err != nil {
			return nil, fmt.Errorf("failed to bind tools: %w", err)
		}
	}
	return cm.Generate(ctx, msgs)
}
