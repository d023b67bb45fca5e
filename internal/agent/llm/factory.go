package llm

import (
	"context"
	"strings"
	"sync"

	"github.com/Chative-core-poc-v1/convoengine/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/convoengine/internal/core/error"
	logx "github.com/Chative-core-poc-v1/convoengine/pkg/logger"
)

const (
	BackendGemini    = "gemini"
	BackendOpenAI    = "openai"
	BackendOllama    = "ollama"
	BackendAnthropic = "anthropic"
)

// Resolved is an invoker bound to the back-end specific model name.
type Resolved struct {
	Invoker Invoker
	Backend string
	Model   string
}

// Factory resolves a "<backend>:<model>" identifier to an invoker.
// Resolution never calls the network; problems are configuration errors.
type Factory interface {
	Resolve(ctx context.Context, modelID string) (Resolved, error)
}

// Builder constructs the invoker of one back-end.
type Builder func(ctx context.Context) (Invoker, error)

// Registry is the default Factory. Back-ends are built on first use and reused.
type Registry struct {
	defaultBackend string

	mu       sync.Mutex
	builders map[string]Builder
	built    map[string]Invoker
}

func NewRegistry(defaultBackend string) *Registry {
	return &Registry{
		defaultBackend: strings.ToLower(strings.TrimSpace(defaultBackend)),
		builders:       map[string]Builder{},
		built:          map[string]Invoker{},
	}
}

// NewRegistryFromConfig registers every supported back-end. Back-ends without
// credentials stay registered and fail resolution with a configuration error.
func NewRegistryFromConfig(cfg model.LLMConfig) *Registry {
	r := NewRegistry(cfg.DefaultBackend)
	r.Register(BackendGemini, func(ctx context.Context) (Invoker, error) {
		return NewGemini(ctx, GeminiConfig{APIKey: cfg.GeminiAPIKey, BaseURL: cfg.GeminiBaseURL})
	})
	r.Register(BackendOpenAI, func(context.Context) (Invoker, error) {
		return NewOpenAI(OpenAIConfig{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL})
	})
	r.Register(BackendAnthropic, func(context.Context) (Invoker, error) {
		return NewAnthropic(AnthropicConfig{APIKey: cfg.AnthropicAPIKey})
	})
	r.Register(BackendOllama, func(context.Context) (Invoker, error) {
		return NewOllama(OllamaConfig{Host: cfg.OllamaHost})
	})
	return r
}

// Register adds or replaces a back-end builder.
func (r *Registry) Register(backend string, b Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	backend = strings.ToLower(backend)
	r.builders[backend] = b
	delete(r.built, backend)
}

// RegisterInvoker adds a ready-made invoker under backend.
func (r *Registry) RegisterInvoker(backend string, inv Invoker) {
	r.Register(backend, func(context.Context) (Invoker, error) { return inv, nil })
}

func (r *Registry) Resolve(ctx context.Context, modelID string) (Resolved, error) {
	backend, name, err := r.split(modelID)
	if err != nil {
		return Resolved{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if inv, ok := r.built[backend]; ok {
		return Resolved{Invoker: inv, Backend: backend, Model: name}, nil
	}
	build := r.builders[backend]
	inv, err := build(ctx)
	if err != nil {
		if errx.IsConfiguration(err) {
			return Resolved{}, err
		}
		return Resolved{}, errx.Configuration("back-end %s: %v", backend, err)
	}
	r.built[backend] = inv
	logx.Debug().Str("backend", backend).Str("model", name).Msg("model back-end ready")
	return Resolved{Invoker: inv, Backend: backend, Model: name}, nil
}

// split separates "<backend>:<model>". Bare identifiers use the default back-end.
func (r *Registry) split(modelID string) (backend, name string, err error) {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return "", "", errx.Configuration("model identifier is empty")
	}
	backend, name = r.defaultBackend, modelID
	if i := strings.Index(modelID, ":"); i >= 0 {
		backend, name = strings.ToLower(modelID[:i]), modelID[i+1:]
	}
	if name == "" {
		return "", "", errx.Configuration("model identifier %q has no model name", modelID)
	}

	r.mu.Lock()
	_, ok := r.builders[backend]
	r.mu.Unlock()
	if !ok {
		return "", "", errx.Configuration("unsupported model identifier %q: unknown back-end %q", modelID, backend)
	}
	return backend, name, nil
}
