package model

import (
	"sort"
	"strings"
	"time"

	errx "github.com/Chative-core-poc-v1/convoengine/internal/core/error"
)

// ================ Strategy ================

// Strategy selects how history is reduced before each model call.
type Strategy string

const (
	StrategyKeepAll      Strategy = "keep-all"
	StrategyTrimCount    Strategy = "trim-by-count"
	StrategyTrimTokens   Strategy = "trim-by-tokens"
	StrategyDeleteOldest Strategy = "delete-oldest"
	StrategySummarize    Strategy = "summarize"
)

var strategyAliases = map[string]Strategy{
	"keep-all":       StrategyKeepAll,
	"keep_all":       StrategyKeepAll,
	"none":           StrategyKeepAll,
	"trim-by-count":  StrategyTrimCount,
	"trim_count":     StrategyTrimCount,
	"trim-by-tokens": StrategyTrimTokens,
	"trim_tokens":    StrategyTrimTokens,
	"delete-oldest":  StrategyDeleteOldest,
	"delete":         StrategyDeleteOldest,
	"summarize":      StrategySummarize,
}

// ParseStrategy accepts canonical names and the short forms used by chat front-ends.
func ParseStrategy(s string) (Strategy, error) {
	if st, ok := strategyAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st, nil
	}
	return "", errx.Configuration("unknown messages strategy %q", s)
}

// ================ RunContext ================

// RunContext is the immutable per-run configuration of a turn.
type RunContext struct {
	Model       string
	Temperature float32
	MaxTokens   int

	Strategy Strategy
	// Budget is the message count (trim-by-count, delete-oldest) or approximate
	// token count (trim-by-tokens) the reduced window must fit in.
	Budget int
	// SummarizeThreshold triggers summarization when live messages exceed it.
	SummarizeThreshold int
	// RetainTail is how many recent messages survive summarization.
	RetainTail int

	Tools     NameSet
	Providers NameSet

	// MaxToolIterations caps the converse/tools loop for one turn.
	MaxToolIterations int
}

// Canonical returns rc with its strategy alias replaced by the canonical name,
// validated.
func (rc RunContext) Canonical() (RunContext, error) {
	st, err := ParseStrategy(string(rc.Strategy))
	if err != nil {
		return RunContext{}, err
	}
	rc.Strategy = st
	return rc, rc.Validate()
}

// Validate checks everything that can be checked without external calls.
func (rc RunContext) Validate() error {
	if strings.TrimSpace(rc.Model) == "" {
		return errx.Configuration("model identifier is empty")
	}
	if rc.Temperature < 0 || rc.Temperature > 2 {
		return errx.Configuration("temperature %.2f out of range [0, 2]", rc.Temperature)
	}
	if rc.MaxTokens <= 0 {
		return errx.Configuration("max tokens must be positive, got %d", rc.MaxTokens)
	}
	st, err := ParseStrategy(string(rc.Strategy))
	if err != nil {
		return err
	}
	switch st {
	case StrategyTrimCount, StrategyTrimTokens, StrategyDeleteOldest:
		if rc.Budget < 1 {
			return errx.Configuration("strategy %s needs a budget >= 1, got %d", st, rc.Budget)
		}
	case StrategySummarize:
		if rc.SummarizeThreshold < 1 {
			return errx.Configuration("summarize threshold must be >= 1, got %d", rc.SummarizeThreshold)
		}
		if rc.RetainTail < 1 || rc.RetainTail > rc.SummarizeThreshold {
			return errx.Configuration("retained tail %d must be in [1, %d]", rc.RetainTail, rc.SummarizeThreshold)
		}
	}
	if rc.MaxToolIterations < 1 {
		return errx.Configuration("max tool iterations must be >= 1, got %d", rc.MaxToolIterations)
	}
	return nil
}

// ================ NameSet ================

// NameSet is an ordered set of tool or provider names.
type NameSet []string

// ParseNameSet splits a comma separated list, dropping blanks and duplicates.
func ParseNameSet(s string) NameSet {
	var out NameSet
	seen := map[string]bool{}
	for _, part := range strings.Split(s, ",") {
		name := strings.TrimSpace(part)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func (n NameSet) Has(name string) bool {
	for _, v := range n {
		if v == name {
			return true
		}
	}
	return false
}

// Sorted returns a sorted copy, used for stable cache keys and logs.
func (n NameSet) Sorted() []string {
	out := append([]string(nil), n...)
	sort.Strings(out)
	return out
}

// ================ Config ================

// RunConfig seeds the RunContext from the environment; CLI flags override it.
type RunConfig struct {
	Model              string  `envconfig:"RUN_MODEL" default:"gemini:gemini-2.5-flash"`
	Temperature        float32 `envconfig:"RUN_TEMPERATURE" default:"0.7"`
	MaxTokens          int     `envconfig:"RUN_MAX_TOKENS" default:"1024"`
	Strategy           string  `envconfig:"RUN_MESSAGES_STRATEGY" default:"trim-by-count"`
	Budget             int     `envconfig:"RUN_STRATEGY_BUDGET" default:"20"`
	SummarizeThreshold int     `envconfig:"RUN_SUMMARIZE_THRESHOLD" default:"20"`
	RetainTail         int     `envconfig:"RUN_RETAIN_TAIL" default:"2"`
	Tools              string  `envconfig:"RUN_TOOLS" default:"add,multiply,divide"`
	Providers          string  `envconfig:"RUN_PROVIDERS"`
	MaxToolIterations  int     `envconfig:"RUN_MAX_TOOL_ITERATIONS" default:"10"`
}

// RunContext converts the raw config, validating the strategy name.
func (c RunConfig) RunContext() (RunContext, error) {
	st, err := ParseStrategy(c.Strategy)
	if err != nil {
		return RunContext{}, err
	}
	rc := RunContext{
		Model:              c.Model,
		Temperature:        c.Temperature,
		MaxTokens:          c.MaxTokens,
		Strategy:           st,
		Budget:             c.Budget,
		SummarizeThreshold: c.SummarizeThreshold,
		RetainTail:         c.RetainTail,
		Tools:              ParseNameSet(c.Tools),
		Providers:          ParseNameSet(c.Providers),
		MaxToolIterations:  c.MaxToolIterations,
	}
	return rc, rc.Validate()
}

// LLMConfig holds back-end credentials and endpoints.
type LLMConfig struct {
	DefaultBackend  string `envconfig:"LLM_DEFAULT_BACKEND" default:"gemini"`
	GeminiAPIKey    string `envconfig:"GEMINI_API_KEY"`
	GeminiBaseURL   string `envconfig:"GEMINI_BASE_URL"`
	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL   string `envconfig:"OPENAI_BASE_URL"`
	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`
	OllamaHost      string `envconfig:"OLLAMA_HOST" default:"http://localhost:11434"`
}

// TimeoutConfig bounds every external call independently.
type TimeoutConfig struct {
	Model    time.Duration `envconfig:"TIMEOUT_MODEL" default:"60s"`
	Tool     time.Duration `envconfig:"TIMEOUT_TOOL" default:"60s"`
	Provider time.Duration `envconfig:"TIMEOUT_PROVIDER" default:"15s"`
}

// RetrievalConfig configures the search providers.
type RetrievalConfig struct {
	TavilyAPIKey      string `envconfig:"TAVILY_API_KEY"`
	TavilyBaseURL     string `envconfig:"TAVILY_BASE_URL" default:"https://api.tavily.com"`
	WikipediaLanguage string `envconfig:"WIKIPEDIA_LANGUAGE" default:"en"`
	MaxDocuments      int    `envconfig:"RETRIEVAL_MAX_DOCUMENTS" default:"3"`
	MaxDocumentChars  int    `envconfig:"RETRIEVAL_MAX_DOCUMENT_CHARS" default:"4000"`
}

// ToolsConfig configures side-effecting tools.
type ToolsConfig struct {
	SQLitePath     string `envconfig:"TOOLS_SQLITE_PATH" default:"chinook.sqlite"`
	ShellMaxOutput int    `envconfig:"TOOLS_SHELL_MAX_OUTPUT" default:"8000"`
}

// StoreConfig selects where the host keeps conversation state between turns.
type StoreConfig struct {
	Backend string `envconfig:"STORE_BACKEND" default:"memory"`
	TTL     time.Duration `envconfig:"CONVERSATION_TTL" default:"24h"`
	// LockTTL is refreshed while a turn runs. Zero derives it from the timeouts.
	LockTTL time.Duration `envconfig:"CONVERSATION_LOCK_TTL"`
}
