package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/Chative-core-poc-v1/convoengine/internal/agent/graph"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/model"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/providers"
	"github.com/Chative-core-poc-v1/convoengine/internal/core"
	pkgredis "github.com/Chative-core-poc-v1/convoengine/pkg/redis"
)

// AppConfig defines all configurable parameters of the engine, sourced from
// environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment core.Environment `envconfig:"APP_ENV" default:"development"`
	LogLevel    string           `envconfig:"LOG_LEVEL"`

	// Infrastructure
	Redis pkgredis.Config
	Store model.StoreConfig

	// Model back-ends and search providers
	LLM       model.LLMConfig
	Retrieval model.RetrievalConfig
	Tools     model.ToolsConfig
	Timeouts  model.TimeoutConfig

	SummaryMaxWords int `envconfig:"SUMMARY_MAX_WORDS" default:"250"`

	// Defaults for the run context; flags override them
	Run model.RunConfig
}

// loadConfig reads envFile when it exists, then the environment.
func loadConfig(envFile string) (AppConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return AppConfig{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("failed to process environment config: %w", err)
	}
	return cfg, nil
}

func (c AppConfig) limits() graph.Limits {
	return graph.Limits{
		ModelTimeout:    c.Timeouts.Model,
		ToolTimeout:     c.Timeouts.Tool,
		ProviderTimeout: c.Timeouts.Provider,
		Retrieval: providers.Limits{
			MaxDocuments:     c.Retrieval.MaxDocuments,
			MaxDocumentChars: c.Retrieval.MaxDocumentChars,
		},
		SummaryMaxWords: c.SummaryMaxWords,
	}
}

// lockTTL is CONVERSATION_LOCK_TTL, or twice the longest single external call
// so one late refresh never drops the lock.
func (c AppConfig) lockTTL() time.Duration {
	if c.Store.LockTTL > 0 {
		return c.Store.LockTTL
	}
	return 2 * max(c.Timeouts.Model, c.Timeouts.Tool, c.Timeouts.Provider)
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
