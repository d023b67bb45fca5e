// Package cli is the command-line host around the conversation engine.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Chative-core-poc-v1/convoengine/internal/agent/model"
	logx "github.com/Chative-core-poc-v1/convoengine/pkg/logger"
)

// globalFlags are shared by every command.
type globalFlags struct {
	envFile        string
	logLevel       string
	metricsAddr    string
	conversationID string

	model         string
	temperature   float32
	maxTokens     int
	strategy      string
	budget        int
	threshold     int
	retainTail    int
	tools         string
	providers     string
	maxIterations int
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return buildRootCmd().ExecuteContext(ctx)
}

func buildRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "convoengine",
		Short:         "Conversation engine with history reduction, web retrieval and tools",
		SilenceUsage:  true,
	}

	g.bind(root)

	root.AddCommand(
		buildChatCmd(g),
		buildAskCmd(g),
		buildTablesCmd(g),
	)
	return root
}

// bind registers the shared flags on cmd.
func (g *globalFlags) bind(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&g.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	pf.StringVar(&g.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	pf.StringVar(&g.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	pf.StringVarP(&g.conversationID, "conversation", "c", "", "conversation id (default: a new one)")

	pf.StringVarP(&g.model, "model", "m", "", "model id as backend:model, e.g. openai:gpt-4o-mini")
	pf.Float32Var(&g.temperature, "temperature", 0, "sampling temperature")
	pf.IntVar(&g.maxTokens, "max-tokens", 0, "maximum tokens per reply")
	pf.StringVar(&g.strategy, "strategy", "", "history strategy: keep-all, trim-by-count, trim-by-tokens, delete-oldest, summarize")
	pf.IntVar(&g.budget, "budget", 0, "message count or token budget for the trim strategies")
	pf.IntVar(&g.threshold, "summarize-threshold", 0, "message count that triggers summarization")
	pf.IntVar(&g.retainTail, "retain-tail", 0, "messages kept verbatim after summarization")
	pf.StringVar(&g.tools, "tools", "", "comma-separated tool names to enable")
	pf.StringVar(&g.providers, "providers", "", "comma-separated search providers to enable")
	pf.IntVar(&g.maxIterations, "max-tool-iterations", 0, "tool dispatches allowed per turn")
}

// setup loads configuration, applies flag overrides and initializes logging.
func (g *globalFlags) setup(cmd *cobra.Command) (AppConfig, model.RunContext, error) {
	cfg, err := loadConfig(g.envFile)
	if err != nil {
		return AppConfig{}, model.RunContext{}, err
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	logx.Init(logx.LoggerOpts{
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
		Output:      cmd.ErrOrStderr(),
	})

	g.override(cmd, &cfg.Run)
	rc, err := cfg.Run.RunContext()
	if err != nil {
		return AppConfig{}, model.RunContext{}, err
	}
	return cfg, rc, nil
}

// override copies every flag the user set onto the environment defaults.
func (g *globalFlags) override(cmd *cobra.Command, rc *model.RunConfig) {
	changed := cmd.Flags().Changed
	if changed("model") {
		rc.Model = g.model
	}
	if changed("temperature") {
		rc.Temperature = g.temperature
	}
	if changed("max-tokens") {
		rc.MaxTokens = g.maxTokens
	}
	if changed("strategy") {
		rc.Strategy = g.strategy
	}
	if changed("budget") {
		rc.Budget = g.budget
	}
	if changed("summarize-threshold") {
		rc.SummarizeThreshold = g.threshold
	}
	if changed("retain-tail") {
		rc.RetainTail = g.retainTail
	}
	if changed("tools") {
		rc.Tools = g.tools
	}
	if changed("providers") {
		rc.Providers = g.providers
	}
	if changed("max-tool-iterations") {
		rc.MaxToolIterations = g.maxIterations
	}
}

// open builds the app for a turn-running command.
func (g *globalFlags) open(cmd *cobra.Command) (*app, error) {
	cfg, rc, err := g.setup(cmd)
	if err != nil {
		return nil, err
	}
	a, err := newApp(cmd.Context(), cfg, rc)
	if err != nil {
		return nil, fmt.Errorf("start engine: %w", err)
	}
	if g.metricsAddr != "" {
		a.serveMetrics(cmd.Context(), g.metricsAddr)
	}
	return a, nil
}
