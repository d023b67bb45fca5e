package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Chative-core-poc-v1/convoengine/internal/agent/graph"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/graph/tools"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/llm"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/metrics"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/model"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/providers"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/repo"
	"github.com/Chative-core-poc-v1/convoengine/internal/host"
	logx "github.com/Chative-core-poc-v1/convoengine/pkg/logger"
)

// app owns everything a command needs to run turns.
type app struct {
	cfg      AppConfig
	run      model.RunContext
	engine   *graph.Engine
	repo     model.StateRepository
	registry *prometheus.Registry
	closers  []func() error
}

func newApp(ctx context.Context, cfg AppConfig, rc model.RunContext) (*app, error) {
	a := &app{cfg: cfg, run: rc, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	toolReg, err := a.buildTools(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	providerReg, err := a.buildProviders()
	if err != nil {
		a.Close()
		return nil, err
	}
	if a.repo, err = a.buildRepo(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.engine, err = graph.New(ctx, graph.Dependencies{
		Factory:   llm.NewRegistryFromConfig(cfg.LLM),
		Tools:     toolReg,
		Providers: providerReg,
		Metrics:   metrics.New(a.registry),
		Limits:    cfg.limits(),
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// buildTools registers arithmetic and shell always, and the SQL tools when the
// configured database file exists.
func (a *app) buildTools(ctx context.Context) (tools.Registry, error) {
	ts := append([]tool.InvokableTool{}, tools.Arithmetic()...)
	ts = append(ts, tools.NewShellTool(a.cfg.Tools.ShellMaxOutput))

	if path := a.cfg.Tools.SQLitePath; path != "" && fileExists(path) {
		db, err := tools.OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		ts = append(ts, db.Tools()...)
	} else if a.run.Tools.Has(tools.ToolSQLQuery) || a.run.Tools.Has(tools.ToolSQLListTables) {
		logx.Warn().Str("path", path).Msg("SQLite database not found; SQL tools unavailable")
	}

	return tools.NewRegistry(ctx, a.cfg.Timeouts.Tool, ts...)
}

// buildProviders always offers Wikipedia. Tavily needs an API key; enabling
// it without one is a configuration error.
func (a *app) buildProviders() (providers.Registry, error) {
	ps := []providers.Provider{
		providers.NewWikipedia(providers.WikipediaConfig{
			Language:     a.cfg.Retrieval.WikipediaLanguage,
			MaxDocuments: a.cfg.Retrieval.MaxDocuments,
		}),
	}
	if a.cfg.Retrieval.TavilyAPIKey != "" || a.run.Providers.Has(providers.TavilyName) {
		t, err := providers.NewTavily(providers.TavilyConfig{
			APIKey:       a.cfg.Retrieval.TavilyAPIKey,
			BaseURL:      a.cfg.Retrieval.TavilyBaseURL,
			MaxDocuments: a.cfg.Retrieval.MaxDocuments,
		})
		if err != nil {
			return nil, err
		}
		ps = append(ps, t)
	}
	return providers.NewRegistry(ps...), nil
}

func (a *app) buildRepo(ctx context.Context) (model.StateRepository, error) {
	switch a.cfg.Store.Backend {
	case "", "memory":
		return repo.NewMemoryStateRepository(), nil
	case "redis":
		rdb, err := a.cfg.Redis.New(ctx)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
		logx.Info().Str("url", a.cfg.Redis.URL).Msg("Conversation state stored in Redis")
		return repo.NewRedisStateRepository(rdb, a.cfg.Store.TTL, a.cfg.lockTTL()), nil
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q (want memory or redis)", a.cfg.Store.Backend)
	}
}

// session opens conversationID, or a fresh one when it is empty.
func (a *app) session(conversationID string) *host.Session {
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	return host.NewSession(a.engine, a.repo, conversationID, a.run)
}

// serveMetrics exposes the registry on addr until ctx is done.
func (a *app) serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logx.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
	a.closers = append(a.closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logx.Warn().Err(err).Msg("Error during shutdown")
		}
	}
	a.closers = nil
}
