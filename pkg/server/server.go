// Package server provides the public entry point for initializing the
// Easy Genie orchestrator server.
//
// This package exists in pkg/ (not internal/) so that embedding hosts
// (the desktop app, integration tests) can import it and compose the
// full server without going through main.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/easygenie/orchestrator/internal/analytics"
	"github.com/easygenie/orchestrator/internal/analyzer"
	"github.com/easygenie/orchestrator/internal/api"
	"github.com/easygenie/orchestrator/internal/api/handlers"
	"github.com/easygenie/orchestrator/internal/cache"
	"github.com/easygenie/orchestrator/internal/config"
	"github.com/easygenie/orchestrator/internal/contextmgr"
	"github.com/easygenie/orchestrator/internal/learning"
	"github.com/easygenie/orchestrator/internal/limiter"
	"github.com/easygenie/orchestrator/internal/optimizer"
	"github.com/easygenie/orchestrator/internal/orchestrator"
	"github.com/easygenie/orchestrator/internal/providers"
	"github.com/easygenie/orchestrator/internal/registry"
	"github.com/easygenie/orchestrator/internal/retention"
	"github.com/easygenie/orchestrator/internal/store"
	"github.com/easygenie/orchestrator/internal/telemetry"
	"github.com/easygenie/orchestrator/pkg/contracts"
	"github.com/easygenie/orchestrator/pkg/models"

	"github.com/rs/zerolog/log"
)

// Server holds the initialized orchestrator and everything that needs
// a graceful shutdown.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Orchestrator is exposed so embedding hosts can drive the pipeline
	// directly without going over HTTP.
	Orchestrator contracts.OrchestratorService

	// Config is the resolved configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc flushes telemetry, stops background loops, and closes
	// the store. Call it exactly once on graceful shutdown.
	ShutdownFunc func(context.Context) error
}

// New initializes all orchestrator components from the environment and
// returns a ready Server.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the orchestrator with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	// Initialize telemetry
	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	// Persistence backend
	var persist contracts.Persistence
	switch cfg.Store.Backend {
	case "postgres":
		pg, err := store.NewPostgresStore(ctx, cfg.Store.Postgres)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		persist = pg
		log.Info().Msg("✅ Postgres store initialized")
	default:
		persist = store.NewMemoryStore(cfg.DataDir)
		log.Info().Str("data_dir", cfg.DataDir).Msg("✅ In-memory store initialized")
	}

	// Capability registry, with Ollama discovery when enabled
	reg := registry.New(cfg.Providers.Ollama.BaseURL)
	if cfg.Providers.Ollama.Enabled {
		reg.Start(ctx)
	}

	// Provider drivers
	drivers := providers.NewRegistry()
	timeout := cfg.Providers.Timeout

	openaiCfg := cfg.Providers.OpenAI.Resolve(models.ProviderOpenAI, timeout)
	drivers.Register(providers.NewOpenAIDriver(openaiCfg), openaiCfg)

	anthropicCfg := cfg.Providers.Anthropic.Resolve(models.ProviderAnthropic, timeout)
	drivers.Register(providers.NewAnthropicDriver(anthropicCfg), anthropicCfg)

	geminiCfg := cfg.Providers.Gemini.Resolve(models.ProviderGemini, timeout)
	drivers.Register(providers.NewGeminiDriver(geminiCfg), geminiCfg)

	ollamaCfg := cfg.Providers.Ollama.Resolve(models.ProviderOllama, timeout)
	drivers.Register(providers.NewOllamaDriver(ollamaCfg), ollamaCfg)

	log.Info().Int("providers", len(drivers.List())).Msg("✅ Provider drivers registered")

	// Caches and rate limiting
	basicCache := cache.New(cfg.Cache.BasicTTL, cfg.Cache.BasicMax, cfg.Cache.BasicMax*8/10)
	advancedCache := cache.New(cfg.Cache.AdvancedTTL, cfg.Cache.AdvancedMax, cfg.Cache.AdvancedMax*8/10)
	lim := limiter.New(rateOverrides(cfg))

	// Core services
	ctxMgr := contextmgr.New(persist)
	opt := optimizer.New()
	an := analyzer.New()
	learn := learning.New(ctx, persist)

	log.Info().Msg("✅ Context manager initialized")
	log.Info().Msg("✅ Prompt optimizer initialized")
	log.Info().Msg("✅ Quality analyzer initialized")
	log.Info().Msg("✅ Learning engine initialized")

	// Analytics fan-out
	sink := analytics.NewService()
	sink.RegisterSink(&analytics.LogSink{})
	if cfg.Analytics.WebhookURL != "" {
		sink.RegisterSink(analytics.NewWebhookSink(cfg.Analytics.WebhookURL, cfg.Analytics.WebhookSecret))
		log.Info().Str("url", cfg.Analytics.WebhookURL).Msg("✅ Analytics webhook registered")
	}

	orch := orchestrator.New(drivers, ctxMgr, opt, an, learn, reg, basicCache, advancedCache, lim, sink, orchestrator.Options{
		DefaultMode:      cfg.Pipeline.DefaultMode,
		RetryCount:       cfg.Pipeline.RetryCount,
		QualityThreshold: cfg.Pipeline.QualityThreshold,
		QualityGateExpr:  cfg.Pipeline.QualityGateExpr,
	})
	log.Info().Msg("✅ Orchestrator initialized")

	// Retention janitor
	janitor := retention.NewJanitor(ctxMgr, learn, orch, cfg.Retention.Days, cfg.Retention.Interval)
	janitor.Start(ctx)

	// Build handlers + API router
	h := handlers.New(orch, ctxMgr, learn, reg)
	router := api.NewRouter(cfg, h)

	shutdown := func(ctx context.Context) error {
		janitor.Stop()
		reg.Stop()
		sink.Close()
		if err := shutdownTelemetry(ctx); err != nil {
			return err
		}
		return persist.Close()
	}

	return &Server{
		Handler:      router,
		Orchestrator: orch,
		Config:       cfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}

func rateOverrides(cfg *config.Config) map[models.Provider]int {
	overrides := make(map[models.Provider]int)
	if cfg.RateLimit.OpenAI > 0 {
		overrides[models.ProviderOpenAI] = cfg.RateLimit.OpenAI
	}
	if cfg.RateLimit.Anthropic > 0 {
		overrides[models.ProviderAnthropic] = cfg.RateLimit.Anthropic
	}
	if cfg.RateLimit.Gemini > 0 {
		overrides[models.ProviderGemini] = cfg.RateLimit.Gemini
	}
	if cfg.RateLimit.Ollama > 0 {
		overrides[models.ProviderOllama] = cfg.RateLimit.Ollama
	}
	return overrides
}
