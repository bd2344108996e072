package main

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"localassist/pkg/agents"
	"localassist/pkg/chat"
	"localassist/pkg/config"
	"localassist/pkg/correction"
	"localassist/pkg/llm/middleware/metrics"
	"localassist/pkg/logx"
	"localassist/pkg/persistence"
	"localassist/pkg/prompts"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg      config.Config
	db       *sql.DB
	store    *persistence.PromptStore
	resolver *prompts.Resolver
	verifier *agents.Verifier
	loop     *correction.Loop
	registry *prometheus.Registry // nil when metrics are disabled
	logger   *logx.Logger
}

// loadApp reads configuration and opens the prompt database.
func loadApp(opts *rootOptions) (*app, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Debug.Enabled {
		logx.SetDebugConfig(true, cfg.Debug.Domains)
	}
	return newApp(&cfg)
}

// newApp wires config → database → store → resolver → chat client → roles → loop.
func newApp(cfg *config.Config) (*app, error) {
	db, err := persistence.InitializeDatabase(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open prompt database %s: %w", cfg.Database.Path, err)
	}

	a := &app{
		cfg:    *cfg,
		db:     db,
		store:  persistence.NewPromptStore(db),
		logger: logx.NewLogger("localassist"),
	}
	a.resolver = prompts.NewResolver(a.store)

	var recorder metrics.Recorder = metrics.Nop()
	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		recorder = metrics.NewPrometheusRecorder(a.registry)
	}

	chatClient := chat.NewClient(chat.Config{
		Host:        cfg.Models.OllamaHost,
		Temperature: cfg.Models.Temperature,
		MaxTokens:   cfg.Models.MaxTokens,
		Timeout:     time.Duration(cfg.Models.RequestTimeoutSec) * time.Second,
		Recorder:    recorder,
	})

	reasoner := agents.NewReasoner(chatClient, a.resolver, cfg.Models.ReasonerModel)
	a.verifier = agents.NewVerifier(chatClient, a.resolver, cfg.Models.VerifierModel)
	a.loop = correction.NewLoop(reasoner, a.verifier, a.resolver, correction.Policy{
		MaxCorrections:     cfg.Correction.MaxCorrections,
		EarlyExitOnSuccess: cfg.Correction.EarlyExitOnSuccess,
	})

	a.logger.Debug("Wired reasoner %s and verifier %s via %s (mode %s)",
		reasoner.Model(), a.verifier.Model(), cfg.Models.OllamaHost, cfg.Mode)
	return a, nil
}

// Close releases the database.
func (a *app) Close() error {
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("failed to close prompt database: %w", err)
	}
	return nil
}
