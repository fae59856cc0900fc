package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/andresmedinaorbidi/clarity/internal/config"
	"github.com/andresmedinaorbidi/clarity/internal/generate"
	"github.com/andresmedinaorbidi/clarity/internal/intent"
	"github.com/andresmedinaorbidi/clarity/internal/logging"
	"github.com/andresmedinaorbidi/clarity/internal/orchestrator"
	"github.com/andresmedinaorbidi/clarity/internal/secrets"
	"github.com/andresmedinaorbidi/clarity/internal/skills"
	"github.com/andresmedinaorbidi/clarity/internal/store"
	"github.com/andresmedinaorbidi/clarity/internal/telemetry"
)

// app holds the services shared by serve and chat.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	registry  *prometheus.Registry
	store     store.Store
	engine    *orchestrator.Engine
}

// newApp wires the engine described by cfg. A nil logger builds one from the
// "logging" section of the config.
func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*app, error) {
	telCfg := telemetry.NewDefaultConfig()
	telCfg.ServiceVersion = version
	if err := cfg.Unmarshal("telemetry", telCfg); err != nil {
		return nil, err
	}
	tel, err := telemetry.New(ctx, telCfg)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	if logger == nil {
		logCfg := logging.NewDefaultConfig()
		if err := cfg.Unmarshal("logging", logCfg); err != nil {
			return nil, err
		}
		logger, err = logging.NewLogger(logCfg, tel.LoggerProvider())
		if err != nil {
			return nil, fmt.Errorf("initializing logger: %w", err)
		}
	}

	secCfg := secrets.DefaultConfig()
	if err := cfg.Unmarshal("secrets", secCfg); err != nil {
		return nil, err
	}
	redactor, err := secrets.New(secCfg)
	if err != nil {
		return nil, err
	}

	model, err := generate.New(cfg.Model.Generate())
	if err != nil {
		return nil, fmt.Errorf("initializing model: %w", err)
	}

	catalog, err := skills.NewDefaultCatalog(model)
	if err != nil {
		return nil, fmt.Errorf("building skill catalog: %w", err)
	}

	sessions, err := store.Open(ctx, cfg.Session.StoreDriver, cfg.Session.StoreDSN)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := orchestrator.NewMetrics(registry)

	exec := orchestrator.NewExecutor(catalog, logger,
		orchestrator.WithTelemetry(tel),
		orchestrator.WithMetrics(metrics),
	)

	opts := []orchestrator.EngineOption{
		orchestrator.WithEngineMetrics(metrics),
		orchestrator.WithRedactor(redactor),
	}
	if cfg.Pipeline.Responder {
		responder := orchestrator.NewModelResponder(model)
		responder.SetHistory(cfg.Pipeline.History)
		opts = append(opts, orchestrator.WithResponder(responder))
	}
	engine := orchestrator.NewEngine(catalog, exec, newClassifier(cfg.Pipeline, model, catalog), logger, opts...)

	logger.Info(ctx, "engine ready",
		zap.String("model.provider", cfg.Model.Provider),
		zap.String("store.driver", cfg.Session.StoreDriver),
		zap.Int("skills", catalog.Len()),
	)

	return &app{
		cfg:       cfg,
		logger:    logger,
		telemetry: tel,
		registry:  registry,
		store:     sessions,
		engine:    engine,
	}, nil
}

// newClassifier returns the model classifier backed by keyword routing, or
// keyword routing alone.
func newClassifier(cfg config.PipelineConfig, model generate.Model, catalog *skills.Catalog) intent.Classifier {
	keyword := intent.NewKeywordClassifier(catalog)
	if cfg.Classifier == "keyword" {
		return keyword
	}
	return intent.Fallback(intent.NewModelClassifier(model), keyword)
}

// Close releases the store and flushes telemetry.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down telemetry: %w", err))
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
