package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joelkehle/telecom-radar/internal/config"
	"github.com/joelkehle/telecom-radar/internal/directory"
	"github.com/joelkehle/telecom-radar/internal/llm"
	"github.com/joelkehle/telecom-radar/internal/logging"
	"github.com/joelkehle/telecom-radar/internal/measurement"
	"github.com/joelkehle/telecom-radar/internal/relational"
	"github.com/joelkehle/telecom-radar/internal/report"
	"github.com/joelkehle/telecom-radar/internal/resolver"
	"github.com/joelkehle/telecom-radar/internal/store"
	"github.com/joelkehle/telecom-radar/internal/summarizer"
	"github.com/joelkehle/telecom-radar/internal/telemetry"
	"github.com/joelkehle/telecom-radar/internal/tracing"
)

// app holds everything a subcommand needs, built once from configuration.
type app struct {
	cfg      config.Config
	log      *zap.Logger
	db       *store.DB
	builder  *relational.Builder
	pipeline *report.Pipeline
	shutdown tracing.ShutdownFunc
}

func loadConfig(path string) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return cfg, nil, eris.Wrap(err, "init logger")
	}
	return cfg, log, nil
}

// openStore is enough for commands that only read tables.
func openStore(cfg config.Config, log *zap.Logger) (*store.DB, *relational.Builder, error) {
	db, err := store.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, nil, err
	}
	return db, relational.NewBuilder(db, cfg.Pipeline.GroupingColumn, cfg.Store.ReadWorkers, log), nil
}

func bootstrap(ctx context.Context, path string) (*app, error) {
	cfg, log, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}

	a.shutdown, err = tracing.Setup(ctx, cfg.Tracing.Endpoint, cfg.Tracing.ServiceName, cfg.Tracing.Insecure)
	if err != nil {
		return nil, eris.Wrap(err, "init tracing")
	}
	a.db, a.builder, err = openStore(cfg, log)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	caller, err := llm.NewCaller(ctx, cfg.LLM)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	dir, err := directory.FromConfig(cfg.Directory, log)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	meas := measurement.NewCollector(
		measurement.NewClient(measurement.ClientConfig{
			BaseURL:           cfg.Measurement.BaseURL,
			Limit:             cfg.Measurement.Limit,
			RequestsPerMinute: cfg.Measurement.RequestsPerMinute,
		}),
		cfg.Measurement.Timeout, cfg.Measurement.Workers, log,
	)
	tel := telemetry.NewCollector(
		telemetry.NewClient(telemetry.ClientConfig{
			BaseURL:    cfg.Telemetry.BaseURL,
			Token:      cfg.Telemetry.Token,
			TopDomains: cfg.Telemetry.TopDomains,
		}),
		cfg.Telemetry.Timeout, cfg.Telemetry.Workers, log,
	)

	a.pipeline, err = report.NewPipeline(report.Deps{
		Relational:  a.builder,
		Resolver:    resolver.New(caller, log),
		Directory:   dir,
		Measurement: meas,
		Telemetry:   tel,
		Summarizer:  summarizer.New(caller, log),
		Logger:      log,
	})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	log.Info("bootstrap done",
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", caller.ModelName()),
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("directory_mode", cfg.Directory.Mode),
	)
	return a, nil
}

func (a *app) Close(ctx context.Context) {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("close store", zap.Error(err))
		}
	}
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			a.log.Warn("shutdown tracing", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}
