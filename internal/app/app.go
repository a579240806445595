package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/benroywillis/Cyclebite-sub001/internal/config"
	"github.com/benroywillis/Cyclebite-sub001/internal/ctxlog"
)

// App encapsulates the run's dependencies, configuration, and lifecycle.
type App struct {
	outW       io.Writer
	logger     *slog.Logger
	cfg        *Config
	model      *config.Model
	progress   progress
	httpServer *http.Server
}

// NewApp builds an App. Results without a configured file go to outW, log
// lines to logW. The configuration files named by cfg are read through
// loader.
func NewApp(outW, logW io.Writer, cfg *Config, loader config.Loader) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, cfg.ConfigPaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Workers > 0 {
		model.Analysis.Workers = cfg.Workers
	}
	if cfg.OutputPath != "" {
		model.Output.Statistics = cfg.OutputPath
	}
	logger.Debug("Configuration loaded.", "workers", model.Analysis.Workers, "statistics", model.Output.Statistics)

	return &App{
		outW:   outW,
		logger: logger,
		cfg:    cfg,
		model:  model,
	}, nil
}

// Model returns the effective configuration. This is primarily for testing.
func (a *App) Model() *config.Model {
	return a.model
}
