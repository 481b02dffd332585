package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roisanwr/Water-Potability-Clasification/config"
	"github.com/roisanwr/Water-Potability-Clasification/db"
	qhttp "github.com/roisanwr/Water-Potability-Clasification/http"
	"github.com/roisanwr/Water-Potability-Clasification/ml"
	"github.com/roisanwr/Water-Potability-Clasification/monitoring"
)

// app owns everything started by the serve command.
type app struct {
	logger  *zap.Logger
	server  *qhttp.Server
	history *db.History
	feed    *monitoring.VerdictFeed
	watcher *monitoring.ArtifactWatcher
}

// newApp loads the artifacts before anything else, so a missing file stops
// startup before a listener exists.
func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	artifacts, err := ml.LoadArtifacts(cfg.ML.ModelType, cfg.ML.ModelPath, cfg.ML.ScalerPath)
	if err != nil {
		return nil, fmt.Errorf("load artifacts: %w", err)
	}
	logger.Info("model and scaler loaded",
		zap.String("model_type", artifacts.ModelType()),
		zap.String("model_path", cfg.ML.ModelPath),
		zap.String("scaler_path", cfg.ML.ScalerPath))

	predictor, err := ml.NewPredictor(artifacts, cfg.ML.CacheSize)
	if err != nil {
		return nil, err
	}

	a := &app{logger: logger}
	opts := []qhttp.HandlerOption{qhttp.WithLogger(logger)}

	if cfg.History.Enabled {
		history, err := db.Open(cfg.History.Driver, cfg.History.DSN)
		if err != nil {
			return nil, err
		}
		a.history = history
		opts = append(opts, qhttp.WithHistory(history))
		logger.Info("prediction history enabled", zap.String("driver", cfg.History.Driver))
	}

	if cfg.Feed.Enabled {
		a.feed = monitoring.NewVerdictFeed(logger)
		opts = append(opts, qhttp.WithFeed(a.feed))
	}

	if cfg.Watch.Enabled {
		watcher, err := monitoring.NewArtifactWatcher(artifacts.Paths(), logger)
		if err != nil {
			a.close()
			return nil, err
		}
		a.watcher = watcher
	}

	handler, err := qhttp.NewHandler(predictor, cfg.UI.Language, opts...)
	if err != nil {
		a.close()
		return nil, err
	}

	serverConfig := qhttp.DefaultServerConfig()
	serverConfig.Addr = cfg.Addr()
	if cfg.Http.Timeout > 0 {
		serverConfig.Timeout = cfg.Http.Timeout
	}
	a.server = qhttp.NewServer(serverConfig, handler, logger)
	return a, nil
}

// run blocks until ctx is cancelled or a component fails.
func (a *app) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(a.server.Start)
	g.Go(func() error {
		<-ctx.Done()
		return a.server.Stop()
	})
	if a.feed != nil {
		g.Go(func() error { return a.feed.Run(ctx) })
	}
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(ctx) })
	}
	return g.Wait()
}

func (a *app) close() {
	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			a.logger.Warn("close artifact watcher failed", zap.Error(err))
		}
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warn("close history failed", zap.Error(err))
		}
	}
}
