package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/zerotwo/ine-collector/internal/catalog"
	"github.com/zerotwo/ine-collector/internal/collector"
	"github.com/zerotwo/ine-collector/internal/config"
	"github.com/zerotwo/ine-collector/internal/db"
	"github.com/zerotwo/ine-collector/internal/ine"
	"github.com/zerotwo/ine-collector/internal/logger"
	"github.com/zerotwo/ine-collector/internal/models"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("collector failed: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logr, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logr.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.DryRun {
		logr.Info("dry-run: skipping migration and catalog sync")
	} else {
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		cat, err := catalog.Load(cfg.ReferenceDataPath, logr)
		if err != nil {
			return err
		}
		if err := store.SyncCatalog(ctx, cat.List(0)); err != nil {
			return err
		}
	}

	client := ine.NewClient(cfg.BaseURL, cfg.RequestTimeout)
	runner := collector.NewRunner(client, store, collector.Options{
		Pause:          cfg.DatasetPause,
		PersistTimeout: cfg.PersistTimeout,
		DryRun:         cfg.DryRun,
	}, logr)

	if !runner.TestConnection(ctx) {
		logr.Warn("remote api did not answer the connection test, continuing")
	}

	summary, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	for _, res := range summary.Results {
		if res.Status != models.StatusSuccess {
			logr.Warn("dataset not collected",
				zap.String("code", res.Code),
				zap.String("status", string(res.Status)),
				zap.String("error", res.Error),
			)
		}
	}
	logr.Info("run complete",
		zap.String("run_id", summary.RunID),
		zap.Int("datasets", summary.TotalDatasets),
		zap.Int("records", summary.TotalRecords),
		zap.Any("status_counts", summary.StatusCounts),
	)
	return nil
}
