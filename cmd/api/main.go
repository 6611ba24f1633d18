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
	cronrunner "github.com/zerotwo/ine-collector/internal/cron"
	"github.com/zerotwo/ine-collector/internal/db"
	"github.com/zerotwo/ine-collector/internal/enrich"
	httpserver "github.com/zerotwo/ine-collector/internal/http"
	"github.com/zerotwo/ine-collector/internal/ine"
	"github.com/zerotwo/ine-collector/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logr, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logr.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logr.Fatal("db connection error", zap.Error(err))
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		logr.Fatal("migration error", zap.Error(err))
	}

	cat, err := catalog.Load(cfg.ReferenceDataPath, logr)
	if err != nil {
		logr.Fatal("catalog error", zap.Error(err))
	}
	if err := store.SyncCatalog(ctx, cat.List(0)); err != nil {
		logr.Fatal("catalog sync error", zap.Error(err))
	}

	ref := enrich.LoadReference(cfg.ReferenceDataPath, logr)
	client := ine.NewClient(cfg.BaseURL, cfg.RequestTimeout)
	runner := collector.NewRunner(client, store, collector.Options{
		Pause:          cfg.DatasetPause,
		PersistTimeout: cfg.PersistTimeout,
	}, logr)

	if cfg.CollectionSchedule != "" {
		cr := cronrunner.New(logr, ctx)
		if _, err := cr.Add(cfg.CollectionSchedule, func(ctx context.Context) {
			if _, err := runner.Run(ctx); err != nil {
				logr.Warn("scheduled collection skipped", zap.Error(err))
			}
		}); err != nil {
			logr.Fatal("invalid COLLECTION_SCHEDULE", zap.String("spec", cfg.CollectionSchedule), zap.Error(err))
		}
		cr.Start()
		defer cr.Stop()
	}

	srv := httpserver.New(cfg, httpserver.Deps{
		Catalog:   cat,
		Fetcher:   client,
		Store:     store,
		Collector: runner,
		Enricher:  enrich.New(ref),
	}, logr)

	if err := srv.Run(ctx); err != nil {
		logr.Error("server error", zap.Error(err))
	}
}
