package main

import (
	"context"
	"log"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/hazwanj/jalanku/internal/adapters/nats"
	"github.com/hazwanj/jalanku/internal/adapters/postgres"
	"github.com/hazwanj/jalanku/internal/adapters/valkey"
	"github.com/hazwanj/jalanku/internal/pkg/config"
	"github.com/hazwanj/jalanku/internal/pkg/logging"
	"github.com/hazwanj/jalanku/internal/workflows"
)

func main() {
	cfg, err := config.Load("jalanku-syncworker")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup("info", "json")

	ctx := context.Background()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	activities := &workflows.SyncActivities{
		Places:     postgres.NewCuratedPlaceRepo(db),
		Businesses: postgres.NewBusinessRepo(db),
	}

	if cache, err := valkey.New(cfg.Valkey.Addr); err != nil {
		slog.Warn("valkey unavailable, sync markers disabled", "error", err)
	} else {
		defer cache.Close()
		activities.Cache = cache
	}

	if events, err := natsadapter.NewPublisher(cfg.NATS.URL); err != nil {
		slog.Warn("nats unavailable, sync announcements disabled", "error", err)
	} else {
		defer events.Close()
		activities.Events = events
	}

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	// Nightly syncs for each configured dataset source. Temporal
	// deduplicates on workflow ID, so restarts are safe.
	scheduleSync(ctx, c, cfg.Temporal.TaskQueue, "curated_places", cfg.Dataset.PlacesURL)
	scheduleSync(ctx, c, cfg.Temporal.TaskQueue, "businesses", cfg.Dataset.BusinessesURL)

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.DatasetSyncWorkflow)
	w.RegisterActivity(activities)

	log.Println("dataset sync worker started")
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}

func scheduleSync(ctx context.Context, c client.Client, taskQueue, dataset, sourceURL string) {
	if sourceURL == "" {
		slog.Info("no source configured, skipping scheduled sync", "dataset", dataset)
		return
	}

	_, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:           "dataset-sync-" + dataset,
		TaskQueue:    taskQueue,
		CronSchedule: "0 3 * * *", // nightly at 03:00
	}, workflows.DatasetSyncWorkflow, workflows.DatasetSyncInput{
		SourceURL: sourceURL,
		Dataset:   dataset,
	})
	if err != nil {
		slog.Warn("schedule dataset sync failed", "dataset", dataset, "error", err)
		return
	}
	slog.Info("dataset sync scheduled", "dataset", dataset, "source", sourceURL)
}
