package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// DatasetSyncInput is the input for the dataset sync workflow.
type DatasetSyncInput struct {
	SourceURL string // JSON dataset endpoint
	Dataset   string // "curated_places" or "businesses"
}

// DatasetSyncResult summarizes a completed sync run.
type DatasetSyncResult struct {
	Fetched  int
	Upserted int
}

// DatasetSyncWorkflow fetches a place dataset, upserts it into the local
// repository, and invalidates the resolution cache so suggestions pick
// up the new rows. Each step retries independently; a fetch that yields
// zero places aborts before touching the database.
func DatasetSyncWorkflow(ctx workflow.Context, input DatasetSyncInput) (*DatasetSyncResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting dataset sync", "dataset", input.Dataset, "source", input.SourceURL)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 5 * time.Second,
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	// Step 1: Fetch the dataset
	var fetched []PlaceRecord
	if err := workflow.ExecuteActivity(ctx, "FetchDataset", input.SourceURL).Get(ctx, &fetched); err != nil {
		return nil, err
	}
	if len(fetched) == 0 {
		logger.Warn("Dataset sync fetched zero places, aborting", "dataset", input.Dataset)
		return &DatasetSyncResult{}, nil
	}

	// Step 2: Upsert into the local repository
	var upserted int
	if err := workflow.ExecuteActivity(ctx, "UpsertPlaces", input.Dataset, fetched).Get(ctx, &upserted); err != nil {
		return nil, err
	}

	// Step 3: Invalidate cached resolutions and announce the refresh.
	// Failure here is non-fatal: entries age out on their TTL anyway.
	if err := workflow.ExecuteActivity(ctx, "PurgeResolutionCache", input.Dataset).Get(ctx, nil); err != nil {
		logger.Warn("Cache purge failed after sync, entries will age out", "error", err)
	}

	logger.Info("Dataset sync complete", "dataset", input.Dataset, "fetched", len(fetched), "upserted", upserted)
	return &DatasetSyncResult{Fetched: len(fetched), Upserted: upserted}, nil
}
