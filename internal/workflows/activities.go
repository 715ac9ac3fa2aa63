package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hazwanj/jalanku/internal/core/domain"
	"github.com/hazwanj/jalanku/internal/core/ports"
)

// PlaceRecord is a row of the external place dataset. Kept separate from
// domain.Place so dataset schema changes stay at the workflow boundary.
type PlaceRecord struct {
	Name     string            `json:"name"`
	Lat      float64           `json:"lat"`
	Lon      float64           `json:"lon"`
	Subtitle string            `json:"subtitle,omitempty"`
	Category string            `json:"category,omitempty"`
	Region   string            `json:"region,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
}

// SyncActivities holds the activity implementations for the dataset sync
// workflow.
type SyncActivities struct {
	Places     ports.PlaceRepository
	Businesses ports.PlaceRepository
	Cache      ports.CacheService
	Events     ports.EventPublisher
	HTTPClient *http.Client
}

// FetchDataset downloads and decodes a JSON place dataset.
func (a *SyncActivities) FetchDataset(ctx context.Context, sourceURL string) ([]PlaceRecord, error) {
	client := a.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build dataset request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch dataset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch dataset: unexpected status %d", resp.StatusCode)
	}

	var records []PlaceRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return records, nil
}

// UpsertPlaces writes the fetched records into the repository for the
// named dataset in batches. Records without a usable name or coordinate
// are skipped, not failed.
func (a *SyncActivities) UpsertPlaces(ctx context.Context, dataset string, records []PlaceRecord) (int, error) {
	repo, source, err := a.repoFor(dataset)
	if err != nil {
		return 0, err
	}

	places := make([]domain.Place, 0, len(records))
	for _, rec := range records {
		p := domain.Place{
			Name:     rec.Name,
			Location: domain.GeoPoint{Lat: rec.Lat, Lon: rec.Lon},
			Source:   source,
			Subtitle: rec.Subtitle,
			Category: rec.Category,
			Region:   rec.Region,
			Tags:     rec.Tags,
		}
		if !p.Valid() {
			continue
		}
		places = append(places, p)
	}

	const batchSize = 500
	for start := 0; start < len(places); start += batchSize {
		end := start + batchSize
		if end > len(places) {
			end = len(places)
		}
		if err := repo.UpsertBatch(ctx, places[start:end]); err != nil {
			return start, fmt.Errorf("upsert batch at offset %d: %w", start, err)
		}
	}
	return len(places), nil
}

// PurgeResolutionCache drops the sync marker and announces the refresh
// so connected clients can re-request suggestions. Individual suggest
// entries are left to expire on their TTL.
func (a *SyncActivities) PurgeResolutionCache(ctx context.Context, dataset string) error {
	if a.Cache != nil {
		if err := a.Cache.Delete(ctx, "dataset:"+dataset+":synced_at"); err != nil {
			return fmt.Errorf("purge sync marker: %w", err)
		}
		marker, _ := json.Marshal(time.Now().UTC().Format(time.RFC3339))
		_ = a.Cache.Set(ctx, "dataset:"+dataset+":synced_at", marker, 7*24*3600)
	}

	if a.Events != nil {
		payload, _ := json.Marshal(map[string]string{"event": "dataset_synced", "dataset": dataset})
		if err := a.Events.PublishBroadcast(ctx, payload); err != nil {
			return fmt.Errorf("announce dataset sync: %w", err)
		}
	}
	return nil
}

func (a *SyncActivities) repoFor(dataset string) (ports.PlaceRepository, domain.PlaceSource, error) {
	switch dataset {
	case "curated_places":
		if a.Places == nil {
			return nil, "", fmt.Errorf("curated place repository not configured")
		}
		return a.Places, domain.SourceLocal, nil
	case "businesses":
		if a.Businesses == nil {
			return nil, "", fmt.Errorf("business repository not configured")
		}
		return a.Businesses, domain.SourceBusiness, nil
	default:
		return nil, "", fmt.Errorf("unknown dataset %q", dataset)
	}
}
