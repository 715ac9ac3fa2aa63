package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/hazwanj/jalanku/internal/core/domain"
	"github.com/hazwanj/jalanku/internal/core/ports"
	"github.com/hazwanj/jalanku/internal/pkg/geospatial"
	"github.com/hazwanj/jalanku/internal/pkg/metrics"
)

// NearbyAggregator fans a nearby-places query out to every configured
// source concurrently and merges the answers into one deduplicated,
// distance-sorted list. Source order is precedence order: when two
// sources return the same place, the earlier source's record wins.
type NearbyAggregator struct {
	sources   []ports.NearbySource
	lifecycle *Lifecycle
	maxPlaces int
}

// NewNearbyAggregator creates a NearbyAggregator. sources are queried
// concurrently but merged in the given precedence order.
func NewNearbyAggregator(sources []ports.NearbySource, lifecycle *Lifecycle, maxPlaces int) *NearbyAggregator {
	if maxPlaces <= 0 {
		maxPlaces = 50
	}
	return &NearbyAggregator{
		sources:   sources,
		lifecycle: lifecycle,
		maxPlaces: maxPlaces,
	}
}

// Aggregate collects places near the query anchor from all sources.
// A failing source contributes an empty set rather than failing the
// aggregate; only a cancelled context is a hard error. The result is
// deduplicated first-wins by precedence, annotated with distance from
// the anchor, and sorted nearest-first.
func (a *NearbyAggregator) Aggregate(ctx context.Context, query domain.NearbyQuery) ([]domain.Place, error) {
	if !query.Anchor.Valid() {
		return nil, fmt.Errorf("nearby: invalid anchor coordinate")
	}

	cacheKey := nearbyCacheKey(query)
	var cached []domain.Place
	if a.lifecycle != nil && a.lifecycle.GetCached(ctx, cacheKey, &cached) && len(cached) > 0 {
		return cached, nil
	}

	// Fan out concurrently; perSource is indexed so the merge below can
	// honor precedence regardless of completion order.
	perSource := make([][]domain.Place, len(a.sources))
	var wg sync.WaitGroup
	for i, src := range a.sources {
		wg.Add(1)
		go func(i int, src ports.NearbySource) {
			defer wg.Done()
			places, err := src.Nearby(ctx, query)
			if err != nil {
				metrics.NearbySourceFailures.WithLabelValues(src.Name()).Inc()
				slog.Warn("nearby source failed, degrading to empty", "source", src.Name(), "error", err)
				return
			}
			perSource[i] = places
		}(i, src)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	merged := a.merge(perSource, query)
	if a.lifecycle != nil && len(merged) > 0 {
		a.lifecycle.PutCached(ctx, cacheKey, merged)
	}
	return merged, nil
}

func (a *NearbyAggregator) merge(perSource [][]domain.Place, query domain.NearbyQuery) []domain.Place {
	seen := make(map[string]struct{})
	var merged []domain.Place

	for _, places := range perSource {
		for _, p := range places {
			if !p.Valid() {
				continue
			}
			if query.Category != "" && !matchesCategory(p, query.Category) {
				continue
			}
			key := p.DedupKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			d := geospatial.Haversine(query.Anchor.Lat, query.Anchor.Lon, p.Location.Lat, p.Location.Lon)
			if math.IsNaN(d) || math.IsInf(d, 0) {
				d = math.Inf(1) // sorts last
			}
			p.Distance = &d
			merged = append(merged, p)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return *merged[i].Distance < *merged[j].Distance
	})

	limit := a.maxPlaces
	if query.Limit > 0 && query.Limit < limit {
		limit = query.Limit
	}
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// matchesCategory is a heuristic filter: sources tag places
// inconsistently, so a case-insensitive substring match over category,
// subtitle and tags catches most of them without a taxonomy.
func matchesCategory(p domain.Place, category string) bool {
	needle := strings.ToLower(category)
	if strings.Contains(strings.ToLower(p.Category), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(p.Subtitle), needle) {
		return true
	}
	for k, v := range p.Tags {
		if strings.Contains(strings.ToLower(k), needle) || strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}

func nearbyCacheKey(query domain.NearbyQuery) string {
	return NormalizeKey("nearby", fmt.Sprintf("%.5f,%.5f:%.0f:%s:%d",
		query.Anchor.Lat, query.Anchor.Lon, query.RadiusMeters, query.Category, query.Limit))
}
