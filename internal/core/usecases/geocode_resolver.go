package usecases

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/hazwanj/jalanku/internal/core/domain"
	"github.com/hazwanj/jalanku/internal/core/ports"
	"github.com/hazwanj/jalanku/internal/pkg/metrics"
)

// GeocodeResolver turns a free-text query into ranked candidate places
// by walking a prioritized cascade: local datasets first (free and
// authoritative, short-circuits), then the community geocoders in
// order. Provider failure at any remote tier counts as an empty tier,
// never as a user-facing error.
type GeocodeResolver struct {
	locals    []ports.PlaceRepository // tier 1, searched in order
	remotes   []ports.GeocodeProvider // tiers 2..n, tried in order
	bounds    domain.Bounds
	minLen    int
	limit     int
	lifecycle *Lifecycle

	// Single-entry memo of the last remote resolution in this session,
	// distinct from the shared TTL cache.
	mu         sync.Mutex
	lastQuery  string
	lastResult []domain.Place
}

// NewGeocodeResolver creates a GeocodeResolver. locals and remotes are
// tried in the given order.
func NewGeocodeResolver(locals []ports.PlaceRepository, remotes []ports.GeocodeProvider, bounds domain.Bounds, minLen, limit int, lifecycle *Lifecycle) *GeocodeResolver {
	if minLen <= 0 {
		minLen = 2
	}
	if limit <= 0 {
		limit = 8
	}
	return &GeocodeResolver{
		locals:    locals,
		remotes:   remotes,
		bounds:    bounds,
		minLen:    minLen,
		limit:     limit,
		lifecycle: lifecycle,
	}
}

// Suggest resolves query into at most the configured number of ranked
// candidate places. Queries below the minimum length return an empty
// list without touching the network. An empty result is not an error.
func (r *GeocodeResolver) Suggest(ctx context.Context, query string) ([]domain.Place, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < r.minLen {
		return nil, nil
	}

	// Tier 1: already-loaded local datasets. A hit here is final.
	if places := r.searchLocal(ctx, query); len(places) > 0 {
		metrics.SuggestTierHits.WithLabelValues("local").Inc()
		return places, nil
	}

	// Session memo: the exact same query already resolved remotely.
	r.mu.Lock()
	if r.lastQuery == query && len(r.lastResult) > 0 {
		memo := append([]domain.Place(nil), r.lastResult...)
		r.mu.Unlock()
		metrics.SuggestTierHits.WithLabelValues("memo").Inc()
		return memo, nil
	}
	r.mu.Unlock()

	// Shared TTL cache across sessions.
	cacheKey := NormalizeKey("suggest", query)
	var cached []domain.Place
	if r.lifecycle != nil && r.lifecycle.GetCached(ctx, cacheKey, &cached) && len(cached) > 0 {
		return cached, nil
	}

	// Tiers 2..n: community geocoders, first non-empty wins. An error
	// and an empty-but-successful response both fall through.
	for _, provider := range r.remotes {
		places, err := provider.Search(ctx, query, r.bounds, r.limit)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			metrics.ProviderRequests.WithLabelValues(provider.Name(), "error").Inc()
			slog.Warn("geocode tier failed, cascading", "provider", provider.Name(), "error", err)
			continue
		}
		if len(places) == 0 {
			metrics.ProviderRequests.WithLabelValues(provider.Name(), "empty").Inc()
			continue
		}
		metrics.ProviderRequests.WithLabelValues(provider.Name(), "ok").Inc()
		metrics.SuggestTierHits.WithLabelValues(provider.Name()).Inc()

		if len(places) > r.limit {
			places = places[:r.limit]
		}

		r.mu.Lock()
		r.lastQuery = query
		r.lastResult = append([]domain.Place(nil), places...)
		r.mu.Unlock()

		if r.lifecycle != nil {
			r.lifecycle.PutCached(ctx, cacheKey, places)
		}
		return places, nil
	}

	// Every tier empty or failed: an empty suggestion list, not an error.
	metrics.SuggestTierHits.WithLabelValues("none").Inc()
	return nil, nil
}

// SuggestDebounced runs Suggest after the debounce interval, delivering
// through deliver only if the request is still the current generation
// for the slot by the time the cascade finishes. Stale responses are
// dropped, so a slow lookup for an abandoned prefix can never overwrite
// a fresher one.
func (r *GeocodeResolver) SuggestDebounced(ctx context.Context, slot, query string, deliver func([]domain.Place, error)) {
	if r.lifecycle == nil {
		places, err := r.Suggest(ctx, query)
		deliver(places, err)
		return
	}

	r.lifecycle.Debounce(slot, func() {
		runCtx, gen := r.lifecycle.Begin(ctx, slot)
		places, err := r.Suggest(runCtx, query)
		if !r.lifecycle.Current(slot, gen) {
			return
		}
		deliver(places, err)
	})
}

// Resolve geocodes a single free-text endpoint to its best candidate.
// Used by the route resolver for text origins/destinations.
func (r *GeocodeResolver) Resolve(ctx context.Context, text string) (*domain.GeoPoint, error) {
	places, err := r.Suggest(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(places) == 0 {
		return nil, domain.ErrMissingEndpoint
	}
	pt := places[0].Location
	return &pt, nil
}

func (r *GeocodeResolver) searchLocal(ctx context.Context, query string) []domain.Place {
	var out []domain.Place
	for _, repo := range r.locals {
		places, err := repo.Search(ctx, query, r.limit-len(out))
		if err != nil {
			slog.Warn("local place search failed", "error", err)
			continue
		}
		for _, p := range places {
			if p.Valid() {
				out = append(out, p)
			}
		}
		if len(out) >= r.limit {
			return out[:r.limit]
		}
	}
	return out
}
