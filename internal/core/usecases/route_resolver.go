package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hazwanj/jalanku/internal/core/domain"
	"github.com/hazwanj/jalanku/internal/core/ports"
	"github.com/hazwanj/jalanku/internal/pkg/geospatial"
	"github.com/hazwanj/jalanku/internal/pkg/metrics"
)

// RoutePolicy is the per-vehicle routing policy: which provider/profile
// pair to try first, where to fall back, whether alternatives are
// requested, the post-hoc adjustment factors, and the assumed speed for
// the straight-line fallback.
type RoutePolicy struct {
	Primary          string
	PrimaryProfile   string
	Fallback         string
	FallbackProfile  string
	Alternatives     bool
	DurationFactor   float64
	DistanceFactor   float64
	FallbackSpeedMPS float64
}

// StraightLineProvider tags the synthetic fallback route.
const StraightLineProvider = "straight-line"

// RouteResolver computes travel routes through a provider cascade with
// road snapping, per-vehicle adjustment, and a straight-line fallback
// of last resort.
type RouteResolver struct {
	providers   map[string]ports.RoutingProvider
	snapper     ports.SnapProvider
	geocoder    *GeocodeResolver
	policies    map[domain.VehicleProfile]RoutePolicy
	lifecycle   *Lifecycle
	events      ports.EventPublisher
	snapTimeout time.Duration
}

// NewRouteResolver creates a RouteResolver. snapper, geocoder, events
// and lifecycle may each be nil; the resolver degrades gracefully
// (no snapping, no text endpoints, no events, no caching).
func NewRouteResolver(
	providers map[string]ports.RoutingProvider,
	snapper ports.SnapProvider,
	geocoder *GeocodeResolver,
	policies map[domain.VehicleProfile]RoutePolicy,
	lifecycle *Lifecycle,
	events ports.EventPublisher,
	snapTimeout time.Duration,
) *RouteResolver {
	if snapTimeout <= 0 {
		snapTimeout = 800 * time.Millisecond
	}
	return &RouteResolver{
		providers:   providers,
		snapper:     snapper,
		geocoder:    geocoder,
		policies:    policies,
		lifecycle:   lifecycle,
		events:      events,
		snapTimeout: snapTimeout,
	}
}

// Resolve computes one route (or ranked alternatives) for the request.
// Alternatives are ordered by ascending duration; index 0 is the
// default selection. If every provider fails but both endpoints are
// known, a straight-line degraded route is returned instead of an
// error.
func (r *RouteResolver) Resolve(ctx context.Context, req domain.RouteRequest, wantAlternatives bool) ([]domain.RouteResult, error) {
	policy, ok := r.policies[req.Profile]
	if !ok {
		return nil, fmt.Errorf("unknown vehicle profile %q", req.Profile)
	}

	points, err := r.resolvePoints(ctx, req)
	if err != nil {
		return nil, err
	}

	cacheKey := routeCacheKey(points, req.Profile, wantAlternatives)
	var cached []domain.RouteResult
	if r.lifecycle != nil && r.lifecycle.GetCached(ctx, cacheKey, &cached) && len(cached) > 0 {
		return cached, nil
	}

	snapped := r.snapAll(ctx, points, policy.PrimaryProfile)

	results := r.cascade(ctx, snapped, policy, wantAlternatives)
	if len(results) == 0 {
		// Every real provider failed. Both endpoints are known at this
		// point, so a straight-line route is constructible.
		metrics.DegradedRoutes.Inc()
		slog.Warn("all routing providers failed, serving straight-line fallback", "profile", req.Profile)
		return []domain.RouteResult{r.straightLine(points, policy)}, nil
	}

	// The adjustment factors apply only to geometrically real routes.
	for i := range results {
		results[i].DurationSeconds *= policy.DurationFactor
		results[i].DistanceMeters *= policy.DistanceFactor
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].DurationSeconds < results[j].DurationSeconds
	})

	if r.lifecycle != nil {
		r.lifecycle.PutCached(ctx, cacheKey, results)
	}
	return results, nil
}

// ResolveTwoPhase computes the route in two deliveries for
// responsiveness: a fast single route from the fallback provider is
// delivered as provisional the moment it returns, and the
// full-fidelity result replaces it when ready. Both deliveries are
// suppressed if a newer request has claimed the slot in the meantime,
// so an abandoned request can never clobber a fresh one. The call
// returns immediately; deliver runs on background goroutines.
func (r *RouteResolver) ResolveTwoPhase(ctx context.Context, slot, requestID string, req domain.RouteRequest, wantAlternatives bool, deliver func(domain.RouteUpdate)) {
	policy, ok := r.policies[req.Profile]
	if !ok {
		deliver(domain.RouteUpdate{RequestID: requestID, Phase: domain.RoutePhaseFailed, Error: fmt.Sprintf("unknown vehicle profile %q", req.Profile)})
		return
	}

	var runCtx context.Context
	var gen uint64
	if r.lifecycle != nil {
		runCtx, gen = r.lifecycle.Begin(ctx, slot)
	} else {
		runCtx = ctx
	}

	emit := func(update domain.RouteUpdate) {
		if r.lifecycle != nil && !r.lifecycle.Current(slot, gen) {
			return
		}
		deliver(update)
		if r.events != nil {
			_ = r.events.PublishRouteUpdate(runCtx, &update)
		}
	}

	go func() {
		points, err := r.resolvePoints(runCtx, req)
		if err != nil {
			emit(domain.RouteUpdate{RequestID: requestID, Phase: domain.RoutePhaseFailed, Error: err.Error()})
			return
		}

		// Fast path: a single basic route, unsnapped, so the caller has
		// something to draw within about a second. Runs concurrently
		// with the full-fidelity attempt.
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			fallback, ok := r.providers[policy.Fallback]
			if !ok {
				return
			}
			routes, err := fallback.Route(runCtx, points, policy.FallbackProfile, false)
			routes = usableRoutes(routes)
			if err != nil || len(routes) == 0 {
				return
			}
			// The provisional carries the same per-vehicle factors as
			// the final, so the displayed figures never jump between
			// deliveries.
			quick := routes[0]
			quick.DurationSeconds *= policy.DurationFactor
			quick.DistanceMeters *= policy.DistanceFactor
			emit(domain.RouteUpdate{RequestID: requestID, Phase: domain.RoutePhaseProvisional, Routes: []domain.RouteResult{quick}})
		}()

		results, err := r.Resolve(runCtx, req, wantAlternatives)
		wg.Wait()
		if err != nil {
			emit(domain.RouteUpdate{RequestID: requestID, Phase: domain.RoutePhaseFailed, Error: err.Error()})
			return
		}
		emit(domain.RouteUpdate{RequestID: requestID, Phase: domain.RoutePhaseFinal, Routes: results})
	}()
}

// resolvePoints produces the ordered coordinate list origin, waypoints,
// destination, geocoding free-text endpoints first. A failure to
// geocode either endpoint aborts the route attempt.
func (r *RouteResolver) resolvePoints(ctx context.Context, req domain.RouteRequest) ([]domain.GeoPoint, error) {
	origin, err := r.resolveEndpoint(ctx, req.Origin, req.OriginText)
	if err != nil {
		return nil, err
	}
	destination, err := r.resolveEndpoint(ctx, req.Destination, req.DestinationText)
	if err != nil {
		return nil, err
	}

	points := make([]domain.GeoPoint, 0, len(req.Waypoints)+2)
	points = append(points, *origin)
	for _, wp := range req.Waypoints {
		if wp.Valid() {
			points = append(points, wp)
		}
	}
	points = append(points, *destination)
	return points, nil
}

func (r *RouteResolver) resolveEndpoint(ctx context.Context, pt *domain.GeoPoint, text string) (*domain.GeoPoint, error) {
	if pt != nil && pt.Valid() {
		return pt, nil
	}
	if text == "" || r.geocoder == nil {
		return nil, domain.ErrMissingEndpoint
	}
	resolved, err := r.geocoder.Resolve(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.ErrMissingEndpoint
	}
	return resolved, nil
}

// snapAll snaps every coordinate to the nearest routable road segment,
// concurrently and under a short per-point timeout. Snapping failure is
// never fatal: the raw coordinate is used silently.
func (r *RouteResolver) snapAll(ctx context.Context, points []domain.GeoPoint, profile string) []domain.GeoPoint {
	if r.snapper == nil {
		return points
	}

	snapped := make([]domain.GeoPoint, len(points))
	copy(snapped, points)

	var wg sync.WaitGroup
	for i := range points {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snapCtx, cancel := context.WithTimeout(ctx, r.snapTimeout)
			defer cancel()
			pt, err := r.snapper.Snap(snapCtx, points[i], profile)
			if err != nil || !pt.Valid() {
				metrics.SnapFailures.Inc()
				return
			}
			snapped[i] = pt
		}(i)
	}
	wg.Wait()
	return snapped
}

// cascade walks the provider chain for the policy: primary first, then
// the fallback (alternatives endpoint first where supported, retrying
// the single-route endpoint if that specifically fails). A provider
// response whose every path lacks geometry counts as a failure.
func (r *RouteResolver) cascade(ctx context.Context, points []domain.GeoPoint, policy RoutePolicy, wantAlternatives bool) []domain.RouteResult {
	primary, ok := r.providers[policy.Primary]
	if ok {
		alts := wantAlternatives && policy.Alternatives && primary.SupportsAlternatives(policy.PrimaryProfile)
		routes, err := primary.Route(ctx, points, policy.PrimaryProfile, alts)
		routes = usableRoutes(routes)
		if err == nil && len(routes) > 0 {
			metrics.ProviderRequests.WithLabelValues(primary.Name(), "ok").Inc()
			return routes
		}
		metrics.ProviderRequests.WithLabelValues(primary.Name(), outcomeLabel(err)).Inc()
		r.reportUnhealthy(ctx, primary.Name(), err)
	}

	fallback, ok := r.providers[policy.Fallback]
	if !ok {
		return nil
	}
	metrics.RouteFallbacks.WithLabelValues(policy.Primary, policy.Fallback).Inc()

	if wantAlternatives && fallback.SupportsAlternatives(policy.FallbackProfile) {
		routes, err := fallback.Route(ctx, points, policy.FallbackProfile, true)
		routes = usableRoutes(routes)
		if err == nil && len(routes) > 0 {
			metrics.ProviderRequests.WithLabelValues(fallback.Name(), "ok").Inc()
			return routes
		}
		// The alternatives endpoint specifically failed; the plain
		// single-route endpoint may still work.
		slog.Debug("alternatives request failed, retrying single route", "provider", fallback.Name(), "error", err)
	}

	routes, err := fallback.Route(ctx, points, policy.FallbackProfile, false)
	routes = usableRoutes(routes)
	if err == nil && len(routes) > 0 {
		metrics.ProviderRequests.WithLabelValues(fallback.Name(), "ok").Inc()
		return routes
	}
	metrics.ProviderRequests.WithLabelValues(fallback.Name(), outcomeLabel(err)).Inc()
	r.reportUnhealthy(ctx, fallback.Name(), err)
	return nil
}

// straightLine builds the degraded fallback route: great-circle
// segments through the requested points with duration estimated from
// the profile's assumed speed. Adjustment factors do not apply.
func (r *RouteResolver) straightLine(points []domain.GeoPoint, policy RoutePolicy) domain.RouteResult {
	pairs := make([][2]float64, len(points))
	for i, p := range points {
		pairs[i] = [2]float64{p.Lat, p.Lon}
	}
	distance := geospatial.PathDistance(pairs)

	speed := policy.FallbackSpeedMPS
	if speed <= 0 {
		speed = 13.9
	}

	return domain.RouteResult{
		Geometry:        points,
		DistanceMeters:  distance,
		DurationSeconds: distance / speed,
		Provider:        StraightLineProvider,
		Degraded:        true,
	}
}

func (r *RouteResolver) reportUnhealthy(ctx context.Context, provider string, err error) {
	if r.events == nil {
		return
	}
	detail := "empty or invalid response"
	if err != nil {
		detail = err.Error()
	}
	_ = r.events.PublishProviderHealth(ctx, provider, false, detail)
}

// usableRoutes drops results with empty geometry. Providers
// occasionally answer 200 with a path that has no coordinates; that is
// a failure, not a route.
func usableRoutes(routes []domain.RouteResult) []domain.RouteResult {
	out := routes[:0]
	for _, rt := range routes {
		if len(rt.Geometry) > 0 {
			out = append(out, rt)
		}
	}
	return out
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "empty"
}

func routeCacheKey(points []domain.GeoPoint, profile domain.VehicleProfile, alternatives bool) string {
	key := fmt.Sprintf("route:%s:%t", profile, alternatives)
	for _, p := range points {
		key += fmt.Sprintf(":%.6f,%.6f", p.Lat, p.Lon)
	}
	return key
}
