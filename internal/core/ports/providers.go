package ports

import (
	"context"

	"github.com/hazwanj/jalanku/internal/core/domain"
)

// GeocodeProvider resolves free text into candidate places, restricted
// to a bounding box. Implementations are the only code that knows the
// provider's native schema.
type GeocodeProvider interface {
	Name() string
	Search(ctx context.Context, query string, bounds domain.Bounds, limit int) ([]domain.Place, error)
}

// RoutingProvider computes routes through an ordered list of points.
// The profile string is provider-native (e.g. "car" vs "driving") and
// comes from the per-vehicle routing policy.
type RoutingProvider interface {
	Name() string
	SupportsAlternatives(profile string) bool
	Route(ctx context.Context, points []domain.GeoPoint, profile string, alternatives bool) ([]domain.RouteResult, error)
}

// SnapProvider adjusts a raw coordinate to the nearest routable road
// segment.
type SnapProvider interface {
	Snap(ctx context.Context, point domain.GeoPoint, profile string) (domain.GeoPoint, error)
}

// NearbySource returns places around an anchor. Sources are queried
// concurrently and merged by precedence; a failing source degrades to
// an empty result set.
type NearbySource interface {
	Name() string
	Nearby(ctx context.Context, query domain.NearbyQuery) ([]domain.Place, error)
}
