package ports

import (
	"context"

	"github.com/hazwanj/jalanku/internal/core/domain"
)

// PlaceRepository persists a local place dataset (curated locations or
// approved businesses). Search is the free, authoritative tier of the
// geocode cascade.
type PlaceRepository interface {
	Upsert(ctx context.Context, place *domain.Place) error
	UpsertBatch(ctx context.Context, places []domain.Place) error
	Search(ctx context.Context, query string, limit int) ([]domain.Place, error)
	FindNearby(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]domain.Place, error)
	List(ctx context.Context, offset, limit int) ([]domain.Place, int, error)
}
