package ports

import (
	"context"

	"github.com/hazwanj/jalanku/internal/core/domain"
)

// EventPublisher publishes resolution events to a message broker.
type EventPublisher interface {
	PublishRouteUpdate(ctx context.Context, update *domain.RouteUpdate) error
	PublishProviderHealth(ctx context.Context, provider string, healthy bool, detail string) error
	PublishBroadcast(ctx context.Context, data []byte) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
