package http

import (
	"github.com/nats-io/nats.go"

	"github.com/hazwanj/jalanku/internal/adapters/postgres"
	"github.com/hazwanj/jalanku/internal/core/ports"
	"github.com/hazwanj/jalanku/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Geocoder  *usecases.GeocodeResolver
	Routes    *usecases.RouteResolver
	Nearby    *usecases.NearbyAggregator
	Lifecycle *usecases.Lifecycle

	Places     ports.PlaceRepository
	Businesses ports.PlaceRepository

	NATS  *nats.Conn
	DB    *postgres.DB
	Cache ports.CacheService
}
