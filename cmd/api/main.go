package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/hazwanj/jalanku/internal/adapters/geocode"
	"github.com/hazwanj/jalanku/internal/adapters/http"
	"github.com/hazwanj/jalanku/internal/adapters/memory"
	natsadapter "github.com/hazwanj/jalanku/internal/adapters/nats"
	"github.com/hazwanj/jalanku/internal/adapters/overpass"
	"github.com/hazwanj/jalanku/internal/adapters/postgres"
	"github.com/hazwanj/jalanku/internal/adapters/routing"
	"github.com/hazwanj/jalanku/internal/adapters/valkey"
	"github.com/hazwanj/jalanku/internal/core/domain"
	"github.com/hazwanj/jalanku/internal/core/ports"
	"github.com/hazwanj/jalanku/internal/core/usecases"
	"github.com/hazwanj/jalanku/internal/pkg/config"
	"github.com/hazwanj/jalanku/internal/pkg/logging"
	"github.com/hazwanj/jalanku/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("jalanku-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Cache: Valkey, with an in-process fallback so debounce/TTL
	// behavior survives a cache outage.
	var cache ports.CacheService
	if vk, err := valkey.New(cfg.Valkey.Addr); err != nil {
		slog.Warn("valkey unavailable, using in-process cache", "error", err)
		mem := memory.NewCache()
		defer mem.Close()
		cache = mem
	} else {
		defer vk.Close()
		cache = vk
	}

	// NATS
	var events ports.EventPublisher
	nc, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, route progress events disabled", "error", err)
	} else {
		defer nc.Close()
		events = nc
	}

	// Raw NATS connection for WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	}

	// Repos
	placeRepo := postgres.NewCuratedPlaceRepo(db)
	businessRepo := postgres.NewBusinessRepo(db)

	// Provider clients
	geocodeTimeout := time.Duration(cfg.Geocode.TimeoutSeconds) * time.Second
	nominatim := geocode.NewNominatimClient(cfg.Geocode.NominatimURL, cfg.Geocode.UserAgent, geocodeTimeout, cfg.Geocode.RequestsPerSec)
	photon := geocode.NewPhotonClient(cfg.Geocode.PhotonURL, geocodeTimeout, cfg.Geocode.RequestsPerSec)

	routingTimeout := time.Duration(cfg.Routing.TimeoutSeconds) * time.Second
	graphhopper := routing.NewGraphHopperClient(cfg.Routing.GraphHopperURL, cfg.Routing.GraphHopperAPIKey, routingTimeout)
	osrm := routing.NewOSRMClient(cfg.Routing.OSRMURL, routingTimeout)

	overpassClient := overpass.NewClient(cfg.Nearby.OverpassURL, time.Duration(cfg.Nearby.TimeoutSeconds)*time.Second, 0.5)

	// Use cases
	lifecycle := usecases.NewLifecycle(cache,
		time.Duration(cfg.Lifecycle.DebounceMillis)*time.Millisecond,
		time.Duration(cfg.Lifecycle.CacheTTLSeconds)*time.Second)

	geocoder := usecases.NewGeocodeResolver(
		[]ports.PlaceRepository{placeRepo, businessRepo},
		[]ports.GeocodeProvider{nominatim, photon},
		cfg.Geocode.Bounds.Domain(),
		cfg.Geocode.MinQueryLength,
		cfg.Geocode.MaxResults,
		lifecycle,
	)

	routes := usecases.NewRouteResolver(
		map[string]ports.RoutingProvider{graphhopper.Name(): graphhopper, osrm.Name(): osrm},
		osrm,
		geocoder,
		routePolicies(cfg.Routing.Profiles),
		lifecycle,
		events,
		time.Duration(cfg.Routing.SnapTimeoutMillis)*time.Millisecond,
	)

	nearby := usecases.NewNearbyAggregator(
		nearbySources(cfg.Nearby.Precedence, placeRepo, businessRepo, overpassClient),
		lifecycle,
		cfg.Nearby.MaxResults,
	)

	deps := &http.Dependencies{
		Geocoder:   geocoder,
		Routes:     routes,
		Nearby:     nearby,
		Lifecycle:  lifecycle,
		Places:     placeRepo,
		Businesses: businessRepo,
		NATS:       natsConn,
		DB:         db,
		Cache:      cache,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "Jalanku API",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173, https://*.jalanku.my",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// routePolicies converts the per-profile routing config into resolver
// policies, keyed by validated vehicle profile.
func routePolicies(profiles map[string]config.ProfileConfig) map[domain.VehicleProfile]usecases.RoutePolicy {
	policies := make(map[domain.VehicleProfile]usecases.RoutePolicy, len(profiles))
	for name, pc := range profiles {
		profile := domain.VehicleProfile(name)
		if !profile.Valid() {
			slog.Warn("ignoring unknown vehicle profile in config", "profile", name)
			continue
		}
		policies[profile] = usecases.RoutePolicy{
			Primary:          pc.Primary,
			PrimaryProfile:   pc.PrimaryProfile,
			Fallback:         pc.Fallback,
			FallbackProfile:  pc.FallbackProfile,
			Alternatives:     pc.Alternatives,
			DurationFactor:   pc.DurationFactor,
			DistanceFactor:   pc.DistanceFactor,
			FallbackSpeedMPS: pc.FallbackSpeedMPS,
		}
	}
	return policies
}

// nearbySources assembles the merge precedence list from config. The
// order is correctness-relevant: the first source to produce a place
// wins its dedup key.
func nearbySources(precedence []string, places, businesses ports.NearbySource, osm ports.NearbySource) []ports.NearbySource {
	byName := map[string]ports.NearbySource{
		places.Name():     places,
		businesses.Name(): businesses,
		osm.Name():        osm,
	}
	var out []ports.NearbySource
	for _, name := range precedence {
		src, ok := byName[name]
		if !ok {
			slog.Warn("ignoring unknown nearby source in config", "source", name)
			continue
		}
		out = append(out, src)
	}
	return out
}
