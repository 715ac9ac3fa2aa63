package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	natsadapter "github.com/hazwanj/jalanku/internal/adapters/nats"
	"github.com/hazwanj/jalanku/internal/core/domain"
	"github.com/hazwanj/jalanku/internal/pkg/config"
	"github.com/hazwanj/jalanku/internal/pkg/logging"
)

// probe is one external provider endpoint to check.
type probe struct {
	Provider string
	URL      string
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	cfg, err := config.Load("jalanku-healthmon")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup("info", "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	publisher, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer publisher.Close()

	// Log provider state transitions reported by any instance (the API
	// publishes these when a cascade tier fails mid-request).
	subscriber, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats subscriber: %v", err)
	}
	defer subscriber.Close()

	tracker := newStateTracker()
	if err := subscriber.SubscribeProviderHealth(ctx, func(ctx context.Context, provider string, healthy bool) error {
		if changed, was := tracker.observe(provider, healthy); changed {
			slog.Warn("provider state changed", "provider", provider, "was_healthy", was, "healthy", healthy)
		}
		return nil
	}); err != nil {
		log.Fatalf("subscribe provider health: %v", err)
	}

	// Route progress events double as a live signal the synthetic probes
	// can miss between polls: a failed or straight-line final on real
	// traffic means the routing cascade is struggling right now.
	if err := subscriber.SubscribeRouteUpdates(ctx, routeOutcomeHandler(tracker)); err != nil {
		log.Fatalf("subscribe route updates: %v", err)
	}

	probes := []probe{
		{"nominatim", cfg.Geocode.NominatimURL + "/status"},
		{"photon", cfg.Geocode.PhotonURL + "/api?q=kuching&limit=1"},
		{"graphhopper", cfg.Routing.GraphHopperURL + "/info"},
		{"osrm", cfg.Routing.OSRMURL + "/route/v1/driving/110.34,1.55;110.35,1.56?overview=false"},
		{"overpass", cfg.Nearby.OverpassURL + "?data=%5Bout%3Ajson%5D%3Bout%20count%3B"},
	}

	client := &http.Client{Timeout: 10 * time.Second}
	pollInterval := 60 * time.Second

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	slog.Info("provider health monitor started", "probes", len(probes), "interval", pollInterval.String())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Run once immediately
	probeAll(ctx, publisher, client, probes, tracker)

	for {
		select {
		case <-ticker.C:
			probeAll(ctx, publisher, client, probes, tracker)
		case <-ctx.Done():
			return
		case sig := <-quit:
			slog.Info("shutting down health monitor", "signal", sig.String())
			cancel()
			// Give in-flight probes time to finish
			time.Sleep(2 * time.Second)
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Route outcomes
// ---------------------------------------------------------------------------

// routeOutcomeHandler folds route progress events into the tracker
// under the "routing-cascade" pseudo-provider: a failed delivery or a
// degraded final marks the cascade unhealthy, a clean final marks it
// healthy again. Provisional deliveries carry no verdict.
func routeOutcomeHandler(tracker *stateTracker) func(context.Context, *domain.RouteUpdate) error {
	return func(_ context.Context, update *domain.RouteUpdate) error {
		var healthy bool
		switch update.Phase {
		case domain.RoutePhaseFailed:
			healthy = false
		case domain.RoutePhaseFinal:
			healthy = len(update.Routes) > 0 && !update.Routes[0].Degraded
		default:
			return nil
		}

		if changed, _ := tracker.observe("routing-cascade", healthy); changed {
			if healthy {
				slog.Info("routing cascade recovered", "request_id", update.RequestID)
			} else {
				slog.Warn("routing cascade degraded", "request_id", update.RequestID, "phase", update.Phase, "error", update.Error)
			}
		}
		return nil
	}
}

// ---------------------------------------------------------------------------
// Probing
// ---------------------------------------------------------------------------

func probeAll(ctx context.Context, publisher *natsadapter.Publisher, client *http.Client, probes []probe, tracker *stateTracker) {
	var wg sync.WaitGroup

	for _, p := range probes {
		wg.Add(1)
		go func(p probe) {
			defer wg.Done()

			healthy, detail := check(ctx, client, p.URL)
			changed, _ := tracker.observe(p.Provider, healthy)
			if !changed {
				return
			}

			if err := publisher.PublishProviderHealth(ctx, p.Provider, healthy, detail); err != nil {
				slog.Warn("publish provider health failed", "provider", p.Provider, "error", err)
			}
			if healthy {
				slog.Info("provider recovered", "provider", p.Provider)
			} else {
				slog.Warn("provider unhealthy", "provider", p.Provider, "detail", detail)
			}
		}(p)
	}

	wg.Wait()
}

func check(ctx context.Context, client *http.Client, url string) (bool, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err.Error()
	}
	req.Header.Set("User-Agent", "JalanKu-Healthmon/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return false, err.Error()
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return false, fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return true, ""
}

// ---------------------------------------------------------------------------
// State tracking
// ---------------------------------------------------------------------------

// stateTracker remembers the last observed health per provider so only
// transitions are published, not every probe.
type stateTracker struct {
	mu    sync.Mutex
	state map[string]bool
}

func newStateTracker() *stateTracker {
	return &stateTracker{state: make(map[string]bool)}
}

// observe records the new state and reports whether it differs from the
// previous one. Unknown providers always count as changed.
func (t *stateTracker) observe(provider string, healthy bool) (changed, was bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	was, known := t.state[provider]
	t.state[provider] = healthy
	return !known || was != healthy, was
}
