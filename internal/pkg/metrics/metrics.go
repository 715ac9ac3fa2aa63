package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jalanku",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "jalanku",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "jalanku",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Resolution pipeline metrics
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jalanku",
		Subsystem: "provider",
		Name:      "requests_total",
		Help:      "Total upstream provider requests by outcome",
	}, []string{"provider", "outcome"}) // outcome: ok | empty | error

	SuggestTierHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jalanku",
		Subsystem: "geocode",
		Name:      "tier_hits_total",
		Help:      "Which cascade tier produced the suggestion result",
	}, []string{"tier"}) // tier: local | nominatim | photon | memo | none

	RouteFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jalanku",
		Subsystem: "routing",
		Name:      "fallbacks_total",
		Help:      "Route computations that fell through to a lower tier",
	}, []string{"from", "to"})

	DegradedRoutes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "jalanku",
		Subsystem: "routing",
		Name:      "degraded_total",
		Help:      "Routes answered with the straight-line fallback",
	})

	SnapFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "jalanku",
		Subsystem: "routing",
		Name:      "snap_failures_total",
		Help:      "Road-snap lookups that silently fell back to the raw coordinate",
	})

	NearbySourceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jalanku",
		Subsystem: "nearby",
		Name:      "source_failures_total",
		Help:      "Nearby sources that degraded to an empty result set",
	}, []string{"source"})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jalanku",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jalanku",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	StaleDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jalanku",
		Subsystem: "lifecycle",
		Name:      "stale_drops_total",
		Help:      "Late responses discarded because a newer request superseded them",
	}, []string{"slot"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "jalanku",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving the Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}
