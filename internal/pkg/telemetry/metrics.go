package telemetry

// SLI metric names used for instrumentation.
const (
	// Latency
	MetricAPILatencyP50 = "api.latency.p50"
	MetricAPILatencyP95 = "api.latency.p95"
	MetricAPILatencyP99 = "api.latency.p99"

	// Throughput
	MetricRequestsPerSec = "api.requests_per_second"

	// Provider health
	MetricProviderErrorRate = "provider.error_rate"
	MetricCascadeDepth      = "resolver.cascade_depth"
	MetricDegradedRoutes    = "routing.degraded_percentage"

	// Availability
	MetricUptime = "service.uptime_percentage"
)
