package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/hazwanj/jalanku/internal/core/domain"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Geocode   GeocodeConfig   `mapstructure:"geocode"`
	Routing   RoutingConfig   `mapstructure:"routing"`
	Nearby    NearbyConfig    `mapstructure:"nearby"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Dataset   DatasetConfig   `mapstructure:"dataset"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// GeocodeConfig configures the suggestion cascade.
type GeocodeConfig struct {
	NominatimURL   string       `mapstructure:"nominatim_url"`
	PhotonURL      string       `mapstructure:"photon_url"`
	UserAgent      string       `mapstructure:"user_agent"`
	TimeoutSeconds int          `mapstructure:"timeout_seconds"`
	RequestsPerSec float64      `mapstructure:"requests_per_sec"`
	MinQueryLength int          `mapstructure:"min_query_length"`
	MaxResults     int          `mapstructure:"max_results"`
	Bounds         BoundsConfig `mapstructure:"bounds"`
}

// BoundsConfig is the application's geographic bounding box; all
// community geocoder queries are restricted to it.
type BoundsConfig struct {
	MinLat float64 `mapstructure:"min_lat"`
	MinLon float64 `mapstructure:"min_lon"`
	MaxLat float64 `mapstructure:"max_lat"`
	MaxLon float64 `mapstructure:"max_lon"`
}

func (b BoundsConfig) Domain() domain.Bounds {
	return domain.Bounds{MinLat: b.MinLat, MinLon: b.MinLon, MaxLat: b.MaxLat, MaxLon: b.MaxLon}
}

// RoutingConfig configures the route cascade and per-vehicle policies.
type RoutingConfig struct {
	GraphHopperURL    string                   `mapstructure:"graphhopper_url"`
	GraphHopperAPIKey string                   `mapstructure:"graphhopper_api_key"`
	OSRMURL           string                   `mapstructure:"osrm_url"`
	TimeoutSeconds    int                      `mapstructure:"timeout_seconds"`
	SnapTimeoutMillis int                      `mapstructure:"snap_timeout_millis"`
	Profiles          map[string]ProfileConfig `mapstructure:"profiles"`
}

// ProfileConfig maps one vehicle profile to a primary and fallback
// provider/profile pair, the post-hoc adjustment factors, and the
// assumed speed used by the straight-line fallback. The factors are
// configuration, not code: they approximate stop delays (bus) and
// lane-splitting agility (motorbike) and carry no empirical guarantee.
type ProfileConfig struct {
	Primary          string  `mapstructure:"primary"`
	PrimaryProfile   string  `mapstructure:"primary_profile"`
	Fallback         string  `mapstructure:"fallback"`
	FallbackProfile  string  `mapstructure:"fallback_profile"`
	Alternatives     bool    `mapstructure:"alternatives"`
	DurationFactor   float64 `mapstructure:"duration_factor"`
	DistanceFactor   float64 `mapstructure:"distance_factor"`
	FallbackSpeedMPS float64 `mapstructure:"fallback_speed_mps"`
}

// NearbyConfig configures the nearby-place aggregation.
type NearbyConfig struct {
	// Precedence is the merge order of nearby sources; the first
	// occurrence of a dedup key wins, so order is correctness-relevant.
	Precedence     []string `mapstructure:"precedence"`
	OverpassURL    string   `mapstructure:"overpass_url"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	MaxResults     int      `mapstructure:"max_results"`
}

// LifecycleConfig tunes debouncing and the shared result cache.
type LifecycleConfig struct {
	DebounceMillis  int `mapstructure:"debounce_millis"`
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type DatasetConfig struct {
	PlacesURL     string `mapstructure:"places_url"`
	BusinessesURL string `mapstructure:"businesses_url"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "jalanku")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "jalanku")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)

	v.SetDefault("geocode.nominatim_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.photon_url", "https://photon.komoot.io")
	v.SetDefault("geocode.user_agent", "JalanKu/1.0")
	v.SetDefault("geocode.timeout_seconds", 5)
	v.SetDefault("geocode.requests_per_sec", 1.0)
	v.SetDefault("geocode.min_query_length", 2)
	v.SetDefault("geocode.max_results", 8)
	// Sarawak bounding box
	v.SetDefault("geocode.bounds.min_lat", 0.8)
	v.SetDefault("geocode.bounds.min_lon", 109.5)
	v.SetDefault("geocode.bounds.max_lat", 5.1)
	v.SetDefault("geocode.bounds.max_lon", 115.7)

	v.SetDefault("routing.graphhopper_url", "https://graphhopper.com/api/1")
	v.SetDefault("routing.graphhopper_api_key", "")
	v.SetDefault("routing.osrm_url", "https://router.project-osrm.org")
	v.SetDefault("routing.timeout_seconds", 8)
	v.SetDefault("routing.snap_timeout_millis", 800)
	setProfileDefaults(v, "car", "graphhopper", "car", "osrm", "driving", true, 1.0, 1.0, 13.9)
	setProfileDefaults(v, "bus", "graphhopper", "car", "osrm", "driving", false, 1.5, 1.1, 13.9)
	setProfileDefaults(v, "walking", "graphhopper", "foot", "osrm", "walking", false, 1.0, 1.0, 1.4)
	setProfileDefaults(v, "bicycle", "graphhopper", "bike", "osrm", "cycling", false, 1.0, 1.0, 4.2)
	setProfileDefaults(v, "motorbike", "graphhopper", "car", "osrm", "driving", true, 0.8, 0.95, 13.9)

	v.SetDefault("nearby.precedence", []string{"places", "businesses", "overpass"})
	v.SetDefault("nearby.overpass_url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("nearby.timeout_seconds", 10)
	v.SetDefault("nearby.max_results", 50)

	v.SetDefault("lifecycle.debounce_millis", 275)
	v.SetDefault("lifecycle.cache_ttl_seconds", 300)

	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "jalanku-dataset-sync")

	v.SetDefault("dataset.places_url", "")
	v.SetDefault("dataset.businesses_url", "")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: JALANKU_DATABASE_HOST → database.host
	v.SetEnvPrefix("JALANKU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setProfileDefaults(v *viper.Viper, name, primary, primaryProfile, fallback, fallbackProfile string, alts bool, durFactor, distFactor, speed float64) {
	prefix := "routing.profiles." + name + "."
	v.SetDefault(prefix+"primary", primary)
	v.SetDefault(prefix+"primary_profile", primaryProfile)
	v.SetDefault(prefix+"fallback", fallback)
	v.SetDefault(prefix+"fallback_profile", fallbackProfile)
	v.SetDefault(prefix+"alternatives", alts)
	v.SetDefault(prefix+"duration_factor", durFactor)
	v.SetDefault(prefix+"distance_factor", distFactor)
	v.SetDefault(prefix+"fallback_speed_mps", speed)
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.Geocode.MinQueryLength < 1 {
		errs = append(errs, "geocode.min_query_length must be at least 1")
	}
	if c.Geocode.Bounds.MinLat >= c.Geocode.Bounds.MaxLat || c.Geocode.Bounds.MinLon >= c.Geocode.Bounds.MaxLon {
		errs = append(errs, "geocode.bounds must describe a non-empty box")
	}
	if len(c.Nearby.Precedence) == 0 {
		errs = append(errs, "nearby.precedence must list at least one source")
	}
	if c.Lifecycle.DebounceMillis <= 0 {
		errs = append(errs, "lifecycle.debounce_millis must be positive")
	}
	if c.Lifecycle.CacheTTLSeconds <= 0 {
		errs = append(errs, "lifecycle.cache_ttl_seconds must be positive")
	}
	for _, p := range []string{"car", "bus", "walking", "bicycle", "motorbike"} {
		pc, ok := c.Routing.Profiles[p]
		if !ok {
			errs = append(errs, fmt.Sprintf("routing.profiles.%s is required", p))
			continue
		}
		if pc.DurationFactor <= 0 || pc.DistanceFactor <= 0 {
			errs = append(errs, fmt.Sprintf("routing.profiles.%s factors must be positive", p))
		}
		if pc.FallbackSpeedMPS <= 0 {
			errs = append(errs, fmt.Sprintf("routing.profiles.%s.fallback_speed_mps must be positive", p))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
