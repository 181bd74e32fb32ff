package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/smartcity/mobility/internal/domain"
)

// Config holds every externally configurable value. It is read once at
// startup and handed to the constructors.
type Config struct {
	Port     string
	Env      string
	LogLevel slog.Level

	DataSource  string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string
	FetchLimit  int

	Timezone string

	Validation ValidationConfig
	Cache      CacheConfig
	Cluster    ClusterConfig

	ZonePrecision   int
	HeatmapCellDeg  float64
	RefreshInterval time.Duration
}

// ValidationConfig holds the plausibility thresholds
type ValidationConfig struct {
	Bounds            domain.BoundingBox
	MaxDuration       time.Duration
	MinDuration       time.Duration
	MaxSpeedMPH       float64
	MaxTaxiDistanceMi float64
	MaxFare           float64
	MaxPassengers     int
}

// CacheConfig holds the aggregation cache limits
type CacheConfig struct {
	Freshness  time.Duration
	Retention  time.Duration
	MaxEntries int
}

// ClusterConfig holds the density clustering parameters
type ClusterConfig struct {
	EpsMeters   float64
	MinPts      int
	BucketHours int
}

// Load reads the configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("GO_ENV", "development"),
		LogLevel: getLogLevelEnv("LOG_LEVEL", slog.LevelInfo),

		DataSource:  strings.ToLower(getEnv("DATA_SOURCE", "postgres")),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SQLitePath:  getEnv("SQLITE_PATH", "./data/mobility.db"),
		RedisURL:    getEnv("REDIS_URL", ""),
		FetchLimit:  getIntEnv("FETCH_LIMIT", 50000),

		Timezone: getEnv("TIMEZONE", "America/New_York"),

		Validation: ValidationConfig{
			Bounds: domain.BoundingBox{
				MinLat: getFloatEnv("BBOX_MIN_LAT", domain.NYCBoundingBox.MinLat),
				MaxLat: getFloatEnv("BBOX_MAX_LAT", domain.NYCBoundingBox.MaxLat),
				MinLon: getFloatEnv("BBOX_MIN_LON", domain.NYCBoundingBox.MinLon),
				MaxLon: getFloatEnv("BBOX_MAX_LON", domain.NYCBoundingBox.MaxLon),
			},
			MaxDuration:       getDurationEnv("MAX_TRIP_DURATION", 24*time.Hour),
			MinDuration:       getDurationEnv("MIN_TRIP_DURATION", time.Second),
			MaxSpeedMPH:       getFloatEnv("MAX_SPEED_MPH", 100),
			MaxTaxiDistanceMi: getFloatEnv("MAX_TAXI_DISTANCE_MI", 100),
			MaxFare:           getFloatEnv("MAX_FARE", 1000),
			MaxPassengers:     getIntEnv("MAX_PASSENGERS", 9),
		},

		Cache: CacheConfig{
			Freshness:  getDurationEnv("CACHE_FRESHNESS", 5*time.Minute),
			Retention:  getDurationEnv("CACHE_RETENTION", time.Hour),
			MaxEntries: getIntEnv("CACHE_MAX_ENTRIES", 256),
		},

		Cluster: ClusterConfig{
			EpsMeters:   getFloatEnv("CLUSTER_EPS_METERS", 150),
			MinPts:      getIntEnv("CLUSTER_MIN_PTS", 5),
			BucketHours: getIntEnv("CLUSTER_BUCKET_HOURS", 1),
		},

		ZonePrecision:   getIntEnv("ZONE_PRECISION", 4),
		HeatmapCellDeg:  getFloatEnv("HEATMAP_CELL_DEG", 0.01),
		RefreshInterval: getDurationEnv("REFRESH_INTERVAL", 15*time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects inconsistent values
func (c *Config) Validate() error {
	b := c.Validation.Bounds
	if b.MinLat >= b.MaxLat || b.MinLon >= b.MaxLon {
		return fmt.Errorf("config: invalid bounding box %+v", b)
	}
	switch c.DataSource {
	case "postgres", "sqlite", "mock":
	default:
		return fmt.Errorf("config: unknown DATA_SOURCE %q", c.DataSource)
	}
	if c.Validation.MaxDuration <= 0 {
		return fmt.Errorf("config: MAX_TRIP_DURATION must be positive")
	}
	if c.Cache.Freshness <= 0 || c.Cache.Retention < c.Cache.Freshness {
		return fmt.Errorf("config: cache retention %s must be at least freshness %s", c.Cache.Retention, c.Cache.Freshness)
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("config: CACHE_MAX_ENTRIES must be positive")
	}
	if c.Cluster.EpsMeters <= 0 || c.Cluster.MinPts < 1 {
		return fmt.Errorf("config: invalid clustering parameters eps=%v minPts=%d", c.Cluster.EpsMeters, c.Cluster.MinPts)
	}
	if c.Cluster.BucketHours < 1 || c.Cluster.BucketHours > 24 {
		return fmt.Errorf("config: CLUSTER_BUCKET_HOURS must be within 1..24")
	}
	if c.HeatmapCellDeg < domain.MinHeatmapCellDeg {
		return fmt.Errorf("config: HEATMAP_CELL_DEG %v is below the minimum %v", c.HeatmapCellDeg, domain.MinHeatmapCellDeg)
	}
	return nil
}

// Location loads the configured time zone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer setting, using default", "key", key, "value", v, "default", defaultValue)
		return defaultValue
	}
	return n
}

func getFloatEnv(key string, defaultValue float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("invalid float setting, using default", "key", key, "value", v, "default", defaultValue)
		return defaultValue
	}
	return f
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration setting, using default", "key", key, "value", v, "default", defaultValue)
		return defaultValue
	}
	return d
}

func getLogLevelEnv(key string, defaultValue slog.Level) slog.Level {
	switch strings.ToLower(os.Getenv(key)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultValue
	}
}
