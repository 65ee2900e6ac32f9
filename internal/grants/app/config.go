package app

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/grantsweep/internal/grants/service"
	"github.com/aussiebroadwan/grantsweep/pkg/httpx"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverMongo    = "mongo"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

var (
	ErrUnknownDriver = errors.New("config: unknown store driver")
	ErrMissingDSN    = errors.New("config: store dsn is required")
)

var knownDrivers = []string{DriverSQLite, DriverPostgres, DriverMySQL, DriverMongo, DriverRedis, DriverMemory}

type Config struct {
	StoreDriver    string // Backend: sqlite, postgres, mysql, mongo, redis, memory (default: sqlite)
	StoreDSN       string // Connection string or file path (default: grants.db)
	MongoDatabase  string // Database name for the mongo driver (default: grants)
	RedisKeyPrefix string // Key namespace for the redis driver (default: grantsweep:)

	CleanupEnabled          bool          // Run the cleanup scheduler (default: true)
	CleanupInterval         time.Duration // Time between passes (default: 1h)
	CleanupBatchSize        int           // Records per find/delete round trip (default: 100)
	CleanupBatchesPerSecond float64       // Batch throttle, 0 for unlimited (default: 0)
	CleanupRunOnStart       bool          // Run a pass immediately on startup (default: true)

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
	TrustedProxies      string        // Comma separated CIDRs allowed to set X-Forwarded-For (default: none)
}

func LoadConfig() Config {
	return Config{
		StoreDriver:    strings.ToLower(getEnvOrDefault("STORE_DRIVER", DriverSQLite)),
		StoreDSN:       getEnvOrDefault("STORE_DSN", "grants.db"),
		MongoDatabase:  getEnvOrDefault("MONGO_DATABASE", "grants"),
		RedisKeyPrefix: getEnvOrDefault("REDIS_KEY_PREFIX", "grantsweep:"),

		CleanupEnabled:          getEnvBoolOrDefault("CLEANUP_ENABLED", true),
		CleanupInterval:         getEnvDurationOrDefault("CLEANUP_INTERVAL", time.Hour),
		CleanupBatchSize:        getEnvIntOrDefault("CLEANUP_BATCH_SIZE", 100),
		CleanupBatchesPerSecond: getEnvFloatOrDefault("CLEANUP_BATCHES_PER_SECOND", 0),
		CleanupRunOnStart:       getEnvBoolOrDefault("CLEANUP_RUN_ON_START", true),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		TrustedProxies:      getEnvOrDefault("TRUSTED_PROXIES", ""),
	}
}

// Validate rejects settings the worker cannot run with. Cleanup parameters
// are checked even when cleanup is disabled so enabling it later cannot
// surface a latent misconfiguration.
func (c Config) Validate() error {
	var errs []error

	if !slices.Contains(knownDrivers, c.StoreDriver) {
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownDriver, c.StoreDriver))
	}
	if c.StoreDriver != DriverMemory && c.StoreDSN == "" {
		errs = append(errs, ErrMissingDSN)
	}
	if c.CleanupInterval <= 0 {
		errs = append(errs, fmt.Errorf("CLEANUP_INTERVAL %s: %w", c.CleanupInterval, service.ErrInvalidInterval))
	}

	if err := c.cleanupConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.trustedProxies(); err != nil {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXIES: %w", err))
	}

	return errors.Join(errs...)
}

func (c Config) cleanupConfig() service.CleanupConfig {
	return service.CleanupConfig{
		BatchSize:        c.CleanupBatchSize,
		BatchesPerSecond: c.CleanupBatchesPerSecond,
	}
}

func (c Config) trustedProxies() ([]netip.Prefix, error) {
	return httpx.ParseTrustedProxies(c.TrustedProxies)
}

func (c Config) schedulerConfig() service.SchedulerConfig {
	return service.SchedulerConfig{
		Interval:   c.CleanupInterval,
		RunOnStart: c.CleanupRunOnStart,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
