/*
Package config loads runtime configuration from the environment.

PURPOSE:
  One place that knows every knob the platform core reads. cmd binaries
  load a .env file first (godotenv) and then call Load; everything else
  receives plain values and never touches os.Getenv.

BACKENDS:
  STORE_BACKEND selects memory, sqlite or postgres. DATABASE_URL is only
  required for postgres; Load does not enforce that so tests and the
  sqlite dev setup stay env-free - cmd/server validates per backend.

SEE ALSO:
  - cmd/server/main.go: consumes Config and wires the backends
  - cmd/migrate/main.go: uses DATABASE_URL for goose
*/
package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config carries every setting the server and migrator read.
type Config struct {
	// General
	Addr        string
	Environment string

	// Storage
	StoreBackend string // memory | sqlite | postgres
	SQLitePath   string
	DatabaseURL  string

	// Notifications (Redis publish; empty addr disables the sink)
	RedisAddr    string
	RedisChannel string

	// Auth
	JWTSecret   string
	TokenExpiry time.Duration

	// Domain
	PointsRate         string // points per currency unit, decimal string
	LowStockInterval   time.Duration
	ShutdownGracePeriod time.Duration
}

// Load reads the environment with defaults suitable for development.
func Load() *Config {
	return &Config{
		Addr:        getEnv("ADDR", ":8080"),
		Environment: getEnv("ENV", "development"),

		StoreBackend: getEnv("STORE_BACKEND", "sqlite"),
		SQLitePath:   getEnv("SQLITE_PATH", "loyalty.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		RedisAddr:    getEnv("REDIS_ADDR", ""),
		RedisChannel: getEnv("REDIS_CHANNEL", "loyalty.events"),

		JWTSecret:   getEnv("JWT_SECRET_KEY", "dev-secret-change-me"),
		TokenExpiry: getDurationEnv("JWT_EXPIRY_MIN", 60) * time.Minute,

		PointsRate:          getEnv("POINTS_RATE", "1"),
		LowStockInterval:    getDurationEnv("LOW_STOCK_INTERVAL_MIN", 15) * time.Minute,
		ShutdownGracePeriod: getDurationEnv("SHUTDOWN_GRACE_SEC", 30) * time.Second,
	}
}

// Production reports whether the environment is production. The server
// uses this to pick the zap logger profile and to refuse demo endpoints.
func (c *Config) Production() bool {
	return c.Environment == "production"
}

// getEnv reads a variable or falls back to a default.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getDurationEnv reads a numeric variable as a bare duration count; the
// caller multiplies by the unit.
func getDurationEnv(key string, defaultValue int) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return time.Duration(defaultValue)
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("config: %s=%q is not an integer, using default %d", key, valueStr, defaultValue)
		return time.Duration(defaultValue)
	}
	return time.Duration(value)
}
