package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// SlotCacheTTL bounds how long a resolved slot listing may be served
	// from Redis before it is recomputed.
	SlotCacheTTL time.Duration

	// ReserveLockTimeout caps how long a reservation waits on a slot's
	// counter lock before failing as retryable.
	ReserveLockTimeout time.Duration

	// QueryRangeMaxDays limits the width of a single slot query.
	QueryRangeMaxDays int

	// ReserveRateLimit caps reservation attempts per second per IP;
	// 0 disables the limiter.
	ReserveRateLimit int
	ReserveRateBurst int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisTLS:           getEnvAsBool("REDIS_TLS", false),
		SlotCacheTTL:       getEnvAsDuration("SLOT_CACHE_TTL", 30*time.Second),
		ReserveLockTimeout: getEnvAsDuration("RESERVE_LOCK_TIMEOUT", 3*time.Second),
		QueryRangeMaxDays:  getEnvAsInt("QUERY_RANGE_MAX_DAYS", 62),
		ReserveRateLimit:   getEnvAsInt("RESERVE_RATE_LIMIT", 0),
		ReserveRateBurst:   getEnvAsInt("RESERVE_RATE_BURST", 10),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
