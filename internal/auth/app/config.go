package app

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/saansook/saansook/internal/auth/service"
	"github.com/saansook/saansook/pkg/cryptox"
	"github.com/saansook/saansook/pkg/jwtx"
)

type Config struct {
	Secret    string // Required: HMAC signing secret for tokens
	Algorithm string // Optional: JWT signing algorithm (HS256, HS384, HS512) (default: HS256)
	Issuer    string // Optional: issuer claim for tokens (default: saansook-auth)

	AccessTTL    time.Duration // Optional: access token lifetime (default: 15m, must be nonzero)
	RefreshTTL   time.Duration // Optional: refresh token lifetime (default: 0, no expiry)
	KeyPrefix    string        // Optional: registry key prefix (default: saansook)
	StoreTimeout time.Duration // Optional: per-call session store deadline (default: 3s)

	StoreDriver   string // Optional: session store driver (redis, sqlite) (default: redis)
	RedisAddr     string // Optional: redis host:port (default: localhost:6379)
	RedisPassword string // Optional: redis password
	RedisDB       int    // Optional: redis logical database (default: 0)
	DatabaseFile  string // Optional: path to SQLite database file (default: ./sessions.db)

	MinPasswordLength int // Optional: minimum password length (default: 8)
	LoginAttempts     int // Optional: login attempts allowed per subject per window (default: 5)
	LoginWindow       time.Duration // Optional: login throttle window (default: 1m)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Expired-session sweep interval, sqlite only (default: 1h)
}

func LoadConfig() (Config, error) {
	cfg := Config{
		Secret:    os.Getenv("AUTH_SECRET"),
		Algorithm: getEnvOrDefault("AUTH_ALGORITHM", "HS256"),
		Issuer:    getEnvOrDefault("AUTH_ISSUER", "saansook-auth"),

		AccessTTL:    getEnvDurationOrDefault("AUTH_ACCESS_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL:   getEnvDurationOrDefault("AUTH_REFRESH_TTL", 0),
		KeyPrefix:    getEnvOrDefault("AUTH_KEY_PREFIX", "saansook"),
		StoreTimeout: getEnvDurationOrDefault("AUTH_STORE_TIMEOUT", service.DefaultStoreTimeout),

		StoreDriver:   getEnvOrDefault("AUTH_STORE_DRIVER", "redis"),
		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvIntOrDefault("REDIS_DB", 0),
		DatabaseFile:  getEnvOrDefault("AUTH_DATABASE_FILE", "sessions.db"),

		MinPasswordLength: getEnvIntOrDefault("AUTH_MIN_PASSWORD_LENGTH", cryptox.DefaultMinPasswordLength),
		LoginAttempts:     getEnvIntOrDefault("AUTH_LOGIN_ATTEMPTS", 5),
		LoginWindow:       getEnvDurationOrDefault("AUTH_LOGIN_WINDOW", time.Minute),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	if cfg.Secret == "" {
		return Config{}, fmt.Errorf("AUTH_SECRET is required")
	}

	switch cfg.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return Config{}, fmt.Errorf("unsupported AUTH_ALGORITHM %q", cfg.Algorithm)
	}

	// A zero access TTL would leave superseded access sessions in the
	// registry forever, since only logout removes them.
	if cfg.AccessTTL <= 0 {
		return Config{}, fmt.Errorf("AUTH_ACCESS_TTL must be positive")
	}

	switch cfg.StoreDriver {
	case "redis", "sqlite":
	default:
		return Config{}, fmt.Errorf("unsupported AUTH_STORE_DRIVER %q", cfg.StoreDriver)
	}

	return cfg, nil
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

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Accept go durations ("15m", "24h") or whole seconds.
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
