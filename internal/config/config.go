// Package config provides environment configuration for the API server.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Store settings
	StoreDriver string // "mongo" or "memory"
	MongoURI    string
	DBName      string

	// Webhook settings
	VerifyToken string
	SelfPhone   string

	// NATS settings (optional event fanout)
	NATSURL   string
	NATSToken string

	// JWT settings (optional API auth)
	JWTSecret string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "4000"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 60*time.Second),

		// Store
		StoreDriver: getEnv("STORE_DRIVER", "mongo"),
		MongoURI:    getEnv("MONGO_URI", ""),
		DBName:      getEnv("DB_NAME", ""),

		// Webhook
		VerifyToken: getEnv("WEBHOOK_VERIFY_TOKEN", ""),
		SelfPhone:   getEnv("SELF_PHONE_NUMBER", ""),

		// NATS
		NATSURL:   getEnv("NATS_URL", ""),
		NATSToken: getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Validate checks that required settings are present. The process must
// fail fast at startup rather than discover a missing connection string
// on the first request.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "memory":
		return nil
	case "mongo":
		if c.MongoURI == "" {
			return errors.New("missing MONGO_URI")
		}
		if c.DBName == "" {
			return errors.New("missing DB_NAME")
		}
		return nil
	default:
		return errors.New("unknown STORE_DRIVER: " + c.StoreDriver)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
