package config

import (
	"os"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Meevo public API credentials. One deployed instance serves exactly one
	// physical location, so tenant and location are fixed per deployment.
	MeevoAuthURL      string
	MeevoAPIURL       string
	MeevoClientID     string
	MeevoClientSecret string
	MeevoTenantID     string
	MeevoLocationID   string

	// LocationName is the human-readable label reported by /health.
	LocationName string

	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "3000"),
		Env:      getEnv("ENV", "production"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		MeevoAuthURL:      getEnv("MEEVO_AUTH_URL", "https://marketplace.meevo.com/oauth2/token"),
		MeevoAPIURL:       getEnv("MEEVO_API_URL", "https://na1pub.meevo.com/publicapi/v1"),
		MeevoClientID:     getEnv("MEEVO_CLIENT_ID", ""),
		MeevoClientSecret: getEnv("MEEVO_CLIENT_SECRET", ""),
		MeevoTenantID:     getEnv("MEEVO_TENANT_ID", ""),
		MeevoLocationID:   getEnv("MEEVO_LOCATION_ID", ""),

		LocationName: getEnv("LOCATION_NAME", "Phoenix Encanto"),

		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
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
