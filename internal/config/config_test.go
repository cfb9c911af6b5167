package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "https://marketplace.meevo.com/oauth2/token", cfg.MeevoAuthURL)
	assert.Equal(t, "https://na1pub.meevo.com/publicapi/v1", cfg.MeevoAPIURL)
	assert.Equal(t, "Phoenix Encanto", cfg.LocationName)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("ENV", "development")
	t.Setenv("MEEVO_CLIENT_ID", "id-123")
	t.Setenv("MEEVO_CLIENT_SECRET", "secret-456")
	t.Setenv("MEEVO_TENANT_ID", "42")
	t.Setenv("MEEVO_LOCATION_ID", "7")
	t.Setenv("LOCATION_NAME", "Scottsdale North")
	t.Setenv("SHUTDOWN_TIMEOUT", "10s")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "id-123", cfg.MeevoClientID)
	assert.Equal(t, "secret-456", cfg.MeevoClientSecret)
	assert.Equal(t, "42", cfg.MeevoTenantID)
	assert.Equal(t, "7", cfg.MeevoLocationID)
	assert.Equal(t, "Scottsdale North", cfg.LocationName)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")

	cfg := Load()

	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}
