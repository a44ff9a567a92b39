package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:80", cfg.Server.HTTPAddress)
	assert.Equal(t, "0.0.0.0:443", cfg.Server.HTTPSAddress)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.AdminAddress)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/var/lib/pressedge/pressedge.db", cfg.Database.DSN)
	assert.Equal(t, "/var/lib/pressedge/certs", cfg.ACME.StorageDir)
	assert.Equal(t, 720*time.Hour, cfg.ACME.RenewalWindow)
	assert.Equal(t, 5*time.Second, cfg.Discovery.ReconnectBackoff)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	// No domains means no TLS
	assert.False(t, cfg.ACME.Enabled())
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	configContent := `
server:
  http_address: "127.0.0.1:8000"
  https_address: "127.0.0.1:8443"
  admin_address: "127.0.0.1:9090"
  shutdown_timeout: 15s

acme:
  email: "ops@example.com"
  domains:
    - "wordpress.local"
    - "www.wordpress.local"
  storage_dir: "/tmp/certs"

discovery:
  networks:
    - "pressedge_wordpress_frontend"

database:
  dsn: "/tmp/test.db"

log:
  level: "debug"
  format: "text"
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8000", cfg.Server.HTTPAddress)
	assert.Equal(t, "127.0.0.1:8443", cfg.Server.HTTPSAddress)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.AdminAddress)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "ops@example.com", cfg.ACME.Email)
	assert.Equal(t, []string{"wordpress.local", "www.wordpress.local"}, cfg.ACME.Domains)
	assert.True(t, cfg.ACME.Enabled())
	assert.Equal(t, []string{"pressedge_wordpress_frontend"}, cfg.Discovery.Networks)
	assert.Equal(t, "/tmp/test.db", cfg.Database.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	t.Setenv("PRESSEDGE_SERVER_HTTP_ADDRESS", "0.0.0.0:8081")
	t.Setenv("PRESSEDGE_DATABASE_DSN", "/custom/path.db")
	t.Setenv("PRESSEDGE_ACME_EMAIL", "admin@example.com")
	t.Setenv("PRESSEDGE_LOG_LEVEL", "warn")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8081", cfg.Server.HTTPAddress)
	assert.Equal(t, "/custom/path.db", cfg.Database.DSN)
	assert.Equal(t, "admin@example.com", cfg.ACME.Email)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfig_CommaSeparatedLists(t *testing.T) {
	clearEnv(t)

	t.Setenv("PRESSEDGE_ACME_DOMAINS", "wordpress.local, www.wordpress.local")
	t.Setenv("PRESSEDGE_DISCOVERY_NETWORKS", "frontend,backend")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, []string{"wordpress.local", "www.wordpress.local"}, cfg.ACME.Domains)
	assert.Equal(t, []string{"frontend", "backend"}, cfg.Discovery.Networks)
	assert.True(t, cfg.ACME.Enabled())
}

func TestLoadConfig_FileNotFound_UsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:80", cfg.Server.HTTPAddress)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("invalid: yaml: content: [[["), 0644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}

// =============================================================================
// Logger Setup Tests
// =============================================================================

func TestSetupLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		logger := SetupLogger(&Config{Log: LogConfig{Level: "info", Format: format}})
		assert.NotNil(t, logger, format)
	}
}

func TestSetupLogger_Levels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		logger := SetupLogger(&Config{Log: LogConfig{Level: level, Format: "json"}})
		assert.NotNil(t, logger, level)
	}
}

// =============================================================================
// Test Helpers
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"PRESSEDGE_SERVER_HTTP_ADDRESS",
		"PRESSEDGE_SERVER_HTTPS_ADDRESS",
		"PRESSEDGE_SERVER_ADMIN_ADDRESS",
		"PRESSEDGE_DATABASE_DSN",
		"PRESSEDGE_ACME_EMAIL",
		"PRESSEDGE_ACME_DOMAINS",
		"PRESSEDGE_DISCOVERY_NETWORKS",
		"PRESSEDGE_LOG_LEVEL",
		"PRESSEDGE_LOG_FORMAT",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}
