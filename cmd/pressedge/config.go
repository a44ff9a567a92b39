package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all daemon configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	ACME      ACMEConfig      `mapstructure:"acme"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Docker    DockerConfig    `mapstructure:"docker"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds listener configuration.
type ServerConfig struct {
	HTTPAddress  string `mapstructure:"http_address"`
	HTTPSAddress string `mapstructure:"https_address"`
	AdminAddress string `mapstructure:"admin_address"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ACMEConfig holds certificate issuance configuration. TLS is enabled only
// when at least one domain is listed.
type ACMEConfig struct {
	DirectoryURL string `mapstructure:"directory_url"`
	Email        string `mapstructure:"email"`
	// Domains is the issuance allow-list, comma-separated in the
	// environment form.
	Domains       []string      `mapstructure:"domains"`
	StorageDir    string        `mapstructure:"storage_dir"`
	RenewalWindow time.Duration `mapstructure:"renewal_window"`
	RenewInterval time.Duration `mapstructure:"renew_interval"`
}

// Enabled reports whether certificate management should run.
func (c ACMEConfig) Enabled() bool {
	return len(c.Domains) > 0
}

// DiscoveryConfig holds container discovery configuration.
type DiscoveryConfig struct {
	// Networks the proxy is attached to; containers must share one to be
	// routable.
	Networks         []string      `mapstructure:"networks"`
	ReconnectBackoff time.Duration `mapstructure:"reconnect_backoff"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// DockerConfig holds Docker client configuration.
type DockerConfig struct {
	Host string `mapstructure:"host"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.http_address", "0.0.0.0:80")
	v.SetDefault("server.https_address", "0.0.0.0:443")
	v.SetDefault("server.admin_address", "0.0.0.0:8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("acme.directory_url", "")
	v.SetDefault("acme.email", "")
	v.SetDefault("acme.domains", []string{})
	v.SetDefault("acme.storage_dir", "/var/lib/pressedge/certs")
	v.SetDefault("acme.renewal_window", "720h") // 30 days
	v.SetDefault("acme.renew_interval", "1h")

	v.SetDefault("discovery.networks", []string{})
	v.SetDefault("discovery.reconnect_backoff", "5s")

	v.SetDefault("database.dsn", "/var/lib/pressedge/pressedge.db")
	v.SetDefault("docker.host", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only fail on a file that exists but cannot be parsed
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("PRESSEDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Environment variables carry lists as comma-separated strings.
	cfg.ACME.Domains = splitList(cfg.ACME.Domains)
	cfg.Discovery.Networks = splitList(cfg.Discovery.Networks)

	return &cfg, nil
}

// splitList expands comma-separated entries and drops empty ones.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
