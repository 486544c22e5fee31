// Package config loads the shutdownd server configuration.
package config

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"shutdownd/pkg/settings"
	"shutdownd/pkg/state"
)

// Config holds runtime configuration for the shutdownd server. Values from the
// settings file win; the environment fills every field the file left empty.
type Config struct {
	BindIP            string        `toml:"bind_ip" yaml:"bind_ip" env:"BIND_IP,default=0.0.0.0"`
	BindPort          int           `toml:"bind_port" yaml:"bind_port" env:"BIND_PORT,default=8080"`
	PublicAddress     string        `toml:"public_full_address" yaml:"public_full_address" env:"PUBLIC_FULL_ADDRESS"`
	HtpasswdFile      string        `toml:"htpasswd_file" yaml:"htpasswd_file" env:"HTPASSWD_FILE,default=.htpasswd"`
	HeartbeatInterval time.Duration `toml:"heartbeat_interval" yaml:"heartbeat_interval" env:"HEARTBEAT_INTERVAL,default=4s"`
	StaleMultiplier   int           `toml:"stale_multiplier" yaml:"stale_multiplier" env:"STALE_MULTIPLIER,default=4"`
	SweepInterval     time.Duration `toml:"sweep_interval" yaml:"sweep_interval" env:"SWEEP_INTERVAL,default=16s"`
	NATSURL           string        `toml:"nats_url" yaml:"nats_url" env:"NATS_URL"`
	DBDSN             string        `toml:"db_dsn" yaml:"db_dsn" env:"DB_DSN"`
	OTLPEndpoint      string        `toml:"otlp_endpoint" yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	AllowedOrigins    []string      `toml:"cors_allowed_origins" yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	OperatorRateLimit int           `toml:"operator_rate_limit" yaml:"operator_rate_limit" env:"OPERATOR_RATE_LIMIT,default=120"`
	StaticDir         string        `toml:"static_dir" yaml:"static_dir" env:"STATIC_DIR"`
}

// Load reads the optional settings file at path and completes it from the
// environment.
//
// A value set in the settings file takes precedence over its environment
// variable: with stale_multiplier in the file, STALE_MULTIPLIER is ignored.
// Environment variables and then defaults only fill fields the file leaves
// empty or omits.
func Load(ctx context.Context, path string) (Config, error) {
	return load(ctx, path, envconfig.OsLookuper())
}

func load(ctx context.Context, path string, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if path != "" {
		if err := settings.Load(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot run with.
func (c Config) Validate() error {
	if net.ParseIP(c.BindIP) == nil {
		return fmt.Errorf("invalid bind_ip %q", c.BindIP)
	}
	if c.BindPort <= 0 || c.BindPort > 65535 {
		return fmt.Errorf("invalid bind_port %d", c.BindPort)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive, got %s", c.HeartbeatInterval)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive, got %s", c.SweepInterval)
	}
	if c.StaleMultiplier < 1 {
		return fmt.Errorf("stale_multiplier must be at least 1, got %d", c.StaleMultiplier)
	}
	if c.OperatorRateLimit < 0 {
		return fmt.Errorf("operator_rate_limit must not be negative, got %d", c.OperatorRateLimit)
	}
	if strings.TrimSpace(c.HtpasswdFile) == "" {
		return fmt.Errorf("htpasswd_file is required")
	}
	return nil
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.BindIP, strconv.Itoa(c.BindPort))
}

// Threshold is the staleness window after which a silent computer is evicted.
func (c Config) Threshold() time.Duration {
	return state.StaleThreshold(c.HeartbeatInterval, c.StaleMultiplier)
}

// AuditEnabled reports whether both the bus and the database are configured.
func (c Config) AuditEnabled() bool {
	return c.NATSURL != "" && c.DBDSN != ""
}
