package agent

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"shutdownd/pkg/settings"
	"shutdownd/pkg/state"
)

// ConfigPath is where the agent looks for its settings when no path is given.
const ConfigPath = "settings.toml"

// Config is the agent settings file.
type Config struct {
	APIPongURL      string        `toml:"api_pong_url" yaml:"api_pong_url"`
	GroupName       string        `toml:"group_name" yaml:"group_name"`
	ComputerName    string        `toml:"computer_name" yaml:"computer_name"`
	ShutdownCommand []string      `toml:"shutdown_command" yaml:"shutdown_command"`
	Interval        time.Duration `toml:"interval" yaml:"interval"`
	RetryDelay      time.Duration `toml:"retry_delay" yaml:"retry_delay"`
}

// LoadConfig reads and validates the settings file at path.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if err := settings.Load(path, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.normalize(allowInsecureHTTP()); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize(allowInsecure bool) error {
	c.APIPongURL = strings.TrimRight(strings.TrimSpace(c.APIPongURL), "/")
	if c.APIPongURL == "" {
		return fmt.Errorf("config missing api_pong_url field")
	}
	if err := ensureHTTPS(c.APIPongURL, allowInsecure); err != nil {
		return err
	}
	if strings.TrimSpace(c.GroupName) == "" {
		return fmt.Errorf("config missing group_name field")
	}
	if strings.TrimSpace(c.ComputerName) == "" {
		if host, err := os.Hostname(); err == nil && host != "" {
			c.ComputerName = host
		} else {
			return fmt.Errorf("config missing computer_name field")
		}
	}
	if c.Interval <= 0 {
		c.Interval = state.PongInterval
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	return nil
}

func allowInsecureHTTP() bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv("SHUTDOWND_ALLOW_INSECURE_HTTP")))
	switch value {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func ensureHTTPS(raw string, allowInsecure bool) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse api url: %w", err)
	}

	switch parsed.Scheme {
	case "https":
		return nil
	case "http":
		if allowInsecure {
			return nil
		}
		return fmt.Errorf("api url must use https: %s", raw)
	case "":
		return fmt.Errorf("api url must include a scheme: %s", raw)
	default:
		return fmt.Errorf("unsupported api url scheme %q", parsed.Scheme)
	}
}
