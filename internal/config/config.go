// Package config loads and validates the watcher configuration.
//
// DESIGN: Three layers, applied in order:
//  1. Default():            stock values of the watcher container
//  2. YAML file (optional): ${VAR} / ${VAR:-default} expanded before parsing
//  3. Environment:          SLACK_WEBHOOK_URL, ERROR_RATE_THRESHOLD, WINDOW_SIZE,
//     ALERT_COOLDOWN_SEC, MAINTENANCE_MODE, ACCESS_LOG_PATH, LOG_LEVEL, STATUS_ADDR
//
// The result is validated once and never reloaded.
//
// FILES:
//   - config.go:     Root Config struct, Load(), FromEnv(), Validate()
//   - detection.go:  Detection/alerting sections and the watcher.Config mapping
//   - monitoring.go: Logging, status and journal settings
//   - sections.go:   Re-exports of package-owned sections (tail, notify, server)
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the watcher.
type Config struct {
	Source     SourceConfig     `yaml:"source"`     // Log file to follow
	Detection  DetectionConfig  `yaml:"detection"`  // Error-rate window and threshold
	Alerting   AlertingConfig   `yaml:"alerting"`   // Cooldown and maintenance mode
	Notifier   NotifierConfig   `yaml:"notifier"`   // Alert delivery endpoint
	Server     ServerConfig     `yaml:"server"`     // Optional status/metrics HTTP server
	Monitoring MonitoringConfig `yaml:"monitoring"` // Logging and alert journal
	Supervisor SupervisorConfig `yaml:"supervisor"` // Restart policy
}

// SupervisorConfig controls how the watcher restarts after source failures.
type SupervisorConfig struct {
	RestartDelay time.Duration `yaml:"restart_delay"` // Wait before reopening the log source
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Path:                "/app/log/access.log",
			ReadyTimeout:        60 * time.Second,
			ReadyPollInterval:   5 * time.Second,
			IdlePollInterval:    100 * time.Millisecond,
			MaxIdlePollInterval: time.Second,
			StartAtEnd:          true,
		},
		Detection: DetectionConfig{
			ErrorThresholdPercent: 2.0,
			WindowSize:            200,
		},
		Alerting: AlertingConfig{
			Cooldown: 300 * time.Second,
		},
		Notifier: NotifierConfig{
			Format:  "slack",
			Timeout: 10 * time.Second,
		},
		Server: ServerConfig{
			Addr:         ":9102",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Monitoring: MonitoringConfig{
			LogLevel:       "info",
			LogFormat:      "auto",
			LogOutput:      "stdout",
			StatusInterval: 30 * time.Second,
		},
		Supervisor: SupervisorConfig{
			RestartDelay: 10 * time.Second,
		},
	}
}

// envPattern matches ${VAR:-default} or ${VAR}.
var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandEnvWithDefaults expands environment variables with support for default values.
// Supports both ${VAR} and ${VAR:-default} syntax.
func expandEnvWithDefaults(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) > 2 {
			return parts[2]
		}
		return ""
	})
}

// Load reads configuration from a YAML file layered over Default().
// Returns an error if the file doesn't exist or is invalid.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes.
// Supports ${VAR:-default} env var expansion, env overrides, and validation.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return finish(cfg)
}

// FromEnv builds the configuration from defaults and environment variables
// only, the way the watcher is usually deployed in a container.
func FromEnv() (*Config, error) {
	return finish(Default())
}

func finish(cfg *Config) (*Config, error) {
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Variable names are the ones the watcher container has always used.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		c.Notifier.WebhookURL = v
	}
	if v := os.Getenv("ACCESS_LOG_PATH"); v != "" {
		c.Source.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Monitoring.LogLevel = v
	}
	if v := os.Getenv("STATUS_ADDR"); v != "" {
		c.Server.Addr = v
		c.Server.Enabled = true
	}

	if v := os.Getenv("ERROR_RATE_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("ERROR_RATE_THRESHOLD: %w", err)
		}
		c.Detection.ErrorThresholdPercent = f
	}
	if v := os.Getenv("WINDOW_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WINDOW_SIZE: %w", err)
		}
		c.Detection.WindowSize = n
	}
	if v := os.Getenv("ALERT_COOLDOWN_SEC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ALERT_COOLDOWN_SEC: %w", err)
		}
		c.Alerting.Cooldown = time.Duration(n) * time.Second
	}
	if v := os.Getenv("MAINTENANCE_MODE"); v != "" {
		c.Alerting.MaintenanceMode = strings.EqualFold(strings.TrimSpace(v), "true")
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	// Source validation
	if c.Source.Path == "" {
		return fmt.Errorf("source.path is required")
	}
	if c.Source.ReadyTimeout < 0 {
		return fmt.Errorf("source.ready_timeout must not be negative")
	}
	if c.Source.IdlePollInterval <= 0 {
		return fmt.Errorf("source.idle_poll_interval must be positive")
	}
	if c.Source.MaxIdlePollInterval < c.Source.IdlePollInterval {
		return fmt.Errorf("source.max_idle_poll_interval must be >= source.idle_poll_interval")
	}

	if err := c.Detection.Validate(); err != nil {
		return err
	}
	if err := c.Alerting.Validate(); err != nil {
		return err
	}
	if err := c.Notifier.Validate(); err != nil {
		return err
	}

	// Server validation
	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required when the server is enabled")
	}

	if err := c.Monitoring.Validate(); err != nil {
		return err
	}

	if c.Supervisor.RestartDelay <= 0 {
		return fmt.Errorf("supervisor.restart_delay must be positive")
	}
	return nil
}
