// Monitoring configuration - logging, status and alert journal settings.
//
// DESIGN: Separates logging (zerolog) from the alert journal (JSONL file).
// Logging is for operators, the journal is an audit trail of alert outcomes.
package config

import (
	"fmt"
	"time"

	"github.com/compresr/pool-watcher/internal/monitoring"
)

// MonitoringConfig contains all monitoring settings.
type MonitoringConfig struct {
	// Logging settings
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // json, console, auto
	LogOutput string `yaml:"log_output"` // stdout, stderr, or file path

	// Periodic status line
	StatusInterval time.Duration `yaml:"status_interval"` // 0 disables

	// Alert journal
	AlertLogPath string `yaml:"alert_log_path"` // JSONL file; empty disables
}

// Validate checks monitoring settings.
func (m MonitoringConfig) Validate() error {
	switch m.LogFormat {
	case "", "json", "console", "auto":
	default:
		return fmt.Errorf("invalid monitoring.log_format: %q (must be json, console or auto)", m.LogFormat)
	}
	if m.StatusInterval < 0 {
		return fmt.Errorf("invalid monitoring.status_interval: %s (must not be negative)", m.StatusInterval)
	}
	return nil
}

// LoggerConfig returns the logger settings.
func (m MonitoringConfig) LoggerConfig() monitoring.LoggerConfig {
	return monitoring.LoggerConfig{
		Level:  m.LogLevel,
		Format: m.LogFormat,
		Output: m.LogOutput,
	}
}

// JournalConfig returns the alert journal settings.
func (m MonitoringConfig) JournalConfig() monitoring.JournalConfig {
	return monitoring.JournalConfig{Path: m.AlertLogPath}
}
