// Detection and alerting configuration.
//
// DESIGN: These two sections map 1:1 onto watcher.Config. The notifier
// section only contributes whether an endpoint exists.
package config

import (
	"fmt"
	"time"

	"github.com/compresr/pool-watcher/internal/watcher"
)

// DetectionConfig contains error-rate detection settings.
type DetectionConfig struct {
	ErrorThresholdPercent float64 `yaml:"error_threshold_percent"` // alert above this 5xx share
	WindowSize            int     `yaml:"window_size"`             // requests in the sliding window
}

// Validate checks detection settings.
func (d DetectionConfig) Validate() error {
	if d.ErrorThresholdPercent <= 0 || d.ErrorThresholdPercent > 100 {
		return fmt.Errorf("invalid detection.error_threshold_percent: %v (must be in (0, 100])", d.ErrorThresholdPercent)
	}
	if d.WindowSize < 1 {
		return fmt.Errorf("invalid detection.window_size: %d (must be positive)", d.WindowSize)
	}
	return nil
}

// AlertingConfig contains alert gating settings.
type AlertingConfig struct {
	Cooldown        time.Duration `yaml:"cooldown"`         // min spacing per alert kind
	MaintenanceMode bool          `yaml:"maintenance_mode"` // suppress every alert
}

// Validate checks alerting settings.
func (a AlertingConfig) Validate() error {
	if a.Cooldown < 0 {
		return fmt.Errorf("invalid alerting.cooldown: %s (must not be negative)", a.Cooldown)
	}
	return nil
}

// WatcherConfig returns the engine settings.
func (c *Config) WatcherConfig() watcher.Config {
	return watcher.Config{
		ErrorThresholdPercent:          c.Detection.ErrorThresholdPercent,
		WindowSize:                     c.Detection.WindowSize,
		Cooldown:                       c.Alerting.Cooldown,
		MaintenanceMode:                c.Alerting.MaintenanceMode,
		NotificationEndpointConfigured: c.Notifier.Configured(),
	}
}
