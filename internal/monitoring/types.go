// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by both watcher/ and monitoring/ packages.
// They carry plain values only, so monitoring never imports watcher.
//
// TYPES:
//   - Outcome:       What happened to a raised alert
//   - AlertEntry:    One journal line
//   - Config types:  LoggerConfig, JournalConfig
package monitoring

import "time"

// =============================================================================
// ALERT OUTCOMES
// =============================================================================

// Outcome records what happened to a raised alert.
type Outcome string

const (
	OutcomeDelivered      Outcome = "delivered"
	OutcomeDeliveryFailed Outcome = "delivery_failed"
	OutcomeLoggedOnly     Outcome = "logged_only"
)

// OutcomeSuppressed returns the outcome for an alert rejected by the gate
// for reason ("cooldown", "maintenance").
func OutcomeSuppressed(reason string) Outcome {
	return Outcome("suppressed_" + reason)
}

// AlertEntry is one line of the alert journal.
type AlertEntry struct {
	Timestamp time.Time `json:"timestamp"`
	AlertID   string    `json:"alert_id"`
	Kind      string    `json:"kind"`
	Outcome   Outcome   `json:"outcome"`
	Alert     any       `json:"alert,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// =============================================================================
// CONFIG TYPES
// =============================================================================

// LoggerConfig contains logging configuration.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console, auto
	Output string `yaml:"output"` // stdout, stderr, or file path
}

// JournalConfig contains alert journal configuration.
type JournalConfig struct {
	Path string `yaml:"path"` // JSONL file; empty disables the journal
}
