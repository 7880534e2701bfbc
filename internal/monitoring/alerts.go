// Package monitoring - alerts.go logs the life of every raised alert.
//
// DESIGN: AlertManager logs notable events at appropriate levels:
//   - FlagFailover / FlagHighErrorRate: Warn when a detector raises
//   - FlagSuppressed:                   Info when the gate holds an alert back
//   - FlagDelivered / FlagLoggedOnly:   Info once an alert leaves the engine
//   - FlagDeliveryFailure:              Error when the sink rejects an alert
package monitoring

import "time"

// AlertManager logs alert lifecycle events.
type AlertManager struct {
	logger *Logger
}

// NewAlertManager creates a new alert manager.
func NewAlertManager(logger *Logger) *AlertManager {
	if logger == nil {
		logger = Default()
	}
	return &AlertManager{logger: logger}
}

// FlagFailover logs a detected pool transition.
func (am *AlertManager) FlagFailover(alertID, fromPool, toPool string) {
	am.logger.Warn().
		Str("alert_id", alertID).
		Str("from_pool", fromPool).
		Str("to_pool", toPool).
		Msg("failover_detected")
}

// FlagHighErrorRate logs an error rate above threshold.
func (am *AlertManager) FlagHighErrorRate(alertID string, rate, threshold float64, errorCount, windowSize int) {
	am.logger.Warn().
		Str("alert_id", alertID).
		Float64("error_rate", rate).
		Float64("threshold", threshold).
		Int("error_count", errorCount).
		Int("window_size", windowSize).
		Msg("high_error_rate")
}

// FlagSuppressed logs an alert held back by cooldown or maintenance mode.
func (am *AlertManager) FlagSuppressed(alertID, kind, reason string, remaining time.Duration) {
	ev := am.logger.Info().
		Str("alert_id", alertID).
		Str("kind", kind).
		Str("reason", reason)
	if remaining > 0 {
		ev = ev.Dur("cooldown_remaining", remaining.Round(time.Second))
	}
	ev.Msg("alert_suppressed")
}

// FlagLoggedOnly logs an approved alert that has no endpoint to go to.
func (am *AlertManager) FlagLoggedOnly(alertID, kind string) {
	am.logger.Info().
		Str("alert_id", alertID).
		Str("kind", kind).
		Msg("notifier not configured, alert logged only")
}

// FlagDelivered logs a successful delivery.
func (am *AlertManager) FlagDelivered(alertID, kind string) {
	am.logger.Info().
		Str("alert_id", alertID).
		Str("kind", kind).
		Msg("alert_delivered")
}

// FlagDeliveryFailure logs a failed delivery.
func (am *AlertManager) FlagDeliveryFailure(alertID, kind string, err error) {
	am.logger.Error().
		Str("alert_id", alertID).
		Str("kind", kind).
		Err(err).
		Msg("alert_delivery_failed")
}
