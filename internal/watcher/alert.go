// Package watcher - alert.go defines the alert events raised by the detectors.
//
// DESIGN: Alert is a closed tagged variant. The two concrete types are
// FailoverAlert and HighErrorRateAlert; Kind() is the discriminator used
// by the gate for cooldown bookkeeping and by sinks for formatting.
package watcher

import (
	"fmt"
	"time"
)

// =============================================================================
// ALERT KINDS
// =============================================================================

// AlertKind discriminates alert events.
type AlertKind int

const (
	KindFailover AlertKind = iota
	KindHighErrorRate

	numAlertKinds
)

// AllKinds lists every alert kind in dispatch order.
var AllKinds = [numAlertKinds]AlertKind{KindFailover, KindHighErrorRate}

// String returns the wire name of the kind.
func (k AlertKind) String() string {
	switch k {
	case KindFailover:
		return "failover"
	case KindHighErrorRate:
		return "high_error_rate"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// =============================================================================
// ALERT EVENTS
// =============================================================================

// Alert is a raised alert event.
type Alert interface {
	Kind() AlertKind
	AlertID() string
	Time() time.Time
}

// FailoverAlert reports that traffic moved from one pool to another.
type FailoverAlert struct {
	ID           string    `json:"id"`
	FromPool     string    `json:"from_pool"`
	ToPool       string    `json:"to_pool"`
	ObservedAt   time.Time `json:"observed_at"`
	RequestsSeen int64     `json:"requests_seen"` // lines read by the engine so far
}

func (FailoverAlert) Kind() AlertKind   { return KindFailover }
func (a FailoverAlert) AlertID() string { return a.ID }
func (a FailoverAlert) Time() time.Time { return a.ObservedAt }

// HighErrorRateAlert reports a full window whose 5xx share exceeds the threshold.
type HighErrorRateAlert struct {
	ID               string    `json:"id"`
	ErrorRatePercent float64   `json:"error_rate"`
	ThresholdPercent float64   `json:"threshold"`
	ErrorCount       int       `json:"error_count"`
	WindowSize       int       `json:"window_size"`
	ObservedAt       time.Time `json:"observed_at"`
}

func (HighErrorRateAlert) Kind() AlertKind   { return KindHighErrorRate }
func (a HighErrorRateAlert) AlertID() string { return a.ID }
func (a HighErrorRateAlert) Time() time.Time { return a.ObservedAt }
