package watcher

import "time"

// GateReason explains an AlertGate decision.
type GateReason string

const (
	ReasonApproved    GateReason = "approved"
	ReasonMaintenance GateReason = "maintenance"
	ReasonCooldown    GateReason = "cooldown"
	ReasonUnknownKind GateReason = "unknown_kind"
)

// Decision is the outcome of AlertGate.Approve.
type Decision struct {
	Approved  bool
	Reason    GateReason
	Remaining time.Duration // cooldown left, set when Reason is ReasonCooldown
}

// AlertGate debounces alerts: one approval per kind per cooldown, and none
// at all in maintenance mode. Rejections never touch the cooldown table.
type AlertGate struct {
	cooldown    time.Duration
	maintenance bool
	lastSent    [numAlertKinds]time.Time
	sent        [numAlertKinds]bool
}

// NewAlertGate creates a gate with an empty cooldown table.
func NewAlertGate(cooldown time.Duration, maintenance bool) *AlertGate {
	return &AlertGate{cooldown: cooldown, maintenance: maintenance}
}

// Approve decides whether an alert of kind may be sent at now, and records
// the send time when it may.
func (g *AlertGate) Approve(kind AlertKind, now time.Time) Decision {
	if g.maintenance {
		return Decision{Reason: ReasonMaintenance}
	}
	if kind < 0 || kind >= numAlertKinds {
		return Decision{Reason: ReasonUnknownKind}
	}

	if g.sent[kind] {
		if elapsed := now.Sub(g.lastSent[kind]); elapsed < g.cooldown {
			return Decision{Reason: ReasonCooldown, Remaining: g.cooldown - elapsed}
		}
	}

	g.lastSent[kind] = now
	g.sent[kind] = true
	return Decision{Approved: true, Reason: ReasonApproved}
}

// LastSent returns the last approval time for kind.
func (g *AlertGate) LastSent(kind AlertKind) (time.Time, bool) {
	if kind < 0 || kind >= numAlertKinds {
		return time.Time{}, false
	}
	return g.lastSent[kind], g.sent[kind]
}

// MaintenanceMode reports whether every alert is being suppressed.
func (g *AlertGate) MaintenanceMode() bool { return g.maintenance }
