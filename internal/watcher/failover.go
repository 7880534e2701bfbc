package watcher

import "time"

// FailoverDetector raises an alert whenever the serving pool changes.
type FailoverDetector struct {
	lastPool string // empty until the first known pool is seen
}

// NewFailoverDetector creates a detector with no pool observed yet.
func NewFailoverDetector() *FailoverDetector {
	return &FailoverDetector{}
}

// Observe records pool and returns a FailoverAlert when it differs from the
// previous known pool. Empty and "unknown" pools are ignored entirely.
func (d *FailoverDetector) Observe(pool string, at time.Time) (FailoverAlert, bool) {
	if pool == "" || pool == UnknownPool {
		return FailoverAlert{}, false
	}

	prev := d.lastPool
	d.lastPool = pool
	if prev == "" || prev == pool {
		return FailoverAlert{}, false
	}
	return FailoverAlert{FromPool: prev, ToPool: pool, ObservedAt: at}, true
}

// LastPool returns the most recently observed known pool.
func (d *FailoverDetector) LastPool() string {
	return d.lastPool
}
