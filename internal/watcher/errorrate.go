package watcher

import (
	"strings"
	"time"
)

// ErrorRateDetector raises an alert while the share of 5xx upstream
// responses in the last WindowSize requests exceeds the threshold.
//
// It raises on every qualifying observation; repeat suppression belongs
// to the AlertGate.
type ErrorRateDetector struct {
	window           *SlidingWindow
	thresholdPercent float64
}

// NewErrorRateDetector creates a detector over a window of windowSize requests.
func NewErrorRateDetector(windowSize int, thresholdPercent float64) *ErrorRateDetector {
	return &ErrorRateDetector{
		window:           NewSlidingWindow(windowSize),
		thresholdPercent: thresholdPercent,
	}
}

// Observe records one upstream status. An empty status (no upstream reached)
// is not counted at all. Nothing is raised until the window is full.
func (d *ErrorRateDetector) Observe(status string, at time.Time) (HighErrorRateAlert, bool) {
	if status == "" {
		return HighErrorRateAlert{}, false
	}

	d.window.Push(strings.HasPrefix(status, "5"))
	if !d.window.Full() {
		return HighErrorRateAlert{}, false
	}

	rate := d.Rate()
	if rate <= d.thresholdPercent {
		return HighErrorRateAlert{}, false
	}
	return HighErrorRateAlert{
		ErrorRatePercent: rate,
		ThresholdPercent: d.thresholdPercent,
		ErrorCount:       d.window.Errors(),
		WindowSize:       d.window.Cap(),
		ObservedAt:       at,
	}, true
}

// Rate returns the error percentage over the window capacity. It is only
// meaningful for alerting once the window is full.
func (d *ErrorRateDetector) Rate() float64 {
	return 100 * float64(d.window.Errors()) / float64(d.window.Cap())
}

// Fill returns how many observations the window currently holds.
func (d *ErrorRateDetector) Fill() int { return d.window.Len() }

// Errors returns the number of 5xx observations in the window.
func (d *ErrorRateDetector) Errors() int { return d.window.Errors() }

// WindowSize returns the window capacity.
func (d *ErrorRateDetector) WindowSize() int { return d.window.Cap() }
