// Package monitoring - metrics.go exports watcher counters to Prometheus.
//
// DESIGN: Each collector owns its own registry so tests and multiple
// engines never collide on the default registerer:
//   - lines/records/skipped:   input volume
//   - alerts by kind:          raised, suppressed (by reason), delivered, failed
//   - window gauges:           fill and error rate of the sliding window
//   - active pool:             1 for the pool currently serving
package monitoring

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "pool_watcher"

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	registry *prometheus.Registry

	lines            prometheus.Counter
	records          prometheus.Counter
	skipped          prometheus.Counter
	alertsRaised     *prometheus.CounterVec
	alertsSuppressed *prometheus.CounterVec
	alertsDelivered  *prometheus.CounterVec
	deliveryFailures *prometheus.CounterVec
	windowFill       prometheus.Gauge
	windowErrorRate  prometheus.Gauge
	activePool       *prometheus.GaugeVec

	// mirrored for Stats() without scraping the registry
	lineCount      atomic.Int64
	recordCount    atomic.Int64
	deliveredCount atomic.Int64
	failedCount    atomic.Int64
}

// NewMetricsCollector creates a new metrics collector with its own registry.
func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{
		registry: prometheus.NewRegistry(),
		lines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "lines_total",
			Help:      "Total number of raw log lines read",
		}),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "records_total",
			Help:      "Total number of lines parsed into request records",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "lines_skipped_total",
			Help:      "Total number of lines without pool data",
		}),
		alertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "alerts_raised_total",
			Help:      "Alerts raised by the detectors",
		}, []string{"kind"}),
		alertsSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "alerts_suppressed_total",
			Help:      "Alerts held back by the alert gate",
		}, []string{"kind", "reason"}),
		alertsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "alerts_delivered_total",
			Help:      "Alerts accepted by the notification endpoint",
		}, []string{"kind"}),
		deliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "alert_delivery_failures_total",
			Help:      "Alerts the notification endpoint did not accept",
		}, []string{"kind"}),
		windowFill: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "window_fill",
			Help:      "Requests currently held in the error-rate window",
		}),
		windowErrorRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "window_error_rate_percent",
			Help:      "5xx share of the error-rate window, in percent of its capacity",
		}),
		activePool: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_pool",
			Help:      "1 for the pool currently serving traffic",
		}, []string{"pool"}),
	}

	mc.registry.MustRegister(
		mc.lines, mc.records, mc.skipped,
		mc.alertsRaised, mc.alertsSuppressed, mc.alertsDelivered, mc.deliveryFailures,
		mc.windowFill, mc.windowErrorRate, mc.activePool,
	)
	return mc
}

// RecordLine records a raw line read.
func (mc *MetricsCollector) RecordLine() {
	mc.lines.Inc()
	mc.lineCount.Add(1)
}

// RecordRecord records a parsed request record.
func (mc *MetricsCollector) RecordRecord() {
	mc.records.Inc()
	mc.recordCount.Add(1)
}

// RecordSkip records a line that produced no record.
func (mc *MetricsCollector) RecordSkip() { mc.skipped.Inc() }

// RecordRaised records an alert raised by a detector.
func (mc *MetricsCollector) RecordRaised(kind string) {
	mc.alertsRaised.WithLabelValues(kind).Inc()
}

// RecordSuppressed records an alert rejected by the gate.
func (mc *MetricsCollector) RecordSuppressed(kind, reason string) {
	mc.alertsSuppressed.WithLabelValues(kind, reason).Inc()
}

// RecordDelivered records a delivered alert.
func (mc *MetricsCollector) RecordDelivered(kind string) {
	mc.alertsDelivered.WithLabelValues(kind).Inc()
	mc.deliveredCount.Add(1)
}

// RecordDeliveryFailure records a failed delivery.
func (mc *MetricsCollector) RecordDeliveryFailure(kind string) {
	mc.deliveryFailures.WithLabelValues(kind).Inc()
	mc.failedCount.Add(1)
}

// SetWindow updates the sliding window gauges.
func (mc *MetricsCollector) SetWindow(fill int, ratePercent float64) {
	mc.windowFill.Set(float64(fill))
	mc.windowErrorRate.Set(ratePercent)
}

// SetActivePool marks pool as the only serving pool.
func (mc *MetricsCollector) SetActivePool(pool string) {
	mc.activePool.Reset()
	mc.activePool.WithLabelValues(pool).Set(1)
}

// Registry returns the underlying Prometheus registry.
func (mc *MetricsCollector) Registry() *prometheus.Registry { return mc.registry }

// Handler serves the registry in the Prometheus exposition format.
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{Registry: mc.registry})
}

// Stats returns current counters.
func (mc *MetricsCollector) Stats() map[string]int64 {
	return map[string]int64{
		"lines":             mc.lineCount.Load(),
		"records":           mc.recordCount.Load(),
		"alerts_delivered":  mc.deliveredCount.Load(),
		"delivery_failures": mc.failedCount.Load(),
	}
}
