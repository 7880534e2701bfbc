// Package watcher is the stream-monitoring core of pool-watcher.
//
// DESIGN: One Engine owns every piece of detection state:
//   - LineParser:        raw line -> RequestRecord
//   - FailoverDetector:  pool transitions
//   - ErrorRateDetector: 5xx share over a fixed window
//   - AlertGate:         cooldown + maintenance suppression
//
// Lines are processed strictly one at a time, so detector and gate state
// need no locking. Only the Status counters read by the HTTP status server
// are guarded by a mutex.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/compresr/pool-watcher/internal/monitoring"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// ErrPending is returned by a Source when no complete line is available yet.
var ErrPending = errors.New("no log data available yet")

// Source yields raw log lines.
type Source interface {
	// NextLine returns the next line, ErrPending when idle, io.EOF when a
	// finite source is exhausted, or any other error on source failure.
	NextLine(ctx context.Context) (string, error)
}

// Waker is implemented by sources that can signal new data, letting the
// engine cut its idle sleep short.
type Waker interface {
	Wake() <-chan struct{}
}

// Sink delivers approved alerts to the outside world.
type Sink interface {
	Deliver(ctx context.Context, alert Alert) error
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds the detection and alerting settings. It is read once.
type Config struct {
	ErrorThresholdPercent          float64
	WindowSize                     int
	Cooldown                       time.Duration
	MaintenanceMode                bool
	NotificationEndpointConfigured bool
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		ErrorThresholdPercent: 2.0,
		WindowSize:            200,
		Cooldown:              300 * time.Second,
	}
}

// Validate checks the detection settings.
func (c Config) Validate() error {
	if c.ErrorThresholdPercent <= 0 || c.ErrorThresholdPercent > 100 {
		return fmt.Errorf("error threshold must be in (0, 100], got %v", c.ErrorThresholdPercent)
	}
	if c.WindowSize < 1 {
		return fmt.Errorf("window size must be positive, got %d", c.WindowSize)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("cooldown must not be negative, got %s", c.Cooldown)
	}
	return nil
}

// =============================================================================
// ENGINE
// =============================================================================

// Status is a point-in-time view of the engine for status reporting.
type Status struct {
	StartedAt        time.Time            `json:"started_at"`
	LinesRead        int64                `json:"lines_read"`
	Records          int64                `json:"records"`
	Skipped          int64                `json:"skipped"`
	CurrentPool      string               `json:"current_pool,omitempty"`
	WindowFill       int                  `json:"window_fill"`
	WindowSize       int                  `json:"window_size"`
	WindowErrors     int                  `json:"window_errors"`
	ErrorRatePercent float64              `json:"error_rate_percent"`
	ThresholdPercent float64              `json:"threshold_percent"`
	MaintenanceMode  bool                 `json:"maintenance_mode"`
	AlertsRaised     int64                `json:"alerts_raised"`
	AlertsSuppressed int64                `json:"alerts_suppressed"`
	AlertsDelivered  int64                `json:"alerts_delivered"`
	AlertsFailed     int64                `json:"alerts_failed"`
	LastAlerts       map[string]time.Time `json:"last_alerts,omitempty"`
}

// Engine drives records through the detectors and the gate.
type Engine struct {
	cfg       Config
	parser    *LineParser
	failover  *FailoverDetector
	errorRate *ErrorRateDetector
	gate      *AlertGate
	sink      Sink

	alerts  *monitoring.AlertManager
	metrics *monitoring.MetricsCollector
	journal *monitoring.Journal
	now     func() time.Time
	newID   func() string

	idleMin        time.Duration
	idleMax        time.Duration
	statusInterval time.Duration

	mu     sync.Mutex
	status Status
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces time.Now for record stamps and cooldowns.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator replaces the UUID alert id generator.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// WithAlertManager sets the alert logger.
func WithAlertManager(am *monitoring.AlertManager) Option {
	return func(e *Engine) { e.alerts = am }
}

// WithMetrics sets the metrics collector.
func WithMetrics(mc *monitoring.MetricsCollector) Option {
	return func(e *Engine) { e.metrics = mc }
}

// WithJournal sets the alert journal.
func WithJournal(j *monitoring.Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithIdleBackoff sets the idle sleep bounds used while the source is pending.
func WithIdleBackoff(lo, hi time.Duration) Option {
	return func(e *Engine) {
		e.idleMin = lo
		e.idleMax = hi
	}
}

// WithStatusInterval sets how often Run logs a status line. Zero disables it.
func WithStatusInterval(d time.Duration) Option {
	return func(e *Engine) { e.statusInterval = d }
}

// New creates an Engine. sink may be nil when no notification endpoint is
// configured; approved alerts are then only logged.
func New(cfg Config, sink Sink, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid watcher config: %w", err)
	}

	e := &Engine{
		cfg:            cfg,
		sink:           sink,
		now:            time.Now,
		newID:          uuid.NewString,
		idleMin:        100 * time.Millisecond,
		idleMax:        time.Second,
		statusInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.alerts == nil {
		e.alerts = monitoring.NewAlertManager(monitoring.Default())
	}
	if e.metrics == nil {
		e.metrics = monitoring.NewMetricsCollector()
	}
	if e.idleMax < e.idleMin {
		e.idleMax = e.idleMin
	}

	e.parser = NewLineParser(e.now)
	e.failover = NewFailoverDetector()
	e.errorRate = NewErrorRateDetector(cfg.WindowSize, cfg.ErrorThresholdPercent)
	e.gate = NewAlertGate(cfg.Cooldown, cfg.MaintenanceMode)
	e.status = Status{
		StartedAt:        e.now(),
		WindowSize:       cfg.WindowSize,
		ThresholdPercent: cfg.ErrorThresholdPercent,
		MaintenanceMode:  cfg.MaintenanceMode,
	}
	return e, nil
}

// HandleLine parses one raw line and processes it when it is a record.
// It returns the alerts approved for this line.
func (e *Engine) HandleLine(ctx context.Context, line string) []Alert {
	e.metrics.RecordLine()
	e.mu.Lock()
	e.status.LinesRead++
	e.mu.Unlock()

	rec, ok := e.parser.Parse(line)
	if !ok {
		e.metrics.RecordSkip()
		e.mu.Lock()
		e.status.Skipped++
		e.mu.Unlock()
		return nil
	}
	return e.Process(ctx, rec)
}

// Process runs one record through both detectors. Failover is checked
// first, so a record that triggers both yields the failover alert first.
func (e *Engine) Process(ctx context.Context, rec RequestRecord) []Alert {
	e.metrics.RecordRecord()
	e.mu.Lock()
	e.status.Records++
	records, lines := e.status.Records, e.status.LinesRead
	e.mu.Unlock()

	if records <= 3 {
		log.Debug().
			Str("pool", rec.Pool).
			Str("release", rec.Release).
			Str("upstream_status", rec.UpstreamStatus).
			Msg("record_parsed")
	}

	var approved []Alert

	if fa, ok := e.failover.Observe(rec.Pool, rec.ObservedAt); ok {
		fa.ID = e.newID()
		fa.RequestsSeen = lines
		e.alerts.FlagFailover(fa.ID, fa.FromPool, fa.ToPool)
		if e.route(ctx, fa) {
			approved = append(approved, fa)
		}
	}

	if rec.HasUpstreamStatus() {
		if ha, ok := e.errorRate.Observe(rec.UpstreamStatus, rec.ObservedAt); ok {
			ha.ID = e.newID()
			e.alerts.FlagHighErrorRate(ha.ID, ha.ErrorRatePercent, ha.ThresholdPercent, ha.ErrorCount, ha.WindowSize)
			if e.route(ctx, ha) {
				approved = append(approved, ha)
			}
		}
	}

	e.publish()
	return approved
}

// route gates an alert and dispatches it when approved. Delivery failures
// are logged and journaled; they never feed back into detector or gate state.
func (e *Engine) route(ctx context.Context, a Alert) bool {
	kind := a.Kind().String()
	e.metrics.RecordRaised(kind)
	e.mu.Lock()
	e.status.AlertsRaised++
	e.mu.Unlock()

	d := e.gate.Approve(a.Kind(), e.now())
	if !d.Approved {
		e.alerts.FlagSuppressed(a.AlertID(), kind, string(d.Reason), d.Remaining)
		e.metrics.RecordSuppressed(kind, string(d.Reason))
		e.journal.Record(a.AlertID(), kind, monitoring.OutcomeSuppressed(string(d.Reason)), a, nil)
		e.mu.Lock()
		e.status.AlertsSuppressed++
		e.mu.Unlock()
		return false
	}

	if !e.cfg.NotificationEndpointConfigured || e.sink == nil {
		e.alerts.FlagLoggedOnly(a.AlertID(), kind)
		e.journal.Record(a.AlertID(), kind, monitoring.OutcomeLoggedOnly, a, nil)
		return true
	}

	if err := e.sink.Deliver(ctx, a); err != nil {
		e.alerts.FlagDeliveryFailure(a.AlertID(), kind, err)
		e.metrics.RecordDeliveryFailure(kind)
		e.journal.Record(a.AlertID(), kind, monitoring.OutcomeDeliveryFailed, a, err)
		e.mu.Lock()
		e.status.AlertsFailed++
		e.mu.Unlock()
		return true
	}

	e.alerts.FlagDelivered(a.AlertID(), kind)
	e.metrics.RecordDelivered(kind)
	e.journal.Record(a.AlertID(), kind, monitoring.OutcomeDelivered, a, nil)
	e.mu.Lock()
	e.status.AlertsDelivered++
	e.mu.Unlock()
	return true
}

// publish copies detector state into the shared status and gauges.
func (e *Engine) publish() {
	pool := e.failover.LastPool()
	fill, errs, rate := e.errorRate.Fill(), e.errorRate.Errors(), e.errorRate.Rate()

	e.mu.Lock()
	changed := pool != e.status.CurrentPool
	e.status.CurrentPool = pool
	e.status.WindowFill = fill
	e.status.WindowErrors = errs
	e.status.ErrorRatePercent = rate
	for _, k := range AllKinds {
		if t, ok := e.gate.LastSent(k); ok {
			if e.status.LastAlerts == nil {
				e.status.LastAlerts = make(map[string]time.Time, len(AllKinds))
			}
			e.status.LastAlerts[k.String()] = t
		}
	}
	e.mu.Unlock()

	e.metrics.SetWindow(fill, rate)
	if changed && pool != "" {
		e.metrics.SetActivePool(pool)
		log.Info().Str("pool", pool).Msg("active_pool")
	}
}

// Snapshot returns a copy of the current status. Safe for concurrent use.
func (e *Engine) Snapshot() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.status
	if e.status.LastAlerts != nil {
		s.LastAlerts = make(map[string]time.Time, len(e.status.LastAlerts))
		for k, v := range e.status.LastAlerts {
			s.LastAlerts[k] = v
		}
	}
	return s
}

// =============================================================================
// RUN LOOP
// =============================================================================

// Run reads src until ctx is cancelled or a finite source ends. Pending
// reads back off from the minimum to the maximum idle interval. Any other
// source error is returned for the supervisor to handle.
func (e *Engine) Run(ctx context.Context, src Source) error {
	var wake <-chan struct{}
	if w, ok := src.(Waker); ok {
		wake = w.Wake()
	}

	idle := e.idleMin
	lastStatus := e.now()
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := src.NextLine(ctx)
		switch {
		case err == nil:
			idle = e.idleMin
			e.HandleLine(ctx, line)
		case errors.Is(err, ErrPending):
			if !sleep(ctx, idle, wake) {
				return nil
			}
			idle = min(idle*2, e.idleMax)
		case errors.Is(err, io.EOF):
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("read log source: %w", err)
		}

		if e.statusInterval > 0 {
			if now := e.now(); now.Sub(lastStatus) >= e.statusInterval {
				e.logStatus()
				lastStatus = now
			}
		}
	}
}

func (e *Engine) logStatus() {
	s := e.Snapshot()
	log.Info().
		Int64("lines", s.LinesRead).
		Int64("records", s.Records).
		Str("pool", s.CurrentPool).
		Int("window_fill", s.WindowFill).
		Float64("error_rate", s.ErrorRatePercent).
		Int64("alerts_delivered", s.AlertsDelivered).
		Msg("status")
}

// sleep waits for d, a wake-up, or cancellation. It returns false when ctx
// is done.
func sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
	case <-wake:
	}
	return true
}
