package watcher_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/pool-watcher/internal/monitoring"
	"github.com/compresr/pool-watcher/internal/watcher"
)

// =============================================================================
// FAKES
// =============================================================================

type recordingSink struct {
	mu        sync.Mutex
	delivered []watcher.Alert
	err       error
}

func (s *recordingSink) Deliver(_ context.Context, a watcher.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, a)
	return s.err
}

func (s *recordingSink) alerts() []watcher.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]watcher.Alert(nil), s.delivered...)
}

// sliceSource replays lines, then reports pending (or EOF when finite).
type sliceSource struct {
	mu     sync.Mutex
	lines  []string
	finite bool
	err    error
}

func (s *sliceSource) NextLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lines) > 0 {
		line := s.lines[0]
		s.lines = s.lines[1:]
		return line, nil
	}
	if s.err != nil {
		return "", s.err
	}
	if s.finite {
		return "", io.EOF
	}
	return "", watcher.ErrPending
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("alert-%d", n)
	}
}

func testConfig() watcher.Config {
	return watcher.Config{
		ErrorThresholdPercent:          20,
		WindowSize:                     5,
		Cooldown:                       time.Minute,
		NotificationEndpointConfigured: true,
	}
}

func newTestEngine(t *testing.T, cfg watcher.Config, sink watcher.Sink, opts ...watcher.Option) (*watcher.Engine, *clock, *bytes.Buffer) {
	t.Helper()
	clk := &clock{t: fixedTime}
	var logs bytes.Buffer
	base := []watcher.Option{
		watcher.WithClock(clk.Now),
		watcher.WithIDGenerator(sequentialIDs()),
		watcher.WithAlertManager(monitoring.NewAlertManager(monitoring.FromWriter(&logs))),
		watcher.WithIdleBackoff(time.Millisecond, 5*time.Millisecond),
		watcher.WithStatusInterval(0),
	}
	e, err := watcher.New(cfg, sink, append(base, opts...)...)
	require.NoError(t, err)
	return e, clk, &logs
}

func readJournal(t *testing.T, path string) []monitoring.AlertEntry {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var entries []monitoring.AlertEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var entry monitoring.AlertEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &entry))
		entries = append(entries, entry)
	}
	require.NoError(t, sc.Err())
	return entries
}

func line(pool, status string) string {
	return fmt.Sprintf(`pool="%s" release="%s-v1" upstream_status=%s upstream_addr=10.0.0.1:3000 request_time=0.010`, pool, pool, status)
}

// =============================================================================
// CONFIG
// =============================================================================

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, watcher.DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*watcher.Config)
	}{
		{"zero threshold", func(c *watcher.Config) { c.ErrorThresholdPercent = 0 }},
		{"threshold above 100", func(c *watcher.Config) { c.ErrorThresholdPercent = 101 }},
		{"zero window", func(c *watcher.Config) { c.WindowSize = 0 }},
		{"negative cooldown", func(c *watcher.Config) { c.Cooldown = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := watcher.DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())

			_, err := watcher.New(cfg, nil)
			assert.Error(t, err)
		})
	}
}

// =============================================================================
// PROCESSING
// =============================================================================

func TestEngine_FailoverThenErrorSpike(t *testing.T) {
	sink := &recordingSink{}
	e, _, _ := newTestEngine(t, testConfig(), sink)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		assert.Empty(t, e.HandleLine(ctx, line("blue", "200")))
	}

	// the pool flips on an upstream error that also fills the window past threshold
	assert.Empty(t, e.HandleLine(ctx, line("blue", "500")))
	got := e.HandleLine(ctx, line("green", "502"))
	require.Len(t, got, 2)

	fa, ok := got[0].(watcher.FailoverAlert)
	require.True(t, ok, "failover is dispatched first")
	assert.Equal(t, "blue", fa.FromPool)
	assert.Equal(t, "green", fa.ToPool)
	assert.EqualValues(t, 6, fa.RequestsSeen)
	assert.Equal(t, "alert-1", fa.ID)

	ha, ok := got[1].(watcher.HighErrorRateAlert)
	require.True(t, ok)
	assert.Equal(t, 2, ha.ErrorCount)
	assert.InDelta(t, 40.0, ha.ErrorRatePercent, 1e-9)
	assert.Equal(t, "alert-2", ha.ID)

	assert.Equal(t, got, sink.alerts())

	s := e.Snapshot()
	assert.EqualValues(t, 6, s.LinesRead)
	assert.EqualValues(t, 6, s.Records)
	assert.Equal(t, "green", s.CurrentPool)
	assert.Equal(t, 5, s.WindowFill)
	assert.Equal(t, 2, s.WindowErrors)
	assert.EqualValues(t, 2, s.AlertsRaised)
	assert.EqualValues(t, 2, s.AlertsDelivered)
	assert.Contains(t, s.LastAlerts, "failover")
	assert.Contains(t, s.LastAlerts, "high_error_rate")
}

func TestEngine_CooldownSuppressesRepeats(t *testing.T) {
	sink := &recordingSink{}
	e, clk, logs := newTestEngine(t, testConfig(), sink)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e.HandleLine(ctx, line("blue", "500"))
	}
	require.Len(t, sink.alerts(), 1)

	clk.Advance(30 * time.Second)
	assert.Empty(t, e.HandleLine(ctx, line("blue", "500")))
	assert.Contains(t, logs.String(), "alert_suppressed")

	clk.Advance(30 * time.Second)
	assert.Len(t, e.HandleLine(ctx, line("blue", "500")), 1)

	s := e.Snapshot()
	assert.EqualValues(t, 3, s.AlertsRaised)
	assert.EqualValues(t, 1, s.AlertsSuppressed)
	assert.EqualValues(t, 2, s.AlertsDelivered)
}

func TestEngine_MaintenanceMode(t *testing.T) {
	cfg := testConfig()
	cfg.MaintenanceMode = true
	sink := &recordingSink{}
	e, _, logs := newTestEngine(t, cfg, sink)
	ctx := context.Background()

	e.HandleLine(ctx, line("blue", "200"))
	assert.Empty(t, e.HandleLine(ctx, line("green", "200")))
	assert.Empty(t, sink.alerts())
	assert.Contains(t, logs.String(), "failover_detected")
	assert.Contains(t, logs.String(), `"reason":"maintenance"`)
	assert.True(t, e.Snapshot().MaintenanceMode)
}

func TestEngine_LoggedOnlyWithoutEndpoint(t *testing.T) {
	cfg := testConfig()
	cfg.NotificationEndpointConfigured = false
	e, _, logs := newTestEngine(t, cfg, nil)
	ctx := context.Background()

	e.HandleLine(ctx, line("blue", "200"))
	got := e.HandleLine(ctx, line("green", "200"))
	require.Len(t, got, 1)
	assert.Contains(t, logs.String(), "alert logged only")
	assert.Zero(t, e.Snapshot().AlertsDelivered)

	// the logged alert still starts the cooldown
	assert.Empty(t, e.HandleLine(ctx, line("blue", "200")))
}

func TestEngine_DeliveryFailureDoesNotStopProcessing(t *testing.T) {
	sink := &recordingSink{err: errors.New("connection refused")}
	e, clk, logs := newTestEngine(t, testConfig(), sink)
	ctx := context.Background()

	e.HandleLine(ctx, line("blue", "200"))
	assert.Len(t, e.HandleLine(ctx, line("green", "200")), 1)
	assert.Contains(t, logs.String(), "alert_delivery_failed")

	// a failed delivery still counts as sent for cooldown purposes
	assert.Empty(t, e.HandleLine(ctx, line("blue", "200")))

	clk.Advance(time.Minute)
	assert.Len(t, e.HandleLine(ctx, line("green", "200")), 1)

	s := e.Snapshot()
	assert.EqualValues(t, 2, s.AlertsFailed)
	assert.Equal(t, "green", s.CurrentPool)
}

func TestEngine_SkipsUnparsableLines(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig(), &recordingSink{})
	ctx := context.Background()

	e.HandleLine(ctx, "GET /healthz 200")
	e.HandleLine(ctx, "")
	e.HandleLine(ctx, line("blue", "-"))

	s := e.Snapshot()
	assert.EqualValues(t, 3, s.LinesRead)
	assert.EqualValues(t, 1, s.Records)
	assert.EqualValues(t, 2, s.Skipped)
	assert.Zero(t, s.WindowFill, "records without upstream status are not counted")
}

func TestEngine_MetricsAndJournal(t *testing.T) {
	metrics := monitoring.NewMetricsCollector()
	path := t.TempDir() + "/alerts.jsonl"
	journal, err := monitoring.NewJournal(monitoring.JournalConfig{Path: path})
	require.NoError(t, err)

	e, _, _ := newTestEngine(t, testConfig(), &recordingSink{},
		watcher.WithMetrics(metrics),
		watcher.WithJournal(journal),
	)
	ctx := context.Background()
	e.HandleLine(ctx, line("blue", "200"))
	e.HandleLine(ctx, line("green", "200"))
	e.HandleLine(ctx, line("blue", "200"))

	stats := metrics.Stats()
	assert.EqualValues(t, 3, stats["lines"])
	assert.EqualValues(t, 3, stats["records"])
	assert.EqualValues(t, 1, stats["alerts_delivered"])

	entries := readJournal(t, path)
	require.Len(t, entries, 2)
	assert.Equal(t, monitoring.OutcomeDelivered, entries[0].Outcome)
	assert.Equal(t, monitoring.OutcomeSuppressed("cooldown"), entries[1].Outcome)
	assert.Equal(t, "failover", entries[1].Kind)
}

// =============================================================================
// RUN LOOP
// =============================================================================

func TestEngine_RunDrainsFiniteSource(t *testing.T) {
	sink := &recordingSink{}
	e, _, _ := newTestEngine(t, testConfig(), sink)

	src := &sliceSource{finite: true, lines: []string{
		line("blue", "200"),
		line("green", "200"),
	}}
	require.NoError(t, e.Run(context.Background(), src))
	assert.Len(t, sink.alerts(), 1)
	assert.EqualValues(t, 2, e.Snapshot().LinesRead)
}

func TestEngine_RunStopsOnCancel(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig(), &recordingSink{})

	ctx, cancel := context.WithCancel(context.Background())
	src := &sliceSource{lines: []string{line("blue", "200")}}

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, src) }()

	require.Eventually(t, func() bool {
		return e.Snapshot().LinesRead == 1
	}, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestEngine_RunReturnsSourceError(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig(), &recordingSink{})
	boom := errors.New("disk gone")

	err := e.Run(context.Background(), &sliceSource{err: boom})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
