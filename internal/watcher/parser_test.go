package watcher_test

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/pool-watcher/internal/watcher"
)

var fixedTime = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func fixedClock() time.Time { return fixedTime }

// =============================================================================
// KEY=VALUE LINES
// =============================================================================

func TestParse_FullLine(t *testing.T) {
	p := watcher.NewLineParser(fixedClock)

	line := `172.18.0.1 - - [14/Mar/2025:09:26:53 +0000] "GET /version HTTP/1.1" 200 57 ` +
		`pool="blue" release="blue-v1.0.0" upstream_status=200 upstream_addr=172.18.0.3:3000 request_time=0.004 upstream_response_time=0.004`

	rec, ok := p.Parse(line)
	require.True(t, ok)
	assert.Equal(t, "blue", rec.Pool)
	assert.Equal(t, "blue-v1.0.0", rec.Release)
	assert.Equal(t, "200", rec.UpstreamStatus)
	assert.Equal(t, "172.18.0.3:3000", rec.UpstreamAddr)
	assert.InDelta(t, 0.004, rec.RequestTime, 1e-9)
	assert.Equal(t, fixedTime, rec.ObservedAt)
	assert.True(t, rec.HasUpstreamStatus())
}

func TestParse_Defaults(t *testing.T) {
	p := watcher.NewLineParser(fixedClock)

	rec, ok := p.Parse(`pool="green"`)
	require.True(t, ok)
	assert.Equal(t, "green", rec.Pool)
	assert.Equal(t, watcher.UnknownRelease, rec.Release)
	assert.Empty(t, rec.UpstreamStatus)
	assert.Empty(t, rec.UpstreamAddr)
	assert.Zero(t, rec.RequestTime)
	assert.False(t, rec.HasUpstreamStatus())
}

func TestParse_Rejected(t *testing.T) {
	p := watcher.NewLineParser(fixedClock)

	tests := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"whitespace", "   \t "},
		{"no pool", `release="v1" upstream_status=200`},
		{"pool not quoted", `pool=blue upstream_status=200`},
		{"key is a suffix", `upstream_pool="blue" upstream_status=200`},
		{"invalid utf8", "pool=\"blue\" \xff\xfe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := p.Parse(tt.line)
			assert.False(t, ok)
		})
	}
}

func TestParse_UpstreamStatus(t *testing.T) {
	p := watcher.NewLineParser(fixedClock)

	tests := []struct {
		name string
		line string
		want string
	}{
		{"bare", `pool="blue" upstream_status=502`, "502"},
		{"quoted", `pool="blue" upstream_status="503"`, "503"},
		{"no upstream reached", `pool="blue" upstream_status=-`, ""},
		{"retried upstream keeps first", `pool="blue" upstream_status="502, 200"`, "502"},
		{"missing", `pool="blue" request_time=0.1`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := p.Parse(tt.line)
			require.True(t, ok)
			assert.Equal(t, tt.want, rec.UpstreamStatus)
		})
	}
}

func TestParse_RequestTime(t *testing.T) {
	p := watcher.NewLineParser(fixedClock)

	tests := []struct {
		name string
		line string
		want float64
	}{
		{"seconds", `pool="blue" request_time=1.250`, 1.25},
		{"quoted", `pool="blue" request_time="0.5"`, 0.5},
		{"malformed", `pool="blue" request_time=1.2.3`, 0},
		{"absent", `pool="blue"`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := p.Parse(tt.line)
			require.True(t, ok)
			assert.InDelta(t, tt.want, rec.RequestTime, 1e-9)
		})
	}
}

func TestParse_RequestTimeRoundTrip(t *testing.T) {
	p := watcher.NewLineParser(fixedClock)

	for _, v := range []float64{0, 0.001, 0.004, 0.1, 0.5, 1.25, 3.999, 12.345678, 60, 1234.5} {
		raw := strconv.FormatFloat(v, 'f', -1, 64)
		t.Run(raw, func(t *testing.T) {
			rec, ok := p.Parse(`pool="blue" request_time=` + raw)
			require.True(t, ok)
			assert.Equal(t, v, rec.RequestTime)
		})
	}
}

func TestParse_EmptyPoolIsKept(t *testing.T) {
	p := watcher.NewLineParser(fixedClock)

	rec, ok := p.Parse(`pool="" upstream_status=200`)
	require.True(t, ok)
	assert.Empty(t, rec.Pool)
}

// =============================================================================
// JSON LINES
// =============================================================================

func TestParse_JSONLine(t *testing.T) {
	p := watcher.NewLineParser(fixedClock)

	rec, ok := p.Parse(`{"time":"2025-03-14T09:26:53+00:00","pool":"green","release":"green-v2","upstream_status":"500","upstream_addr":"10.0.0.7:3000","request_time":0.031}`)
	require.True(t, ok)
	assert.Equal(t, "green", rec.Pool)
	assert.Equal(t, "green-v2", rec.Release)
	assert.Equal(t, "500", rec.UpstreamStatus)
	assert.Equal(t, "10.0.0.7:3000", rec.UpstreamAddr)
	assert.InDelta(t, 0.031, rec.RequestTime, 1e-9)
}

func TestParse_JSONLineStringFields(t *testing.T) {
	p := watcher.NewLineParser(fixedClock)

	rec, ok := p.Parse(`{"pool":"blue","upstream_status":"-","request_time":"0.200"}`)
	require.True(t, ok)
	assert.Equal(t, watcher.UnknownRelease, rec.Release)
	assert.False(t, rec.HasUpstreamStatus())
	assert.InDelta(t, 0.2, rec.RequestTime, 1e-9)
}

func TestParse_JSONLineWithoutPool(t *testing.T) {
	p := watcher.NewLineParser(fixedClock)

	_, ok := p.Parse(`{"status":200,"path":"/"}`)
	assert.False(t, ok)
}
