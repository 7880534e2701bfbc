// Package watcher - parser.go turns access log lines into request records.
//
// DESIGN: Best-effort, per-field extraction. Only the pool is mandatory:
//   - key=value lines:  pool="blue" release="v1" upstream_status=502 ...
//   - JSON lines:       {"pool":"blue","upstream_status":"502",...} (escape=json)
//
// A malformed optional field degrades to its default, it never drops the line.
package watcher

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// Sentinel labels for fields that are missing or unusable.
const (
	UnknownRelease = "unknown"
	UnknownPool    = "unknown"
)

// RequestRecord is one parsed access log entry.
type RequestRecord struct {
	Pool           string    `json:"pool"`
	Release        string    `json:"release"`
	UpstreamStatus string    `json:"upstream_status,omitempty"` // empty when no upstream answered
	UpstreamAddr   string    `json:"upstream_addr,omitempty"`
	RequestTime    float64   `json:"request_time"` // seconds
	ObservedAt     time.Time `json:"observed_at"`
}

// HasUpstreamStatus reports whether an upstream response status was logged.
func (r RequestRecord) HasUpstreamStatus() bool {
	return r.UpstreamStatus != ""
}

var (
	poolPattern           = regexp.MustCompile(`\bpool="([^"]*)"`)
	releasePattern        = regexp.MustCompile(`\brelease="([^"]*)"`)
	upstreamStatusPattern = regexp.MustCompile(`\bupstream_status="?([\d-]+)`)
	upstreamAddrPattern   = regexp.MustCompile(`\bupstream_addr="?([^\s"]+)`)
	requestTimePattern    = regexp.MustCompile(`\brequest_time="?([\d.]+)`)
)

// LineParser extracts RequestRecords from raw lines. It holds no state
// besides the clock used to stamp records.
type LineParser struct {
	now func() time.Time
}

// NewLineParser creates a parser. A nil clock uses time.Now.
func NewLineParser(now func() time.Time) *LineParser {
	if now == nil {
		now = time.Now
	}
	return &LineParser{now: now}
}

// Parse returns the record for line, or false when the line is blank,
// not valid text, or carries no pool.
func (p *LineParser) Parse(line string) (RequestRecord, bool) {
	line = strings.TrimSpace(line)
	if line == "" || !utf8.ValidString(line) {
		return RequestRecord{}, false
	}

	var (
		rec RequestRecord
		ok  bool
	)
	if line[0] == '{' && gjson.Valid(line) {
		rec, ok = parseJSONLine(line)
	} else {
		rec, ok = parseKeyValueLine(line)
	}
	if !ok {
		return RequestRecord{}, false
	}

	if rec.Release == "" {
		rec.Release = UnknownRelease
	}
	rec.UpstreamStatus = normalizeStatus(rec.UpstreamStatus)
	rec.ObservedAt = p.now()
	return rec, true
}

func parseKeyValueLine(line string) (RequestRecord, bool) {
	pool, ok := submatch(poolPattern, line)
	if !ok {
		return RequestRecord{}, false
	}

	rec := RequestRecord{Pool: pool}
	rec.Release, _ = submatch(releasePattern, line)
	rec.UpstreamStatus, _ = submatch(upstreamStatusPattern, line)
	rec.UpstreamAddr, _ = submatch(upstreamAddrPattern, line)
	if raw, ok := submatch(requestTimePattern, line); ok {
		rec.RequestTime = parseSeconds(raw)
	}
	return rec, true
}

func parseJSONLine(line string) (RequestRecord, bool) {
	fields := gjson.GetMany(line, "pool", "release", "upstream_status", "upstream_addr", "request_time")
	if !fields[0].Exists() {
		return RequestRecord{}, false
	}

	rec := RequestRecord{
		Pool:           fields[0].String(),
		Release:        fields[1].String(),
		UpstreamStatus: fields[2].String(),
		UpstreamAddr:   fields[3].String(),
	}
	switch fields[4].Type {
	case gjson.Number:
		rec.RequestTime = nonNegative(fields[4].Float())
	case gjson.String:
		rec.RequestTime = parseSeconds(fields[4].Str)
	}
	return rec, true
}

func submatch(re *regexp.Regexp, line string) (string, bool) {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// normalizeStatus keeps the first status of a multi-upstream value
// ("502, 200") and maps nginx's "-" (no upstream reached) to absent.
func normalizeStatus(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ", :"); i >= 0 {
		s = s[:i]
	}
	if strings.Trim(s, "-") == "" {
		return ""
	}
	return s
}

func parseSeconds(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return nonNegative(v)
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
