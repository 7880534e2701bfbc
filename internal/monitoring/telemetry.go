// Package monitoring - telemetry.go records alert outcomes to a JSONL journal.
//
// DESIGN: Journal appends one JSON object per raised alert (one per line):
//   - the alert itself (failover or high error rate payload)
//   - what happened to it: suppressed, logged only, delivered, delivery failed
//
// Entries are appended immediately so the file can be tailed. A nil or
// disabled Journal accepts and drops every entry.
package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Journal handles alert outcome recording to file.
type Journal struct {
	path  string
	count int
	now   func() time.Time
	mu    sync.Mutex
}

// NewJournal creates a journal. An empty path disables it.
func NewJournal(cfg JournalConfig) (*Journal, error) {
	j := &Journal{now: time.Now}
	if cfg.Path == "" {
		return j, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0750); err != nil {
		return nil, err
	}
	// Create empty file if it doesn't exist
	if _, err := os.Stat(cfg.Path); os.IsNotExist(err) {
		f, err := os.Create(cfg.Path)
		if err != nil {
			return nil, err
		}
		f.Close()
	}
	j.path = cfg.Path
	return j, nil
}

// Enabled returns true if entries are written anywhere.
func (j *Journal) Enabled() bool {
	return j != nil && j.path != ""
}

// appendJSONL appends a single JSON object as a line to the file.
func appendJSONL(path string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

// Record appends the outcome of one alert. deliveryErr may be nil.
func (j *Journal) Record(alertID, kind string, outcome Outcome, alert any, deliveryErr error) {
	if !j.Enabled() {
		return
	}

	entry := AlertEntry{
		Timestamp: j.now().UTC(),
		AlertID:   alertID,
		Kind:      kind,
		Outcome:   outcome,
		Alert:     alert,
	}
	if deliveryErr != nil {
		entry.Error = deliveryErr.Error()
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := appendJSONL(j.path, entry); err != nil {
		log.Error().Err(err).Str("path", j.path).Msg("journal: failed to write alert entry")
		return
	}
	j.count++
}

// Close logs a summary of the session.
func (j *Journal) Close() error {
	if !j.Enabled() {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.count > 0 {
		log.Info().
			Str("path", j.path).
			Int("entries", j.count).
			Msg("journal: session complete")
	}
	return nil
}
