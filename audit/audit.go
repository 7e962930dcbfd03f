// ABOUTME: This file implements the JSON-lines audit trail for run decisions
// ABOUTME: Every guard rejection, failure, and discard is appended to a per-run file
package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"citation-processor/config"
)

// EntryType discriminates audit records.
type EntryType string

const (
	EntryRejection EntryType = "rejection"
	EntryFailure   EntryType = "failure"
	EntryDiscard   EntryType = "discard"
)

// Entry is one audit line. Records are append-only; the file for a run is
// the authoritative trace of why its candidates did not proceed.
type Entry struct {
	Type      EntryType `json:"type"`
	TopicID   string    `json:"topic_id"`
	RunID     string    `json:"run_id"`
	URL       string    `json:"url"`
	Host      string    `json:"host,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Error     string    `json:"error,omitempty"`
	Attempts  int       `json:"attempts,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Trail appends audit entries as JSON lines under
// {basePath}/{date}/{runID}.jsonl.
type Trail struct {
	basePath string
	enabled  bool
	mu       sync.Mutex
	logger   *slog.Logger

	nowFn func() time.Time
}

// NewTrail creates an audit trail writer.
func NewTrail(cfg config.AuditConfig, logger *slog.Logger) *Trail {
	return &Trail{
		basePath: cfg.BasePath,
		enabled:  cfg.Enabled,
		logger:   logger,
		nowFn:    time.Now,
	}
}

// RecordRejection logs a guard rejection.
func (t *Trail) RecordRejection(topicID, runID, url, host, reason string) {
	t.append(Entry{
		Type:    EntryRejection,
		TopicID: topicID,
		RunID:   runID,
		URL:     url,
		Host:    host,
		Reason:  reason,
	})
}

// RecordFailure logs a processing failure with its pipeline stage.
func (t *Trail) RecordFailure(topicID, runID, url, stage string, attempts int, err error) {
	e := Entry{
		Type:     EntryFailure,
		TopicID:  topicID,
		RunID:    runID,
		URL:      url,
		Stage:    stage,
		Attempts: attempts,
	}
	if err != nil {
		e.Error = err.Error()
	}
	t.append(e)
}

// RecordDiscard logs a candidate dropped after exhausting its retry budget.
func (t *Trail) RecordDiscard(topicID, runID, url string, attempts int, reason string) {
	t.append(Entry{
		Type:     EntryDiscard,
		TopicID:  topicID,
		RunID:    runID,
		URL:      url,
		Attempts: attempts,
		Reason:   reason,
	})
}

func (t *Trail) append(e Entry) {
	if !t.enabled {
		return
	}

	e.Timestamp = t.nowFn().UTC()

	line, err := json.Marshal(e)
	if err != nil {
		t.logger.Error("failed to marshal audit entry", "error", err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	dir := filepath.Join(t.basePath, e.Timestamp.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0750); err != nil {
		t.logger.Error("failed to create audit directory", "dir", dir, "error", err)
		return
	}

	path := filepath.Join(dir, fmt.Sprintf("%s.jsonl", e.RunID))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		t.logger.Error("failed to open audit file", "path", path, "error", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		t.logger.Error("failed to write audit entry", "path", path, "error", err)
	}
}

// ReadRun loads every entry recorded for a run on a given date. Used by
// tests and offline inspection, not the hot path.
func (t *Trail) ReadRun(date time.Time, runID string) ([]Entry, error) {
	path := filepath.Join(t.basePath, date.UTC().Format("2006-01-02"), fmt.Sprintf("%s.jsonl", runID))
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit file: %w", err)
	}

	var entries []Entry
	dec := json.NewDecoder(bytes.NewReader(raw))
	for dec.More() {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("failed to decode audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
