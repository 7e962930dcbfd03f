package audit

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citation-processor/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors in tests
	}))
}

func newTestTrail(t *testing.T) (*Trail, time.Time) {
	t.Helper()
	trail := NewTrail(config.AuditConfig{
		BasePath: t.TempDir(),
		Enabled:  true,
	}, testLogger())

	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	trail.nowFn = func() time.Time { return now }
	return trail, now
}

func TestTrail_AppendsEntriesPerRun(t *testing.T) {
	trail, now := newTestTrail(t)

	trail.RecordRejection("topic-1", "run-1", "https://big.example.org/a", "big.example.org", "dominant_cooldown")
	trail.RecordFailure("topic-1", "run-1", "https://x.example.org/b", "verify", 2, errors.New("HTTP 503: Service Unavailable"))
	trail.RecordDiscard("topic-1", "run-1", "https://x.example.org/b", 5, "retry budget exhausted")

	entries, err := trail.ReadRun(now, "run-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, EntryRejection, entries[0].Type)
	assert.Equal(t, "dominant_cooldown", entries[0].Reason)
	assert.Equal(t, "big.example.org", entries[0].Host)

	assert.Equal(t, EntryFailure, entries[1].Type)
	assert.Equal(t, "verify", entries[1].Stage)
	assert.Equal(t, 2, entries[1].Attempts)
	assert.Contains(t, entries[1].Error, "503")

	assert.Equal(t, EntryDiscard, entries[2].Type)
	assert.Equal(t, 5, entries[2].Attempts)
}

func TestTrail_RunsGetSeparateFiles(t *testing.T) {
	trail, now := newTestTrail(t)

	trail.RecordRejection("topic-1", "run-1", "https://a.example.org/", "a.example.org", "host_qps")
	trail.RecordRejection("topic-1", "run-2", "https://b.example.org/", "b.example.org", "host_qps")

	one, err := trail.ReadRun(now, "run-1")
	require.NoError(t, err)
	two, err := trail.ReadRun(now, "run-2")
	require.NoError(t, err)

	require.Len(t, one, 1)
	require.Len(t, two, 1)
	assert.Equal(t, "https://a.example.org/", one[0].URL)
	assert.Equal(t, "https://b.example.org/", two[0].URL)
}

func TestTrail_DisabledWritesNothing(t *testing.T) {
	dir := t.TempDir()
	trail := NewTrail(config.AuditConfig{BasePath: dir, Enabled: false}, testLogger())

	trail.RecordRejection("topic-1", "run-1", "https://a.example.org/", "a.example.org", "host_qps")

	matches, err := filepath.Glob(filepath.Join(dir, "*", "*.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}
