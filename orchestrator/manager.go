package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"citation-processor/audit"
	"citation-processor/config"
	"citation-processor/frontier"
	"citation-processor/scheduler"
)

var (
	// ErrRunActive is returned when a run ID is already consuming.
	ErrRunActive = errors.New("run already active")

	// ErrRunNotFound is returned for unknown run IDs.
	ErrRunNotFound = errors.New("run not found")
)

// Manager owns the live runners. Each topic run gets its own scheduler and
// RunState; runs for different topics proceed fully concurrently.
type Manager struct {
	frontier  frontier.Frontier
	processor Processor
	trail     *audit.Trail
	guards    config.GuardConfig
	idle      time.Duration
	logger    *slog.Logger

	mu   sync.Mutex
	runs map[string]*Runner
}

// NewManager creates a run manager.
func NewManager(
	fr frontier.Frontier,
	processor Processor,
	trail *audit.Trail,
	guards config.GuardConfig,
	idle time.Duration,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		frontier:  fr,
		processor: processor,
		trail:     trail,
		guards:    guards,
		idle:      idle,
		logger:    logger,
		runs:      make(map[string]*Runner),
	}
}

// StartRun clears any frontier leftovers for the topic+run, creates a fresh
// scheduler with zeroed counters, and begins consuming. Counters never leak
// across runs.
func (m *Manager) StartRun(ctx context.Context, topicID, runID string) (*Runner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runs[runID]; exists {
		return nil, ErrRunActive
	}

	if err := m.frontier.Clear(ctx, topicID, runID); err != nil {
		return nil, err
	}

	sched := scheduler.New(m.guards, topicID, runID, m.logger)
	runner := NewRunner(topicID, runID, m.frontier, sched, m.processor,
		m.trail, m.guards, m.idle, m.logger)
	runner.Start(ctx)

	m.runs[runID] = runner
	return runner, nil
}

// StopRun stops a runner and forgets it.
func (m *Manager) StopRun(runID string) error {
	m.mu.Lock()
	runner, ok := m.runs[runID]
	if ok {
		delete(m.runs, runID)
	}
	m.mu.Unlock()

	if !ok {
		return ErrRunNotFound
	}
	runner.Stop()
	return nil
}

// Snapshot returns the admission counters for a live run.
func (m *Manager) Snapshot(runID string) (scheduler.Snapshot, error) {
	m.mu.Lock()
	runner, ok := m.runs[runID]
	m.mu.Unlock()

	if !ok {
		return scheduler.Snapshot{}, ErrRunNotFound
	}
	return runner.Snapshot(), nil
}

// StopAll stops every live runner. Used during shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	runners := make([]*Runner, 0, len(m.runs))
	for _, r := range m.runs {
		runners = append(runners, r)
	}
	m.runs = make(map[string]*Runner)
	m.mu.Unlock()

	for _, r := range runners {
		r.Stop()
	}
}
