// ABOUTME: This file implements the frontier admission scheduler with its ordered guard pipeline
// ABOUTME: Guard evaluation and counter updates execute atomically per run under one lock
package scheduler

import (
	"log/slog"
	"time"

	"citation-processor/config"
	"citation-processor/domain"
	"citation-processor/metrics"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Rejection *Rejection
}

// GuardedScheduler decides whether dequeued candidates may proceed. One
// instance owns one RunState; separate runs get separate schedulers.
type GuardedScheduler struct {
	cfg    config.GuardConfig
	state  *RunState
	guards []Guard
	logger *slog.Logger

	// now is injected for deterministic guard tests.
	now func() time.Time
}

// New creates a scheduler for a single topic+run with freshly reset
// counters.
func New(cfg config.GuardConfig, topicID, runID string, logger *slog.Logger) *GuardedScheduler {
	now := time.Now
	return &GuardedScheduler{
		cfg:    cfg,
		state:  NewRunState(topicID, runID, cfg.DominantShareWindow, now()),
		guards: buildGuards(cfg),
		logger: logger,
		now:    now,
	}
}

// State exposes the run counters handle (outcome recording, snapshots).
func (s *GuardedScheduler) State() *RunState {
	return s.state
}

// Admit evaluates the guard pipeline for one candidate. The attempt record,
// every guard check, and the allow-side counter updates happen under the
// RunState lock, so no decision ever sees stale counters.
func (s *GuardedScheduler) Admit(c *domain.Candidate) Decision {
	now := s.now()

	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	for _, g := range s.guards {
		if rej := g.Check(c, s.state, now); rej != nil {
			s.state.recordAttempt(c.Host)
			s.state.rejectedByReason[rej.Reason]++
			metrics.CandidatesRejected.WithLabelValues(string(rej.Reason)).Inc()

			s.logger.Debug("candidate rejected",
				"topic_id", s.state.TopicID,
				"run_id", s.state.RunID,
				"url", c.URL,
				"host", c.Host,
				"guard", g.Name,
				"reason", rej.Reason,
				"detail", rej.Detail)

			return Decision{Rejection: rej}
		}
	}

	s.state.recordAttempt(c.Host)
	s.state.recordAdmission(c.Host, c.Contested, s.cfg.ContestedWarmup, now)
	metrics.CandidatesAdmitted.Inc()

	s.logger.Debug("candidate admitted",
		"topic_id", s.state.TopicID,
		"run_id", s.state.RunID,
		"url", c.URL,
		"host", c.Host,
		"contested", c.Contested)

	return Decision{Allowed: true}
}
