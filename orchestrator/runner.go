// ABOUTME: This file implements the single-consumer run loop
// ABOUTME: Pop, admit, process, requeue-with-backoff; discard past the retry budget
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"citation-processor/audit"
	"citation-processor/config"
	"citation-processor/domain"
	"citation-processor/frontier"
	"citation-processor/metrics"
	"citation-processor/retry"
	"citation-processor/scheduler"
)

// Runner is the single consumer for one topic+run. It drains the frontier
// through the guard pipeline and the citation state machine, re-enqueuing
// rejected and transiently failed candidates with exponential backoff.
type Runner struct {
	topicID string
	runID   string

	frontier  frontier.Frontier
	sched     *scheduler.GuardedScheduler
	processor Processor
	trail     *audit.Trail
	guards    config.GuardConfig
	idle      time.Duration
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewRunner assembles a run loop. Start must be called to begin consuming.
func NewRunner(
	topicID, runID string,
	fr frontier.Frontier,
	sched *scheduler.GuardedScheduler,
	processor Processor,
	trail *audit.Trail,
	guards config.GuardConfig,
	idle time.Duration,
	logger *slog.Logger,
) *Runner {
	if idle <= 0 {
		idle = time.Second
	}
	return &Runner{
		topicID:   topicID,
		runID:     runID,
		frontier:  fr,
		sched:     sched,
		processor: processor,
		trail:     trail,
		guards:    guards,
		idle:      idle,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Start launches the consume loop in its own goroutine.
func (r *Runner) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	go func() {
		defer close(r.done)
		r.loop(runCtx)
	}()

	r.logger.Info("run started", "topic_id", r.topicID, "run_id", r.runID)
}

// Stop cancels the loop and waits for it to drain.
func (r *Runner) Stop() {
	r.once.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
		<-r.done
		r.logger.Info("run stopped", "topic_id", r.topicID, "run_id", r.runID)
	})
}

// TopicID returns the topic this run consumes for.
func (r *Runner) TopicID() string { return r.topicID }

// Snapshot exposes the run's admission counters.
func (r *Runner) Snapshot() scheduler.Snapshot {
	return r.sched.State().Snapshot()
}

func (r *Runner) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		worked, err := r.step(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.Error("run cycle failed",
				"topic_id", r.topicID,
				"run_id", r.runID,
				"error", err)
		}
		if !worked {
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.idle):
			}
		}
	}
}

// step consumes at most one candidate. It reports false when the frontier
// had nothing ready, telling the loop to idle.
func (r *Runner) step(ctx context.Context) (bool, error) {
	c, err := r.frontier.Pop(ctx, r.topicID, r.runID)
	if err != nil {
		return false, err
	}
	if c == nil {
		return false, nil
	}

	decision := r.sched.Admit(c)
	if !decision.Allowed {
		r.trail.RecordRejection(r.topicID, r.runID, c.URL, c.Host, string(decision.Rejection.Reason))
		r.requeue(ctx, c, string(decision.Rejection.Reason))
		return true, nil
	}

	outcome, err := r.processor.Process(ctx, c)
	if err != nil {
		r.trail.RecordFailure(r.topicID, r.runID, c.URL, "process", c.AttemptCount, err)
		r.requeue(ctx, c, "processing failure")
		return true, err
	}

	if outcome.Decided {
		r.sched.State().RecordOutcome(outcome.Host, outcome.Accepted)
	}

	if outcome.Done {
		return true, nil
	}

	if outcome.Decided {
		// A citation reached its decision, so the page made real progress;
		// the budget resets and the next citation goes immediately.
		c.AttemptCount = 0
		if err := r.frontier.Requeue(ctx, r.topicID, r.runID, c, 0); err != nil {
			return true, err
		}
		return true, nil
	}

	// Nothing was decided and the page is not done: a stall (throttled host,
	// cooling citations). Backoff burns the budget so a page that never
	// advances is eventually discarded instead of cycling forever.
	r.requeue(ctx, c, "no progress")
	return true, nil
}

// requeue parks a rejected or failed candidate with exponential backoff, or
// discards it once the retry budget is spent.
func (r *Runner) requeue(ctx context.Context, c *domain.Candidate, reason string) {
	if c.AttemptCount >= r.guards.RetryBudget {
		metrics.CandidatesDiscarded.Inc()
		r.trail.RecordDiscard(r.topicID, r.runID, c.URL, c.AttemptCount, reason)
		r.logger.Warn("candidate discarded",
			"topic_id", r.topicID,
			"run_id", r.runID,
			"url", c.URL,
			"attempts", c.AttemptCount,
			"reason", reason)
		return
	}

	delay := retry.BackoffDelay(c.AttemptCount, r.guards.RequeueBaseDelay, r.guards.RequeueMaxDelay)
	c.AttemptCount++
	if err := r.frontier.Requeue(ctx, r.topicID, r.runID, c, delay); err != nil {
		r.logger.Error("failed to requeue candidate",
			"topic_id", r.topicID,
			"run_id", r.runID,
			"url", c.URL,
			"error", err)
	}
}
