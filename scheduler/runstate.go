package scheduler

import (
	"sync"
	"time"
)

// RunState holds the mutable admission counters for exactly one topic+run.
// It is owned by a single GuardedScheduler instance and passed by handle;
// concurrent runs for different topics each get their own RunState, never a
// shared global. All reads and writes happen under mu so a guard pipeline
// evaluation and its counter updates form one atomic unit.
type RunState struct {
	mu sync.Mutex

	TopicID   string
	RunID     string
	StartedAt time.Time

	attemptsByHost map[string]int
	admittedHosts  map[string]struct{}
	lastAdmitAt    map[string]time.Time
	outcomes       map[string]*hostOutcome

	// recentHosts is a fixed-size ring over the hosts of the most recent
	// attempts; the heavy-source guard computes its rolling share from it.
	recentHosts []string
	ringNext    int
	ringFilled  int

	totalAttempts    int
	totalAdmitted    int
	contestedAfterWarmup int
	admittedAfterWarmup  int

	dominantCooldownUntil time.Time

	rejectedByReason map[RejectReason]int
}

type hostOutcome struct {
	accepted int
	total    int
}

// NewRunState creates a fresh, zeroed RunState for one topic+run. Counters
// always start empty at run start.
func NewRunState(topicID, runID string, shareWindow int, now time.Time) *RunState {
	if shareWindow <= 0 {
		shareWindow = 1
	}
	return &RunState{
		TopicID:          topicID,
		RunID:            runID,
		StartedAt:        now,
		attemptsByHost:   make(map[string]int),
		admittedHosts:    make(map[string]struct{}),
		lastAdmitAt:      make(map[string]time.Time),
		outcomes:         make(map[string]*hostOutcome),
		recentHosts:      make([]string, shareWindow),
		rejectedByReason: make(map[RejectReason]int),
	}
}

// recordAttempt registers a dequeued candidate's host once the guards have
// ruled. Rejected attempts count toward the rolling share too; the heavy
// source keeps its window pressure while it is being turned away.
// Caller holds mu.
func (rs *RunState) recordAttempt(host string) {
	rs.totalAttempts++
	rs.attemptsByHost[host]++
	rs.recentHosts[rs.ringNext] = host
	rs.ringNext = (rs.ringNext + 1) % len(rs.recentHosts)
	if rs.ringFilled < len(rs.recentHosts) {
		rs.ringFilled++
	}
}

// recentShare returns the fraction of ring entries matching host.
// Caller holds mu.
func (rs *RunState) recentShare(host string) float64 {
	if rs.ringFilled == 0 {
		return 0
	}
	matches := 0
	for i := 0; i < rs.ringFilled; i++ {
		if rs.recentHosts[i] == host {
			matches++
		}
	}
	return float64(matches) / float64(rs.ringFilled)
}

// recordAdmission updates the allow-side counters. Caller holds mu.
func (rs *RunState) recordAdmission(host string, contested bool, warmup int, now time.Time) {
	rs.totalAdmitted++
	rs.admittedHosts[host] = struct{}{}
	rs.lastAdmitAt[host] = now
	if rs.totalAdmitted > warmup {
		rs.admittedAfterWarmup++
		if contested {
			rs.contestedAfterWarmup++
		}
	}
}

// RecordOutcome feeds a finalize result back into the host accept-rate the
// success-rate guard reads.
func (rs *RunState) RecordOutcome(host string, accepted bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	o := rs.outcomes[host]
	if o == nil {
		o = &hostOutcome{}
		rs.outcomes[host] = o
	}
	o.total++
	if accepted {
		o.accepted++
	}
}

// acceptRate returns (rate, samples) for a host. Caller holds mu.
func (rs *RunState) acceptRate(host string) (float64, int) {
	o := rs.outcomes[host]
	if o == nil || o.total == 0 {
		return 0, 0
	}
	return float64(o.accepted) / float64(o.total), o.total
}

// Snapshot is an immutable view of the counters for stats reporting.
type Snapshot struct {
	TopicID          string                `json:"topic_id"`
	RunID            string                `json:"run_id"`
	StartedAt        time.Time             `json:"started_at"`
	TotalAttempts    int                   `json:"total_attempts"`
	TotalAdmitted    int                   `json:"total_admitted"`
	DistinctHosts    int                   `json:"distinct_hosts"`
	AttemptsByHost   map[string]int        `json:"attempts_by_host"`
	RejectedByReason map[RejectReason]int  `json:"rejected_by_reason"`
	DominantCooldown *time.Time            `json:"dominant_cooldown_until,omitempty"`
}

// Snapshot returns a copy of the current counters.
func (rs *RunState) Snapshot() Snapshot {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	attempts := make(map[string]int, len(rs.attemptsByHost))
	for h, n := range rs.attemptsByHost {
		attempts[h] = n
	}
	rejected := make(map[RejectReason]int, len(rs.rejectedByReason))
	for r, n := range rs.rejectedByReason {
		rejected[r] = n
	}

	snap := Snapshot{
		TopicID:          rs.TopicID,
		RunID:            rs.RunID,
		StartedAt:        rs.StartedAt,
		TotalAttempts:    rs.totalAttempts,
		TotalAdmitted:    rs.totalAdmitted,
		DistinctHosts:    len(rs.admittedHosts),
		AttemptsByHost:   attempts,
		RejectedByReason: rejected,
	}
	if !rs.dominantCooldownUntil.IsZero() {
		until := rs.dominantCooldownUntil
		snap.DominantCooldown = &until
	}
	return snap
}
