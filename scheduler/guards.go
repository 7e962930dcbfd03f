package scheduler

import (
	"fmt"
	"time"

	"citation-processor/config"
	"citation-processor/domain"
)

// RejectReason identifies which guard turned a candidate away. Reasons are
// stable strings: they key audit records and metrics labels.
type RejectReason string

const (
	ReasonDominantCooldown RejectReason = "dominant_cooldown"
	ReasonHostAttemptCap   RejectReason = "host_attempt_cap"
	ReasonDiversityFloor   RejectReason = "diversity_floor"
	ReasonSuccessRate      RejectReason = "host_success_rate"
	ReasonContestedRatio   RejectReason = "contested_ratio"
	ReasonHostQPS          RejectReason = "host_qps"
)

// Rejection carries the guard verdict for a denied candidate.
type Rejection struct {
	Reason RejectReason
	Detail string
}

// Guard is one admission predicate over (candidate, run counters). Guards
// run in fixed order under the RunState lock; the first rejection wins, so
// identical counter state always yields identical reasons.
type Guard struct {
	Name  string
	Check func(c *domain.Candidate, rs *RunState, now time.Time) *Rejection
}

// buildGuards assembles the ordered pipeline. The order is part of the
// contract and must not be reshuffled.
func buildGuards(cfg config.GuardConfig) []Guard {
	return []Guard{
		dominantCooldownGuard(cfg),
		hostAttemptCapGuard(cfg),
		diversityFloorGuard(cfg),
		hostSuccessRateGuard(cfg),
		contestedRatioGuard(cfg),
		hostQPSGuard(cfg),
	}
}

// dominantCooldownGuard bounds the rolling share of attempts from the
// designated heavy source. Crossing the threshold arms a timed cooldown;
// while it lasts, every candidate from that domain is rejected.
func dominantCooldownGuard(cfg config.GuardConfig) Guard {
	return Guard{
		Name: "heavy_source_cooldown",
		Check: func(c *domain.Candidate, rs *RunState, now time.Time) *Rejection {
			if cfg.DominantDomain == "" || c.Host != cfg.DominantDomain {
				return nil
			}

			if now.Before(rs.dominantCooldownUntil) {
				return &Rejection{
					Reason: ReasonDominantCooldown,
					Detail: fmt.Sprintf("cooldown active until %s", rs.dominantCooldownUntil.Format(time.RFC3339)),
				}
			}

			share := rs.recentShare(cfg.DominantDomain)
			if share > cfg.DominantShareThreshold {
				rs.dominantCooldownUntil = now.Add(cfg.DominantCooldown)
				return &Rejection{
					Reason: ReasonDominantCooldown,
					Detail: fmt.Sprintf("share %.2f exceeds %.2f, cooling down for %s", share, cfg.DominantShareThreshold, cfg.DominantCooldown),
				}
			}

			return nil
		},
	}
}

// hostAttemptCapGuard caps how often one host may be attempted per run.
// Guards see the counters as of before the current attempt, so the cap
// allows exactly HostAttemptCap attempts through.
func hostAttemptCapGuard(cfg config.GuardConfig) Guard {
	return Guard{
		Name: "host_attempt_cap",
		Check: func(c *domain.Candidate, rs *RunState, now time.Time) *Rejection {
			if rs.attemptsByHost[c.Host] >= cfg.HostAttemptCap {
				return &Rejection{
					Reason: ReasonHostAttemptCap,
					Detail: fmt.Sprintf("host %s reached attempt cap %d", c.Host, cfg.HostAttemptCap),
				}
			}
			return nil
		},
	}
}

// diversityFloorGuard keeps the dominant domain out until enough distinct
// hosts have been admitted, forcing exploration first.
func diversityFloorGuard(cfg config.GuardConfig) Guard {
	return Guard{
		Name: "diversity_floor",
		Check: func(c *domain.Candidate, rs *RunState, now time.Time) *Rejection {
			if cfg.DominantDomain == "" || c.Host != cfg.DominantDomain {
				return nil
			}
			if len(rs.admittedHosts) < cfg.DiversityFloor {
				return &Rejection{
					Reason: ReasonDiversityFloor,
					Detail: fmt.Sprintf("only %d distinct hosts admitted, floor is %d", len(rs.admittedHosts), cfg.DiversityFloor),
				}
			}
			return nil
		},
	}
}

// hostSuccessRateGuard biases against hosts whose citations keep getting
// denied: below the accept-rate floor, stop spending budget on them.
func hostSuccessRateGuard(cfg config.GuardConfig) Guard {
	return Guard{
		Name: "host_success_rate",
		Check: func(c *domain.Candidate, rs *RunState, now time.Time) *Rejection {
			rate, samples := rs.acceptRate(c.Host)
			if samples < cfg.SuccessRateMinSamples {
				return nil
			}
			if rate < cfg.SuccessRateFloor {
				return &Rejection{
					Reason: ReasonSuccessRate,
					Detail: fmt.Sprintf("host %s accept rate %.2f below floor %.2f (%d samples)", c.Host, rate, cfg.SuccessRateFloor, samples),
				}
			}
			return nil
		},
	}
}

// contestedRatioGuard requires that, after a warmup of processed admissions,
// a configured fraction of further admissions are contested candidates.
// Without it, admission drifts toward easy, unambiguous items.
func contestedRatioGuard(cfg config.GuardConfig) Guard {
	return Guard{
		Name: "contested_ratio",
		Check: func(c *domain.Candidate, rs *RunState, now time.Time) *Rejection {
			if c.Contested {
				return nil
			}
			if rs.totalAdmitted < cfg.ContestedWarmup {
				return nil
			}

			// Would admitting this non-contested candidate starve the
			// contested quota?
			wouldBe := rs.admittedAfterWarmup + 1
			required := cfg.ContestedRatio * float64(wouldBe)
			if float64(rs.contestedAfterWarmup) < required {
				return &Rejection{
					Reason: ReasonContestedRatio,
					Detail: fmt.Sprintf("contested %d of %d post-warmup admissions, ratio %.2f required", rs.contestedAfterWarmup, wouldBe, cfg.ContestedRatio),
				}
			}
			return nil
		},
	}
}

// hostQPSGuard enforces a minimum interval between admitted requests to one
// host. Rejected candidates come back via backoff, never a busy loop.
func hostQPSGuard(cfg config.GuardConfig) Guard {
	return Guard{
		Name: "host_qps",
		Check: func(c *domain.Candidate, rs *RunState, now time.Time) *Rejection {
			last, ok := rs.lastAdmitAt[c.Host]
			if !ok {
				return nil
			}
			if elapsed := now.Sub(last); elapsed < cfg.HostQPSInterval {
				return &Rejection{
					Reason: ReasonHostQPS,
					Detail: fmt.Sprintf("only %s since last admitted request to %s, minimum %s", elapsed, c.Host, cfg.HostQPSInterval),
				}
			}
			return nil
		},
	}
}
