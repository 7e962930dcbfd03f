// ABOUTME: This file implements per-host politeness limiting with adaptive intervals
// ABOUTME: Hosts that keep failing get progressively wider spacing between requests
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// HostMetrics reports the observed behaviour of one host.
type HostMetrics struct {
	TotalRequests   int64         `json:"total_requests"`
	SuccessCount    int64         `json:"success_count"`
	FailureCount    int64         `json:"failure_count"`
	SuccessRate     float64       `json:"success_rate"`
	LastRequestTime time.Time     `json:"last_request_time"`
	CurrentInterval time.Duration `json:"current_interval"`
}

// hostState tracks spacing and outcome counts for a single host.
type hostState struct {
	mu sync.Mutex

	lastRequest  time.Time
	interval     time.Duration
	baseInterval time.Duration

	totalRequests int64
	successCount  int64
	failureCount  int64
}

// HostLimiter spaces outbound requests per host. Fetch paths call Wait
// before touching a host; the selection query consults Restricted to skip
// hosts whose interval has not elapsed instead of blocking on them.
type HostLimiter struct {
	mu           sync.RWMutex
	hosts        map[string]*hostState
	baseInterval time.Duration
	logger       *slog.Logger

	// Adaptive parameters: failures widen the interval, sustained success
	// shrinks it back toward the base.
	adaptationFactor float64
	maxInterval      time.Duration
	successThreshold float64
	failureThreshold float64
	adaptationWindow int64

	nowFn func() time.Time
}

// NewHostLimiter creates a limiter with the given politeness floor.
func NewHostLimiter(minInterval time.Duration, logger *slog.Logger) (*HostLimiter, error) {
	if minInterval <= 0 {
		return nil, errors.New("minimum host interval must be positive")
	}

	return &HostLimiter{
		hosts:        make(map[string]*hostState),
		baseInterval: minInterval,
		logger:       logger,

		adaptationFactor: 0.5,
		maxInterval:      minInterval * 10,
		successThreshold: 0.9,
		failureThreshold: 0.5,
		adaptationWindow: 5,

		nowFn: time.Now,
	}, nil
}

// Restricted reports whether a request to host would violate its current
// interval. It never blocks.
func (hl *HostLimiter) Restricted(host string) bool {
	s := hl.state(host)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastRequest.IsZero() {
		return false
	}
	return hl.nowFn().Sub(s.lastRequest) < s.interval
}

// RestrictedHosts lists every host currently inside its interval, for
// exclusion in selection queries.
func (hl *HostLimiter) RestrictedHosts() []string {
	hl.mu.RLock()
	defer hl.mu.RUnlock()

	now := hl.nowFn()
	var restricted []string
	for host, s := range hl.hosts {
		s.mu.Lock()
		if !s.lastRequest.IsZero() && now.Sub(s.lastRequest) < s.interval {
			restricted = append(restricted, host)
		}
		s.mu.Unlock()
	}
	return restricted
}

// Wait blocks until host may be contacted again or the context is
// cancelled, then claims the slot.
func (hl *HostLimiter) Wait(ctx context.Context, host string) error {
	s := hl.state(host)

	s.mu.Lock()
	now := hl.nowFn()
	wait := s.interval - now.Sub(s.lastRequest)
	if s.lastRequest.IsZero() || wait <= 0 {
		s.lastRequest = now
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		s.mu.Lock()
		s.lastRequest = hl.nowFn()
		s.mu.Unlock()
		return nil
	case <-ctx.Done():
		return fmt.Errorf("host wait cancelled: %w", ctx.Err())
	}
}

// RecordSuccess feeds a successful request into the adaptive interval.
func (hl *HostLimiter) RecordSuccess(host string) {
	hl.record(host, true)
}

// RecordFailure feeds a failed request into the adaptive interval.
func (hl *HostLimiter) RecordFailure(host string) {
	hl.record(host, false)
}

func (hl *HostLimiter) record(host string, success bool) {
	s := hl.state(host)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalRequests++
	if success {
		s.successCount++
	} else {
		s.failureCount++
	}

	if s.totalRequests%hl.adaptationWindow == 0 {
		hl.adapt(host, s)
	}
}

// adapt widens the interval for misbehaving hosts and relaxes it back when
// they recover. Caller holds s.mu.
func (hl *HostLimiter) adapt(host string, s *hostState) {
	rate := float64(s.successCount) / float64(s.totalRequests)
	old := s.interval

	switch {
	case rate < hl.failureThreshold:
		s.interval += time.Duration(float64(s.interval) * hl.adaptationFactor)
		if s.interval > hl.maxInterval {
			s.interval = hl.maxInterval
		}
	case rate >= hl.successThreshold:
		s.interval -= time.Duration(float64(s.interval) * hl.adaptationFactor)
		if s.interval < s.baseInterval {
			s.interval = s.baseInterval
		}
	}

	if s.interval != old {
		hl.logger.Info("adapted host interval",
			"host", host,
			"old_interval", old,
			"new_interval", s.interval,
			"success_rate", rate,
			"total_requests", s.totalRequests)
	}
}

// Metrics returns a copy of the counters for one host, or nil if the host
// has never been seen.
func (hl *HostLimiter) Metrics(host string) *HostMetrics {
	hl.mu.RLock()
	s, ok := hl.hosts[host]
	hl.mu.RUnlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := &HostMetrics{
		TotalRequests:   s.totalRequests,
		SuccessCount:    s.successCount,
		FailureCount:    s.failureCount,
		LastRequestTime: s.lastRequest,
		CurrentInterval: s.interval,
	}
	if s.totalRequests > 0 {
		m.SuccessRate = float64(s.successCount) / float64(s.totalRequests)
	}
	return m
}

// Cleanup drops hosts idle for longer than the threshold.
func (hl *HostLimiter) Cleanup(idleThreshold time.Duration) {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	now := hl.nowFn()
	for host, s := range hl.hosts {
		s.mu.Lock()
		idle := now.Sub(s.lastRequest)
		s.mu.Unlock()

		if idle > idleThreshold {
			delete(hl.hosts, host)
			hl.logger.Debug("cleaned up idle host limiter", "host", host)
		}
	}
}

func (hl *HostLimiter) state(host string) *hostState {
	hl.mu.RLock()
	s, ok := hl.hosts[host]
	hl.mu.RUnlock()
	if ok {
		return s
	}

	hl.mu.Lock()
	defer hl.mu.Unlock()

	if s, ok := hl.hosts[host]; ok {
		return s
	}

	s = &hostState{
		interval:     hl.baseInterval,
		baseInterval: hl.baseInterval,
	}
	hl.hosts[host] = s
	return s
}
