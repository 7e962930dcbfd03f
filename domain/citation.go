package domain

import (
	"fmt"
	"time"
)

// VerificationStatus is the lifecycle of the cheap existence check.
type VerificationStatus string

const (
	VerificationPending VerificationStatus = "pending"
	// VerificationPendingInternal marks same-site links that are deferred
	// behind external citations.
	VerificationPendingInternal VerificationStatus = "pending_internal"
	VerificationVerifying       VerificationStatus = "verifying"
	VerificationVerified        VerificationStatus = "verified"
	// VerificationFailed is retryable after a cooldown, not terminal.
	VerificationFailed VerificationStatus = "failed"
)

// CanTransitionTo reports whether moving to next is a legal verification
// transition.
func (s VerificationStatus) CanTransitionTo(next VerificationStatus) bool {
	switch s {
	case VerificationPending, VerificationPendingInternal:
		return next == VerificationVerifying
	case VerificationVerifying:
		return next == VerificationVerified || next == VerificationFailed
	case VerificationFailed:
		// Failure is retryable after cooldown.
		return next == VerificationVerifying
	case VerificationVerified:
		return false
	default:
		return false
	}
}

// Transition returns the next status or an error for illegal moves.
func (s VerificationStatus) Transition(next VerificationStatus) (VerificationStatus, error) {
	if !s.CanTransitionTo(next) {
		return s, fmt.Errorf("%w: verification %s -> %s", ErrIllegalTransition, s, next)
	}
	return next, nil
}

// ScanStatus is the lifecycle of content scanning and relevance decision.
// It only advances forward; Reset is the single sanctioned way back.
type ScanStatus string

const (
	ScanNotScanned ScanStatus = "not_scanned"
	ScanScanning   ScanStatus = "scanning"
	ScanScanned    ScanStatus = "scanned"
	ScanDenied     ScanStatus = "scanned_denied"
)

func (s ScanStatus) rank() int {
	switch s {
	case ScanNotScanned:
		return 0
	case ScanScanning:
		return 1
	case ScanScanned, ScanDenied:
		return 2
	default:
		return -1
	}
}

// Terminal reports whether the scan lifecycle has concluded.
func (s ScanStatus) Terminal() bool {
	return s == ScanScanned || s == ScanDenied
}

// CanTransitionTo enforces forward-only movement through the scan lifecycle.
func (s ScanStatus) CanTransitionTo(next ScanStatus) bool {
	if s.rank() < 0 || next.rank() < 0 {
		return false
	}
	if s.Terminal() {
		return false
	}
	return next.rank() == s.rank()+1
}

// Transition returns the next status or an error for regressions and skips.
func (s ScanStatus) Transition(next ScanStatus) (ScanStatus, error) {
	if !s.CanTransitionTo(next) {
		return s, fmt.Errorf("%w: scan %s -> %s", ErrIllegalTransition, s, next)
	}
	return next, nil
}

// RelevanceDecision is the final accept/deny outcome of a scan cycle.
// Empty means no decision has been made yet.
type RelevanceDecision string

const (
	DecisionNone   RelevanceDecision = ""
	DecisionSaved  RelevanceDecision = "saved"
	DecisionDenied RelevanceDecision = "denied"
)

// Citation is an external reference discovered inside a monitored page,
// tracked through its own verify/scan lifecycle. Identity within a page is
// keyed by canonicalized URL, never by ordinal position.
type Citation struct {
	ID                 string             `db:"id"`
	PageID             string             `db:"page_id"`
	URL                string             `db:"url"`
	CanonicalURL       string             `db:"canonical_url"`
	Title              string             `db:"title"`
	VerificationStatus VerificationStatus `db:"verification_status"`
	ScanStatus         ScanStatus         `db:"scan_status"`
	RelevanceDecision  RelevanceDecision  `db:"relevance_decision"`
	AIPriorityScore    float64            `db:"ai_priority_score"`
	ContentText        string             `db:"content_text"`
	SavedContentID     string             `db:"saved_content_id"`
	LastScannedAt      *time.Time         `db:"last_scanned_at"`
	// LastVerifiedAt records when the verification status last moved. The
	// failed-verification retry cooldown reads it.
	LastVerifiedAt *time.Time `db:"last_verified_at"`
	ErrorMessage   string     `db:"error_message"`
	// Position is the ordinal within the parent page. Display metadata
	// only; never used as an identity or dedup key.
	Position  int       `db:"position"`
	CreatedAt time.Time `db:"created_at"`
}

// External reports whether the citation leaves the parent page's site.
func (c *Citation) External(parentHost string) bool {
	return HostOf(c.URL) != parentHost
}
