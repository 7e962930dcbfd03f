// ABOUTME: Domain-level sentinel errors for the citation processor
// ABOUTME: These errors are used with errors.Is() for error type checking
package domain

import "errors"

// Processing failure taxonomy. The orchestration loop branches on these with
// errors.Is; each maps to a distinct recovery policy.
var (
	// ErrNetwork indicates a fetch/verify failure. Retried with backoff up
	// to a bounded count, then the citation is marked failed.
	ErrNetwork = errors.New("network failure")

	// ErrExtractionInsufficient indicates extracted text fell below the
	// minimum length floor. Inconclusive: one alternate-extractor retry,
	// then give up without denying relevance.
	ErrExtractionInsufficient = errors.New("extracted content below minimum length")

	// ErrScoringUnavailable indicates the relevance scorer call failed.
	// The citation stays not_scanned and is never falsely denied.
	ErrScoringUnavailable = errors.New("relevance scorer unavailable")

	// ErrSave indicates the persistence write failed. The citation must not
	// be marked saved until the write is confirmed durable.
	ErrSave = errors.New("content save failed")
)

// Lifecycle errors.
var (
	// ErrIllegalTransition indicates a status change that the lifecycle
	// does not permit (e.g. a scan status regression without reset).
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrDecisionAlreadyMade indicates a second relevance decision was
	// attempted within one scan cycle.
	ErrDecisionAlreadyMade = errors.New("relevance decision already recorded for this scan cycle")
)

// Lookup errors.
var (
	ErrCitationNotFound = errors.New("citation not found")
	ErrPageNotFound     = errors.New("monitored page not found")
	ErrNotAbsoluteURL   = errors.New("URL is not absolute")
)
