package domain

import (
	"fmt"
	"time"
)

// PageStatus is the monitored page lifecycle.
type PageStatus string

const (
	PagePending   PageStatus = "pending"
	PageScanning  PageStatus = "scanning"
	PageCompleted PageStatus = "completed"
	PageError     PageStatus = "error"
)

// CanTransitionTo reports whether moving to next is legal for a page.
func (s PageStatus) CanTransitionTo(next PageStatus) bool {
	switch s {
	case PagePending:
		return next == PageScanning || next == PageError
	case PageScanning:
		return next == PageCompleted || next == PageError
	case PageError:
		return next == PageScanning
	case PageCompleted:
		return false
	default:
		return false
	}
}

// Transition returns the next status or an error for illegal moves.
func (s PageStatus) Transition(next PageStatus) (PageStatus, error) {
	if !s.CanTransitionTo(next) {
		return s, fmt.Errorf("%w: page %s -> %s", ErrIllegalTransition, s, next)
	}
	return next, nil
}

// MonitoredPage is a source page whose citations this service processes.
// It reaches completed only once every child citation has a terminal scan
// status.
type MonitoredPage struct {
	ID                 string     `db:"id"`
	TopicID            string     `db:"topic_id"`
	SourceURL          string     `db:"source_url"`
	Status             PageStatus `db:"status"`
	ContentScanned     bool       `db:"content_scanned"`
	CitationsExtracted bool       `db:"citations_extracted"`
	CitationCount      int        `db:"citation_count"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
}
