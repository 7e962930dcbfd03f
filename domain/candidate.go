package domain

import (
	"time"
)

// SourceType identifies where a discovery candidate came from.
type SourceType string

const (
	SourceTypeCitation  SourceType = "citation"
	SourceTypeReference SourceType = "reference"
	SourceTypeSeed      SourceType = "seed"
)

// Candidate is a discovery-frontier entry: a URL proposed for processing
// within a topic run. The planner/seeder creates candidates; the scheduler
// mutates attempt counts as it admits or defers them.
type Candidate struct {
	URL           string     `json:"url"`
	Host          string     `json:"host"`
	SourceType    SourceType `json:"source_type"`
	PriorityScore float64    `json:"priority_score"`
	TopicID       string     `json:"topic_id"`
	// Contested marks candidates whose relevance is ambiguous. The
	// contested-ratio guard uses this to keep admission from drifting
	// toward easy decisions only.
	Contested    bool      `json:"contested"`
	AttemptCount int       `json:"attempt_count"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}
