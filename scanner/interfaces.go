package scanner

import (
	"context"

	"citation-processor/connector"
	"citation-processor/extract"
	"citation-processor/scorer"
)

// Fetcher is the outbound HTTP surface the scanner needs.
type Fetcher interface {
	Probe(ctx context.Context, url string) error
	FetchPage(ctx context.Context, url string) (*connector.Page, error)
}

// ContentExtractor runs the extraction cascade.
type ContentExtractor interface {
	Extract(raw string) (*extract.Result, error)
}

// RelevanceScorer evaluates extracted citation text.
type RelevanceScorer interface {
	Score(ctx context.Context, text, title, topicContext string) (*scorer.Verdict, error)
}

// HostGate reports hosts that must be skipped in this selection cycle.
type HostGate interface {
	RestrictedHosts() []string
}
