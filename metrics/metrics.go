// Package metrics provides Prometheus metrics for the citation processor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CandidatesAdmitted counts candidates allowed through the guard
	// pipeline.
	CandidatesAdmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "citation_processor",
			Name:      "candidates_admitted_total",
			Help:      "Total number of candidates admitted by the scheduler",
		},
	)

	// CandidatesRejected counts guard rejections by reason.
	CandidatesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "citation_processor",
			Name:      "candidates_rejected_total",
			Help:      "Total number of candidates rejected, by guard reason",
		},
		[]string{"reason"},
	)

	// CandidatesDiscarded counts candidates dropped after exhausting their
	// retry budget.
	CandidatesDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "citation_processor",
			Name:      "candidates_discarded_total",
			Help:      "Total number of candidates discarded after retry budget exhaustion",
		},
	)

	// CitationsProcessed counts finalized citations by decision.
	CitationsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "citation_processor",
			Name:      "citations_processed_total",
			Help:      "Total number of citations finalized, by decision",
		},
		[]string{"decision"},
	)

	// ProcessingFailures counts pipeline failures by stage.
	ProcessingFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "citation_processor",
			Name:      "processing_failures_total",
			Help:      "Total number of processing failures, by stage",
		},
		[]string{"stage"},
	)

	// FetchDuration measures source fetch latency.
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "citation_processor",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of source fetches in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// ContentSaved counts content records written by the persistence sink.
	ContentSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "citation_processor",
			Name:      "content_saved_total",
			Help:      "Content sink writes by outcome: saved, reused, error",
		},
		[]string{"outcome"},
	)

	// FrontierDepth tracks the ready-queue depth per topic.
	FrontierDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "citation_processor",
			Name:      "frontier_depth",
			Help:      "Number of candidates waiting in the frontier",
		},
		[]string{"topic_id"},
	)
)
