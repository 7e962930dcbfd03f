// Package frontier provides the durable priority queue of discovery
// candidates, keyed per topic+run.
package frontier

import (
	"context"
	"time"

	"citation-processor/domain"
)

// Frontier is the pending-work queue contract. Pop returns candidates in
// priority order, promoting parked (backed-off) entries whose delay has
// elapsed; it returns nil when nothing is ready.
type Frontier interface {
	// Enqueue adds candidates to the ready queue.
	Enqueue(ctx context.Context, topicID, runID string, candidates []domain.Candidate) error

	// Pop removes and returns the highest-priority ready candidate, or
	// nil if the queue is empty or everything is still parked.
	Pop(ctx context.Context, topicID, runID string) (*domain.Candidate, error)

	// Requeue parks a candidate until the delay elapses, after which Pop
	// considers it again. Guard rejections and transient failures come
	// back through here, never through an immediate retry.
	Requeue(ctx context.Context, topicID, runID string, c *domain.Candidate, delay time.Duration) error

	// Clear drops all state for a topic+run. Called at run start so
	// frontier contents and counters never leak across runs.
	Clear(ctx context.Context, topicID, runID string) error

	// Len reports ready + parked candidates.
	Len(ctx context.Context, topicID, runID string) (int, error)
}
