package frontier

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"citation-processor/domain"
	"citation-processor/metrics"
)

// MemoryFrontier is an in-process Frontier for tests and single-node runs.
type MemoryFrontier struct {
	mu     sync.Mutex
	queues map[string]*memQueue

	// nowFn is injected for deterministic backoff tests.
	nowFn func() time.Time
}

type memQueue struct {
	ready  candidateHeap
	parked []parkedCandidate
}

type parkedCandidate struct {
	candidate domain.Candidate
	readyAt   time.Time
}

// NewMemoryFrontier creates an empty in-memory frontier.
func NewMemoryFrontier() *MemoryFrontier {
	return &MemoryFrontier{
		queues: make(map[string]*memQueue),
		nowFn:  time.Now,
	}
}

func queueKey(topicID, runID string) string {
	return topicID + "/" + runID
}

func (f *MemoryFrontier) queue(topicID, runID string) *memQueue {
	key := queueKey(topicID, runID)
	q := f.queues[key]
	if q == nil {
		q = &memQueue{}
		f.queues[key] = q
	}
	return q
}

func (f *MemoryFrontier) Enqueue(ctx context.Context, topicID, runID string, candidates []domain.Candidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	q := f.queue(topicID, runID)
	for _, c := range candidates {
		heap.Push(&q.ready, c)
	}
	f.setDepth(topicID, q)
	return nil
}

func (f *MemoryFrontier) Pop(ctx context.Context, topicID, runID string) (*domain.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q := f.queue(topicID, runID)
	f.promote(q)

	if q.ready.Len() == 0 {
		return nil, nil
	}
	c := heap.Pop(&q.ready).(domain.Candidate)
	f.setDepth(topicID, q)
	return &c, nil
}

func (f *MemoryFrontier) Requeue(ctx context.Context, topicID, runID string, c *domain.Candidate, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	q := f.queue(topicID, runID)
	q.parked = append(q.parked, parkedCandidate{
		candidate: *c,
		readyAt:   f.nowFn().Add(delay),
	})
	f.setDepth(topicID, q)
	return nil
}

func (f *MemoryFrontier) Clear(ctx context.Context, topicID, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.queues, queueKey(topicID, runID))
	metrics.FrontierDepth.WithLabelValues(topicID).Set(0)
	return nil
}

func (f *MemoryFrontier) Len(ctx context.Context, topicID, runID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q := f.queue(topicID, runID)
	return q.ready.Len() + len(q.parked), nil
}

// promote moves parked candidates whose delay has elapsed back into the
// ready heap. Caller holds mu.
func (f *MemoryFrontier) promote(q *memQueue) {
	now := f.nowFn()
	remaining := q.parked[:0]
	for _, p := range q.parked {
		if !p.readyAt.After(now) {
			heap.Push(&q.ready, p.candidate)
		} else {
			remaining = append(remaining, p)
		}
	}
	q.parked = remaining
}

func (f *MemoryFrontier) setDepth(topicID string, q *memQueue) {
	metrics.FrontierDepth.WithLabelValues(topicID).Set(float64(q.ready.Len() + len(q.parked)))
}

// candidateHeap orders by priority score, highest first; ties go to the
// earlier-enqueued candidate.
type candidateHeap []domain.Candidate

func (h candidateHeap) Len() int { return len(h) }

func (h candidateHeap) Less(i, j int) bool {
	if h[i].PriorityScore != h[j].PriorityScore {
		return h[i].PriorityScore > h[j].PriorityScore
	}
	return h[i].EnqueuedAt.Before(h[j].EnqueuedAt)
}

func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x any) {
	*h = append(*h, x.(domain.Candidate))
}

func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}
