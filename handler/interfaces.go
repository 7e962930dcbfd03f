package handler

import "context"

// Reprocessor re-queues high-score denied citations once their cooldown has
// elapsed.
type Reprocessor interface {
	ReprocessDenied(ctx context.Context, topicID string) (int, error)
}

// Pinger checks a dependency's liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}
