// ABOUTME: This file implements the Redis-backed frontier using sorted sets
// ABOUTME: Ready candidates are scored by priority, parked ones by their ready-at time
package frontier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"citation-processor/domain"
	"citation-processor/metrics"
)

// RedisFrontier stores each topic+run frontier in two sorted sets: a ready
// set scored by priority and a parked set scored by the unix time at which
// the entry becomes eligible again. Members are JSON-encoded candidates, so
// a requeued candidate with an incremented attempt count is a new member.
type RedisFrontier struct {
	client *redis.Client
	logger *slog.Logger

	// nowFn is injected for deterministic backoff tests.
	nowFn func() time.Time
}

// NewRedisFrontier creates a frontier backed by the given Redis client.
func NewRedisFrontier(client *redis.Client, logger *slog.Logger) *RedisFrontier {
	return &RedisFrontier{
		client: client,
		logger: logger,
		nowFn:  time.Now,
	}
}

func readyKey(topicID, runID string) string {
	return fmt.Sprintf("frontier:%s:%s:ready", topicID, runID)
}

func parkedKey(topicID, runID string) string {
	return fmt.Sprintf("frontier:%s:%s:parked", topicID, runID)
}

func (f *RedisFrontier) Enqueue(ctx context.Context, topicID, runID string, candidates []domain.Candidate) error {
	if len(candidates) == 0 {
		return nil
	}

	members := make([]redis.Z, 0, len(candidates))
	for _, c := range candidates {
		payload, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal candidate %s: %w", c.URL, err)
		}
		members = append(members, redis.Z{
			Score:  c.PriorityScore,
			Member: string(payload),
		})
	}

	if err := f.client.ZAdd(ctx, readyKey(topicID, runID), members...).Err(); err != nil {
		return fmt.Errorf("failed to enqueue candidates: %w", err)
	}
	f.updateDepth(ctx, topicID, runID)
	return nil
}

func (f *RedisFrontier) Pop(ctx context.Context, topicID, runID string) (*domain.Candidate, error) {
	if err := f.promote(ctx, topicID, runID); err != nil {
		return nil, err
	}

	entries, err := f.client.ZPopMax(ctx, readyKey(topicID, runID), 1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to pop candidate: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	var c domain.Candidate
	payload, ok := entries[0].Member.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected member type %T in frontier", entries[0].Member)
	}
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal candidate: %w", err)
	}
	f.updateDepth(ctx, topicID, runID)
	return &c, nil
}

func (f *RedisFrontier) Requeue(ctx context.Context, topicID, runID string, c *domain.Candidate, delay time.Duration) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal candidate %s: %w", c.URL, err)
	}

	readyAt := f.nowFn().Add(delay)
	err = f.client.ZAdd(ctx, parkedKey(topicID, runID), redis.Z{
		Score:  float64(readyAt.Unix()),
		Member: string(payload),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to park candidate: %w", err)
	}
	f.updateDepth(ctx, topicID, runID)
	return nil
}

func (f *RedisFrontier) Clear(ctx context.Context, topicID, runID string) error {
	err := f.client.Del(ctx, readyKey(topicID, runID), parkedKey(topicID, runID)).Err()
	if err != nil {
		return fmt.Errorf("failed to clear frontier: %w", err)
	}
	metrics.FrontierDepth.WithLabelValues(topicID).Set(0)
	return nil
}

func (f *RedisFrontier) Len(ctx context.Context, topicID, runID string) (int, error) {
	ready, err := f.client.ZCard(ctx, readyKey(topicID, runID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read frontier depth: %w", err)
	}
	parked, err := f.client.ZCard(ctx, parkedKey(topicID, runID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read parked depth: %w", err)
	}
	return int(ready + parked), nil
}

// promote moves parked candidates whose delay has elapsed into the ready
// set, restoring their priority score.
func (f *RedisFrontier) promote(ctx context.Context, topicID, runID string) error {
	due, err := f.client.ZRangeByScore(ctx, parkedKey(topicID, runID), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(f.nowFn().Unix(), 10),
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to read parked candidates: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	members := make([]redis.Z, 0, len(due))
	stale := make([]interface{}, 0, len(due))
	for _, payload := range due {
		var c domain.Candidate
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			// Drop entries we cannot decode rather than wedging the queue.
			f.logger.Error("dropping undecodable parked candidate",
				"topic_id", topicID, "run_id", runID, "error", err)
			stale = append(stale, payload)
			continue
		}
		members = append(members, redis.Z{Score: c.PriorityScore, Member: payload})
		stale = append(stale, payload)
	}

	if len(members) > 0 {
		if err := f.client.ZAdd(ctx, readyKey(topicID, runID), members...).Err(); err != nil {
			return fmt.Errorf("failed to promote parked candidates: %w", err)
		}
	}
	if err := f.client.ZRem(ctx, parkedKey(topicID, runID), stale...).Err(); err != nil {
		return fmt.Errorf("failed to remove promoted candidates: %w", err)
	}
	return nil
}

func (f *RedisFrontier) updateDepth(ctx context.Context, topicID, runID string) {
	depth, err := f.Len(ctx, topicID, runID)
	if err != nil {
		return
	}
	metrics.FrontierDepth.WithLabelValues(topicID).Set(float64(depth))
}
