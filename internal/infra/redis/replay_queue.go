package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const replayQueueKey = "webtape:replay_jobs"

// ReplayJob is one queued replay request.
type ReplayJob struct {
	ID        string              `json:"id"`
	ProjectID string              `json:"project_id"`
	ContextID string              `json:"context_id"`
	Rows      []map[string]string `json:"rows,omitempty"`
	QueuedAt  time.Time           `json:"queued_at"`
}

// ReplayQueue is a Redis-backed FIFO of replay jobs, shared between the API
// that enqueues runs and the worker that executes them.
type ReplayQueue struct {
	rdb *redis.Client
}

// NewReplayQueue creates a queue on the given client.
func NewReplayQueue(client *Client) *ReplayQueue {
	return &ReplayQueue{rdb: client.rdb}
}

// Enqueue pushes a job onto the tail of the queue.
func (q *ReplayQueue) Enqueue(ctx context.Context, job *ReplayJob) error {
	if job.QueuedAt.IsZero() {
		job.QueuedAt = time.Now()
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal replay job: %w", err)
	}
	if err := q.rdb.RPush(ctx, replayQueueKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue replay job: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next job. Returns (nil, nil) on an
// empty queue so pollers can loop without error handling noise.
func (q *ReplayQueue) Dequeue(ctx context.Context, timeout time.Duration) (*ReplayJob, error) {
	res, err := q.rdb.BLPop(ctx, timeout, replayQueueKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue replay job: %w", err)
	}
	if len(res) < 2 {
		return nil, nil
	}

	var job ReplayJob
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal replay job: %w", err)
	}
	return &job, nil
}

// Len returns the number of queued jobs.
func (q *ReplayQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, replayQueueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return n, nil
}
