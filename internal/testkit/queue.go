package testkit

import (
	"context"
	"time"
)

// MemoryQueue is a channel-backed stand-in for the redis queue.
type MemoryQueue struct {
	items chan string
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{items: make(chan string, 1024)}
}

func (q *MemoryQueue) Ping(ctx context.Context) error { return nil }

func (q *MemoryQueue) Enqueue(ctx context.Context, queueName string, recordID string) error {
	select {
	case q.items <- recordID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, queueName string, wait time.Duration) (string, bool, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case id := <-q.items:
		return id, true, nil
	case <-timer.C:
		return "", false, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

func (q *MemoryQueue) Depth(ctx context.Context, queueName string) (int64, error) {
	return int64(len(q.items)), nil
}
