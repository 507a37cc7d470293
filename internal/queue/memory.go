package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is a buffered channel queue for single-process runs and tests.
// Ack is a no-op; unacknowledged steps are not redelivered.
type MemoryQueue struct {
	ch       chan Step
	pollWait time.Duration
	once     sync.Once
	done     chan struct{}
}

// NewMemoryQueue creates a queue holding up to size pending steps.
func NewMemoryQueue(size int, pollWait time.Duration) *MemoryQueue {
	if size <= 0 {
		size = 1024
	}
	if pollWait <= 0 {
		pollWait = time.Second
	}
	return &MemoryQueue{ch: make(chan Step, size), pollWait: pollWait, done: make(chan struct{})}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, step Step) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.ch <- step:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Step, error) {
	timer := time.NewTimer(q.pollWait)
	defer timer.Stop()
	select {
	case s := <-q.ch:
		return &s, nil
	case <-timer.C:
		return nil, nil
	case <-q.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Ack(context.Context, *Step) error { return nil }

// Len returns the number of pending steps.
func (q *MemoryQueue) Len() int { return len(q.ch) }

// Close stops the queue. Pending steps are dropped.
func (q *MemoryQueue) Close() {
	q.once.Do(func() { close(q.done) })
}
