package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is a reliable list queue. Dequeue atomically moves a step to a
// processing list; Ack removes it from there. Recover pushes steps left in
// the processing list by a crashed worker back onto the queue.
type RedisQueue struct {
	client     *redis.Client
	key        string
	processing string
	pollWait   time.Duration
}

// NewRedisQueue creates a queue on the list named key.
func NewRedisQueue(client *redis.Client, key string, pollWait time.Duration) *RedisQueue {
	if pollWait <= 0 {
		pollWait = 5 * time.Second
	}
	return &RedisQueue{
		client:     client,
		key:        key,
		processing: key + ":processing",
		pollWait:   pollWait,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, step Step) error {
	payload, err := encode(step)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", step, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Step, error) {
	payload, err := q.client.BRPopLPush(ctx, q.key, q.processing, q.pollWait).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	step, err := decode(payload)
	if err != nil {
		q.client.LRem(ctx, q.processing, 1, payload)
		return nil, err
	}
	step.receipt = payload
	return step, nil
}

func (q *RedisQueue) Ack(ctx context.Context, step *Step) error {
	if step == nil || step.receipt == "" {
		return nil
	}
	if err := q.client.LRem(ctx, q.processing, 1, step.receipt).Err(); err != nil {
		return fmt.Errorf("ack %s: %w", step, err)
	}
	return nil
}

// Recover moves every in-flight step back to the queue and returns how many
// were moved. Call it once at worker startup, before any Dequeue.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		_, err := q.client.RPopLPush(ctx, q.processing, q.key).Result()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("recover: %w", err)
		}
		moved++
	}
}

// Len returns the number of pending steps.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
