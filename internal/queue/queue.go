// Package queue carries bulk send processing steps between the API and the
// step workers. A step names one chunk of one job; the job itself lives in
// the job repository.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrClosed is returned by a queue that was shut down.
var ErrClosed = errors.New("queue closed")

// Step is one unit of work: process chunk Chunk of job JobID.
type Step struct {
	JobID   string `json:"job_id"`
	Chunk   int    `json:"chunk"`
	Attempt int    `json:"attempt"`

	// receipt identifies the delivery for Ack. Set by Dequeue.
	receipt string
}

func (s Step) String() string { return fmt.Sprintf("%s#%d", s.JobID, s.Chunk) }

// Queue is an at-least-once step queue. Dequeue blocks until a step is
// available or the poll wait elapses, in which case it returns nil, nil.
// A dequeued step is redelivered unless it is acknowledged.
type Queue interface {
	Enqueue(ctx context.Context, step Step) error
	Dequeue(ctx context.Context) (*Step, error)
	Ack(ctx context.Context, step *Step) error
}

func encode(step Step) (string, error) {
	b, err := json.Marshal(step)
	if err != nil {
		return "", fmt.Errorf("encode step: %w", err)
	}
	return string(b), nil
}

func decode(payload string) (*Step, error) {
	var s Step
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return nil, fmt.Errorf("decode step: %w", err)
	}
	if s.JobID == "" || s.Chunk < 0 {
		return nil, fmt.Errorf("decode step: invalid step %q", payload)
	}
	return &s, nil
}
