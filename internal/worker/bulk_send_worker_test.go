package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/bulk-mailer/internal/queue"
	"github.com/ignite/bulk-mailer/internal/service/bulksend"
)

// fakeProcessor returns scripted errors per step, then nil.
type fakeProcessor struct {
	mu     sync.Mutex
	script map[string][]error
	calls  map[string]int
	failed map[string]error
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{script: map[string][]error{}, calls: map[string]int{}, failed: map[string]error{}}
}

func key(jobID string, index int) string { return fmt.Sprintf("%s#%d", jobID, index) }

func (p *fakeProcessor) ProcessChunk(_ context.Context, jobID string, index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := key(jobID, index)
	p.calls[k]++
	if errs := p.script[k]; len(errs) > 0 {
		p.script[k] = errs[1:]
		return errs[0]
	}
	return nil
}

func (p *fakeProcessor) MarkFailed(_ context.Context, jobID string, cause error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed[jobID] = cause
	return nil
}

func (p *fakeProcessor) callCount(k string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[k]
}

func (p *fakeProcessor) failure(jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failed[jobID]
}

func startWorker(t *testing.T, q queue.Queue, proc StepProcessor) *BulkSendWorker {
	t.Helper()
	w := NewBulkSendWorker(q, proc, Options{Workers: 2, RetryDelay: 5 * time.Millisecond, MaxAttempts: 3})
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w
}

func TestBulkSendWorker_ProcessesSteps(t *testing.T) {
	q := queue.NewMemoryQueue(16, 10*time.Millisecond)
	proc := newFakeProcessor()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(ctx, queue.Step{JobID: fmt.Sprintf("job-%d", i), Chunk: 0}))
	}

	w := startWorker(t, q, proc)
	assert.Eventually(t, func() bool { return w.Stats().Processed == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Error(t, w.Start(ctx))
}

func TestBulkSendWorker_RequeuesBusySteps(t *testing.T) {
	q := queue.NewMemoryQueue(16, 10*time.Millisecond)
	proc := newFakeProcessor()
	proc.script[key("job", 1)] = []error{bulksend.ErrJobBusy, bulksend.ErrJobBusy}
	require.NoError(t, q.Enqueue(context.Background(), queue.Step{JobID: "job", Chunk: 1}))

	w := startWorker(t, q, proc)
	assert.Eventually(t, func() bool { return w.Stats().Processed == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, proc.callCount(key("job", 1)))
	assert.Equal(t, int64(2), w.Stats().Requeued)
	assert.Nil(t, proc.failure("job"))
}

func TestBulkSendWorker_MarksJobFailedAfterRetries(t *testing.T) {
	q := queue.NewMemoryQueue(16, 10*time.Millisecond)
	proc := newFakeProcessor()
	boom := errors.New("save job: connection reset")
	proc.script[key("job", 0)] = []error{boom, boom, boom}
	require.NoError(t, q.Enqueue(context.Background(), queue.Step{JobID: "job", Chunk: 0}))

	w := startWorker(t, q, proc)
	assert.Eventually(t, func() bool { return proc.failure("job") != nil }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, proc.callCount(key("job", 0)))
	assert.ErrorIs(t, proc.failure("job"), boom)
	assert.Equal(t, int64(1), w.Stats().Failed)
}

func TestBulkSendWorker_DropsUnknownJobs(t *testing.T) {
	q := queue.NewMemoryQueue(16, 10*time.Millisecond)
	proc := newFakeProcessor()
	proc.script[key("gone", 0)] = []error{bulksend.ErrNotFound}
	require.NoError(t, q.Enqueue(context.Background(), queue.Step{JobID: "gone", Chunk: 0}))

	w := startWorker(t, q, proc)
	assert.Eventually(t, func() bool { return w.Stats().Dropped == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Nil(t, proc.failure("gone"))
	assert.Equal(t, 1, proc.callCount(key("gone", 0)))
}

func TestBulkSendWorker_RecoversInFlightSteps(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	ctx := context.Background()

	q := queue.NewRedisQueue(client, "massmail:steps", 20*time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, queue.Step{JobID: "job", Chunk: 2}))

	// a previous worker took the step and died before acknowledging it
	step, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, step)
	n, err := q.Len(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	proc := newFakeProcessor()
	w := startWorker(t, q, proc)
	assert.Eventually(t, func() bool { return w.Stats().Processed == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		items, _ := mr.List("massmail:steps:processing")
		return len(items) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestBulkSendWorker_StopIsIdempotent(t *testing.T) {
	w := NewBulkSendWorker(queue.NewMemoryQueue(1, 5*time.Millisecond), newFakeProcessor(), Options{})
	w.Stop()
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}
