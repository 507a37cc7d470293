package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/bulk-mailer/internal/pkg/logger"
	"github.com/ignite/bulk-mailer/internal/queue"
	"github.com/ignite/bulk-mailer/internal/service/bulksend"
)

// =============================================================================
// BULK SEND WORKER
// =============================================================================
// Pulls chunk steps off the step queue and hands them to the bulk send
// service. Different jobs run in parallel across goroutines; the service's
// per-job lock keeps one job to one chunk at a time. A step that finds its
// job locked goes back on the queue after RetryDelay.

const (
	DefaultWorkers     = 4
	DefaultRetryDelay  = 2 * time.Second
	DefaultMaxAttempts = 3
	dequeueBackoff     = time.Second
)

// StepProcessor runs one step of a job.
type StepProcessor interface {
	ProcessChunk(ctx context.Context, jobID string, index int) error
	MarkFailed(ctx context.Context, jobID string, cause error) error
}

// Recoverer is implemented by queues that can reclaim steps left in flight by
// a crashed worker.
type Recoverer interface {
	Recover(ctx context.Context) (int, error)
}

// Options tunes a BulkSendWorker. Zero values take the defaults.
type Options struct {
	Workers    int
	RetryDelay time.Duration
	// MaxAttempts bounds retries of a step that failed with an infrastructure
	// error. Busy steps are retried without limit.
	MaxAttempts int
}

// Stats is a snapshot of worker counters.
type Stats struct {
	Processed int64 `json:"processed"`
	Requeued  int64 `json:"requeued"`
	Dropped   int64 `json:"dropped"`
	Failed    int64 `json:"failed"`
}

// BulkSendWorker consumes the step queue.
type BulkSendWorker struct {
	queue       queue.Queue
	proc        StepProcessor
	workers     int
	retryDelay  time.Duration
	maxAttempts int
	log         *logger.Logger

	processed int64
	requeued  int64
	dropped   int64
	failed    int64

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewBulkSendWorker creates a worker over q.
func NewBulkSendWorker(q queue.Queue, proc StepProcessor, opts Options) *BulkSendWorker {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	return &BulkSendWorker{
		queue:       q,
		proc:        proc,
		workers:     opts.Workers,
		retryDelay:  opts.RetryDelay,
		maxAttempts: opts.MaxAttempts,
		log:         logger.Named("bulk-send-worker"),
	}
}

// Start recovers in-flight steps when the queue supports it and launches the
// consumer goroutines. It returns immediately.
func (w *BulkSendWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("bulk send worker already running")
	}

	if r, ok := w.queue.(Recoverer); ok {
		n, err := r.Recover(ctx)
		if err != nil {
			return fmt.Errorf("recover in-flight steps: %w", err)
		}
		if n > 0 {
			w.log.Info("recovered in-flight steps", "count", n)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.loop(runCtx, i)
	}
	w.log.Info("started", "workers", w.workers, "retry_delay", w.retryDelay)
	return nil
}

// Stop cancels the consumers and waits for in-progress steps to return.
func (w *BulkSendWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()
	w.log.Info("stopped", "processed", atomic.LoadInt64(&w.processed),
		"requeued", atomic.LoadInt64(&w.requeued), "failed", atomic.LoadInt64(&w.failed))
}

// Stats returns the current counters.
func (w *BulkSendWorker) Stats() Stats {
	return Stats{
		Processed: atomic.LoadInt64(&w.processed),
		Requeued:  atomic.LoadInt64(&w.requeued),
		Dropped:   atomic.LoadInt64(&w.dropped),
		Failed:    atomic.LoadInt64(&w.failed),
	}
}

func (w *BulkSendWorker) loop(ctx context.Context, id int) {
	defer w.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		step, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			w.log.Warn("dequeue failed", "worker", id, "error", err)
			if !sleep(ctx, dequeueBackoff) {
				return
			}
			continue
		}
		if step == nil {
			continue
		}
		w.handle(ctx, step)
	}
}

func (w *BulkSendWorker) handle(ctx context.Context, step *queue.Step) {
	err := w.proc.ProcessChunk(ctx, step.JobID, step.Chunk)
	switch {
	case err == nil:
		atomic.AddInt64(&w.processed, 1)

	case ctx.Err() != nil:
		// Shutting down: leave the step unacknowledged for redelivery.
		return

	case errors.Is(err, bulksend.ErrJobBusy):
		if !w.requeue(ctx, step, step.Attempt) {
			return
		}

	case errors.Is(err, bulksend.ErrNotFound), errors.Is(err, bulksend.ErrInvalidStep):
		atomic.AddInt64(&w.dropped, 1)
		w.log.Warn("step dropped", "step", step.String(), "error", err)

	default:
		if step.Attempt+1 < w.maxAttempts {
			w.log.Warn("step failed, retrying", "step", step.String(), "attempt", step.Attempt+1, "error", err)
			if !w.requeue(ctx, step, step.Attempt+1) {
				return
			}
			break
		}
		atomic.AddInt64(&w.failed, 1)
		w.log.Error("step failed permanently", "step", step.String(), "attempts", step.Attempt+1, "error", err)
		if ferr := w.proc.MarkFailed(ctx, step.JobID, err); ferr != nil {
			w.log.Error("mark job failed", "job", step.JobID, "error", ferr)
		}
	}

	if err := w.queue.Ack(ctx, step); err != nil {
		w.log.Warn("ack failed", "step", step.String(), "error", err)
	}
}

// requeue puts the step back after the retry delay. It reports false when the
// worker is stopping, in which case the original step stays unacknowledged.
// Busy steps keep their attempt count; only failures consume attempts.
func (w *BulkSendWorker) requeue(ctx context.Context, step *queue.Step, attempt int) bool {
	if !sleep(ctx, w.retryDelay) {
		return false
	}
	next := queue.Step{JobID: step.JobID, Chunk: step.Chunk, Attempt: attempt}
	if err := w.queue.Enqueue(ctx, next); err != nil {
		w.log.Error("requeue failed", "step", step.String(), "error", err)
		return false
	}
	atomic.AddInt64(&w.requeued, 1)
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
