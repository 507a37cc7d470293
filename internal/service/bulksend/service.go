package bulksend

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/bulk-mailer/internal/domain"
	"github.com/ignite/bulk-mailer/internal/metrics"
	"github.com/ignite/bulk-mailer/internal/pkg/distlock"
	"github.com/ignite/bulk-mailer/internal/pkg/logger"
	"github.com/ignite/bulk-mailer/internal/queue"
	"github.com/ignite/bulk-mailer/internal/recipients"
	"github.com/ignite/bulk-mailer/internal/report"
)

// DefaultBatchSize is used when no default was ever saved.
const DefaultBatchSize = 50

// StepQueue schedules processing steps.
type StepQueue interface {
	Enqueue(ctx context.Context, step queue.Step) error
}

// Locker hands out the per-job single-writer lock.
type Locker interface {
	ForJob(jobID string) distlock.DistLock
}

// ReportGenerator writes the failure report for a finished job.
type ReportGenerator interface {
	Generate(ctx context.Context, failed []string) (*report.Artifact, error)
}

// Deps wires the service's collaborators.
type Deps struct {
	Repo      Repository
	Steps     StepQueue
	Locks     Locker
	Executor  *Executor
	Extractor *recipients.Extractor
	Reports   ReportGenerator

	// ReportURLBase is prefixed to report names in status messages.
	ReportURLBase string
	// FallbackBatchSize applies when the input has none and none was saved.
	FallbackBatchSize int
}

// Service runs bulk send jobs. It is safe for concurrent use.
type Service struct {
	repo          Repository
	steps         StepQueue
	locks         Locker
	executor      *Executor
	extractor     *recipients.Extractor
	reports       ReportGenerator
	reportURLBase string
	fallbackBatch int
	log           *logger.Logger
	now           func() time.Time
	newID         func() string
}

// NewService creates a bulk send service.
func NewService(d Deps) *Service {
	fallback := d.FallbackBatchSize
	if !ValidBatchSize(fallback) {
		fallback = DefaultBatchSize
	}
	extractor := d.Extractor
	if extractor == nil {
		extractor = recipients.NewExtractor(recipients.Limits{})
	}
	return &Service{
		repo:          d.Repo,
		steps:         d.Steps,
		locks:         d.Locks,
		executor:      d.Executor,
		extractor:     extractor,
		reports:       d.Reports,
		reportURLBase: d.ReportURLBase,
		fallbackBatch: fallback,
		log:           logger.Named("bulksend"),
		now:           func() time.Time { return time.Now().UTC() },
		newID:         uuid.NewString,
	}
}

// DefaultBatchSize returns the saved default batch size, or the fallback.
func (s *Service) DefaultBatchSize(ctx context.Context) (int, error) {
	size, err := s.repo.DefaultBatchSize(ctx)
	if err != nil {
		return 0, err
	}
	if !ValidBatchSize(size) {
		return s.fallbackBatch, nil
	}
	return size, nil
}

// SetDefaultBatchSize saves a new default batch size.
func (s *Service) SetDefaultBatchSize(ctx context.Context, size int) error {
	if !ValidBatchSize(size) {
		return ErrInvalidBatchSize
	}
	return s.repo.SetDefaultBatchSize(ctx, size)
}

// Start validates the input, collects recipients, persists a new job and
// schedules its first chunk. With no valid recipients it returns
// ErrNoRecipients and nothing is persisted or sent.
func (s *Service) Start(ctx context.Context, in JobInput) (*domain.Job, error) {
	job, err := s.create(ctx, in, true)
	if err != nil {
		return nil, err
	}
	if err := s.enqueue(ctx, job.ID, 0); err != nil {
		s.fail(ctx, job, err)
		return nil, err
	}
	return job, nil
}

// RunInline creates a job and processes every chunk in the calling
// goroutine. Used by the CLI.
func (s *Service) RunInline(ctx context.Context, in JobInput) (*domain.Job, error) {
	job, err := s.create(ctx, in, false)
	if err != nil {
		return nil, err
	}
	for i := 0; i < job.TotalChunks; i++ {
		if err := s.step(ctx, job.ID, i, false); err != nil {
			if j, gerr := s.repo.GetJob(ctx, job.ID); gerr == nil {
				s.fail(ctx, j, err)
			}
			return nil, err
		}
	}
	return s.repo.GetJob(ctx, job.ID)
}

// ProcessChunk runs one step: send chunk index of the job, merge its
// outcomes and schedule what comes next. A chunk that was already merged is
// not sent again. Returns ErrJobBusy when another step holds the job.
func (s *Service) ProcessChunk(ctx context.Context, jobID string, index int) error {
	return s.step(ctx, jobID, index, true)
}

// Finish finalizes a job whose chunks are all merged. It is a no-op for a
// job that already reached a terminal state.
func (s *Service) Finish(ctx context.Context, jobID string) error {
	lock := s.locks.ForJob(jobID)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock job %s: %w", jobID, err)
	}
	if !ok {
		return ErrJobBusy
	}
	defer s.release(lock, jobID)
	lease := distlock.KeepAlive(ctx, lock)
	defer lease.Stop()

	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return nil
	}
	if !job.Aggregate.Complete(job.TotalChunks) {
		return fmt.Errorf("finish job %s: %d chunks still pending", jobID, job.Remaining())
	}
	return s.finish(ctx, job)
}

// Get returns the job's current view.
func (s *Service) Get(ctx context.Context, jobID string) (*JobView, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return s.View(job), nil
}

// Plan is the chunk layout a job input would get. Capped is set when the
// recipient list reached the configured cap.
type Plan struct {
	BatchSize int
	Chunks    []domain.Chunk
	Capped    bool
}

// Recipients returns the number of addresses across all chunks.
func (p *Plan) Recipients() int {
	n := 0
	for _, c := range p.Chunks {
		n += c.Len()
	}
	return n
}

// Plan validates the input and partitions its recipients without creating a
// job or saving the batch size.
func (s *Service) Plan(ctx context.Context, in JobInput) (*Plan, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	batch, err := s.batchSize(ctx, in)
	if err != nil {
		return nil, err
	}
	set := s.extractor.ExtractFile(in.RecipientsText, in.RecipientsFile)
	if set.Len() == 0 {
		return nil, ErrNoRecipients
	}
	chunks, err := Schedule(set.Emails(), batch)
	if err != nil {
		return nil, err
	}
	return &Plan{BatchSize: batch, Chunks: chunks, Capped: set.Full()}, nil
}

func (s *Service) batchSize(ctx context.Context, in JobInput) (int, error) {
	if in.BatchSize != 0 {
		return in.BatchSize, nil
	}
	size, err := s.DefaultBatchSize(ctx)
	if err != nil {
		return 0, fmt.Errorf("load default batch size: %w", err)
	}
	return size, nil
}

// create persists a scheduled job. queued tells whether the caller enqueues
// the first step.
func (s *Service) create(ctx context.Context, in JobInput, queued bool) (*domain.Job, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	batch, err := s.batchSize(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetDefaultBatchSize(ctx, batch); err != nil {
		s.log.Warn("could not save default batch size", "batch_size", batch, "error", err)
	}

	set := s.extractor.ExtractFile(in.RecipientsText, in.RecipientsFile)
	if set.Len() == 0 {
		return nil, ErrNoRecipients
	}
	if set.Full() {
		s.log.Warn("recipient cap reached, extra addresses ignored", "cap", set.Limit())
	}
	emails := set.Emails()

	now := s.now()
	job := &domain.Job{
		ID:          s.newID(),
		Sender:      strings.TrimSpace(in.Sender),
		Subject:     SanitizeSubject(in.Subject),
		Body:        in.Body,
		BatchSize:   batch,
		Recipients:  emails,
		TotalChunks: ChunkCount(len(emails), batch),
		StepQueued:  queued,
		Status:      domain.JobCollecting,
		Aggregate:   *domain.NewAggregateResult(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := job.Transition(domain.JobScheduled); err != nil {
		return nil, err
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	metrics.IncJobStarted()
	s.log.Info("job scheduled", "job", job.ID, "recipients", len(emails),
		"batch_size", batch, "chunks", job.TotalChunks)
	return job, nil
}

func (s *Service) step(ctx context.Context, jobID string, index int, schedule bool) error {
	lock := s.locks.ForJob(jobID)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock job %s: %w", jobID, err)
	}
	if !ok {
		return ErrJobBusy
	}
	defer s.release(lock, jobID)
	lease := distlock.KeepAlive(ctx, lock)
	defer lease.Stop()

	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		metrics.IncChunk("duplicate")
		s.log.Debug("step for finished job ignored", "job", jobID, "chunk", index)
		return nil
	}
	if index < 0 || index >= job.TotalChunks {
		metrics.IncChunk("error")
		return fmt.Errorf("job %s chunk %d of %d: %w", jobID, index, job.TotalChunks, ErrInvalidStep)
	}

	if job.Aggregate.HasMerged(index) {
		metrics.IncChunk("duplicate")
		if schedule && job.StepQueued {
			s.log.Info("chunk already merged, successor queued", "job", jobID, "chunk", index)
			return nil
		}
		// The step that merged this chunk stopped before scheduling its successor.
		s.log.Info("chunk already merged, resuming chain", "job", jobID, "chunk", index)
		return s.advance(ctx, job, schedule)
	}

	chunk, err := ChunkAt(job.Recipients, job.BatchSize, index)
	if err != nil {
		metrics.IncChunk("error")
		return err
	}
	if err := job.Transition(domain.JobExecuting); err != nil {
		return err
	}

	started := time.Now()
	outcomes := s.executor.Send(lease.Context(), chunk, MessageTemplate{
		Sender:  job.Sender,
		Subject: job.Subject,
		Body:    job.Body,
		JobID:   job.ID,
	})
	metrics.ObserveChunkDuration(time.Since(started).Seconds())

	// Another step may own the job now; its state wins.
	if lease.Lost() {
		metrics.IncChunk("error")
		s.log.Error("job lock lost during chunk, outcomes discarded", "job", jobID, "chunk", index,
			"sent", len(outcomes))
		return fmt.Errorf("job %s chunk %d: %w", jobID, index, ErrLeaseLost)
	}

	if err := job.Aggregate.Merge(index, outcomes); err != nil {
		metrics.IncChunk("error")
		return err
	}
	if index+1 > job.NextChunk {
		job.NextChunk = index + 1
	}
	job.StepQueued = false
	job.UpdatedAt = s.now()
	if err := s.repo.SaveJob(ctx, job); err != nil {
		metrics.IncChunk("error")
		return fmt.Errorf("save job %s: %w", jobID, err)
	}
	metrics.IncChunk("merged")
	s.log.Info("chunk merged", "job", jobID, "chunk", index, "of", job.TotalChunks,
		"sent", job.Aggregate.SentCount, "failed", job.Aggregate.FailedCount)

	return s.advance(ctx, job, schedule)
}

// advance finishes a complete job or, when scheduling, enqueues the lowest
// chunk not yet merged. Must be called with the job lock held.
func (s *Service) advance(ctx context.Context, job *domain.Job, schedule bool) error {
	if job.Aggregate.Complete(job.TotalChunks) {
		return s.finish(ctx, job)
	}
	if !schedule {
		return nil
	}
	next := -1
	for i := 0; i < job.TotalChunks; i++ {
		c := (job.NextChunk + i) % job.TotalChunks
		if !job.Aggregate.HasMerged(c) {
			next = c
			break
		}
	}
	if err := s.enqueue(ctx, job.ID, next); err != nil {
		return err
	}
	job.StepQueued = true
	job.UpdatedAt = s.now()
	if err := s.repo.SaveJob(ctx, job); err != nil {
		// The step is queued; a redelivery at worst schedules it twice.
		s.log.Warn("could not record queued step", "job", job.ID, "chunk", next, "error", err)
	}
	return nil
}

func (s *Service) finish(ctx context.Context, job *domain.Job) error {
	if job.Status != domain.JobAggregating {
		if err := job.Transition(domain.JobAggregating); err != nil {
			return err
		}
	}
	agg := &job.Aggregate
	agg.Finalize()
	job.Messages = nil
	job.ReportFile = ""
	if !agg.Consistent(len(job.Recipients)) {
		s.log.Error("aggregate does not match recipients", "job", job.ID,
			"recipients", len(job.Recipients), "sent", agg.SentCount, "failed", agg.FailedCount)
	}

	job.Messages = append(job.Messages, sentMessage(agg.SentCount))
	if agg.FailedCount > 0 {
		art, err := s.reports.Generate(ctx, agg.FailedAddresses)
		switch {
		case err != nil:
			metrics.IncReportGenerated("error")
			s.log.Error("failure report not written", "job", job.ID, "failed", agg.FailedCount, "error", err)
			job.Messages = append(job.Messages, failedNoReportMessage(agg.FailedCount))
		case art == nil:
			job.Messages = append(job.Messages, failedNoReportMessage(agg.FailedCount))
		default:
			metrics.IncReportGenerated("ok")
			job.ReportFile = art.Name
			job.Messages = append(job.Messages, failedWithReportMessage(agg.FailedCount, s.ReportURL(art.Name)))
		}
	}

	final := domain.JobIdle
	if job.ReportFile != "" {
		final = domain.JobReportReady
	}
	if err := job.Transition(final); err != nil {
		return err
	}
	if err := s.repo.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	metrics.IncJobFinished(string(final))
	s.log.Info("job finished", "job", job.ID, "status", final,
		"sent", agg.SentCount, "failed", agg.FailedCount, "report", job.ReportFile)
	return nil
}

// fail records an infrastructure error on the job. Recipient-level failures
// never reach here.
func (s *Service) fail(ctx context.Context, job *domain.Job, cause error) {
	if job == nil || job.IsTerminal() {
		return
	}
	if err := job.Transition(domain.JobFailed); err != nil {
		s.log.Error("cannot mark job failed", "job", job.ID, "error", err)
		return
	}
	job.Error = cause.Error()
	job.Messages = append(job.Messages, jobFailedMessage())
	if err := s.repo.SaveJob(ctx, job); err != nil {
		s.log.Error("cannot save failed job", "job", job.ID, "error", err)
		return
	}
	metrics.IncJobFinished(string(domain.JobFailed))
	s.log.Error("job failed", "job", job.ID, "error", cause)
}

// MarkFailed moves a job to job_failed after an unrecoverable step error.
func (s *Service) MarkFailed(ctx context.Context, jobID string, cause error) error {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	s.fail(ctx, job, cause)
	return nil
}

func (s *Service) enqueue(ctx context.Context, jobID string, index int) error {
	if err := s.steps.Enqueue(ctx, queue.Step{JobID: jobID, Chunk: index}); err != nil {
		return fmt.Errorf("schedule job %s chunk %d: %w", jobID, index, err)
	}
	return nil
}

func (s *Service) release(lock distlock.DistLock, jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lock.Release(ctx); err != nil && !errors.Is(err, distlock.ErrNotHeld) {
		s.log.Warn("lock release failed", "job", jobID, "error", err)
	}
}

// ReportURL returns the download URL for a report name.
func (s *Service) ReportURL(name string) string {
	if name == "" {
		return ""
	}
	return s.reportURLBase + url.PathEscape(name)
}
