// Package memory keeps bulk send jobs in process memory. It backs the CLI
// and single-process server runs; state is lost on exit.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ignite/bulk-mailer/internal/domain"
	"github.com/ignite/bulk-mailer/internal/service/bulksend"
)

// JobRepo implements bulksend.Repository in memory.
type JobRepo struct {
	mu        sync.RWMutex
	jobs      map[string]*domain.Job
	batchSize int
}

// NewJobRepo creates an empty repository.
func NewJobRepo() *JobRepo {
	return &JobRepo{jobs: make(map[string]*domain.Job)}
}

// copyJob detaches a job from caller-owned slices.
func copyJob(j *domain.Job) *domain.Job {
	c := *j
	c.Recipients = append([]string(nil), j.Recipients...)
	c.Aggregate.FailedAddresses = append([]string{}, j.Aggregate.FailedAddresses...)
	c.Aggregate.MergedChunks = append([]int{}, j.Aggregate.MergedChunks...)
	c.Messages = append([]domain.StatusMessage(nil), j.Messages...)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func (r *JobRepo) CreateJob(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	r.jobs[job.ID] = copyJob(job)
	return nil
}

func (r *JobRepo) GetJob(_ context.Context, id string) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, bulksend.ErrNotFound
	}
	return copyJob(j), nil
}

func (r *JobRepo) SaveJob(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; !ok {
		return bulksend.ErrNotFound
	}
	r.jobs[job.ID] = copyJob(job)
	return nil
}

func (r *JobRepo) DefaultBatchSize(context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.batchSize, nil
}

func (r *JobRepo) SetDefaultBatchSize(_ context.Context, size int) error {
	r.mu.Lock()
	r.batchSize = size
	r.mu.Unlock()
	return nil
}
