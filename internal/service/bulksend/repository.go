package bulksend

import (
	"context"

	"github.com/ignite/bulk-mailer/internal/domain"
)

// Repository defines the persistence contract for jobs and settings.
type Repository interface {
	// CreateJob persists a new job. The ID is assigned by the caller.
	CreateJob(ctx context.Context, job *domain.Job) error

	// GetJob returns ErrNotFound if the job does not exist.
	GetJob(ctx context.Context, id string) (*domain.Job, error)

	// SaveJob overwrites the stored job state.
	SaveJob(ctx context.Context, job *domain.Job) error

	// DefaultBatchSize returns the saved default, or 0 when none was saved.
	DefaultBatchSize(ctx context.Context) (int, error)

	// SetDefaultBatchSize saves the default used to prefill the next job.
	SetDefaultBatchSize(ctx context.Context, size int) error
}
