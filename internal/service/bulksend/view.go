package bulksend

import (
	"time"

	"github.com/ignite/bulk-mailer/internal/domain"
)

// JobView is the externally visible state of a job. It never includes the
// recipient list or the failed addresses themselves.
type JobView struct {
	ID          string                 `json:"id"`
	Status      domain.JobStatus       `json:"status"`
	Sender      string                 `json:"sender_email"`
	Subject     string                 `json:"subject"`
	BatchSize   int                    `json:"batch_size"`
	Recipients  int                    `json:"recipients"`
	TotalChunks int                    `json:"total_chunks"`
	Processed   int                    `json:"processed_chunks"`
	Sent        uint                   `json:"sent"`
	Failed      uint                   `json:"failed"`
	ReportURL   string                 `json:"report_url,omitempty"`
	Messages    []domain.StatusMessage `json:"messages"`
	Error       string                 `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// View projects a job into its external view.
func (s *Service) View(job *domain.Job) *JobView {
	msgs := job.Messages
	if msgs == nil {
		msgs = []domain.StatusMessage{}
	}
	v := &JobView{
		ID:          job.ID,
		Status:      job.Status,
		Sender:      job.Sender,
		Subject:     job.Subject,
		BatchSize:   job.BatchSize,
		Recipients:  len(job.Recipients),
		TotalChunks: job.TotalChunks,
		Processed:   len(job.Aggregate.MergedChunks),
		Sent:        job.Aggregate.SentCount,
		Failed:      job.Aggregate.FailedCount,
		ReportURL:   s.ReportURL(job.ReportFile),
		Messages:    msgs,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		CompletedAt: job.CompletedAt,
	}
	if job.Status == domain.JobFailed {
		v.Error = "job failed"
	}
	return v
}
