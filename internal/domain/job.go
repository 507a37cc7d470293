package domain

import (
	"fmt"
	"time"
)

// JobStatus enumerates the lifecycle states of a bulk send job.
type JobStatus string

const (
	JobCollecting  JobStatus = "collecting"
	JobScheduled   JobStatus = "scheduled"
	JobExecuting   JobStatus = "executing"
	JobAggregating JobStatus = "aggregating"
	JobIdle        JobStatus = "idle"
	JobReportReady JobStatus = "report_ready"
	// JobFailed is reserved for infrastructure errors. Recipient failures
	// never put a job in this state.
	JobFailed JobStatus = "job_failed"
)

var jobTransitions = map[JobStatus][]JobStatus{
	JobCollecting:  {JobScheduled, JobFailed},
	JobScheduled:   {JobExecuting, JobFailed},
	JobExecuting:   {JobExecuting, JobAggregating, JobFailed},
	JobAggregating: {JobIdle, JobReportReady, JobFailed},
}

// MessageLevel classifies a status message shown to the operator.
type MessageLevel string

const (
	MessageStatus  MessageLevel = "status"
	MessageWarning MessageLevel = "warning"
	MessageError   MessageLevel = "error"
)

// StatusMessage is a human-readable line describing a job's result.
type StatusMessage struct {
	Level MessageLevel `json:"level"`
	Text  string       `json:"text"`
	URL   string       `json:"url,omitempty"`
}

// Job is the persisted state of one bulk send. It is handed from step to
// step; only one step may mutate a job at a time. StepQueued is set once the
// step for the lowest unmerged chunk is known to be on the queue.
type Job struct {
	ID          string          `json:"id"`
	Sender      string          `json:"sender"`
	Subject     string          `json:"subject"`
	Body        string          `json:"body"`
	BatchSize   int             `json:"batch_size"`
	Recipients  []string        `json:"recipients"`
	TotalChunks int             `json:"total_chunks"`
	NextChunk   int             `json:"next_chunk"`
	StepQueued  bool            `json:"step_queued"`
	Status      JobStatus       `json:"status"`
	Aggregate   AggregateResult `json:"aggregate"`
	ReportFile  string          `json:"report_file,omitempty"`
	Messages    []StatusMessage `json:"messages,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Transition moves the job to the given status or returns an error if the
// transition is not allowed.
func (j *Job) Transition(to JobStatus) error {
	for _, allowed := range jobTransitions[j.Status] {
		if allowed == to {
			j.Status = to
			j.UpdatedAt = time.Now().UTC()
			if j.IsTerminal() {
				now := j.UpdatedAt
				j.CompletedAt = &now
			}
			return nil
		}
	}
	return fmt.Errorf("invalid job transition %s -> %s", j.Status, to)
}

// IsTerminal returns true if the job is in a final state.
func (j *Job) IsTerminal() bool {
	return j.Status == JobIdle || j.Status == JobReportReady || j.Status == JobFailed
}

// Remaining returns how many chunks have not been merged yet.
func (j *Job) Remaining() int {
	return j.TotalChunks - len(j.Aggregate.MergedChunks)
}
