package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ignite/bulk-mailer/internal/domain"
	"github.com/ignite/bulk-mailer/internal/service/bulksend"
)

// Schema creates the tables used by JobRepo. It is safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS mass_mailer_jobs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	sender       TEXT NOT NULL,
	subject      TEXT NOT NULL,
	body         TEXT NOT NULL,
	batch_size   INTEGER NOT NULL,
	recipients   JSONB NOT NULL,
	total_chunks INTEGER NOT NULL,
	next_chunk   INTEGER NOT NULL DEFAULT 0,
	aggregate    JSONB NOT NULL,
	report_file  TEXT NOT NULL DEFAULT '',
	messages     JSONB NOT NULL DEFAULT '[]',
	error        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	step_queued  BOOLEAN NOT NULL DEFAULT FALSE
);

ALTER TABLE mass_mailer_jobs ADD COLUMN IF NOT EXISTS step_queued BOOLEAN NOT NULL DEFAULT FALSE;

CREATE TABLE IF NOT EXISTS mass_mailer_settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const batchSizeKey = "default_batch_size"

// Migrate applies Schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate mass mailer schema: %w", err)
	}
	return nil
}

// JobRepo implements bulksend.Repository against PostgreSQL.
type JobRepo struct{ db *sql.DB }

// NewJobRepo creates a Postgres-backed job repository.
func NewJobRepo(db *sql.DB) *JobRepo { return &JobRepo{db: db} }

type jobColumns struct {
	recipients []byte
	aggregate  []byte
	messages   []byte
}

func encodeJob(job *domain.Job) (*jobColumns, error) {
	recipients, err := json.Marshal(job.Recipients)
	if err != nil {
		return nil, fmt.Errorf("encode recipients: %w", err)
	}
	aggregate, err := json.Marshal(job.Aggregate)
	if err != nil {
		return nil, fmt.Errorf("encode aggregate: %w", err)
	}
	messages := job.Messages
	if messages == nil {
		messages = []domain.StatusMessage{}
	}
	msgs, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("encode messages: %w", err)
	}
	return &jobColumns{recipients: recipients, aggregate: aggregate, messages: msgs}, nil
}

func (r *JobRepo) CreateJob(ctx context.Context, job *domain.Job) error {
	cols, err := encodeJob(job)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO mass_mailer_jobs (id, status, sender, subject, body, batch_size,
		       recipients, total_chunks, next_chunk, aggregate, report_file, messages,
		       error, created_at, updated_at, completed_at, step_queued)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, job.ID, job.Status, job.Sender, job.Subject, job.Body, job.BatchSize,
		cols.recipients, job.TotalChunks, job.NextChunk, cols.aggregate, job.ReportFile, cols.messages,
		job.Error, job.CreatedAt, job.UpdatedAt, job.CompletedAt, job.StepQueued)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepo) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	j := &domain.Job{}
	var recipients, aggregate, messages []byte
	var completed sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, status, sender, subject, body, batch_size, recipients, total_chunks,
		       next_chunk, aggregate, report_file, messages, error, created_at, updated_at,
		       completed_at, step_queued
		FROM mass_mailer_jobs
		WHERE id = $1
	`, id).Scan(
		&j.ID, &j.Status, &j.Sender, &j.Subject, &j.Body, &j.BatchSize, &recipients, &j.TotalChunks,
		&j.NextChunk, &aggregate, &j.ReportFile, &messages, &j.Error, &j.CreatedAt, &j.UpdatedAt,
		&completed, &j.StepQueued,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bulksend.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	if err := json.Unmarshal(recipients, &j.Recipients); err != nil {
		return nil, fmt.Errorf("decode recipients of job %s: %w", id, err)
	}
	if err := json.Unmarshal(aggregate, &j.Aggregate); err != nil {
		return nil, fmt.Errorf("decode aggregate of job %s: %w", id, err)
	}
	if len(messages) > 0 {
		if err := json.Unmarshal(messages, &j.Messages); err != nil {
			return nil, fmt.Errorf("decode messages of job %s: %w", id, err)
		}
	}
	if completed.Valid {
		t := completed.Time
		j.CompletedAt = &t
	}
	return j, nil
}

// SaveJob overwrites the mutable columns. Recipients never change after
// creation and are not rewritten.
func (r *JobRepo) SaveJob(ctx context.Context, job *domain.Job) error {
	cols, err := encodeJob(job)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE mass_mailer_jobs
		SET status = $2, next_chunk = $3, aggregate = $4, report_file = $5,
		    messages = $6, error = $7, updated_at = $8, completed_at = $9, step_queued = $10
		WHERE id = $1
	`, job.ID, job.Status, job.NextChunk, cols.aggregate, job.ReportFile,
		cols.messages, job.Error, job.UpdatedAt, job.CompletedAt, job.StepQueued)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return bulksend.ErrNotFound
	}
	return nil
}

// DefaultBatchSize returns 0 when no default was saved.
func (r *JobRepo) DefaultBatchSize(ctx context.Context) (int, error) {
	var raw string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM mass_mailer_settings WHERE key = $1`, batchSizeKey,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get default batch size: %w", err)
	}
	size, err := strconv.Atoi(raw)
	if err != nil {
		return 0, nil
	}
	return size, nil
}

func (r *JobRepo) SetDefaultBatchSize(ctx context.Context, size int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO mass_mailer_settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = NOW()
	`, batchSizeKey, strconv.Itoa(size))
	if err != nil {
		return fmt.Errorf("set default batch size: %w", err)
	}
	return nil
}
