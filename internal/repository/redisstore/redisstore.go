// Package redisstore keeps bulk send jobs in Redis as JSON documents so
// server and worker processes share state.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/bulk-mailer/internal/domain"
	"github.com/ignite/bulk-mailer/internal/service/bulksend"
)

const (
	jobKeyPrefix = "massmail:job:"
	batchSizeKey = "massmail:settings:batch_size"
)

// DefaultTTL applies when no TTL is configured.
const DefaultTTL = 72 * time.Hour

// JobRepo implements bulksend.Repository on Redis.
type JobRepo struct {
	client *redis.Client
	ttl    time.Duration
}

// NewJobRepo creates a Redis-backed repository. Job documents expire ttl
// after their last save.
func NewJobRepo(client *redis.Client, ttl time.Duration) *JobRepo {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &JobRepo{client: client, ttl: ttl}
}

func jobKey(id string) string { return jobKeyPrefix + id }

func (r *JobRepo) CreateJob(ctx context.Context, job *domain.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	ok, err := r.client.SetNX(ctx, jobKey(job.ID), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	if !ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	return nil
}

func (r *JobRepo) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	data, err := r.client.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, bulksend.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	var job domain.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

// SaveJob overwrites an existing job and refreshes its TTL.
func (r *JobRepo) SaveJob(ctx context.Context, job *domain.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	ok, err := r.client.SetXX(ctx, jobKey(job.ID), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	if !ok {
		return bulksend.ErrNotFound
	}
	return nil
}

// DefaultBatchSize returns 0 when no default was saved.
func (r *JobRepo) DefaultBatchSize(ctx context.Context) (int, error) {
	raw, err := r.client.Get(ctx, batchSizeKey).Result()
	if errors.Is(err, redis.Nil) {
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
	if err := r.client.Set(ctx, batchSizeKey, size, 0).Err(); err != nil {
		return fmt.Errorf("set default batch size: %w", err)
	}
	return nil
}
