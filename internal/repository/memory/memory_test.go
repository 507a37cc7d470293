package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/bulk-mailer/internal/domain"
	"github.com/ignite/bulk-mailer/internal/service/bulksend"
)

func TestJobRepo_RoundTrip(t *testing.T) {
	repo := NewJobRepo()
	ctx := context.Background()
	job := &domain.Job{ID: "j1", Status: domain.JobScheduled, Recipients: []string{"a@x.com"}, Aggregate: *domain.NewAggregateResult()}

	require.NoError(t, repo.CreateJob(ctx, job))
	assert.Error(t, repo.CreateJob(ctx, job))

	// later edits by the caller do not leak into the store
	job.Recipients[0] = "changed@x.com"
	got, err := repo.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com"}, got.Recipients)

	require.NoError(t, got.Aggregate.Merge(0, []domain.SendOutcome{{Email: "a@x.com", Status: domain.OutcomeSent}}))
	require.NoError(t, repo.SaveJob(ctx, got))
	again, err := repo.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, uint(1), again.Aggregate.SentCount)
}

func TestJobRepo_NotFound(t *testing.T) {
	repo := NewJobRepo()
	_, err := repo.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, bulksend.ErrNotFound)
	assert.ErrorIs(t, repo.SaveJob(context.Background(), &domain.Job{ID: "missing"}), bulksend.ErrNotFound)
}

func TestJobRepo_DefaultBatchSize(t *testing.T) {
	repo := NewJobRepo()
	size, err := repo.DefaultBatchSize(context.Background())
	require.NoError(t, err)
	assert.Zero(t, size)

	require.NoError(t, repo.SetDefaultBatchSize(context.Background(), 120))
	size, err = repo.DefaultBatchSize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 120, size)
}
