package bulksend

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/ignite/bulk-mailer/internal/domain"
	"github.com/ignite/bulk-mailer/internal/report"
	"github.com/ignite/bulk-mailer/internal/transport"
)

// fakeTransport fails any address listed in errs (with an error) or rejects
// (non-success result) any address listed in rejects.
type fakeTransport struct {
	mu      sync.Mutex
	errs    map[string]bool
	rejects map[string]bool
	calls   []string
	// onSend runs before each send is recorded.
	onSend func(to string)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{errs: map[string]bool{}, rejects: map[string]bool{}}
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Send(_ context.Context, msg *transport.Message) (*transport.Result, error) {
	if f.onSend != nil {
		f.onSend(msg.To)
	}
	f.mu.Lock()
	f.calls = append(f.calls, msg.To)
	f.mu.Unlock()
	if f.errs[msg.To] {
		return nil, transport.NewError(transport.ReasonRateLimited, "throttled", nil)
	}
	if f.rejects[msg.To] {
		return transport.Rejected("fake", "bounced"), nil
	}
	return transport.Accepted("fake", "id-"+msg.To), nil
}

func (f *fakeTransport) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// mockRepo is an in-memory repository for testing.
type mockRepo struct {
	mu        sync.Mutex
	jobs      map[string]domain.Job
	batchSize int
	saveErr   error
}

func newMockRepo() *mockRepo {
	return &mockRepo{jobs: map[string]domain.Job{}}
}

func clone(j *domain.Job) domain.Job {
	c := *j
	c.Recipients = append([]string(nil), j.Recipients...)
	c.Aggregate.FailedAddresses = append([]string{}, j.Aggregate.FailedAddresses...)
	c.Aggregate.MergedChunks = append([]int{}, j.Aggregate.MergedChunks...)
	c.Messages = append([]domain.StatusMessage(nil), j.Messages...)
	return c
}

func (m *mockRepo) CreateJob(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return errors.New("duplicate job")
	}
	m.jobs[job.ID] = clone(job)
	return nil
}

func (m *mockRepo) GetJob(_ context.Context, id string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := clone(&j)
	return &c, nil
}

func (m *mockRepo) SaveJob(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.jobs[job.ID] = clone(job)
	return nil
}

func (m *mockRepo) DefaultBatchSize(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batchSize, nil
}

func (m *mockRepo) SetDefaultBatchSize(_ context.Context, size int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchSize = size
	return nil
}

func (m *mockRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

type failingReports struct{}

func (failingReports) Generate(context.Context, []string) (*report.Artifact, error) {
	return nil, errors.New("disk full")
}

func lines(addrs ...string) string { return strings.Join(addrs, "\n") }
