package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_FIFO(t *testing.T) {
	q := NewMemoryQueue(4, 50*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Step{JobID: "j", Chunk: 0}))
	require.NoError(t, q.Enqueue(ctx, Step{JobID: "j", Chunk: 1}))

	s, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Chunk)
	s, _ = q.Dequeue(ctx)
	assert.Equal(t, 1, s.Chunk)

	s, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, s, "empty queue returns nil after poll wait")

	q.Close()
	assert.ErrorIs(t, q.Enqueue(ctx, Step{JobID: "j"}), ErrClosed)
}

func newRedisQueue(t *testing.T) (*miniredis.Miniredis, *RedisQueue) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisQueue(client, "massmail:steps", time.Second)
}

func TestRedisQueue_EnqueueDequeueAck(t *testing.T) {
	mr, q := newRedisQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Step{JobID: "job-1", Chunk: 0}))
	require.NoError(t, q.Enqueue(ctx, Step{JobID: "job-1", Chunk: 1}))

	s, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "job-1", s.JobID)
	assert.Equal(t, 0, s.Chunk)

	inflight, _ := mr.List("massmail:steps:processing")
	assert.Len(t, inflight, 1)

	require.NoError(t, q.Ack(ctx, s))
	inflight, _ = mr.List("massmail:steps:processing")
	assert.Empty(t, inflight)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedisQueue_RecoverRequeuesInflight(t *testing.T) {
	_, q := newRedisQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Step{JobID: "job-1", Chunk: 3}))
	_, err := q.Dequeue(ctx)
	require.NoError(t, err)

	moved, err := q.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	s, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, 3, s.Chunk)
}

func TestRedisQueue_DropsGarbage(t *testing.T) {
	mr, q := newRedisQueue(t)
	mr.Lpush("massmail:steps", "not json")

	s, err := q.Dequeue(context.Background())
	assert.Error(t, err)
	assert.Nil(t, s)
	inflight, _ := mr.List("massmail:steps:processing")
	assert.Empty(t, inflight)
}

type fakeSQS struct {
	mu       sync.Mutex
	messages []types.Message
	deleted  []string
	seq      int
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	handle := aws.String(fmt.Sprintf("rh-%d", f.seq))
	f.messages = append(f.messages, types.Message{Body: in.MessageBody, ReceiptHandle: handle})
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return &sqs.ReceiveMessageOutput{}, nil
	}
	m := f.messages[0]
	f.messages = f.messages[1:]
	return &sqs.ReceiveMessageOutput{Messages: []types.Message{m}}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSQueue_RoundTrip(t *testing.T) {
	fake := &fakeSQS{}
	q := NewSQSQueue(fake, "https://sqs.example/queue", time.Second, time.Minute)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Step{JobID: "job-9", Chunk: 2}))

	s, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "job-9", s.JobID)
	assert.Equal(t, 2, s.Chunk)

	require.NoError(t, q.Ack(ctx, s))
	assert.Equal(t, []string{"rh-1"}, fake.deleted)

	s, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
}
