package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSClient is the subset of the SQS API used by SQSQueue.
type SQSClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSQueue stores steps as SQS messages. The visibility timeout must exceed
// the longest chunk, otherwise a step is redelivered while still running.
type SQSQueue struct {
	client     SQSClient
	queueURL   string
	pollWait   time.Duration
	visibility time.Duration
}

// NewSQSQueue creates a queue on queueURL.
func NewSQSQueue(client SQSClient, queueURL string, pollWait, visibility time.Duration) *SQSQueue {
	if pollWait <= 0 || pollWait > 20*time.Second {
		pollWait = 20 * time.Second
	}
	if visibility <= 0 {
		visibility = 10 * time.Minute
	}
	return &SQSQueue{client: client, queueURL: queueURL, pollWait: pollWait, visibility: visibility}
}

func (q *SQSQueue) Enqueue(ctx context.Context, step Step) error {
	payload, err := encode(step)
	if err != nil {
		return err
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(payload),
	})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", step, err)
	}
	return nil
}

func (q *SQSQueue) Dequeue(ctx context.Context) (*Step, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     int32(q.pollWait / time.Second),
		VisibilityTimeout:   int32(q.visibility / time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	if len(out.Messages) == 0 {
		return nil, nil
	}
	msg := out.Messages[0]
	step, err := decode(aws.ToString(msg.Body))
	if err != nil {
		q.delete(ctx, msg.ReceiptHandle)
		return nil, err
	}
	step.receipt = aws.ToString(msg.ReceiptHandle)
	return step, nil
}

func (q *SQSQueue) Ack(ctx context.Context, step *Step) error {
	if step == nil || step.receipt == "" {
		return nil
	}
	return q.delete(ctx, aws.String(step.receipt))
}

func (q *SQSQueue) delete(ctx context.Context, handle *string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: handle,
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}
