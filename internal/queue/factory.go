package queue

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/bulk-mailer/internal/config"
)

// FromConfig builds the queue selected by cfg.Type. rdb may be nil unless the
// redis queue is selected.
func FromConfig(ctx context.Context, cfg config.QueueConfig, rdb *redis.Client) (Queue, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryQueue(cfg.MemoryBufferLength, cfg.PollWait()), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis queue: no redis client configured")
		}
		return NewRedisQueue(rdb, cfg.Name, cfg.PollWait()), nil
	case "sqs":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.SQSRegion))
		if err != nil {
			return nil, fmt.Errorf("sqs queue: load aws config: %w", err)
		}
		return NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.SQSQueueURL, cfg.PollWait(), cfg.Visibility()), nil
	default:
		return nil, fmt.Errorf("unknown queue type %q", cfg.Type)
	}
}
