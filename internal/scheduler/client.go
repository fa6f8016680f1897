package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"location_mapper/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// rebuildTimeout bounds one queued rebuild. The discovery budget normally ends a run well before.
const rebuildTimeout = 6 * time.Hour

type Client struct {
	client *asynq.Client
	queue  string
}

type RebuildEnqueuer interface {
	EnqueueRebuild(ctx context.Context, payload TaxonomyRebuildPayload) (string, error)
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queueName(cfg),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueRebuild queues a taxonomy rebuild and returns the task ID.
func (c *Client) EnqueueRebuild(ctx context.Context, payload TaxonomyRebuildPayload) (string, error) {
	if c == nil || c.client == nil {
		return "", fmt.Errorf("scheduler client not configured")
	}

	task, err := NewTaxonomyRebuildTask(payload)
	if err != nil {
		return "", err
	}

	info, err := c.client.EnqueueContext(ctx, task, rebuildOptions(c.queue)...)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

func rebuildOptions(queue string) []asynq.Option {
	return []asynq.Option{
		asynq.Queue(queue),
		asynq.MaxRetry(2),
		asynq.Timeout(rebuildTimeout),
	}
}

func queueName(cfg config.SchedulerConfig) string {
	if queue := cfg.GetAsynqQueueName(); queue != "" {
		return queue
	}
	return "default"
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
