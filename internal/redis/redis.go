package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	redis "github.com/redis/go-redis/v9"
	"github.com/sf7293/job-notifier/internal/domain"
	"github.com/sf7293/job-notifier/internal/errval"
	"log/slog"
)

const taskStatusKeyPrefix = "task:"

// Client backs two read-mostly projections: the ingress dedup window and the
// task status store. Snapshots expire after the configured retention.
type Client struct {
	Context     context.Context
	RedisClient *redis.Client
	retention   time.Duration
}

func NewClient(ctx context.Context, dsn string, retention time.Duration) (*Client, error) {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(opts)
	err = backoff.Retry(func() error {
		if pingErr := redisClient.Ping(ctx).Err(); pingErr != nil {
			slog.ErrorContext(ctx, "failed to ping redis.. retrying...", "error", pingErr)
			return pingErr
		}

		return nil
	}, backoff.WithMaxRetries(backoff.NewConstantBackOff(3*time.Second), 5))
	if err != nil {
		return nil, err
	}

	return &Client{
		Context:     ctx,
		RedisClient: redisClient,
		retention:   retention,
	}, nil
}

// Admit returns true the first time a dedup key is seen inside the window.
// SETNX with a TTL makes admission atomic across concurrent ingress calls.
func (c *Client) Admit(ctx context.Context, key string, window time.Duration) (result bool, err error) {
	result, err = c.RedisClient.SetNX(ctx, key, 1, window).Result()
	if err != nil {
		return false, err
	}

	return result, nil
}

// Release deletes a dedup key so a later delivery of the same event is
// admitted again.
func (c *Client) Release(ctx context.Context, key string) error {
	return c.RedisClient.Del(ctx, key).Err()
}

func (c *Client) SetTaskStatus(ctx context.Context, taskID string, status domain.TaskStatus) error {
	body, err := json.Marshal(status)
	if err != nil {
		return err
	}

	return c.RedisClient.Set(ctx, taskStatusKeyPrefix+taskID, string(body), c.retention).Err()
}

func (c *Client) GetTaskStatus(ctx context.Context, taskID string) (*domain.TaskStatus, error) {
	body, err := c.RedisClient.Get(ctx, taskStatusKeyPrefix+taskID).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, errval.ErrNotFound
		}

		return nil, err
	}

	status := new(domain.TaskStatus)
	if err = json.Unmarshal([]byte(body), status); err != nil {
		return nil, err
	}

	return status, nil
}

func (c *Client) Close() (err error) {
	err = c.RedisClient.Close()
	return err
}

func (c *Client) Ping(ctx context.Context) (err error) {
	err = c.RedisClient.Ping(ctx).Err()
	return err
}
