package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/KauaneAlmeida/back-end-teste/internal/completion"
	"github.com/KauaneAlmeida/back-end-teste/platform/config"
	"github.com/KauaneAlmeida/back-end-teste/platform/rediskit"

	"github.com/hibiken/asynq"
)

const persistMaxRetry = 5

// Client enqueues completion jobs. The job key is used as the asynq task
// id, so a conversation can never have two jobs of the same kind in the
// queue while the previous one is retained.
type Client struct {
	client    *asynq.Client
	queue     string
	retention time.Duration
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	opt, err := rediskit.AsynqOpt(cfg)
	if err != nil {
		return nil, err
	}
	return newClient(asynq.NewClient(opt), cfg), nil
}

func newClient(client *asynq.Client, cfg config.SchedulerConfig) *Client {
	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}
	retention := cfg.GetJobRetention()
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Client{client: client, queue: queue, retention: retention}
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Dispatch implements completion.Dispatcher.
func (c *Client) Dispatch(ctx context.Context, job completion.Job) error {
	if c == nil || c.client == nil {
		return errors.New("scheduler client not configured")
	}

	task, err := NewCompletionTask(job, c.options(job)...)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return completion.ErrDuplicate
	}
	return err
}

// options picks the delivery guarantees per kind. Notifications retry
// internally and confirmations are best effort, so only persistence is
// retried by the queue.
func (c *Client) options(job completion.Job) []asynq.Option {
	opts := []asynq.Option{
		asynq.TaskID(job.Key()),
		asynq.Queue(c.queue),
		asynq.Retention(c.retention),
	}
	switch job.Kind {
	case completion.KindPersist:
		opts = append(opts, asynq.MaxRetry(persistMaxRetry))
	default:
		opts = append(opts, asynq.MaxRetry(0))
	}
	return opts
}

var _ completion.Dispatcher = (*Client)(nil)
