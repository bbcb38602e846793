package scheduler

import (
	"context"
	"fmt"

	"github.com/KauaneAlmeida/back-end-teste/internal/completion"
	"github.com/KauaneAlmeida/back-end-teste/platform/config"
	"github.com/KauaneAlmeida/back-end-teste/platform/logger"
	"github.com/KauaneAlmeida/back-end-teste/platform/rediskit"

	"github.com/hibiken/asynq"
)

// Worker executes completion jobs taken from the queue.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	runner *completion.Runner
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, runner *completion.Runner, log *logger.Logger) (*Worker, error) {
	opt, err := rediskit.AsynqOpt(cfg)
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	w := &Worker{
		mux:    asynq.NewServeMux(),
		runner: runner,
		log:    log,
	}
	w.server = asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(w.reportFailure),
	})

	w.mux.HandleFunc(TaskLeadPersist, w.handleCompletionJob)
	w.mux.HandleFunc(TaskLeadNotify, w.handleCompletionJob)
	w.mux.HandleFunc(TaskLeadConfirm, w.handleCompletionJob)
	w.mux.HandleFunc(TaskWelcome, w.handleCompletionJob)

	return w, nil
}

func (w *Worker) handleCompletionJob(ctx context.Context, task *asynq.Task) error {
	job, err := ParseCompletionPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return w.runner.Run(ctx, job)
}

func (w *Worker) reportFailure(ctx context.Context, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	taskID, _ := asynq.GetTaskID(ctx)
	w.log.Error("completion task failed",
		"task", task.Type(),
		"task_id", taskID,
		"retry", retried,
		"max_retry", maxRetry,
		"error", err,
	)
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return nil
	}

	if err := w.server.Start(w.mux); err != nil {
		w.log.Error("scheduler worker failed to start", "error", err)
		return err
	}
	<-ctx.Done()
	w.server.Shutdown()
	w.log.Info("scheduler worker stopped")
	return nil
}
