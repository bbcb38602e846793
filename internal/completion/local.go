package completion

import (
	"context"
	"sync"
	"time"

	"github.com/KauaneAlmeida/back-end-teste/platform/logger"
)

const localKeyRetention = 24 * time.Hour

// LocalDispatcher runs jobs on goroutines inside the API process. It is used
// when no job queue is configured. Accepted keys are remembered for a day
// so a job is never started twice for the same conversation.
type LocalDispatcher struct {
	runner *Runner
	log    *logger.Logger
	now    func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
	wg   sync.WaitGroup
}

func NewLocalDispatcher(runner *Runner, log *logger.Logger) *LocalDispatcher {
	return &LocalDispatcher{runner: runner, log: log, now: time.Now, seen: make(map[string]time.Time)}
}

// Dispatch starts job unless its key was already accepted. The job outlives
// the request context.
func (d *LocalDispatcher) Dispatch(ctx context.Context, job Job) error {
	if !d.markAccepted(job.Key()) {
		return ErrDuplicate
	}

	runCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("completion job panicked", "key", job.Key(), "panic", r)
			}
		}()
		if err := d.runner.Run(runCtx, job); err != nil {
			d.log.WithContext(runCtx).Error("completion job failed", "key", job.Key(), "error", err)
		}
	}()
	return nil
}

// Wait blocks until every started job has finished.
func (d *LocalDispatcher) Wait() {
	d.wg.Wait()
}

func (d *LocalDispatcher) markAccepted(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if at, ok := d.seen[key]; ok && now.Sub(at) < localKeyRetention {
		return false
	}
	if len(d.seen) > 1024 {
		for k, at := range d.seen {
			if now.Sub(at) >= localKeyRetention {
				delete(d.seen, k)
			}
		}
	}
	d.seen[key] = now
	return true
}
