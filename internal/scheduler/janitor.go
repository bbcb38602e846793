package scheduler

import (
	"context"
	"time"

	"github.com/KauaneAlmeida/back-end-teste/platform/logger"
)

const defaultJanitorInterval = 10 * time.Minute

// SweepFunc drops expired in-process state and returns how many entries it removed.
type SweepFunc func(now time.Time) int

// Janitor periodically sweeps in-process state that is otherwise only
// expired lazily, such as the memory session repository.
type Janitor struct {
	log      *logger.Logger
	interval time.Duration
	names    []string
	sweeps   []SweepFunc
	now      func() time.Time
}

func NewJanitor(log *logger.Logger, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = defaultJanitorInterval
	}
	return &Janitor{log: log, interval: interval, now: time.Now}
}

// Add registers a sweep under name.
func (j *Janitor) Add(name string, fn SweepFunc) {
	if fn == nil {
		return
	}
	j.names = append(j.names, name)
	j.sweeps = append(j.sweeps, fn)
}

// Run sweeps on every tick until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	if j == nil || len(j.sweeps) == 0 {
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.SweepOnce()
		}
	}
}

// SweepOnce runs every registered sweep.
func (j *Janitor) SweepOnce() int {
	now := j.now()
	total := 0
	for i, sweep := range j.sweeps {
		removed := sweep(now)
		total += removed
		if removed > 0 {
			j.log.Info("expired entries swept", "target", j.names[i], "removed", removed)
		}
	}
	return total
}
