// Package ratelimit implements the per-session sliding-window message limit.
// LocalLimiter serves a single process; RedisLimiter shares the window
// across API replicas.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter admits or rejects one event for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// LocalLimiter keeps the timestamps of recent events per key.
type LocalLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu     sync.Mutex
	events map[string][]time.Time
}

// NewLocal allows limit events per key in any window-long interval.
func NewLocal(limit int, window time.Duration) *LocalLimiter {
	return &LocalLimiter{limit: limit, window: window, now: time.Now, events: make(map[string][]time.Time)}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	recent := l.events[key]
	i := 0
	for i < len(recent) && !recent[i].After(cutoff) {
		i++
	}
	recent = recent[i:]

	if len(recent) >= l.limit {
		l.events[key] = recent
		return false, nil
	}
	l.events[key] = append(recent, now)

	if len(l.events) > 4096 {
		l.sweep(cutoff)
	}
	return true, nil
}

func (l *LocalLimiter) sweep(cutoff time.Time) {
	for key, recent := range l.events {
		if len(recent) == 0 || !recent[len(recent)-1].After(cutoff) {
			delete(l.events, key)
		}
	}
}
