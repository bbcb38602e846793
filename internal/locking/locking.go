// Package locking serializes work on one conversation session. Acquire
// waits a bounded time; callers that cannot get the lock answer the user
// with a "try again" message instead of queueing forever.
package locking

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned when the lock could not be acquired in time.
var ErrTimeout = errors.New("lock acquire timed out")

// Release gives the lock back. It is safe to call more than once.
type Release func()

// Locker acquires exclusive per-key locks.
type Locker interface {
	Acquire(ctx context.Context, key string, wait time.Duration) (Release, error)
}

// LocalLocker is an in-process keyed mutex. Entries are dropped when the
// last holder or waiter is gone, so the map only holds active keys.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*entry)}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string, wait time.Duration) (Release, error) {
	e := l.ref(key)

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case e.ch <- struct{}{}:
	case <-timer.C:
		l.unref(key)
		return nil, ErrTimeout
	case <-ctx.Done():
		l.unref(key)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.unref(key)
		})
	}, nil
}

func (l *LocalLocker) ref(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	return e
}

func (l *LocalLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.locks[key]
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// Active returns the number of keys currently held or awaited.
func (l *LocalLocker) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
