package locking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "intake:lock:"
	pollInterval = 25 * time.Millisecond
	maxPoll      = 250 * time.Millisecond
)

// Deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLocker holds locks as SET NX PX keys so every API replica sees them.
// The lease bounds how long a crashed holder can block a session.
type RedisLocker struct {
	client *redis.Client
	lease  time.Duration
}

func NewRedis(client *redis.Client, lease time.Duration) *RedisLocker {
	if lease <= 0 {
		lease = time.Minute
	}
	return &RedisLocker{client: client, lease: lease}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, wait time.Duration) (Release, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(wait)
	delay := pollInterval

	for {
		ok, err := l.client.SetNX(ctx, keyPrefix+key, token, l.lease).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		if ok {
			break
		}
		if time.Now().Add(delay).After(deadline) {
			return nil, ErrTimeout
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
		if delay *= 2; delay > maxPoll {
			delay = maxPoll
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Release even if the request context was cancelled.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, l.client, []string{keyPrefix + key}, token).Err()
		})
	}, nil
}
