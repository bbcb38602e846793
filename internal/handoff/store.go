package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "intake:whatsapp_auth:"

// Repository persists authorizations until they expire.
type Repository interface {
	Save(ctx context.Context, a Authorization) error
	// Get returns ErrNotFound for unknown or expired sessions.
	Get(ctx context.Context, sessionID string) (Authorization, error)
	Delete(ctx context.Context, sessionID string) error
}

// RedisRepository stores each authorization as a JSON string that Redis
// expires at ExpiresAt.
type RedisRepository struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client, now: time.Now}
}

func (r *RedisRepository) Save(ctx context.Context, a Authorization) error {
	ttl := a.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return r.Delete(ctx, a.SessionID)
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode authorization: %w", err)
	}
	if err := r.client.Set(ctx, keyPrefix+a.SessionID, raw, ttl).Err(); err != nil {
		return fmt.Errorf("save authorization: %w", err)
	}
	return nil
}

func (r *RedisRepository) Get(ctx context.Context, sessionID string) (Authorization, error) {
	raw, err := r.client.Get(ctx, keyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Authorization{}, ErrNotFound
	}
	if err != nil {
		return Authorization{}, fmt.Errorf("get authorization: %w", err)
	}

	var a Authorization
	if err := json.Unmarshal(raw, &a); err != nil {
		return Authorization{}, fmt.Errorf("decode authorization %s: %w", sessionID, err)
	}
	return a, nil
}

func (r *RedisRepository) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, keyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("delete authorization: %w", err)
	}
	return nil
}

// MemoryRepository keeps authorizations in process. Expired entries are
// hidden on read and dropped by DeleteExpired.
type MemoryRepository struct {
	mu    sync.RWMutex
	auths map[string]Authorization
	now   func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{auths: make(map[string]Authorization), now: time.Now}
}

func (r *MemoryRepository) Save(_ context.Context, a Authorization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auths[a.SessionID] = a
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, sessionID string) (Authorization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.auths[sessionID]
	if !ok || a.Expired(r.now()) {
		return Authorization{}, ErrNotFound
	}
	return a, nil
}

func (r *MemoryRepository) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.auths, sessionID)
	return nil
}

// DeleteExpired drops authorizations expired at now and returns how many
// were removed.
func (r *MemoryRepository) DeleteExpired(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, a := range r.auths {
		if a.Expired(now) {
			delete(r.auths, id)
			n++
		}
	}
	return n
}
