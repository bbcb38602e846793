package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/KauaneAlmeida/back-end-teste/internal/intake"
)

// MemoryRepository keeps sessions in process. It is used when no Redis URL
// is configured and in tests. Stored values are cloned on the way in and
// out so callers never share a session with the repository.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*intake.Session
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]*intake.Session)}
}

func (r *MemoryRepository) Get(_ context.Context, sessionID string) (*intake.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (r *MemoryRepository) Save(_ context.Context, s *intake.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.SessionID] = s.Clone()
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	return nil
}

func (r *MemoryRepository) Ping(context.Context) error { return nil }

// Len reports how many sessions are stored.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// DeleteIdle drops sessions last updated before cutoff and returns how many
// were removed. The Store already ignores them on read; this only bounds memory.
func (r *MemoryRepository) DeleteIdle(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, s := range r.sessions {
		if s.LastUpdated.Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}
