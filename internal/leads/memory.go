package leads

import (
	"context"
	"sync"

	"github.com/KauaneAlmeida/back-end-teste/internal/intake"

	"github.com/google/uuid"
)

// MemoryRepository keeps leads in process, for deployments without a
// database and for tests.
type MemoryRepository struct {
	mu     sync.Mutex
	byConv map[string]intake.LeadRecord
	saves  int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byConv: make(map[string]intake.LeadRecord)}
}

func (r *MemoryRepository) SaveLead(_ context.Context, rec intake.LeadRecord) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++

	if existing, ok := r.byConv[rec.ConversationID]; ok {
		if stale(existing.Stage, rec.Stage) {
			return existing.ID, nil
		}
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	} else {
		rec.ID = uuid.NewString()
	}
	r.byConv[rec.ConversationID] = rec
	return rec.ID, nil
}

func (r *MemoryRepository) FindByConversation(_ context.Context, conversationID string) (intake.LeadRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byConv[conversationID]
	if !ok {
		return intake.LeadRecord{}, ErrNotFound
	}
	return rec, nil
}

// Count returns the number of distinct leads.
func (r *MemoryRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byConv)
}

// Saves returns how many SaveLead calls were made.
func (r *MemoryRepository) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}
