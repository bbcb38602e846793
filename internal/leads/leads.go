// Package leads stores qualified leads. A lead is keyed by its conversation,
// so saving the same conversation twice updates one row instead of
// creating a duplicate.
package leads

import (
	"context"
	"errors"

	"github.com/KauaneAlmeida/back-end-teste/internal/intake"
)

// ErrNotFound is returned when no lead exists for a conversation.
var ErrNotFound = errors.New("lead not found")

// Repository is the storage contract for leads.
type Repository interface {
	// SaveLead upserts the record on its conversation id and returns the lead id.
	SaveLead(ctx context.Context, rec intake.LeadRecord) (string, error)
	// FindByConversation returns the lead recorded for a conversation.
	FindByConversation(ctx context.Context, conversationID string) (intake.LeadRecord, error)
}

// stale reports whether incoming is an older snapshot than current: a
// qualified record arriving after the completed one. Stale records are
// dropped entirely when the persistence jobs finish out of order.
func stale(current, incoming string) bool {
	return current == intake.LeadStageCompleted && incoming != intake.LeadStageCompleted
}
