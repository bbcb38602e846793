// Package completion turns a qualified or completed conversation into
// side effects: persisting the lead, notifying the lawyers and confirming
// to the lead over WhatsApp. Each effect is a keyed job so it runs at most
// once per conversation no matter how many times it is dispatched.
package completion

import (
	"context"
	"errors"

	"github.com/KauaneAlmeida/back-end-teste/internal/intake"
)

// Kind names a side effect.
type Kind string

const (
	KindPersist Kind = "lead.persist"
	KindNotify  Kind = "lead.notify"
	KindConfirm Kind = "lead.confirm"
	// KindWelcome greets a contact authorized from the landing page. Its
	// ConversationID is the authorized session id.
	KindWelcome Kind = "whatsapp.welcome"
)

// ErrDuplicate is returned by a Dispatcher for a job key it has already accepted.
var ErrDuplicate = errors.New("completion job already dispatched")

// Job is one side effect for one conversation.
type Job struct {
	Kind           Kind              `json:"kind"`
	ConversationID string            `json:"conversation_id"`
	SessionID      string            `json:"session_id"`
	Stage          string            `json:"stage,omitempty"`
	Lead           intake.LeadRecord `json:"lead"`
	Phone          string            `json:"phone,omitempty"`
	Message        string            `json:"message,omitempty"`
	CorrelationID  string            `json:"correlation_id"`
}

// Key identifies the job for deduplication: conversation:kind[:stage].
func (j Job) Key() string {
	key := j.ConversationID + ":" + string(j.Kind)
	if j.Stage != "" {
		key += ":" + j.Stage
	}
	return key
}

func (j Job) pending() intake.PendingEffect {
	return intake.PendingEffect{
		Kind:          string(j.Kind),
		Stage:         j.Stage,
		Lead:          j.Lead,
		Phone:         j.Phone,
		Message:       j.Message,
		CorrelationID: j.CorrelationID,
	}
}

func jobFromPending(p intake.PendingEffect) Job {
	return Job{
		Kind:           Kind(p.Kind),
		ConversationID: p.Lead.ConversationID,
		SessionID:      p.Lead.SessionID,
		Stage:          p.Stage,
		Lead:           p.Lead,
		Phone:          p.Phone,
		Message:        p.Message,
		CorrelationID:  p.CorrelationID,
	}
}

// Dispatcher hands jobs to whatever executes them.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}

// Plan is what the coordinator decided for one turn.
type Plan struct {
	Decision intake.Decision
	Jobs     []Job
	// Notified is true when this turn handed the lead to the lawyers.
	Notified bool
	// Completed is true when this turn scheduled the completion effects.
	Completed bool
	// ConfirmationQueued is true when a WhatsApp confirmation will be sent.
	ConfirmationQueued bool
	// Retried counts jobs carried over from an earlier failed dispatch.
	Retried int
}

// Empty reports whether there is nothing to dispatch.
func (p Plan) Empty() bool { return len(p.Jobs) == 0 }

// Closing returns the message that ends a completed conversation.
func (p Plan) Closing() string {
	switch {
	case p.ConfirmationQueued:
		return intake.ClosingWithConfirmation
	case p.Completed:
		return intake.ClosingGeneric
	default:
		return intake.ClosingAlreadyQueued
	}
}
