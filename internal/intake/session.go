// Package intake holds the conversation core: session state, the
// questionnaire definition and state machine, field extraction and the
// qualification rules. Everything here is pure; I/O lives in the adapters.
package intake

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Platform identifies the channel a conversation arrives on.
type Platform string

const (
	PlatformWeb      Platform = "web"
	PlatformWhatsApp Platform = "whatsapp"
)

// ParsePlatform maps free input to a Platform, defaulting to web.
func ParsePlatform(value string) Platform {
	if strings.EqualFold(strings.TrimSpace(value), string(PlatformWhatsApp)) {
		return PlatformWhatsApp
	}
	return PlatformWeb
}

// State is the position of a session in the conversation lifecycle.
type State string

const (
	StateInitial       State = "initial"
	StateCollecting    State = "collecting"
	StateCompleted     State = "completed"
	StateErrorRecovery State = "error_recovery"
)

// Lead data keys.
const (
	FieldName         = "name"
	FieldContact      = "contact"
	FieldPhone        = "phone"
	FieldEmail        = "email"
	FieldArea         = "area"
	FieldCaseDetails  = "case_details"
	FieldConfirmation = "confirmation"
	FieldUrgency      = "urgency"
)

// LeadData is the open map of answers collected for a lead.
// A nil LeadData encodes as {} so it can never surface as null.
type LeadData map[string]string

// MarshalJSON implements json.Marshaler.
func (d LeadData) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]string(d))
}

// Clone returns an independent, never-nil copy.
func (d LeadData) Clone() LeadData {
	out := make(LeadData, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Has reports whether field holds a non-blank value.
func (d LeadData) Has(field string) bool {
	return strings.TrimSpace(d[field]) != ""
}

// HasContact reports whether a phone or e-mail was captured.
func (d LeadData) HasContact() bool {
	return d.Has(FieldPhone) || d.Has(FieldEmail) || d.Has(FieldContact)
}

// FirstName returns the first word of the collected name.
func (d LeadData) FirstName() string {
	fields := strings.Fields(d[FieldName])
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Session is the persisted state of one end-user conversation.
type Session struct {
	SessionID              string    `json:"session_id"`
	ConversationID         string    `json:"conversation_id"`
	Platform               Platform  `json:"platform"`
	State                  State     `json:"state"`
	CurrentStep            int       `json:"current_step"`
	LeadData               LeadData  `json:"lead_data"`
	MessageCount           int       `json:"message_count"`
	FlowCompleted          bool      `json:"flow_completed"`
	PhoneSubmitted         bool      `json:"phone_submitted"`
	PhoneNumber            string    `json:"phone_number,omitempty"`
	LawyersNotified        bool      `json:"lawyers_notified"`
	CompletionDispatched   bool      `json:"completion_dispatched"`
	QualificationScore     float64   `json:"qualification_score"`
	RecoveryCount          int       `json:"recovery_count"`
	RestartedFromCompleted bool      `json:"restarted_from_completed,omitempty"`
	LastMessage            string    `json:"last_message,omitempty"`
	LastMessageAt          time.Time `json:"last_message_at,omitempty"`
	LastResponse           string    `json:"last_response,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
	LastUpdated            time.Time `json:"last_updated"`
	CorrelationID          string    `json:"correlation_id,omitempty"`

	// PendingEffects are side effects that could not be queued; the next
	// turn queues them again.
	PendingEffects []PendingEffect `json:"pending_effects,omitempty"`
}

// PendingEffect is a planned side effect waiting to be queued. It keeps the
// lead snapshot it was planned with so a later restart does not change it.
type PendingEffect struct {
	Kind          string     `json:"kind"`
	Stage         string     `json:"stage,omitempty"`
	Lead          LeadRecord `json:"lead"`
	Phone         string     `json:"phone,omitempty"`
	Message       string     `json:"message,omitempty"`
	CorrelationID string     `json:"correlation_id,omitempty"`
}

// NewSession returns a fresh session in the initial state.
func NewSession(sessionID string, platform Platform, now time.Time) *Session {
	now = now.UTC()
	return &Session{
		SessionID:      sessionID,
		ConversationID: uuid.NewString(),
		Platform:       platform,
		State:          StateInitial,
		LeadData:       LeadData{},
		CreatedAt:      now,
		LastUpdated:    now,
	}
}

// Repair fills in required fields a stored session may lack and returns the
// names of the fields it had to fix. An empty result means nothing changed.
func (s *Session) Repair(now time.Time) []string {
	var fixed []string
	if s.LeadData == nil {
		s.LeadData = LeadData{}
		fixed = append(fixed, "lead_data")
	}
	if s.Platform != PlatformWeb && s.Platform != PlatformWhatsApp {
		s.Platform = ParsePlatform(string(s.Platform))
		fixed = append(fixed, "platform")
	}
	if s.CurrentStep < 0 {
		s.CurrentStep = 0
		fixed = append(fixed, "current_step")
	}
	switch s.State {
	case StateInitial, StateCollecting, StateCompleted, StateErrorRecovery:
	default:
		s.State = StateInitial
		if s.CurrentStep > 0 {
			s.State = StateCollecting
		}
		fixed = append(fixed, "state")
	}
	if s.ConversationID == "" {
		s.ConversationID = uuid.NewString()
		fixed = append(fixed, "conversation_id")
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now.UTC()
		fixed = append(fixed, "created_at")
	}
	if s.LastUpdated.IsZero() {
		s.LastUpdated = s.CreatedAt
		fixed = append(fixed, "last_updated")
	}
	if s.MessageCount < 0 {
		s.MessageCount = 0
		fixed = append(fixed, "message_count")
	}
	return fixed
}

// Expired reports whether the session has been idle longer than ttl.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(s.LastUpdated) > ttl
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.LeadData = s.LeadData.Clone()
	if s.PendingEffects != nil {
		out.PendingEffects = append([]PendingEffect(nil), s.PendingEffects...)
	}
	return &out
}
