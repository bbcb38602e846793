package orchestrator

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/KauaneAlmeida/back-end-teste/internal/intake"
	"github.com/KauaneAlmeida/back-end-teste/platform/phone"
)

// Response types reported in every envelope.
const (
	ResponseGreeting         = "greeting"
	ResponseQuestion         = "question"
	ResponseClarification    = "clarification"
	ResponseCompleted        = "completed"
	ResponseCompletedIdle    = "completed_idle"
	ResponseAI               = "ai_intelligent"
	ResponseRateLimited      = "rate_limited"
	ResponseBusy             = "busy"
	ResponseDuplicate        = "duplicate"
	ResponseRestarted        = "restarted"
	ResponseErrorRecovery    = "error_recovery"
	ResponseFallbackGreeting = "fallback_greeting"
)

// Request is one inbound user message.
type Request struct {
	Message     string
	SessionID   string
	PhoneNumber string
	Platform    intake.Platform
}

// Envelope is returned for every conversation call. LeadData is never nil.
type Envelope struct {
	SessionID          string          `json:"session_id"`
	Response           string          `json:"response"`
	ResponseType       string          `json:"response_type"`
	LeadData           intake.LeadData `json:"lead_data"`
	Step               int             `json:"step"`
	CurrentStep        int             `json:"current_step"`
	State              intake.State    `json:"state"`
	FlowCompleted      bool            `json:"flow_completed"`
	PhoneSubmitted     bool            `json:"phone_submitted"`
	LawyersNotified    bool            `json:"lawyers_notified"`
	AIMode             bool            `json:"ai_mode"`
	MessageCount       int             `json:"message_count"`
	QualificationScore float64         `json:"qualification_score"`
	CorrelationID      string          `json:"correlation_id"`
}

func bareEnvelope(sessionID, correlationID, response, responseType string) Envelope {
	return Envelope{
		SessionID:     sessionID,
		Response:      response,
		ResponseType:  responseType,
		LeadData:      intake.LeadData{},
		State:         intake.StateInitial,
		CorrelationID: correlationID,
	}
}

func sessionEnvelope(s *intake.Session, response, responseType string, aiMode bool) Envelope {
	return Envelope{
		SessionID:          s.SessionID,
		Response:           response,
		ResponseType:       responseType,
		LeadData:           s.LeadData.Clone(),
		Step:               s.CurrentStep,
		CurrentStep:        s.CurrentStep,
		State:              s.State,
		FlowCompleted:      s.FlowCompleted,
		PhoneSubmitted:     s.PhoneSubmitted,
		LawyersNotified:    s.LawyersNotified,
		AIMode:             aiMode,
		MessageCount:       s.MessageCount,
		QualificationScore: s.QualificationScore,
		CorrelationID:      s.CorrelationID,
	}
}

// SessionContext is the read-only view of a stored session.
type SessionContext struct {
	*intake.Session
	CurrentQuestion string `json:"current_question,omitempty"`
}

// NewSessionID returns an id for a caller that did not supply one:
// whatsapp_<digits> for a known WhatsApp sender, web_<unix>_<hex8> otherwise.
func NewSessionID(platform intake.Platform, phoneNumber string, now time.Time) string {
	if platform == intake.PlatformWhatsApp {
		if digits := phone.Digits(phoneNumber); digits != "" {
			return "whatsapp_" + digits
		}
	}
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("web_%d_%s", now.Unix(), hex.EncodeToString(buf))
}
