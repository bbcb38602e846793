package intake

import (
	"fmt"
	"strings"
	"time"
)

// Lead stages recorded with a persisted lead.
const (
	LeadStageQualified = "qualified"
	LeadStageCompleted = "completed"
)

// LeadRecord is the persisted shape of a qualified lead.
type LeadRecord struct {
	ID                 string            `json:"id,omitempty"`
	ConversationID     string            `json:"conversation_id"`
	SessionID          string            `json:"session_id"`
	Platform           Platform          `json:"platform"`
	Stage              string            `json:"stage"`
	Name               string            `json:"name"`
	Phone              string            `json:"phone"`
	Email              string            `json:"email"`
	LegalArea          string            `json:"legal_area"`
	CaseDetails        string            `json:"case_details"`
	Urgency            string            `json:"urgency"`
	QualificationScore float64           `json:"qualification_score"`
	Summary            string            `json:"summary"`
	Answers            map[string]string `json:"answers"`
	CorrelationID      string            `json:"correlation_id"`
	CreatedAt          time.Time         `json:"created_at"`
}

// NewLeadRecord maps a session's lead data onto a LeadRecord.
func NewLeadRecord(s *Session, stage string, now time.Time) LeadRecord {
	d := s.LeadData
	phoneNumber := d[FieldPhone]
	if phoneNumber == "" {
		phoneNumber = s.PhoneNumber
	}
	urgency := d[FieldUrgency]
	if urgency == "" {
		urgency = UrgencyNormal
	}
	return LeadRecord{
		ConversationID:     s.ConversationID,
		SessionID:          s.SessionID,
		Platform:           s.Platform,
		Stage:              stage,
		Name:               d[FieldName],
		Phone:              phoneNumber,
		Email:              d[FieldEmail],
		LegalArea:          d[FieldArea],
		CaseDetails:        d[FieldCaseDetails],
		Urgency:            urgency,
		QualificationScore: Score(d),
		Summary:            Summary(s),
		Answers:            d.Clone(),
		CorrelationID:      s.CorrelationID,
		CreatedAt:          now.UTC(),
	}
}

// Summary is the operator-facing text describing a lead.
func Summary(s *Session) string {
	d := s.LeadData
	whatsapp := d[FieldPhone]
	if whatsapp == "" {
		whatsapp = s.PhoneNumber
	}
	contact := d[FieldContact]
	if contact == "" {
		contact = strings.Trim(strings.Join([]string{d[FieldPhone], d[FieldEmail]}, " / "), " /")
	}

	var b strings.Builder
	b.WriteString("Lead Qualificado:\n")
	fmt.Fprintf(&b, "Nome: %s\n", orNA(d[FieldName]))
	fmt.Fprintf(&b, "Contato: %s\n", orNA(contact))
	fmt.Fprintf(&b, "Área: %s\n", orNA(d[FieldArea]))
	fmt.Fprintf(&b, "Situação: %s\n", orNA(d[FieldCaseDetails]))
	fmt.Fprintf(&b, "WhatsApp: %s\n", orNA(whatsapp))
	if d[FieldUrgency] == UrgencyHigh {
		b.WriteString("Urgência: alta\n")
	}
	b.WriteString("\nPronto para atendimento")
	return b.String()
}

// WelcomeMessage is the WhatsApp confirmation sent to the lead.
func WelcomeMessage(d LeadData) string {
	name := d.FirstName()
	if name == "" {
		name = "Cliente"
	}
	area := d[FieldArea]
	if area == "" {
		area = "sua área jurídica"
	}
	return fmt.Sprintf("Olá %s!\n\nSuas informações foram registradas com sucesso no m.lima.\n\n"+
		"Resumo:\n• Área: %s\n• Status: Em análise\n\n"+
		"Nossa equipe especializada entrará em contato em breve para dar continuidade ao seu caso.\n\n"+
		"Obrigado pela confiança!", name, area)
}

func orNA(value string) string {
	if strings.TrimSpace(value) == "" {
		return "N/A"
	}
	return value
}
