package intake

import (
	"strings"
	"testing"
)

func completedWebSession() *Session {
	s := NewSession("web_1", PlatformWeb, morning)
	s.State = StateCompleted
	s.FlowCompleted = true
	s.CurrentStep = 5
	s.LeadData = LeadData{
		FieldName:         "João Silva",
		FieldContact:      "5511987654321",
		FieldPhone:        "5511987654321",
		FieldArea:         AreaCriminal,
		FieldCaseDetails:  "Meu irmão foi preso ontem à noite",
		FieldConfirmation: "sim",
	}
	return s
}

func whatsAppSession(messages, step int) *Session {
	s := NewSession("whatsapp_5511987654321", PlatformWhatsApp, morning)
	s.State = StateCollecting
	s.MessageCount = messages
	s.CurrentStep = step
	s.LeadData = LeadData{
		FieldName:  "Ana Souza",
		FieldPhone: "5511987654321",
		FieldArea:  AreaHealth,
	}
	return s
}

func TestEvaluateWebQualifiesCompletedFlow(t *testing.T) {
	d := NewEvaluator(DefaultThresholds()).Evaluate(completedWebSession(), DefaultFlow())
	if !d.ShouldNotify || d.Reason != ReasonQualified {
		t.Fatalf("expected qualified, got %+v", d)
	}
	if d.Score != 0.95 {
		t.Fatalf("expected score 0.95, got %v", d.Score)
	}
}

func TestEvaluateWebRequiresCompletion(t *testing.T) {
	s := completedWebSession()
	s.FlowCompleted = false
	s.State = StateCollecting

	d := NewEvaluator(DefaultThresholds()).Evaluate(s, DefaultFlow())
	if d.ShouldNotify || d.Reason != ReasonFlowIncomplete {
		t.Fatalf("expected flow_incomplete, got %+v", d)
	}
}

func TestEvaluateWebMissingDetails(t *testing.T) {
	s := completedWebSession()
	delete(s.LeadData, FieldCaseDetails)

	d := NewEvaluator(DefaultThresholds()).Evaluate(s, DefaultFlow())
	if d.ShouldNotify || !strings.HasPrefix(d.Reason, ReasonMissingFields) {
		t.Fatalf("expected missing fields, got %+v", d)
	}
}

func TestEvaluateNeverNotifiesTwice(t *testing.T) {
	s := completedWebSession()
	s.LawyersNotified = true

	d := NewEvaluator(DefaultThresholds()).Evaluate(s, DefaultFlow())
	if d.ShouldNotify || d.Reason != ReasonAlreadyNotified {
		t.Fatalf("expected already_notified, got %+v", d)
	}
}

func TestEvaluateWhatsAppRules(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())
	flow := DefaultFlow()

	if d := e.Evaluate(whatsAppSession(4, 4), flow); !d.ShouldNotify || d.Score != 0.75 {
		t.Fatalf("expected qualification at step 4, got %+v", d)
	}
	if d := e.Evaluate(whatsAppSession(3, 4), flow); d.ShouldNotify || d.Reason != ReasonFewMessages {
		t.Fatalf("expected insufficient messages, got %+v", d)
	}
	if d := e.Evaluate(whatsAppSession(6, 3), flow); d.ShouldNotify || d.Reason != ReasonStepNotReached {
		t.Fatalf("expected step not reached, got %+v", d)
	}
}

func TestEvaluateWhatsAppScoreThreshold(t *testing.T) {
	s := whatsAppSession(5, 4)
	s.LeadData[FieldName] = "Ana"
	s.LeadData[FieldArea] = "trabalhista"

	d := NewEvaluator(DefaultThresholds()).Evaluate(s, DefaultFlow())
	if d.ShouldNotify || d.Reason != ReasonScoreBelow {
		t.Fatalf("expected score below threshold, got %+v", d)
	}
}

func TestScoreWeights(t *testing.T) {
	full := LeadData{
		FieldName:        "João Silva",
		FieldPhone:       "5511987654321",
		FieldEmail:       "joao@example.com",
		FieldArea:        AreaHealth,
		FieldCaseDetails: "Plano negou a cirurgia",
	}
	if got := Score(full); got != 1 {
		t.Fatalf("expected full score, got %v", got)
	}
	if got := Score(LeadData{}); got != 0 {
		t.Fatalf("expected zero score, got %v", got)
	}
	if got := Score(nil); got != 0 {
		t.Fatalf("expected zero score for nil data, got %v", got)
	}
	partial := LeadData{FieldName: "João", FieldCaseDetails: "curto"}
	if got := Score(partial); got != 0.25 {
		t.Fatalf("expected 0.25, got %v", got)
	}
}
