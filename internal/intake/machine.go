package intake

import (
	"strings"
	"time"
)

// Outcome classifies what a turn did to the session.
type Outcome string

const (
	OutcomeGreeting      Outcome = "greeting"
	OutcomeQuestion      Outcome = "question"
	OutcomeClarification Outcome = "clarification"
	OutcomeCompleted     Outcome = "completed"
	OutcomeIdle          Outcome = "completed_idle"
)

// Policy carries the tunable validation rules.
type Policy struct {
	// CaseDetailsMinLength overrides the case-details step minimum when positive.
	CaseDetailsMinLength int
	// AreaAcceptFreeText accepts an area answer without a known keyword.
	AreaAcceptFreeText bool
	// StrictConfirmation requires an affirmative word on confirmation steps.
	StrictConfirmation bool
}

// Turn is the result of feeding one message to the machine.
type Turn struct {
	Outcome  Outcome
	Response string
	// Step is the step now awaiting an answer, or the last step once completed.
	Step int
	// Captured lists the lead fields written during the turn.
	Captured []string
}

// Completed reports whether this turn finished the questionnaire.
func (t Turn) Completed() bool { return t.Outcome == OutcomeCompleted }

const defaultClarification = "Não consegui entender sua resposta."

var affirmatives = []string{
	"sim", "s", "ok", "pode", "claro", "confirmo", "certo", "isso", "quero",
	"com certeza", "pode sim", "yes", "beleza", "perfeito", "autorizo",
}

// Machine drives a session through a flow. It is stateless apart from its
// configuration and safe for concurrent use.
type Machine struct {
	flow    Flow
	policy  Policy
	greeter *Greeter
}

// NewMachine builds a machine for flow.
func NewMachine(flow Flow, policy Policy, greeter *Greeter) *Machine {
	return &Machine{flow: flow, policy: policy, greeter: greeter}
}

// Flow returns the questionnaire this machine runs.
func (m *Machine) Flow() Flow { return m.flow }

// Start greets a new session and points it at the first step. The message
// that triggered the greeting is not treated as an answer.
func (m *Machine) Start(s *Session, now time.Time) Turn {
	first := m.flow.First()
	s.State = StateCollecting
	if s.CurrentStep < first.ID {
		s.CurrentStep = first.ID
	}
	m.skipSatisfied(s)
	step, _ := m.flow.Step(s.CurrentStep)
	return Turn{
		Outcome:  OutcomeGreeting,
		Response: m.greeter.Greeting(now, Interpolate(step.Question, s.LeadData)),
		Step:     s.CurrentStep,
	}
}

// Advance validates message against the current step. A valid answer is
// stored and the session moves to the next unanswered step; an invalid one
// leaves the session untouched and repeats the question.
func (m *Machine) Advance(s *Session, message string) Turn {
	switch s.State {
	case StateCompleted:
		return Turn{Outcome: OutcomeIdle, Response: closingIdle, Step: s.CurrentStep}
	case StateInitial:
		s.State = StateCollecting
	case StateErrorRecovery:
		s.State = StateCollecting
	}

	step := m.currentStep(s)
	value, ok := m.validate(step, message)
	if !ok {
		return Turn{
			Outcome:  OutcomeClarification,
			Response: m.clarify(step, s.LeadData),
			Step:     step.ID,
		}
	}

	captured := m.store(s, step, value, message)
	return m.moveOn(s, step, captured)
}

// Absorb records what it can from a message answered by the assistant.
// Extracted fields fill only gaps in the lead data; if the message also
// satisfies the current step it is stored exactly as Advance would.
func (m *Machine) Absorb(s *Session, message string, x ExtractedData) Turn {
	if s.State == StateCompleted {
		return Turn{Outcome: OutcomeIdle, Step: s.CurrentStep}
	}
	if s.State == StateInitial || s.State == StateErrorRecovery {
		s.State = StateCollecting
	}

	step := m.currentStep(s)
	var captured []string
	fill := func(field, value string) {
		if value != "" && !s.LeadData.Has(field) {
			s.LeadData[field] = value
			captured = append(captured, field)
		}
	}
	if x.NameSource == NameFromIntroduction || step.Rule == RuleName {
		fill(FieldName, x.Name)
	}
	fill(FieldPhone, x.Phone)
	fill(FieldEmail, x.Email)
	fill(FieldArea, x.Area)
	if x.Phone != "" {
		s.PhoneSubmitted = true
	}
	if x.Urgency == UrgencyHigh && s.LeadData[FieldUrgency] != UrgencyHigh {
		s.LeadData[FieldUrgency] = UrgencyHigh
		captured = append(captured, FieldUrgency)
	}

	if value, ok := m.validate(step, message); ok && !m.satisfied(s, step) {
		captured = append(captured, m.store(s, step, value, message)...)
		return m.moveOn(s, step, captured)
	}
	if m.satisfied(s, step) {
		return m.moveOn(s, step, captured)
	}
	return Turn{Outcome: OutcomeQuestion, Step: s.CurrentStep, Captured: captured}
}

// CurrentQuestion returns the interpolated question the session is waiting on.
func (m *Machine) CurrentQuestion(s *Session) string {
	return Interpolate(m.currentStep(s).Question, s.LeadData)
}

func (m *Machine) currentStep(s *Session) Step {
	if step, ok := m.flow.Step(s.CurrentStep); ok {
		return step
	}
	// Unknown pointer (flow changed under a live session): resume at the
	// first step that is not answered yet and never move backwards.
	for _, step := range m.flow.Steps {
		if step.ID >= s.CurrentStep && !m.satisfied(s, step) {
			s.CurrentStep = step.ID
			return step
		}
	}
	for _, step := range m.flow.Steps {
		if !m.satisfied(s, step) {
			if step.ID > s.CurrentStep {
				s.CurrentStep = step.ID
			}
			return step
		}
	}
	last := m.flow.Steps[len(m.flow.Steps)-1]
	if last.ID > s.CurrentStep {
		s.CurrentStep = last.ID
	}
	return last
}

func (m *Machine) moveOn(s *Session, step Step, captured []string) Turn {
	if step.NextStep == StepCompleted {
		return m.complete(s, captured)
	}
	s.CurrentStep = step.NextStep
	if m.skipSatisfied(s) {
		return m.complete(s, captured)
	}
	next, _ := m.flow.Step(s.CurrentStep)
	return Turn{
		Outcome:  OutcomeQuestion,
		Response: Interpolate(next.Question, s.LeadData),
		Step:     s.CurrentStep,
		Captured: captured,
	}
}

// skipSatisfied moves past steps whose field is already known and reports
// whether that ran off the end of the flow.
func (m *Machine) skipSatisfied(s *Session) bool {
	for {
		step, ok := m.flow.Step(s.CurrentStep)
		if !ok || !m.satisfied(s, step) {
			return false
		}
		if step.NextStep == StepCompleted {
			return true
		}
		s.CurrentStep = step.NextStep
	}
}

func (m *Machine) complete(s *Session, captured []string) Turn {
	s.State = StateCompleted
	s.FlowCompleted = true
	return Turn{Outcome: OutcomeCompleted, Step: s.CurrentStep, Captured: captured}
}

func (m *Machine) satisfied(s *Session, step Step) bool {
	if step.Rule == RuleContact {
		return s.LeadData.HasContact()
	}
	return s.LeadData.Has(step.Field)
}

func (m *Machine) clarify(step Step, data LeadData) string {
	prefix := step.Clarification
	if prefix == "" {
		prefix = defaultClarification
	}
	return prefix + " " + Interpolate(step.Question, data)
}

func (m *Machine) validate(step Step, message string) (string, bool) {
	text := strings.TrimSpace(message)
	if text == "" {
		return "", false
	}

	switch step.Rule {
	case RuleName:
		if name, source := ExtractName(text); source == NameFromIntroduction {
			return name, true
		}
		if ValidName(text) {
			return TitleName(text), true
		}
		return "", false
	case RuleContact:
		phoneNumber, email := ExtractPhone(text), ExtractEmail(text)
		switch {
		case phoneNumber != "" && email != "":
			return phoneNumber + " / " + email, true
		case phoneNumber != "":
			return phoneNumber, true
		case email != "":
			return email, true
		}
		return "", false
	case RuleArea:
		if area, ok := MatchArea(text); ok {
			return area, true
		}
		if m.policy.AreaAcceptFreeText && len([]rune(text)) >= 3 {
			return text, true
		}
		return "", false
	case RuleText:
		if len([]rune(text)) < m.minLength(step) {
			return "", false
		}
		return text, true
	case RuleConfirmation:
		if m.policy.StrictConfirmation && !isAffirmative(text) {
			return "", false
		}
		return text, true
	default:
		return text, true
	}
}

func (m *Machine) minLength(step Step) int {
	n := step.MinLength
	if step.Field == FieldCaseDetails && m.policy.CaseDetailsMinLength > 0 {
		n = m.policy.CaseDetailsMinLength
	}
	if n < 1 {
		n = 1
	}
	return n
}

// store writes a validated answer. Only the step's own field (and, for
// contact steps, the phone and e-mail sub-fields) is overwritten.
func (m *Machine) store(s *Session, step Step, value, raw string) []string {
	s.LeadData[step.Field] = value
	captured := []string{step.Field}

	switch step.Rule {
	case RuleContact:
		if p := ExtractPhone(raw); p != "" {
			s.LeadData[FieldPhone] = p
			s.PhoneSubmitted = true
			captured = append(captured, FieldPhone)
		}
		if e := ExtractEmail(raw); e != "" {
			s.LeadData[FieldEmail] = e
			captured = append(captured, FieldEmail)
		}
	case RuleText:
		if step.Field == FieldCaseDetails && DetectUrgency(raw) == UrgencyHigh {
			s.LeadData[FieldUrgency] = UrgencyHigh
			captured = append(captured, FieldUrgency)
		}
	}
	return captured
}

func isAffirmative(text string) bool {
	folded := foldForMatch(text)
	for _, word := range affirmatives {
		if strings.Contains(folded, " "+word+" ") {
			return true
		}
	}
	return false
}
