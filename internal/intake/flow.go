package intake

import (
	"errors"
	"fmt"
	"strings"
)

// Rule names the validator a step applies to its answer.
type Rule string

const (
	RuleName         Rule = "name"
	RuleContact      Rule = "contact"
	RuleArea         Rule = "area"
	RuleText         Rule = "text"
	RuleConfirmation Rule = "confirmation"
)

// StepCompleted is the NextStep value marking the end of the flow.
const StepCompleted = 0

// Step is one question of the questionnaire.
// Question may reference {user_name} and {area}.
type Step struct {
	ID            int    `json:"id" yaml:"id"`
	Question      string `json:"question" yaml:"question"`
	Field         string `json:"field" yaml:"field"`
	Rule          Rule   `json:"rule" yaml:"rule"`
	MinLength     int    `json:"min_length,omitempty" yaml:"min_length"`
	NextStep      int    `json:"next_step" yaml:"next_step"`
	Clarification string `json:"clarification,omitempty" yaml:"clarification"`
}

// Flow is an ordered questionnaire. Steps[0] is the entry point.
type Flow struct {
	Name   string `json:"name" yaml:"name"`
	Steps  []Step `json:"steps" yaml:"steps"`
	Source string `json:"source" yaml:"-"`
}

// DefaultFlow is the built-in five-step legal intake questionnaire used
// whenever no external definition can be loaded.
func DefaultFlow() Flow {
	return Flow{
		Name:   "default",
		Source: "builtin",
		Steps: []Step{
			{
				ID:            1,
				Question:      "Para começar, qual é o seu nome completo?",
				Field:         FieldName,
				Rule:          RuleName,
				NextStep:      2,
				Clarification: "Preciso do seu nome e sobrenome.",
			},
			{
				ID:            2,
				Question:      "Prazer, {user_name}! Qual o melhor telefone com DDD ou e-mail para contato?",
				Field:         FieldContact,
				Rule:          RuleContact,
				NextStep:      3,
				Clarification: "Não consegui identificar um telefone com DDD ou um e-mail válido.",
			},
			{
				ID:            3,
				Question:      "Em qual área você precisa de ajuda, {user_name}? Atendemos Direito Penal e Saúde/Liminares.",
				Field:         FieldArea,
				Rule:          RuleArea,
				NextStep:      4,
				Clarification: "Por favor, informe se o seu caso é de Direito Penal ou de Saúde/Liminares.",
			},
			{
				ID:            4,
				Question:      "Entendi. Descreva brevemente a sua situação em {area}.",
				Field:         FieldCaseDetails,
				Rule:          RuleText,
				MinLength:     10,
				NextStep:      5,
				Clarification: "Por favor, forneça uma resposta mais completa.",
			},
			{
				ID:            5,
				Question:      "Posso encaminhar essas informações para um de nossos advogados especializados? Responda 'sim' para confirmar.",
				Field:         FieldConfirmation,
				Rule:          RuleConfirmation,
				NextStep:      StepCompleted,
				Clarification: "Responda 'sim' para que um advogado entre em contato.",
			},
		},
	}
}

// Validate checks the flow is usable: steps exist, ids are unique and
// positive, and every transition points forward to a known step.
func (f Flow) Validate() error {
	if len(f.Steps) == 0 {
		return errors.New("flow has no steps")
	}
	ids := make(map[int]bool, len(f.Steps))
	for _, s := range f.Steps {
		if s.ID <= 0 {
			return fmt.Errorf("step id %d must be positive", s.ID)
		}
		if ids[s.ID] {
			return fmt.Errorf("duplicate step id %d", s.ID)
		}
		ids[s.ID] = true
		if strings.TrimSpace(s.Question) == "" || strings.TrimSpace(s.Field) == "" {
			return fmt.Errorf("step %d needs a question and a field", s.ID)
		}
		switch s.Rule {
		case RuleName, RuleContact, RuleArea, RuleText, RuleConfirmation:
		default:
			return fmt.Errorf("step %d has unknown rule %q", s.ID, s.Rule)
		}
	}
	for _, s := range f.Steps {
		if s.NextStep == StepCompleted {
			continue
		}
		if !ids[s.NextStep] {
			return fmt.Errorf("step %d points to unknown step %d", s.ID, s.NextStep)
		}
		if s.NextStep <= s.ID {
			return fmt.Errorf("step %d must point forward, got %d", s.ID, s.NextStep)
		}
	}
	return nil
}

// First returns the entry step.
func (f Flow) First() Step {
	return f.Steps[0]
}

// Step looks up a step by id.
func (f Flow) Step(id int) (Step, bool) {
	for _, s := range f.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// StepForField returns the step collecting field.
func (f Flow) StepForField(field string) (Step, bool) {
	for _, s := range f.Steps {
		if s.Field == field {
			return s, true
		}
	}
	return Step{}, false
}

// Interpolate fills the {user_name} and {area} placeholders.
func Interpolate(question string, data LeadData) string {
	area := strings.TrimSpace(data[FieldArea])
	if area == "" {
		area = "sua área jurídica"
	}
	name := data.FirstName()
	if name == "" {
		// "Prazer, {user_name}!" becomes "Prazer!"
		return strings.NewReplacer(", {user_name}", "", " {user_name}", "", "{user_name}", "", "{area}", area).Replace(question)
	}
	return strings.NewReplacer("{user_name}", name, "{area}", area).Replace(question)
}
