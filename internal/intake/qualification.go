package intake

import (
	"math"
	"strings"
)

// Thresholds are the per-platform qualification rules.
type Thresholds struct {
	WebMinScore         float64
	WhatsAppMinScore    float64
	WhatsAppMinMessages int
}

// DefaultThresholds returns the production defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{WebMinScore: 0.8, WhatsAppMinScore: 0.7, WhatsAppMinMessages: 4}
}

// Decision is the evaluator's verdict for one session.
type Decision struct {
	ShouldNotify bool    `json:"should_notify"`
	Score        float64 `json:"score"`
	Reason       string  `json:"reason"`
}

// Decision reasons.
const (
	ReasonQualified        = "qualified"
	ReasonAlreadyNotified  = "already_notified"
	ReasonFlowIncomplete   = "flow_incomplete"
	ReasonMissingFields    = "missing_fields"
	ReasonScoreBelow       = "score_below_threshold"
	ReasonFewMessages      = "insufficient_messages"
	ReasonStepNotReached   = "case_details_step_not_reached"
	ReasonUnknownPlatform  = "unknown_platform"
	scoreComparisonEpsilon = 1e-9
)

// Evaluator decides whether a session's lead should reach the lawyers.
// It only reads the session, so it can run speculatively on every turn.
type Evaluator struct {
	t Thresholds
}

// NewEvaluator returns an evaluator using t.
func NewEvaluator(t Thresholds) *Evaluator {
	return &Evaluator{t: t}
}

// Evaluate applies the platform rule to s. flow locates the case-details
// step for the WhatsApp progress check.
func (e *Evaluator) Evaluate(s *Session, flow Flow) Decision {
	score := Score(s.LeadData)
	if s.LawyersNotified {
		return Decision{Score: score, Reason: ReasonAlreadyNotified}
	}

	switch s.Platform {
	case PlatformWeb:
		if !s.FlowCompleted {
			return Decision{Score: score, Reason: ReasonFlowIncomplete}
		}
		if missing := missingFields(s.LeadData, true); len(missing) > 0 {
			return Decision{Score: score, Reason: ReasonMissingFields + ":" + strings.Join(missing, ",")}
		}
		if score+scoreComparisonEpsilon < e.t.WebMinScore {
			return Decision{Score: score, Reason: ReasonScoreBelow}
		}
	case PlatformWhatsApp:
		if s.MessageCount < e.t.WhatsAppMinMessages {
			return Decision{Score: score, Reason: ReasonFewMessages}
		}
		if missing := missingFields(s.LeadData, false); len(missing) > 0 {
			return Decision{Score: score, Reason: ReasonMissingFields + ":" + strings.Join(missing, ",")}
		}
		if details, ok := flow.StepForField(FieldCaseDetails); ok && !s.FlowCompleted && s.CurrentStep < details.ID {
			return Decision{Score: score, Reason: ReasonStepNotReached}
		}
		if score+scoreComparisonEpsilon < e.t.WhatsAppMinScore {
			return Decision{Score: score, Reason: ReasonScoreBelow}
		}
	default:
		return Decision{Score: score, Reason: ReasonUnknownPlatform}
	}

	return Decision{ShouldNotify: true, Score: score, Reason: ReasonQualified}
}

// Score grades how complete and well-formed the lead data is, in [0, 1].
//
//	name          0.30 (0.15 when present but not a full name)
//	contact       0.25, plus 0.05 when both phone and e-mail are known
//	legal area    0.20 (0.10 for free text outside the known areas)
//	case details  0.20 (0.10 when shorter than ten characters)
func Score(d LeadData) float64 {
	score := 0.0
	if d.Has(FieldName) {
		if ValidName(d[FieldName]) {
			score += 0.30
		} else {
			score += 0.15
		}
	}
	if d.HasContact() {
		score += 0.25
		if d.Has(FieldPhone) && d.Has(FieldEmail) {
			score += 0.05
		}
	}
	if d.Has(FieldArea) {
		if area := d[FieldArea]; area == AreaCriminal || area == AreaHealth {
			score += 0.20
		} else {
			score += 0.10
		}
	}
	if d.Has(FieldCaseDetails) {
		if len([]rune(strings.TrimSpace(d[FieldCaseDetails]))) >= 10 {
			score += 0.20
		} else {
			score += 0.10
		}
	}
	return math.Min(1, math.Round(score*100)/100)
}

func missingFields(d LeadData, needDetails bool) []string {
	var missing []string
	if !d.Has(FieldName) {
		missing = append(missing, FieldName)
	}
	if !d.HasContact() {
		missing = append(missing, FieldContact)
	}
	if !d.Has(FieldArea) {
		missing = append(missing, FieldArea)
	}
	if needDetails && !d.Has(FieldCaseDetails) {
		missing = append(missing, FieldCaseDetails)
	}
	return missing
}
