// Package assistant produces free-form replies with a language model. The
// orchestrator treats it as optional: every call returns a typed Outcome
// and anything but StatusOK sends the turn to the structured flow.
package assistant

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/KauaneAlmeida/back-end-teste/internal/intake"
)

// Status classifies a generation attempt.
type Status string

const (
	StatusOK            Status = "ok"
	StatusTimeout       Status = "timeout"
	StatusQuotaExceeded Status = "quota_exceeded"
	StatusError         Status = "error"
	StatusEmpty         Status = "empty"
)

// Outcome is the result of one Generate call.
type Outcome struct {
	Status  Status
	Text    string
	Err     error
	Latency time.Duration
}

// OK reports whether Text can be sent to the user.
func (o Outcome) OK() bool { return o.Status == StatusOK }

// Context is what the model is told about the conversation so far.
type Context struct {
	Platform      intake.Platform
	CurrentStep   int
	Question      string
	LeadData      intake.LeadData
	FlowCompleted bool
}

// Generator is implemented by language model backends.
type Generator interface {
	Generate(ctx context.Context, message, sessionID string, c Context) Outcome
	// Reset forgets the conversation memory kept for sessionID.
	Reset(ctx context.Context, sessionID string) error
}

var quotaMarkers = []string{"429", "quota", "resourceexhausted", "billing", "ratelimitexceeded"}

// Classify maps a backend error to a Status.
func Classify(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout
	}
	msg := strings.ToLower(err.Error())
	msg = strings.NewReplacer(" ", "", "_", "").Replace(msg)
	for _, marker := range quotaMarkers {
		if strings.Contains(msg, marker) {
			return StatusQuotaExceeded
		}
	}
	if strings.Contains(msg, "deadlineexceeded") || strings.Contains(msg, "timeout") {
		return StatusTimeout
	}
	return StatusError
}
