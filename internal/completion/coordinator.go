package completion

import (
	"context"
	"errors"
	"time"

	"github.com/KauaneAlmeida/back-end-teste/internal/intake"
	"github.com/KauaneAlmeida/back-end-teste/platform/logger"
)

// Coordinator decides which side effects a turn triggers and dispatches them.
//
// Prepare must run while the caller holds the session lock: it flips the
// session's lawyers_notified and completion_dispatched flags so that the
// next turn, which can only start after the session is saved, never plans
// the same effects again. Dispatch must run only after that save succeeded.
type Coordinator struct {
	dispatcher Dispatcher
	log        *logger.Logger
	now        func() time.Time
}

func NewCoordinator(dispatcher Dispatcher, log *logger.Logger) *Coordinator {
	return &Coordinator{dispatcher: dispatcher, log: log, now: time.Now}
}

// Prepare plans the jobs for s given the evaluator's decision and marks
// the session accordingly. Effects left pending by an earlier failed
// dispatch are planned again first.
func (c *Coordinator) Prepare(s *intake.Session, d intake.Decision) Plan {
	plan := Plan{Decision: d}
	now := c.now()

	for _, p := range s.PendingEffects {
		plan.Jobs = append(plan.Jobs, jobFromPending(p))
		plan.Retried++
	}
	s.PendingEffects = nil

	if d.ShouldNotify && !s.LawyersNotified {
		s.LawyersNotified = true
		s.QualificationScore = d.Score
		rec := intake.NewLeadRecord(s, intake.LeadStageQualified, now)
		plan.Notified = true
		plan.Jobs = append(plan.Jobs,
			c.job(s, KindPersist, intake.LeadStageQualified, rec),
			c.job(s, KindNotify, "", rec),
		)
	}

	if s.FlowCompleted && !s.CompletionDispatched {
		s.CompletionDispatched = true
		rec := intake.NewLeadRecord(s, intake.LeadStageCompleted, now)
		plan.Completed = true
		plan.Jobs = append(plan.Jobs, c.job(s, KindPersist, intake.LeadStageCompleted, rec))

		if rec.Phone != "" {
			confirm := c.job(s, KindConfirm, "", rec)
			confirm.Phone = rec.Phone
			confirm.Message = intake.WelcomeMessage(s.LeadData)
			plan.Jobs = append(plan.Jobs, confirm)
			plan.ConfirmationQueued = true
		}
	}

	return plan
}

// Dispatch hands the plan's jobs to the dispatcher and returns the ones it
// refused. Duplicates are expected after retried requests and count as
// dispatched. Failures never fail the turn; the caller records them with
// Defer so the next turn queues them again.
func (c *Coordinator) Dispatch(ctx context.Context, plan Plan) (failed []Job) {
	for _, job := range plan.Jobs {
		err := c.dispatcher.Dispatch(ctx, job)
		switch {
		case err == nil:
		case errors.Is(err, ErrDuplicate):
			c.log.WithContext(ctx).Debug("completion job already dispatched", "key", job.Key())
		default:
			c.log.WithContext(ctx).Error("completion job dispatch failed", "key", job.Key(), "error", err)
			failed = append(failed, job)
		}
	}
	return failed
}

// Defer records jobs that could not be dispatched on the session.
func Defer(s *intake.Session, failed []Job) {
	for _, job := range failed {
		s.PendingEffects = append(s.PendingEffects, job.pending())
	}
}

func (c *Coordinator) job(s *intake.Session, kind Kind, stage string, rec intake.LeadRecord) Job {
	return Job{
		Kind:           kind,
		ConversationID: s.ConversationID,
		SessionID:      s.SessionID,
		Stage:          stage,
		Lead:           rec,
		CorrelationID:  s.CorrelationID,
	}
}
