package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/KauaneAlmeida/back-end-teste/internal/assistant"
	"github.com/KauaneAlmeida/back-end-teste/internal/completion"
	"github.com/KauaneAlmeida/back-end-teste/internal/intake"
	"github.com/KauaneAlmeida/back-end-teste/internal/sessions"
	"github.com/KauaneAlmeida/back-end-teste/platform/logger"
	"github.com/KauaneAlmeida/back-end-teste/platform/phone"
)

// ProcessMessage runs one conversation turn. It never fails: every path,
// including a recovered panic, answers with an envelope carrying lead_data.
func (s *Service) ProcessMessage(ctx context.Context, req Request) (env Envelope) {
	platform := intake.ParsePlatform(string(req.Platform))
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = NewSessionID(platform, req.PhoneNumber, s.now())
	}
	correlationID := newCorrelationID()
	ctx = logger.ContextWithCorrelation(ctx, correlationID, sessionID)
	log := s.log.WithContext(ctx)

	allowed, err := s.deps.Limiter.Allow(ctx, sessionID)
	if err != nil {
		log.Warn("rate limiter unavailable, allowing message", "error", err)
		allowed = true
	}
	if !allowed {
		log.RateLimitExceeded(sessionID, "conversation")
		return bareEnvelope(sessionID, correlationID, intake.RateLimited, ResponseRateLimited)
	}

	release, err := s.deps.Locker.Acquire(ctx, sessionID, s.opts.LockTimeout)
	if err != nil {
		log.Warn("session lock not acquired", "error", err)
		return bareEnvelope(sessionID, correlationID, intake.Busy, ResponseBusy)
	}
	defer release()

	var session *intake.Session
	defer func() {
		if r := recover(); r != nil {
			env = s.recoverTurn(ctx, session, sessionID, correlationID, r)
		}
	}()

	loaded, err := s.deps.Store.Load(ctx, sessionID, platform)
	if err != nil {
		log.Error("session store unavailable", "error", err)
		return bareEnvelope(sessionID, correlationID, intake.RecoveryMessage(1, ""), ResponseErrorRecovery)
	}
	session = loaded.Session
	session.CorrelationID = correlationID

	return s.turn(ctx, session, loaded.Status, req)
}

func (s *Service) turn(ctx context.Context, session *intake.Session, status sessions.LoadStatus, req Request) Envelope {
	log := s.log.WithContext(ctx)
	now := s.now()
	message := strings.TrimSpace(req.Message)

	if status == sessions.StatusFound && s.isDuplicate(session, message, now) {
		log.Info("duplicate message suppressed")
		return sessionEnvelope(session, session.LastResponse, ResponseDuplicate, false)
	}

	responseType := ""
	if session.FlowCompleted && session.CompletionDispatched {
		s.restart(ctx, session)
		responseType = ResponseRestarted
	}
	if session.Platform == intake.PlatformWhatsApp {
		attachSender(session, req.PhoneNumber)
	}

	flow := s.deps.Flows.Current(ctx)
	machine := intake.NewMachine(flow, s.opts.Policy, s.deps.Greeter)
	session.MessageCount++

	var (
		turn   intake.Turn
		aiMode bool
	)
	if session.State == intake.StateInitial {
		turn = machine.Start(session, now)
		if responseType == "" {
			responseType = ResponseGreeting
		}
	} else {
		turn, aiMode = s.answer(ctx, machine, session, message)
		responseType = responseTypeFor(turn, aiMode)
	}

	decision := s.deps.Evaluator.Evaluate(session, flow)
	plan := s.deps.Coordinator.Prepare(session, decision)
	if turn.Completed() {
		turn.Response = plan.Closing()
		aiMode = false
	}
	if plan.Notified {
		log.Info("lead qualified", "score", decision.Score, "reason", decision.Reason)
	}

	session.RecoveryCount = 0
	session.LastMessage = message
	session.LastMessageAt = now.UTC()
	session.LastResponse = turn.Response

	// The flags Prepare set must be durable before any job runs.
	if err := s.deps.Store.Save(ctx, session); err != nil {
		log.Error("failed to save session, side effects deferred", "error", err)
	} else if !plan.Empty() {
		if failed := s.deps.Coordinator.Dispatch(ctx, plan); len(failed) > 0 {
			completion.Defer(session, failed)
			if err := s.deps.Store.Save(ctx, session); err != nil {
				log.Error("failed to record undispatched jobs", "jobs", len(failed), "error", err)
			}
		}
	}

	log.Info("message processed",
		"response_type", responseType,
		"step", session.CurrentStep,
		"state", string(session.State),
		"captured", turn.Captured,
	)
	return sessionEnvelope(session, turn.Response, responseType, aiMode)
}

// answer tries the assistant first and falls back to the questionnaire.
func (s *Service) answer(ctx context.Context, machine *intake.Machine, session *intake.Session, message string) (intake.Turn, bool) {
	if s.deps.Generator == nil || session.State == intake.StateCompleted || !s.deps.Gate.Allow(session.SessionID) {
		return machine.Advance(session, message), false
	}

	out := s.deps.Generator.Generate(ctx, message, session.SessionID, assistant.Context{
		Platform:      session.Platform,
		CurrentStep:   session.CurrentStep,
		Question:      machine.CurrentQuestion(session),
		LeadData:      session.LeadData.Clone(),
		FlowCompleted: session.FlowCompleted,
	})
	s.deps.Gate.Record(session.SessionID, out.Status)
	if !out.OK() {
		s.log.WithContext(ctx).Warn("assistant unavailable, using questionnaire",
			"status", string(out.Status), "latency", out.Latency, "error", out.Err)
		return machine.Advance(session, message), false
	}

	turn := machine.Absorb(session, message, intake.Extract(message))
	turn.Response = out.Text
	return turn, true
}

func (s *Service) isDuplicate(session *intake.Session, message string, now time.Time) bool {
	if s.opts.DuplicateWindow <= 0 || message == "" || session.LastResponse == "" {
		return false
	}
	return session.LastMessage == message && now.Sub(session.LastMessageAt) <= s.opts.DuplicateWindow
}

// recoverTurn answers after a panic. Whatever the session held is kept and
// saved; the apology escalates with consecutive failures.
func (s *Service) recoverTurn(ctx context.Context, session *intake.Session, sessionID, correlationID string, r any) Envelope {
	log := s.log.WithContext(ctx)
	log.Error("panic while processing message", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))

	if session == nil {
		return bareEnvelope(sessionID, correlationID, intake.FallbackGreeting, ResponseFallbackGreeting)
	}
	if session.LeadData == nil {
		session.LeadData = intake.LeadData{}
	}
	if session.State != intake.StateCompleted {
		session.State = intake.StateErrorRecovery
	}
	session.RecoveryCount++

	response := intake.RecoveryMessage(session.RecoveryCount, s.safeQuestion(ctx, session))
	session.LastResponse = response
	if err := s.deps.Store.Save(ctx, session); err != nil {
		log.Error("failed to save session after recovery", "error", err)
	}
	return sessionEnvelope(session, response, ResponseErrorRecovery, false)
}

func (s *Service) safeQuestion(ctx context.Context, session *intake.Session) (question string) {
	defer func() {
		if recover() != nil {
			question = ""
		}
	}()
	if session.FlowCompleted {
		return ""
	}
	return s.machine(ctx).CurrentQuestion(session.Clone())
}

// attachSender records the WhatsApp sender as the lead's phone.
func attachSender(session *intake.Session, sender string) {
	normalized := phone.ToWhatsApp(sender)
	if normalized == "" {
		return
	}
	session.PhoneNumber = normalized
	if !session.LeadData.Has(intake.FieldPhone) {
		session.LeadData[intake.FieldPhone] = normalized
	}
	session.PhoneSubmitted = true
}

func responseTypeFor(turn intake.Turn, aiMode bool) string {
	switch {
	case turn.Outcome == intake.OutcomeCompleted:
		return ResponseCompleted
	case turn.Outcome == intake.OutcomeIdle:
		return ResponseCompletedIdle
	case aiMode:
		return ResponseAI
	case turn.Outcome == intake.OutcomeClarification:
		return ResponseClarification
	default:
		return ResponseQuestion
	}
}
