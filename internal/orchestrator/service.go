// Package orchestrator is the conversation facade used by the web chat and
// the WhatsApp webhook. It serializes the turns of each session, picks the
// assistant or the structured questionnaire for every message and hands
// qualified leads to the completion coordinator.
package orchestrator

import (
	"context"
	"time"

	"github.com/KauaneAlmeida/back-end-teste/internal/assistant"
	"github.com/KauaneAlmeida/back-end-teste/internal/completion"
	"github.com/KauaneAlmeida/back-end-teste/internal/intake"
	"github.com/KauaneAlmeida/back-end-teste/internal/locking"
	"github.com/KauaneAlmeida/back-end-teste/internal/ratelimit"
	"github.com/KauaneAlmeida/back-end-teste/internal/sessions"
	"github.com/KauaneAlmeida/back-end-teste/platform/apperr"
	"github.com/KauaneAlmeida/back-end-teste/platform/logger"

	"github.com/google/uuid"
)

// FlowProvider returns the questionnaire in effect. It never fails.
type FlowProvider interface {
	Current(ctx context.Context) intake.Flow
}

// Pinger is a dependency that can report its health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of a Service. Generator, WhatsApp and Breaker
// are optional.
type Deps struct {
	Store       *sessions.Store
	Flows       FlowProvider
	Limiter     ratelimit.Limiter
	Locker      locking.Locker
	Generator   assistant.Generator
	Gate        *assistant.Gate
	Evaluator   *intake.Evaluator
	Coordinator *completion.Coordinator
	Greeter     *intake.Greeter
	WhatsApp    Pinger
	Breaker     *completion.Breaker
}

// Options are the conversation tunables.
type Options struct {
	LockTimeout     time.Duration
	DuplicateWindow time.Duration
	Policy          intake.Policy
}

// Service implements the conversation operations.
type Service struct {
	deps Deps
	opts Options
	log  *logger.Logger
	now  func() time.Time
}

// New builds a Service. A nil Gate is replaced by one with default cool-downs.
func New(deps Deps, opts Options, log *logger.Logger) *Service {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 30 * time.Second
	}
	if deps.Gate == nil {
		deps.Gate = assistant.NewGate(5*time.Minute, 30*time.Minute)
	}
	if deps.Evaluator == nil {
		deps.Evaluator = intake.NewEvaluator(intake.DefaultThresholds())
	}
	return &Service{deps: deps, opts: opts, log: log, now: time.Now}
}

// StartConversation greets a session, creating it when needed. An existing
// session keeps its progress and is greeted with its pending question.
func (s *Service) StartConversation(ctx context.Context, sessionID string) Envelope {
	if sessionID == "" {
		sessionID = NewSessionID(intake.PlatformWeb, "", s.now())
	}
	correlationID := newCorrelationID()
	ctx = logger.ContextWithCorrelation(ctx, correlationID, sessionID)
	log := s.log.WithContext(ctx)

	release, err := s.deps.Locker.Acquire(ctx, sessionID, s.opts.LockTimeout)
	if err != nil {
		log.Warn("session lock not acquired", "error", err)
		return bareEnvelope(sessionID, correlationID, intake.Busy, ResponseBusy)
	}
	defer release()

	loaded, err := s.deps.Store.Load(ctx, sessionID, intake.PlatformWeb)
	if err != nil {
		log.Error("session store unavailable on start", "error", err)
		env := bareEnvelope(sessionID, correlationID, intake.FallbackGreeting, ResponseFallbackGreeting)
		env.Step = s.deps.Flows.Current(ctx).First().ID
		env.CurrentStep = env.Step
		return env
	}

	session := loaded.Session
	session.CorrelationID = correlationID
	machine := s.machine(ctx)
	responseType := ResponseGreeting
	if session.FlowCompleted && session.CompletionDispatched {
		s.restart(ctx, session)
		responseType = ResponseRestarted
	}
	turn := machine.Start(session, s.now())
	session.LastResponse = turn.Response

	if err := s.deps.Store.Save(ctx, session); err != nil {
		log.Error("failed to save started session", "error", err)
	}
	log.Info("conversation started", "fresh", loaded.Status.Fresh(), "step", session.CurrentStep)
	return sessionEnvelope(session, turn.Response, responseType, false)
}

// GetSessionContext returns the stored session with the same repairs the
// write path applies.
func (s *Service) GetSessionContext(ctx context.Context, sessionID string) (SessionContext, error) {
	if sessionID == "" {
		return SessionContext{}, apperr.Validation("session_id is required")
	}
	session, err := s.deps.Store.Peek(ctx, sessionID)
	if err != nil {
		return SessionContext{}, err
	}
	out := SessionContext{Session: session}
	if !session.FlowCompleted {
		out.CurrentQuestion = s.machine(ctx).CurrentQuestion(session.Clone())
	}
	return out, nil
}

// ResetSession drops a session and the assistant's memory of it.
func (s *Service) ResetSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return apperr.Validation("session_id is required")
	}
	release, err := s.deps.Locker.Acquire(ctx, sessionID, s.opts.LockTimeout)
	if err != nil {
		return apperr.Wrap(apperr.KindConflict, "session is busy", err).WithOp("orchestrator.ResetSession")
	}
	defer release()

	if err := s.deps.Store.Delete(ctx, sessionID); err != nil {
		return err
	}
	s.deps.Gate.Forget(sessionID)
	if s.deps.Generator != nil {
		if err := s.deps.Generator.Reset(ctx, sessionID); err != nil {
			s.log.WithContext(ctx).Warn("failed to reset assistant memory", "session_id", sessionID, "error", err)
		}
	}
	s.log.WithContext(ctx).Info("session reset", "session_id", sessionID)
	return nil
}

// Flow returns the questionnaire currently in effect.
func (s *Service) Flow(ctx context.Context) intake.Flow {
	return s.deps.Flows.Current(ctx)
}

func (s *Service) machine(ctx context.Context) *intake.Machine {
	return intake.NewMachine(s.deps.Flows.Current(ctx), s.opts.Policy, s.deps.Greeter)
}

// restart turns a finished session into a new conversation. The WhatsApp
// sender number is kept since it still identifies the contact.
func (s *Service) restart(ctx context.Context, session *intake.Session) {
	fresh := intake.NewSession(session.SessionID, session.Platform, s.now())
	fresh.CorrelationID = session.CorrelationID
	fresh.RestartedFromCompleted = true
	fresh.PendingEffects = session.PendingEffects
	if session.Platform == intake.PlatformWhatsApp && session.PhoneNumber != "" {
		fresh.PhoneNumber = session.PhoneNumber
		fresh.LeadData[intake.FieldPhone] = session.PhoneNumber
		fresh.PhoneSubmitted = true
	}
	*session = *fresh

	s.deps.Gate.Forget(session.SessionID)
	if s.deps.Generator != nil {
		if err := s.deps.Generator.Reset(ctx, session.SessionID); err != nil {
			s.log.WithContext(ctx).Warn("failed to reset assistant memory", "error", err)
		}
	}
	s.log.WithContext(ctx).Info("completed session restarted", "conversation_id", session.ConversationID)
}

func newCorrelationID() string {
	return uuid.NewString()
}
