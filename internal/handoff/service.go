package handoff

import (
	"context"
	"errors"
	"time"

	"github.com/KauaneAlmeida/back-end-teste/internal/completion"
	"github.com/KauaneAlmeida/back-end-teste/platform/apperr"
	"github.com/KauaneAlmeida/back-end-teste/platform/logger"
	"github.com/KauaneAlmeida/back-end-teste/platform/phone"

	"github.com/google/uuid"
)

// WelcomeMessage is sent to the visitor once per authorized session.
const WelcomeMessage = "Olá! Recebemos sua solicitação pelo nosso site. ⚖️\n\n" +
	"Nossa equipe jurídica já está analisando o seu caso e vai continuar o atendimento por aqui.\n\n" +
	"Mantenha este número ativo para receber nossas atualizações. Obrigado pela confiança!"

const whatsAppURLPrefix = "https://wa.me/"

// AuthorizeRequest is one landing page asking to continue on WhatsApp.
type AuthorizeRequest struct {
	SessionID   string
	PhoneNumber string
	Source      string
	UserData    map[string]any
}

// AuthorizeResult is the stored authorization plus what the caller needs
// to open the chat.
type AuthorizeResult struct {
	Authorization
	ExpiresIn   int    `json:"expires_in"`
	WhatsAppURL string `json:"whatsapp_url"`
	// WelcomeQueued is false when no welcome applies to the source or one
	// was already queued for the session.
	WelcomeQueued bool `json:"welcome_queued"`
}

// Service manages WhatsApp authorizations.
type Service struct {
	repo       Repository
	dispatcher completion.Dispatcher
	ttl        time.Duration
	log        *logger.Logger
	now        func() time.Time
}

// NewService returns a service storing authorizations for ttl. dispatcher
// may be nil, in which case no welcome message is sent.
func NewService(repo Repository, dispatcher completion.Dispatcher, ttl time.Duration, log *logger.Logger) *Service {
	return &Service{repo: repo, dispatcher: dispatcher, ttl: ttl, log: log, now: time.Now}
}

// Authorize stores an authorization for the session and queues the
// welcome message for chat and button sources. Re-authorizing a session
// refreshes its expiry without sending a second welcome.
func (s *Service) Authorize(ctx context.Context, req AuthorizeRequest) (AuthorizeResult, error) {
	sessionID, err := ValidateSessionID(req.SessionID)
	if err != nil {
		return AuthorizeResult{}, apperr.Validation("session_id is invalid").WithOp("handoff.Authorize")
	}
	phoneNumber := phone.ToWhatsApp(req.PhoneNumber)
	if phoneNumber == "" {
		return AuthorizeResult{}, apperr.Validation("phone_number is not a valid WhatsApp number").WithOp("handoff.Authorize")
	}
	source := req.Source
	if source == "" {
		source = SourceLandingPage
	}

	now := s.now().UTC()
	auth := Authorization{
		SessionID:    sessionID,
		PhoneNumber:  phoneNumber,
		Source:       source,
		LeadType:     leadType(source),
		UserData:     req.UserData,
		AuthorizedAt: now,
		ExpiresAt:    now.Add(s.ttl),
	}
	if err := s.repo.Save(ctx, auth); err != nil {
		return AuthorizeResult{}, apperr.Unavailable("authorization store unavailable", err).WithOp("handoff.Authorize")
	}

	res := AuthorizeResult{
		Authorization: auth,
		ExpiresIn:     int(s.ttl / time.Second),
		WhatsAppURL:   whatsAppURLPrefix + phoneNumber,
	}
	if sendsWelcome(source) {
		res.WelcomeQueued = s.queueWelcome(ctx, auth)
	}

	s.log.WithContext(ctx).Info("whatsapp session authorized",
		"session_id", sessionID, "source", source, "welcome_queued", res.WelcomeQueued)
	return res, nil
}

// queueWelcome dispatches the welcome as a completion job keyed on the
// session, so repeated authorizations never send it twice.
func (s *Service) queueWelcome(ctx context.Context, auth Authorization) bool {
	if s.dispatcher == nil {
		return false
	}
	job := completion.Job{
		Kind:           completion.KindWelcome,
		ConversationID: auth.SessionID,
		SessionID:      auth.SessionID,
		Phone:          auth.PhoneNumber,
		Message:        WelcomeMessage,
		CorrelationID:  uuid.NewString(),
	}
	err := s.dispatcher.Dispatch(ctx, job)
	switch {
	case err == nil:
		return true
	case errors.Is(err, completion.ErrDuplicate):
		s.log.WithContext(ctx).Debug("whatsapp welcome already queued", "key", job.Key())
	default:
		s.log.WithContext(ctx).Error("whatsapp welcome dispatch failed", "key", job.Key(), "error", err)
	}
	return false
}

// Check reports whether the session is currently authorized. Store
// failures answer as unauthorized.
func (s *Service) Check(ctx context.Context, sessionID string) Check {
	now := s.now().UTC()
	out := Check{SessionID: sessionID, Action: ActionIgnore, CheckedAt: now}
	if sessionID == "" {
		out.Reason = ReasonNoSession
		return out
	}

	auth, err := s.repo.Get(ctx, sessionID)
	switch {
	case errors.Is(err, ErrNotFound):
		out.Reason = ReasonNotAuthorized
		return out
	case err != nil:
		s.log.WithContext(ctx).Warn("whatsapp authorization check failed", "session_id", sessionID, "error", err)
		out.Reason = ReasonUnavailable
		return out
	case auth.Expired(now):
		out.Reason = ReasonExpired
		return out
	}

	out.Authorized = true
	out.Action = ActionRespond
	out.Source = auth.Source
	out.LeadType = auth.LeadType
	out.UserData = auth.UserData
	out.AuthorizedAt = &auth.AuthorizedAt
	out.ExpiresAt = &auth.ExpiresAt
	return out
}

// Revoke drops the session's authorization. Revoking an unknown session
// succeeds.
func (s *Service) Revoke(ctx context.Context, sessionID string) error {
	sessionID, err := ValidateSessionID(sessionID)
	if err != nil {
		return apperr.Validation("session_id is invalid").WithOp("handoff.Revoke")
	}
	if err := s.repo.Delete(ctx, sessionID); err != nil {
		return apperr.Unavailable("authorization store unavailable", err).WithOp("handoff.Revoke")
	}
	s.log.WithContext(ctx).Info("whatsapp authorization revoked", "session_id", sessionID)
	return nil
}

// Resolve finds an authorized session id quoted in an inbound message.
func (s *Service) Resolve(ctx context.Context, text string) (string, bool) {
	sessionID := ExtractSessionID(text)
	if sessionID == "" {
		return "", false
	}
	return sessionID, s.Check(ctx, sessionID).Authorized
}
