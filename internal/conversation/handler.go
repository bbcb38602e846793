// Package conversation exposes the intake conversation over HTTP: the web
// chat endpoints, the WhatsApp bridge webhook and the operator routes.
package conversation

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/KauaneAlmeida/back-end-teste/internal/intake"
	"github.com/KauaneAlmeida/back-end-teste/internal/orchestrator"
	"github.com/KauaneAlmeida/back-end-teste/platform/apperr"
	"github.com/KauaneAlmeida/back-end-teste/platform/httpkit"
	"github.com/KauaneAlmeida/back-end-teste/platform/logger"
	"github.com/KauaneAlmeida/back-end-teste/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	errInvalidRequest = "invalid request body"
	errValidation     = "validation error"
)

// Service is the conversation facade the handlers drive.
type Service interface {
	StartConversation(ctx context.Context, sessionID string) orchestrator.Envelope
	ProcessMessage(ctx context.Context, req orchestrator.Request) orchestrator.Envelope
	GetSessionContext(ctx context.Context, sessionID string) (orchestrator.SessionContext, error)
	ResetSession(ctx context.Context, sessionID string) error
	Flow(ctx context.Context) intake.Flow
	Status(ctx context.Context) orchestrator.ServiceStatus
}

// Handler handles conversation HTTP requests.
type Handler struct {
	svc     Service
	replier Replier
	val     *validator.Validator
	log     *logger.Logger

	resolver    SessionResolver
	verifyToken string
}

// NewHandler creates a conversation handler. replier may be nil, in which
// case webhook replies are only returned in the response body.
func NewHandler(svc Service, replier Replier, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{svc: svc, replier: configuredReplier(replier), val: val, log: log}
}

// StartRequest optionally resumes an existing session.
type StartRequest struct {
	SessionID string `json:"session_id" validate:"session_id"`
}

// RespondRequest is one chat message.
type RespondRequest struct {
	Message     string `json:"message" validate:"max=4000"`
	SessionID   string `json:"session_id" validate:"session_id"`
	PhoneNumber string `json:"phone_number" validate:"max=32"`
	Platform    string `json:"platform" validate:"platform"`
}

// StatusResponse is the stored view of a session. Exists is false when the
// session is unknown or has expired.
type StatusResponse struct {
	orchestrator.SessionContext
	Exists bool `json:"exists"`
}

// HandleStart greets a new or existing session.
// POST /api/v1/conversation/start
func (h *Handler) HandleStart(c *gin.Context) {
	var req StartRequest
	if !h.bindOptional(c, &req) {
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = strings.TrimSpace(c.Query("session_id"))
	}
	if sessionID != "" {
		if err := h.val.Var(sessionID, "session_id"); err != nil {
			httpkit.Error(c, http.StatusBadRequest, errValidation, "session_id")
			return
		}
	}

	httpkit.OK(c, h.svc.StartConversation(c.Request.Context(), sessionID))
}

// HandleRespond processes one chat message. Every accepted request answers
// 200 with an envelope, including rate-limited and recovered turns.
// POST /api/v1/conversation/respond
func (h *Handler) HandleRespond(c *gin.Context) {
	var req RespondRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	env := h.svc.ProcessMessage(c.Request.Context(), orchestrator.Request{
		Message:     req.Message,
		SessionID:   strings.TrimSpace(req.SessionID),
		PhoneNumber: req.PhoneNumber,
		Platform:    intake.ParsePlatform(req.Platform),
	})
	httpkit.OK(c, env)
}

// HandleStatus returns the stored session.
// GET /api/v1/conversation/status/:session_id
func (h *Handler) HandleStatus(c *gin.Context) {
	sessionID := c.Param("session_id")
	if err := h.val.Var(sessionID, "required,session_id"); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errValidation, "session_id")
		return
	}

	sc, err := h.svc.GetSessionContext(c.Request.Context(), sessionID)
	if err != nil {
		if !apperr.Is(err, apperr.KindNotFound) {
			h.log.WithContext(c.Request.Context()).Warn("session status unavailable", "session_id", sessionID, "error", err)
		}
		httpkit.OK(c, StatusResponse{SessionContext: placeholder(sessionID)})
		return
	}
	httpkit.OK(c, StatusResponse{SessionContext: sc, Exists: true})
}

// HandleFlow returns the questionnaire in effect.
// GET /api/v1/conversation/flow
func (h *Handler) HandleFlow(c *gin.Context) {
	httpkit.OK(c, h.svc.Flow(c.Request.Context()))
}

// HandleResetSession drops a session.
// POST /api/v1/admin/sessions/:session_id/reset
func (h *Handler) HandleResetSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	if err := h.val.Var(sessionID, "required,session_id"); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errValidation, "session_id")
		return
	}

	if httpkit.HandleError(c, h.svc.ResetSession(c.Request.Context(), sessionID)) {
		return
	}
	h.log.WithContext(c.Request.Context()).Info("session reset by operator",
		"session_id", sessionID, "operator", httpkit.GetIdentity(c).Subject())
	httpkit.OK(c, gin.H{"status": "reset", "session_id": sessionID})
}

// HandleServiceStatus reports dependency health.
// GET /api/v1/admin/status
func (h *Handler) HandleServiceStatus(c *gin.Context) {
	httpkit.OK(c, h.svc.Status(c.Request.Context()))
}

func (h *Handler) bindAndValidate(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, nil)
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errValidation, err.Error())
		return false
	}
	return true
}

// bindOptional accepts an empty body.
func (h *Handler) bindOptional(c *gin.Context, req any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, nil)
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errValidation, err.Error())
		return false
	}
	return true
}

func placeholder(sessionID string) orchestrator.SessionContext {
	return orchestrator.SessionContext{Session: &intake.Session{
		SessionID: sessionID,
		State:     intake.StateInitial,
		LeadData:  intake.LeadData{},
	}}
}
