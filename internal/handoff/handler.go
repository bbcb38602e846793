package handoff

import (
	"net/http"

	apphttp "github.com/KauaneAlmeida/back-end-teste/internal/http"
	"github.com/KauaneAlmeida/back-end-teste/platform/httpkit"
	"github.com/KauaneAlmeida/back-end-teste/platform/logger"
	"github.com/KauaneAlmeida/back-end-teste/platform/validator"

	"github.com/gin-gonic/gin"
)

// AuthorizeBody is the landing page's authorization request.
type AuthorizeBody struct {
	SessionID   string         `json:"session_id" validate:"required,min=10,max=128"`
	PhoneNumber string         `json:"phone_number" validate:"required,max=32"`
	Source      string         `json:"source" validate:"omitempty,oneof=landing_chat landing_button landing_page"`
	UserData    map[string]any `json:"user_data" validate:"max=32"`
}

// AuthorizeResponse wraps the result with a human readable status.
type AuthorizeResponse struct {
	Status string `json:"status"`
	AuthorizeResult
	Message string `json:"message"`
}

var sourceDescriptions = map[string]string{
	SourceLandingChat:   "chat da landing page concluído",
	SourceLandingButton: "botão do WhatsApp na landing page",
	SourceLandingPage:   "landing page",
}

// Module is the WhatsApp authorization module implementing http.Module.
type Module struct {
	svc *Service
	val *validator.Validator
	log *logger.Logger
}

func NewModule(svc *Service, val *validator.Validator, log *logger.Logger) *Module {
	return &Module{svc: svc, val: val, log: log}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "handoff"
}

// RegisterRoutes mounts the authorization routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	wa := ctx.V1.Group("/whatsapp")
	wa.POST("/authorize", m.HandleAuthorize)
	wa.GET("/check-auth/:session_id", m.HandleCheck)
	wa.DELETE("/revoke-auth/:session_id", m.HandleRevoke)
}

// HandleAuthorize authorizes a session to continue on WhatsApp.
// POST /api/v1/whatsapp/authorize
func (m *Module) HandleAuthorize(c *gin.Context) {
	var body AuthorizeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := m.val.Struct(&body); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation error", err.Error())
		return
	}

	res, err := m.svc.Authorize(c.Request.Context(), AuthorizeRequest(body))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, AuthorizeResponse{
		Status:          "authorized",
		AuthorizeResult: res,
		Message:         "Sessão " + res.SessionID + " autorizada: " + sourceDescriptions[res.Source],
	})
}

// HandleCheck reports whether a session may talk on WhatsApp. It always
// answers 200; unknown sessions are reported as not authorized.
// GET /api/v1/whatsapp/check-auth/:session_id
func (m *Module) HandleCheck(c *gin.Context) {
	httpkit.OK(c, m.svc.Check(c.Request.Context(), c.Param("session_id")))
}

// HandleRevoke drops a session's authorization.
// DELETE /api/v1/whatsapp/revoke-auth/:session_id
func (m *Module) HandleRevoke(c *gin.Context) {
	sessionID := c.Param("session_id")
	if httpkit.HandleError(c, m.svc.Revoke(c.Request.Context(), sessionID)) {
		return
	}
	httpkit.OK(c, gin.H{"status": "revoked", "session_id": sessionID})
}

var _ apphttp.Module = (*Module)(nil)
