package conversation

import (
	apphttp "github.com/KauaneAlmeida/back-end-teste/internal/http"
	"github.com/KauaneAlmeida/back-end-teste/platform/logger"
	"github.com/KauaneAlmeida/back-end-teste/platform/validator"
)

// Options configures the WhatsApp side of the module.
type Options struct {
	// WebhookSecret is checked on inbound bridge posts; empty disables it.
	WebhookSecret string
	// VerifyToken answers the webhook subscription handshake; empty rejects it.
	VerifyToken string
	// Resolver attaches inbound messages to authorized landing page sessions.
	Resolver SessionResolver
}

// Module is the conversation module implementing http.Module.
type Module struct {
	handler *Handler
	opts    Options
}

// NewModule wires the conversation handlers.
func NewModule(svc Service, replier Replier, val *validator.Validator, opts Options, log *logger.Logger) *Module {
	h := NewHandler(svc, replier, val, log)
	h.resolver = opts.Resolver
	h.verifyToken = opts.VerifyToken
	return &Module{handler: h, opts: opts}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "conversation"
}

// RegisterRoutes mounts the conversation routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	conv := ctx.V1.Group("/conversation")
	conv.POST("/start", m.handler.HandleStart)
	conv.POST("/respond", m.handler.HandleRespond)
	conv.GET("/status/:session_id", m.handler.HandleStatus)
	conv.GET("/flow", m.handler.HandleFlow)

	// The bridge posts every message from one address, so it is kept out of
	// the per-IP limiter; sessions are still limited by the orchestrator.
	ctx.Engine.GET("/api/v1/whatsapp/webhook", m.handler.HandleWebhookVerify)
	ctx.Engine.POST("/api/v1/whatsapp/webhook", WebhookAuth(m.opts.WebhookSecret), m.handler.HandleWhatsAppWebhook)

	ctx.Admin.POST("/sessions/:session_id/reset", m.handler.HandleResetSession)
	ctx.Admin.GET("/status", m.handler.HandleServiceStatus)
	ctx.Admin.POST("/whatsapp/send", m.handler.HandleOperatorSend)
	ctx.Admin.GET("/whatsapp/status", m.handler.HandleWhatsAppStatus)
}

var _ apphttp.Module = (*Module)(nil)
