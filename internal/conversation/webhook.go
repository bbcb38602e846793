package conversation

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/KauaneAlmeida/back-end-teste/internal/intake"
	"github.com/KauaneAlmeida/back-end-teste/internal/orchestrator"
	"github.com/KauaneAlmeida/back-end-teste/internal/whatsapp"
	"github.com/KauaneAlmeida/back-end-teste/platform/httpkit"

	"github.com/gin-gonic/gin"
)

const replyTimeout = 15 * time.Second

// Webhook outcomes.
const (
	WebhookProcessed = "processed"
	WebhookIgnored   = "ignored"
)

// Replier sends the conversation reply back to the WhatsApp sender.
type Replier interface {
	SendMessage(ctx context.Context, phoneNumber, message string) error
}

// SessionResolver finds an authorized landing page session quoted in an
// inbound message.
type SessionResolver interface {
	Resolve(ctx context.Context, text string) (sessionID string, ok bool)
}

// InboundMessage is the payload the WhatsApp bridge posts for every message.
type InboundMessage struct {
	From      string `json:"from" validate:"required,max=64"`
	Message   string `json:"message" validate:"max=4000"`
	MessageID string `json:"messageId" validate:"max=128"`
	SessionID string `json:"session_id" validate:"session_id"`
}

// WebhookResponse reports what happened to an inbound message. The
// envelope fields are inlined when the message was processed.
type WebhookResponse struct {
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Delivered bool   `json:"delivered"`
	*orchestrator.Envelope
}

// HandleWhatsAppWebhook runs the conversation for an inbound WhatsApp
// message and sends the reply through the gateway.
// POST /api/v1/whatsapp/webhook
func (h *Handler) HandleWhatsAppWebhook(c *gin.Context) {
	var msg InboundMessage
	if !h.bindAndValidate(c, &msg) {
		return
	}
	ctx := c.Request.Context()
	log := h.log.WithContext(ctx)

	sender, group := parseJID(msg.From)
	text := strings.TrimSpace(msg.Message)
	switch {
	case group:
		httpkit.OK(c, WebhookResponse{Status: WebhookIgnored, Reason: "group_message", MessageID: msg.MessageID})
		return
	case sender == "":
		httpkit.OK(c, WebhookResponse{Status: WebhookIgnored, Reason: "invalid_sender", MessageID: msg.MessageID})
		return
	case text == "":
		httpkit.OK(c, WebhookResponse{Status: WebhookIgnored, Reason: "empty_message", MessageID: msg.MessageID})
		return
	}

	sessionID := strings.TrimSpace(msg.SessionID)
	if sessionID == "" && h.resolver != nil {
		if id, ok := h.resolver.Resolve(ctx, text); ok {
			sessionID = id
			log.Info("whatsapp message attached to authorized session", "session_id", id)
		}
	}

	env := h.svc.ProcessMessage(ctx, orchestrator.Request{
		Message:     text,
		SessionID:   sessionID,
		PhoneNumber: sender,
		Platform:    intake.PlatformWhatsApp,
	})

	out := WebhookResponse{Status: WebhookProcessed, MessageID: msg.MessageID, Envelope: &env}
	if h.replier != nil && env.Response != "" && env.ResponseType != orchestrator.ResponseDuplicate {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), replyTimeout)
		err := h.replier.SendMessage(sendCtx, sender, env.Response)
		cancel()
		if err != nil {
			log.Warn("whatsapp reply not delivered", "session_id", env.SessionID, "error", err)
		} else {
			out.Delivered = true
		}
	}
	httpkit.OK(c, out)
}

// HandleWebhookVerify answers the subscription handshake by echoing
// hub.challenge when hub.verify_token matches the configured token.
// GET /api/v1/whatsapp/webhook
func (h *Handler) HandleWebhookVerify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")
	if h.verifyToken == "" || mode != "subscribe" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) != 1 {
		h.log.WithContext(c.Request.Context()).Warn("whatsapp webhook verification rejected", "mode", mode)
		httpkit.Error(c, http.StatusForbidden, "verification failed", nil)
		return
	}
	c.String(http.StatusOK, challenge)
}

// WebhookAuth checks the shared secret the bridge sends in X-Webhook-Secret
// or as a bearer token. An empty secret disables the check.
func WebhookAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		got := c.GetHeader("X-Webhook-Secret")
		if got == "" {
			got = strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
			return
		}
		c.Next()
	}
}

// parseJID strips the bridge's JID suffix. Group chats are reported so the
// caller can ignore them.
func parseJID(from string) (sender string, group bool) {
	from = strings.TrimSpace(from)
	if strings.HasSuffix(from, "@g.us") {
		return "", true
	}
	if i := strings.IndexByte(from, '@'); i >= 0 {
		from = from[:i]
	}
	if i := strings.IndexByte(from, ':'); i >= 0 {
		from = from[:i]
	}
	return from, false
}

func configuredReplier(r Replier) Replier {
	switch v := r.(type) {
	case nil:
		return nil
	case *whatsapp.Gateway:
		if !v.Configured() {
			return nil
		}
	}
	return r
}
