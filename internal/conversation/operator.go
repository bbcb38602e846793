package conversation

import (
	"context"
	"net/http"

	"github.com/KauaneAlmeida/back-end-teste/internal/whatsapp"
	"github.com/KauaneAlmeida/back-end-teste/platform/httpkit"
	"github.com/KauaneAlmeida/back-end-teste/platform/phone"

	"github.com/gin-gonic/gin"
)

// SendRequest is an operator message to a WhatsApp number.
type SendRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,max=32"`
	Message     string `json:"message" validate:"required,max=4000"`
}

type statusReporter interface {
	Status(ctx context.Context) whatsapp.Status
}

// HandleOperatorSend sends a message through the WhatsApp gateway.
// POST /api/v1/admin/whatsapp/send
func (h *Handler) HandleOperatorSend(c *gin.Context) {
	var req SendRequest
	if !h.bindAndValidate(c, &req) {
		return
	}
	to := phone.ToWhatsApp(req.PhoneNumber)
	if to == "" {
		httpkit.Error(c, http.StatusBadRequest, errValidation, "phone_number")
		return
	}
	if h.replier == nil {
		httpkit.Error(c, http.StatusServiceUnavailable, "whatsapp not configured", nil)
		return
	}

	ctx := c.Request.Context()
	sendCtx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()
	log := h.log.WithContext(ctx)
	if err := h.replier.SendMessage(sendCtx, to, req.Message); err != nil {
		log.Warn("operator message not delivered", "error", err)
		httpkit.Error(c, http.StatusBadGateway, "message not delivered", nil)
		return
	}
	log.Info("operator message sent", "operator", httpkit.GetIdentity(c).Subject())
	httpkit.OK(c, gin.H{"status": "sent", "phone_number": to})
}

// HandleWhatsAppStatus reports the senders behind the gateway.
// GET /api/v1/admin/whatsapp/status
func (h *Handler) HandleWhatsAppStatus(c *gin.Context) {
	if r, ok := h.replier.(statusReporter); ok {
		httpkit.OK(c, r.Status(c.Request.Context()))
		return
	}
	httpkit.OK(c, whatsapp.Status{Configured: h.replier != nil, Senders: []whatsapp.SenderStatus{}})
}
