package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/KauaneAlmeida/back-end-teste/internal/intake"
	"github.com/KauaneAlmeida/back-end-teste/platform/logger"
)

// WhatsAppSender sends WhatsApp messages.
type WhatsAppSender interface {
	SendMessage(ctx context.Context, phoneNumber string, message string) error
}

// WhatsAppChannel sends the lead summary to each lawyer phone.
type WhatsAppChannel struct {
	sender WhatsAppSender
	phones []string
	log    *logger.Logger
}

// NewWhatsAppChannel returns nil when there is no sender or no phone.
func NewWhatsAppChannel(sender WhatsAppSender, phones []string, log *logger.Logger) *WhatsAppChannel {
	phones = uniqueStrings(phones)
	if sender == nil || len(phones) == 0 {
		return nil
	}
	return &WhatsAppChannel{sender: sender, phones: phones, log: log}
}

func (c *WhatsAppChannel) Name() string { return "whatsapp" }

// Deliver succeeds when at least one lawyer received the message.
func (c *WhatsAppChannel) Deliver(ctx context.Context, lead intake.LeadRecord) error {
	text := lawyerMessage(lead)
	var errs []error
	sent := 0
	for _, p := range c.phones {
		if err := c.sender.SendMessage(ctx, p, text); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		sent++
	}
	if sent == 0 {
		return errors.Join(errs...)
	}
	if len(errs) > 0 {
		c.log.WithContext(ctx).Warn("some lawyers were not reached", "sent", sent, "error", errors.Join(errs...))
	}
	return nil
}

func lawyerMessage(lead intake.LeadRecord) string {
	text := lead.Summary
	if lead.Urgency == intake.UrgencyHigh {
		text = "🚨 URGENTE\n\n" + text
	}
	return text
}
