package whatsapp

import (
	"context"
	"fmt"
	"strings"

	"github.com/KauaneAlmeida/back-end-teste/platform/config"
	"github.com/KauaneAlmeida/back-end-teste/platform/logger"
	"github.com/KauaneAlmeida/back-end-teste/platform/phone"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// messageCreator is the slice of the Twilio API used here.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioClient sends WhatsApp messages through Twilio's Messages API.
type TwilioClient struct {
	api  messageCreator
	from string
	log  *logger.Logger
}

// NewTwilioClient returns nil unless Twilio credentials and a sender are configured.
func NewTwilioClient(cfg config.TwilioConfig, log *logger.Logger) *TwilioClient {
	if !cfg.IsTwilioEnabled() {
		return nil
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.GetTwilioAccountSID(),
		Password: cfg.GetTwilioAuthToken(),
	})
	return &TwilioClient{api: client.Api, from: whatsAppAddress(cfg.GetTwilioWhatsAppFrom()), log: log}
}

func (c *TwilioClient) Name() string { return "twilio" }

func (c *TwilioClient) SendMessage(ctx context.Context, phoneNumber string, message string) error {
	if c == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	normalized := phone.ToWhatsApp(phoneNumber)
	if normalized == "" {
		return fmt.Errorf("%w: %q", ErrInvalidPhone, phoneNumber)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(c.from)
	params.SetTo(whatsAppAddress(normalized))
	params.SetBody(message)

	resp, err := c.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio send failed: %w", err)
	}

	sid := ""
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	c.log.WithContext(ctx).Info("whatsapp sent via twilio", "phone", normalized, "sid", sid)
	return nil
}

// Ping reports whether the client is configured; Twilio has no cheap health call.
func (c *TwilioClient) Ping(context.Context) error {
	if c == nil {
		return ErrNotConfigured
	}
	return nil
}

func whatsAppAddress(number string) string {
	number = strings.TrimSpace(number)
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:+" + strings.TrimPrefix(number, "+")
}
