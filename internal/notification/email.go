package notification

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net"
	"time"

	"github.com/KauaneAlmeida/back-end-teste/internal/intake"
	"github.com/KauaneAlmeida/back-end-teste/platform/config"

	gomail "github.com/wneessen/go-mail"
)

//go:embed templates/*.html
var templateFS embed.FS

var leadTemplate = template.Must(template.New("lead.html").ParseFS(templateFS, "templates/lead.html"))

type leadEmailData struct {
	Title          string
	Urgent         bool
	Name           string
	Phone          string
	Email          string
	Area           string
	Platform       string
	Score          string
	CaseDetails    string
	ConversationID string
}

// EmailChannel mails the lead to the lawyers through the configured SMTP server.
type EmailChannel struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
	to        []string

	send func(ctx context.Context, msg *gomail.Msg) error
}

// NewEmailChannel returns nil unless SMTP is configured and there is a recipient.
func NewEmailChannel(cfg config.SMTPConfig, recipients []string) *EmailChannel {
	recipients = uniqueStrings(recipients)
	if !cfg.IsSMTPEnabled() || len(recipients) == 0 {
		return nil
	}
	c := &EmailChannel{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
		to:        recipients,
	}
	c.send = c.dialAndSend
	return c
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Deliver(ctx context.Context, lead intake.LeadRecord) error {
	msg, err := c.message(lead)
	if err != nil {
		return err
	}
	return c.send(ctx, msg)
}

func (c *EmailChannel) message(lead intake.LeadRecord) (*gomail.Msg, error) {
	content, err := renderLeadEmail(lead)
	if err != nil {
		return nil, err
	}

	msg := gomail.NewMsg()
	if err := msg.FromFormat(c.fromName, c.fromEmail); err != nil {
		return nil, fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(c.to...); err != nil {
		return nil, fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(leadSubject(lead))
	msg.SetBodyString(gomail.TypeTextPlain, lead.Summary)
	msg.AddAlternativeString(gomail.TypeTextHTML, content)
	return msg, nil
}

func (c *EmailChannel) dialAndSend(ctx context.Context, msg *gomail.Msg) error {
	client, err := gomail.NewClient(c.host,
		gomail.WithPort(c.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(c.username),
		gomail.WithPassword(c.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func leadSubject(lead intake.LeadRecord) string {
	subject := "Novo lead qualificado"
	if lead.Name != "" {
		subject += ": " + lead.Name
	}
	if lead.LegalArea != "" {
		subject += " (" + lead.LegalArea + ")"
	}
	if lead.Urgency == intake.UrgencyHigh {
		subject = "[URGENTE] " + subject
	}
	return subject
}

func renderLeadEmail(lead intake.LeadRecord) (string, error) {
	data := leadEmailData{
		Title:          "Novo lead qualificado",
		Urgent:         lead.Urgency == intake.UrgencyHigh,
		Name:           orDash(lead.Name),
		Phone:          orDash(lead.Phone),
		Email:          orDash(lead.Email),
		Area:           orDash(lead.LegalArea),
		Platform:       string(lead.Platform),
		Score:          fmt.Sprintf("%.0f%%", lead.QualificationScore*100),
		CaseDetails:    orDash(lead.CaseDetails),
		ConversationID: lead.ConversationID,
	}

	var buf bytes.Buffer
	if err := leadTemplate.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute lead email template: %w", err)
	}
	return buf.String(), nil
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
