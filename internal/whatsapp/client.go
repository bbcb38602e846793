// Package whatsapp sends WhatsApp messages through the Baileys bridge or
// Twilio. Both senders normalize Brazilian numbers the same way.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/KauaneAlmeida/back-end-teste/platform/config"
	"github.com/KauaneAlmeida/back-end-teste/platform/logger"
	"github.com/KauaneAlmeida/back-end-teste/platform/phone"
)

// Client talks to the WhatsApp bridge service that owns the Baileys session.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logger.Logger
}

type bridgeRequest struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
}

// NewClient returns nil when no bridge URL is configured.
func NewClient(cfg config.WhatsAppConfig, log *logger.Logger) *Client {
	if cfg.GetWhatsAppURL() == "" {
		return nil
	}

	timeout := cfg.GetWhatsAppTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.GetWhatsAppURL(), "/"),
		apiKey:  cfg.GetWhatsAppKey(),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

func (c *Client) Name() string { return "bridge" }

func (c *Client) SendMessage(ctx context.Context, phoneNumber string, message string) error {
	if c == nil {
		return nil
	}

	normalized := phone.ToWhatsApp(phoneNumber)
	if normalized == "" {
		return fmt.Errorf("%w: %q", ErrInvalidPhone, phoneNumber)
	}

	body, err := json.Marshal(bridgeRequest{PhoneNumber: normalized, Message: message})
	if err != nil {
		return fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send-message", bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("whatsapp service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	c.log.WithContext(ctx).Info("whatsapp sent via bridge", "phone", normalized)
	return nil
}

// Ping checks the bridge health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp bridge unreachable: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("whatsapp bridge health returned %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", formatAuthHeader(c.apiKey))
	}
}

func formatAuthHeader(apiKey string) string {
	lower := strings.ToLower(apiKey)
	if strings.HasPrefix(lower, "basic ") || strings.HasPrefix(lower, "bearer ") {
		return apiKey
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(apiKey))
	return "Basic " + encoded
}
