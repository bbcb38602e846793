package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/KauaneAlmeida/back-end-teste/platform/logger"

	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type bridgeConfig struct {
	url string
}

func (c bridgeConfig) GetWhatsAppURL() string            { return c.url }
func (c bridgeConfig) GetWhatsAppKey() string            { return "secret" }
func (c bridgeConfig) GetWhatsAppTimeout() time.Duration { return time.Second }
func (c bridgeConfig) GetWhatsAppWebhookSecret() string  { return "" }

func TestBridgeSendMessage(t *testing.T) {
	var got bridgeRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/send-message" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(bridgeConfig{url: srv.URL + "/"}, logger.Discard())
	if err := c.SendMessage(context.Background(), "(11) 98765-4321", "Olá"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.PhoneNumber != "5511987654321" || got.Message != "Olá" {
		t.Fatalf("unexpected payload %+v", got)
	}
	if auth != "Basic c2VjcmV0" {
		t.Fatalf("unexpected auth header %q", auth)
	}
}

func TestBridgeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not connected", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(bridgeConfig{url: srv.URL}, logger.Discard())
	if err := c.SendMessage(context.Background(), "11987654321", "Olá"); err == nil {
		t.Fatal("expected error on 503")
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected unhealthy bridge")
	}
}

func TestBridgeRejectsForeignNumbers(t *testing.T) {
	c := NewClient(bridgeConfig{url: "http://unused"}, logger.Discard())
	if err := c.SendMessage(context.Background(), "123", "Olá"); !errors.Is(err, ErrInvalidPhone) {
		t.Fatalf("expected ErrInvalidPhone, got %v", err)
	}
}

func TestNewClientWithoutURL(t *testing.T) {
	if c := NewClient(bridgeConfig{}, logger.Discard()); c != nil {
		t.Fatal("expected nil client without url")
	}
}

type fakeCreator struct {
	params *twilioApi.CreateMessageParams
	err    error
}

func (f *fakeCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestTwilioSendMessage(t *testing.T) {
	creator := &fakeCreator{}
	c := &TwilioClient{api: creator, from: whatsAppAddress("+14155238886"), log: logger.Discard()}

	if err := c.SendMessage(context.Background(), "5511987654321", "Olá"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if *creator.params.To != "whatsapp:+5511987654321" || *creator.params.From != "whatsapp:+14155238886" || *creator.params.Body != "Olá" {
		t.Fatalf("unexpected params to=%s from=%s", *creator.params.To, *creator.params.From)
	}
}

type fakeSender struct {
	name  string
	err   error
	calls int
}

func (f *fakeSender) Name() string { return f.name }
func (f *fakeSender) SendMessage(context.Context, string, string) error {
	f.calls++
	return f.err
}
func (f *fakeSender) Ping(context.Context) error { return f.err }

func TestGatewayFallsBack(t *testing.T) {
	primary := &fakeSender{name: "bridge", err: errors.New("offline")}
	secondary := &fakeSender{name: "twilio"}
	var nilClient *Client

	g := NewGateway(logger.Discard(), nilClient, primary, secondary)
	if err := g.SendMessage(context.Background(), "11987654321", "Olá"); err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Fatalf("unexpected calls %d/%d", primary.calls, secondary.calls)
	}
	if err := g.Ping(context.Background()); err != nil {
		t.Fatalf("one healthy sender is enough, got %v", err)
	}
}

func TestGatewayWithoutSenders(t *testing.T) {
	var nilClient *Client
	var nilTwilio *TwilioClient
	g := NewGateway(logger.Discard(), nilClient, nilTwilio)
	if g.Configured() {
		t.Fatal("typed nil senders must be skipped")
	}
	if err := g.SendMessage(context.Background(), "11987654321", "Olá"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestGatewayStatusReportsEachSender(t *testing.T) {
	g := NewGateway(logger.Discard(),
		&fakeSender{name: "bridge", err: errors.New("offline")},
		&fakeSender{name: "twilio"})

	st := g.Status(context.Background())
	if !st.Configured || len(st.Senders) != 2 {
		t.Fatalf("unexpected status %+v", st)
	}
	if st.Senders[0].Healthy || st.Senders[0].Error != "offline" {
		t.Fatalf("unexpected bridge status %+v", st.Senders[0])
	}
	if !st.Senders[1].Healthy || st.Senders[1].Name != "twilio" {
		t.Fatalf("unexpected twilio status %+v", st.Senders[1])
	}

	if st := NewGateway(logger.Discard()).Status(context.Background()); st.Configured || len(st.Senders) != 0 {
		t.Fatalf("unexpected empty status %+v", st)
	}
}
