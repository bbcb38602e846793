package whatsapp

import (
	"context"
	"errors"
	"fmt"

	"github.com/KauaneAlmeida/back-end-teste/platform/logger"
)

var (
	// ErrInvalidPhone is returned for numbers that are not Brazilian.
	ErrInvalidPhone = errors.New("invalid whatsapp phone number")
	// ErrNotConfigured is returned when no sender is available.
	ErrNotConfigured = errors.New("whatsapp sender not configured")
)

// Sender is one way of delivering a WhatsApp message.
type Sender interface {
	Name() string
	SendMessage(ctx context.Context, phoneNumber, message string) error
	Ping(ctx context.Context) error
}

// Gateway tries its senders in order and stops at the first success.
type Gateway struct {
	senders []Sender
	log     *logger.Logger
}

// NewGateway keeps only the configured senders. Typed nil senders, as
// returned by NewClient and NewTwilioClient, are skipped.
func NewGateway(log *logger.Logger, senders ...Sender) *Gateway {
	g := &Gateway{log: log}
	for _, s := range senders {
		switch v := s.(type) {
		case nil:
		case *Client:
			if v != nil {
				g.senders = append(g.senders, v)
			}
		case *TwilioClient:
			if v != nil {
				g.senders = append(g.senders, v)
			}
		default:
			g.senders = append(g.senders, v)
		}
	}
	return g
}

// Configured reports whether any sender is available.
func (g *Gateway) Configured() bool {
	return g != nil && len(g.senders) > 0
}

func (g *Gateway) SendMessage(ctx context.Context, phoneNumber, message string) error {
	if !g.Configured() {
		return ErrNotConfigured
	}
	var errs []error
	for _, s := range g.senders {
		err := s.SendMessage(ctx, phoneNumber, message)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrInvalidPhone) {
			return err
		}
		g.log.WithContext(ctx).Warn("whatsapp sender failed", "sender", s.Name(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
	}
	return errors.Join(errs...)
}

// Ping succeeds when any sender is healthy.
func (g *Gateway) Ping(ctx context.Context) error {
	if !g.Configured() {
		return ErrNotConfigured
	}
	var errs []error
	for _, s := range g.senders {
		err := s.Ping(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
	}
	return errors.Join(errs...)
}

// SenderStatus is the health of one sender.
type SenderStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Status reports every sender for operators.
type Status struct {
	Configured bool           `json:"configured"`
	Senders    []SenderStatus `json:"senders"`
}

// Status pings each sender in turn.
func (g *Gateway) Status(ctx context.Context) Status {
	out := Status{Configured: g.Configured(), Senders: []SenderStatus{}}
	if !out.Configured {
		return out
	}
	for _, s := range g.senders {
		st := SenderStatus{Name: s.Name(), Healthy: true}
		if err := s.Ping(ctx); err != nil {
			st.Healthy = false
			st.Error = err.Error()
		}
		out.Senders = append(out.Senders, st)
	}
	return out
}
