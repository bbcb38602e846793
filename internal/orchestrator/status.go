package orchestrator

import (
	"context"
	"time"

	"github.com/KauaneAlmeida/back-end-teste/internal/assistant"

	"golang.org/x/sync/errgroup"
)

// Component health values.
const (
	HealthUp            = "up"
	HealthDown          = "down"
	HealthNotConfigured = "not_configured"
)

// ServiceStatus describes the health of the conversation service.
type ServiceStatus struct {
	Status       string             `json:"status"`
	Store        string             `json:"store"`
	AI           string             `json:"ai"`
	WhatsApp     string             `json:"whatsapp"`
	Breaker      string             `json:"notification_breaker"`
	FallbackMode bool               `json:"fallback_mode"`
	Gate         assistant.Snapshot `json:"ai_gate"`
	Flow         string             `json:"flow"`
	FlowSource   string             `json:"flow_source"`
	FlowSteps    int                `json:"flow_steps"`
	CheckedAt    time.Time          `json:"checked_at"`
}

// Status checks every dependency concurrently. The service is "degraded"
// when a dependency is down but conversations can still be answered, and
// "unavailable" when the session store is down.
func (s *Service) Status(ctx context.Context) ServiceStatus {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out := ServiceStatus{
		AI:        HealthNotConfigured,
		WhatsApp:  HealthNotConfigured,
		Breaker:   HealthNotConfigured,
		Gate:      s.deps.Gate.Snapshot(),
		CheckedAt: s.now().UTC(),
	}

	var g errgroup.Group
	g.Go(func() error {
		out.Store = health(s.deps.Store.Ping(ctx))
		return nil
	})
	if s.deps.WhatsApp != nil {
		g.Go(func() error {
			out.WhatsApp = health(s.deps.WhatsApp.Ping(ctx))
			return nil
		})
	}
	g.Go(func() error {
		flow := s.deps.Flows.Current(ctx)
		out.Flow, out.FlowSource, out.FlowSteps = flow.Name, flow.Source, len(flow.Steps)
		return nil
	})
	_ = g.Wait()

	if s.deps.Generator != nil {
		out.AI = HealthUp
		if out.Gate.FallbackMode {
			out.AI = HealthDown
		}
	}
	out.FallbackMode = s.deps.Generator == nil || out.Gate.FallbackMode
	if s.deps.Breaker != nil {
		out.Breaker = string(s.deps.Breaker.State())
	}

	switch {
	case out.Store == HealthDown:
		out.Status = "unavailable"
	case out.AI == HealthDown || out.WhatsApp == HealthDown || out.Breaker == "open":
		out.Status = "degraded"
	default:
		out.Status = "ok"
	}
	return out
}

func health(err error) string {
	if err != nil {
		return HealthDown
	}
	return HealthUp
}
