package assistant

import (
	"sync"
	"time"
)

// Gate decides whether the model should be tried for a session. A failed
// call cools the session down; a quota error cools every session down.
type Gate struct {
	cooldown      time.Duration
	quotaCooldown time.Duration
	now           func() time.Time

	mu          sync.Mutex
	sessions    map[string]time.Time
	globalUntil time.Time
	lastStatus  Status
}

func NewGate(cooldown, quotaCooldown time.Duration) *Gate {
	return &Gate{
		cooldown:      cooldown,
		quotaCooldown: quotaCooldown,
		now:           time.Now,
		sessions:      make(map[string]time.Time),
	}
}

// Allow reports whether the model may be called for sessionID.
func (g *Gate) Allow(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if now.Before(g.globalUntil) {
		return false
	}
	until, ok := g.sessions[sessionID]
	if !ok {
		return true
	}
	if now.Before(until) {
		return false
	}
	delete(g.sessions, sessionID)
	return true
}

// Record feeds the outcome of a call back into the gate.
func (g *Gate) Record(sessionID string, status Status) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastStatus = status
	now := g.now()
	switch status {
	case StatusOK, StatusEmpty:
		delete(g.sessions, sessionID)
	case StatusQuotaExceeded:
		g.globalUntil = now.Add(g.quotaCooldown)
	default:
		g.sessions[sessionID] = now.Add(g.cooldown)
	}
}

// Forget clears the cool-down of one session.
func (g *Gate) Forget(sessionID string) {
	g.mu.Lock()
	delete(g.sessions, sessionID)
	g.mu.Unlock()
}

// Snapshot describes the gate for status reporting.
type Snapshot struct {
	QuotaCooldownUntil time.Time `json:"quota_cooldown_until,omitempty"`
	CoolingSessions    int       `json:"cooling_sessions"`
	LastStatus         Status    `json:"last_status,omitempty"`
	FallbackMode       bool      `json:"fallback_mode"`
}

func (g *Gate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	s := Snapshot{CoolingSessions: 0, LastStatus: g.lastStatus}
	for _, until := range g.sessions {
		if now.Before(until) {
			s.CoolingSessions++
		}
	}
	if now.Before(g.globalUntil) {
		s.QuotaCooldownUntil = g.globalUntil
		s.FallbackMode = true
	}
	return s
}

// Prune drops cool-downs that ended before now.
func (g *Gate) Prune(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	removed := 0
	for id, until := range g.sessions {
		if !now.Before(until) {
			delete(g.sessions, id)
			removed++
		}
	}
	return removed
}
