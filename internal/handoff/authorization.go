// Package handoff authorizes landing page sessions to continue on WhatsApp.
// An authorization is short-lived: while it holds, an inbound WhatsApp
// message quoting the session id is attached to that session, and the
// visitor receives one welcome message.
package handoff

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// Sources of an authorization request.
const (
	SourceLandingChat   = "landing_chat"
	SourceLandingButton = "landing_button"
	SourceLandingPage   = "landing_page"
)

// Lead types recorded with an authorization.
const (
	LeadTypeLandingChat = "landing_chat_lead"
	LeadTypeButton      = "whatsapp_button_lead"
)

// Actions a bridge takes for a session.
const (
	ActionRespond = "RESPOND"
	ActionIgnore  = "IGNORE_COMPLETELY"
)

// Reasons reported by a check that did not authorize.
const (
	ReasonNoSession     = "no_session_id"
	ReasonNotAuthorized = "session_not_authorized"
	ReasonExpired       = "session_expired"
	ReasonUnavailable   = "store_unavailable"
)

var (
	// ErrInvalidSessionID is returned for ids that cannot be authorized.
	ErrInvalidSessionID = errors.New("invalid session id")
	// ErrNotFound is returned by a Repository for unknown or expired sessions.
	ErrNotFound = errors.New("authorization not found")
)

const (
	minSessionIDLength = 10
	maxSessionIDLength = 128
)

// Authorization lets a session continue on WhatsApp until ExpiresAt.
type Authorization struct {
	SessionID    string         `json:"session_id"`
	PhoneNumber  string         `json:"phone_number"`
	Source       string         `json:"source"`
	LeadType     string         `json:"lead_type"`
	UserData     map[string]any `json:"user_data,omitempty"`
	AuthorizedAt time.Time      `json:"authorized_at"`
	ExpiresAt    time.Time      `json:"expires_at"`
}

// Expired reports whether the authorization no longer holds at now.
func (a Authorization) Expired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// Check answers whether a session may talk on WhatsApp.
type Check struct {
	SessionID    string         `json:"session_id"`
	Authorized   bool           `json:"authorized"`
	Action       string         `json:"action"`
	Reason       string         `json:"reason,omitempty"`
	Source       string         `json:"source,omitempty"`
	LeadType     string         `json:"lead_type,omitempty"`
	UserData     map[string]any `json:"user_data,omitempty"`
	AuthorizedAt *time.Time     `json:"authorized_at,omitempty"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	CheckedAt    time.Time      `json:"checked_at"`
}

func leadType(source string) string {
	if source == SourceLandingChat {
		return LeadTypeLandingChat
	}
	return LeadTypeButton
}

// sendsWelcome reports whether an authorization from source gets the
// welcome message.
func sendsWelcome(source string) bool {
	return source == SourceLandingChat || source == SourceLandingButton
}

// ValidateSessionID trims id and rejects values that are too short, too
// long, or carry markup, quotes or control characters. A 36 character id
// must be a well-formed UUID.
func ValidateSessionID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if len(id) < minSessionIDLength || len(id) > maxSessionIDLength {
		return "", ErrInvalidSessionID
	}
	for _, r := range id {
		if strings.ContainsRune(`<>"'\`, r) || unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", ErrInvalidSessionID
		}
	}
	if len(id) == 36 && strings.Count(id, "-") == 4 {
		if _, err := uuid.Parse(id); err != nil {
			return "", ErrInvalidSessionID
		}
	}
	return id, nil
}

var sessionTokenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bweb_\d+(?:_[0-9a-f]+)?\b`),
	regexp.MustCompile(`(?i)\bsession_[\w-]+`),
	regexp.MustCompile(`(?i)\bwhatsapp_\w+`),
	regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`),
}

// ExtractSessionID finds a session id quoted in a message, as the landing
// page pre-fills it in the wa.me link. It returns "" when none is found.
func ExtractSessionID(text string) string {
	for _, re := range sessionTokenPatterns {
		if m := re.FindString(text); m != "" {
			if id, err := ValidateSessionID(m); err == nil {
				return id
			}
		}
	}
	return ""
}
