// Package sessions persists conversation sessions. Repositories are plain
// key-value stores; Store layers timeouts, lazy TTL expiry and repair of
// partially written records on top of them.
package sessions

import (
	"context"
	"errors"

	"github.com/KauaneAlmeida/back-end-teste/internal/intake"
)

// ErrNotFound is returned by repositories for unknown session ids.
var ErrNotFound = errors.New("session not found")

// Repository is the storage contract for sessions.
type Repository interface {
	Get(ctx context.Context, sessionID string) (*intake.Session, error)
	Save(ctx context.Context, s *intake.Session) error
	Delete(ctx context.Context, sessionID string) error
	Ping(ctx context.Context) error
}
