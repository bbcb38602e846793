package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/KauaneAlmeida/back-end-teste/internal/intake"
	"github.com/KauaneAlmeida/back-end-teste/platform/apperr"
	"github.com/KauaneAlmeida/back-end-teste/platform/logger"
)

// LoadStatus tells how Load obtained the session.
type LoadStatus int

const (
	// StatusFound means a live session was read from the repository.
	StatusFound LoadStatus = iota
	// StatusNew means no session existed and a fresh one was created.
	StatusNew
	// StatusExpired means the stored session outlived the TTL and was replaced.
	StatusExpired
)

// Fresh reports whether the caller received a brand new session.
func (s LoadStatus) Fresh() bool { return s != StatusFound }

// Loaded is the result of Store.Load.
type Loaded struct {
	Session  *intake.Session
	Status   LoadStatus
	Repaired []string
}

// Options configures a Store.
type Options struct {
	// TTL is the idle time after which a session is discarded on read.
	TTL time.Duration
	// Timeout bounds every repository call.
	Timeout time.Duration
}

// Store wraps a Repository with the read and write rules every caller relies on.
type Store struct {
	repo Repository
	opts Options
	log  *logger.Logger
	now  func() time.Time
}

// NewStore builds a Store over repo.
func NewStore(repo Repository, opts Options, log *logger.Logger) *Store {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	return &Store{repo: repo, opts: opts, log: log, now: time.Now}
}

// Load returns the session for sessionID, creating one when it does not
// exist or has expired. Records missing required fields are repaired and
// written back; a failed write-back is logged and does not fail the read.
func (s *Store) Load(ctx context.Context, sessionID string, platform intake.Platform) (Loaded, error) {
	now := s.now()

	existing, err := s.get(ctx, sessionID)
	switch {
	case errors.Is(err, ErrNotFound):
		return Loaded{Session: intake.NewSession(sessionID, platform, now), Status: StatusNew}, nil
	case err != nil:
		return Loaded{}, err
	}

	if existing.Expired(now, s.opts.TTL) {
		s.log.WithContext(ctx).Info("session expired", "session_id", sessionID, "last_updated", existing.LastUpdated)
		if err := s.Delete(ctx, sessionID); err != nil {
			s.log.WithContext(ctx).Warn("failed to delete expired session", "session_id", sessionID, "error", err)
		}
		return Loaded{Session: intake.NewSession(sessionID, platform, now), Status: StatusExpired}, nil
	}

	fixed := s.repair(ctx, existing, now, true)
	return Loaded{Session: existing, Status: StatusFound, Repaired: fixed}, nil
}

// Peek reads a session without creating one. Unknown and expired sessions
// yield a NotFound error. Repairs apply to the returned copy only: Peek runs
// without the session lock, so writing back could overwrite a newer turn.
func (s *Store) Peek(ctx context.Context, sessionID string) (*intake.Session, error) {
	now := s.now()
	existing, err := s.get(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("session not found").WithOp("sessions.Peek")
	}
	if err != nil {
		return nil, err
	}
	if existing.Expired(now, s.opts.TTL) {
		return nil, apperr.NotFound("session expired").WithOp("sessions.Peek")
	}
	s.repair(ctx, existing, now, false)
	return existing, nil
}

// Save stamps LastUpdated and writes the session.
func (s *Store) Save(ctx context.Context, session *intake.Session) error {
	session.LastUpdated = s.now().UTC()
	if session.LeadData == nil {
		session.LeadData = intake.LeadData{}
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	if err := s.repo.Save(ctx, session); err != nil {
		return classify("sessions.Save", err)
	}
	return nil
}

// Delete removes a session.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	if err := s.repo.Delete(ctx, sessionID); err != nil {
		return classify("sessions.Delete", err)
	}
	return nil
}

// Ping checks the backing repository.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	return s.repo.Ping(ctx)
}

func (s *Store) get(ctx context.Context, sessionID string) (*intake.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	existing, err := s.repo.Get(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify("sessions.Get", err)
	}
	return existing, nil
}

func (s *Store) repair(ctx context.Context, session *intake.Session, now time.Time, persist bool) []string {
	fixed := session.Repair(now)
	if len(fixed) == 0 {
		return nil
	}
	s.log.WithContext(ctx).SessionRepaired(session.SessionID, fixed)
	if !persist {
		return fixed
	}
	if err := s.Save(ctx, session); err != nil {
		s.log.WithContext(ctx).Warn("failed to persist repaired session", "session_id", session.SessionID, "error", err)
	}
	return fixed
}

func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Timeout("session store timed out", err).WithOp(op)
	}
	return apperr.Unavailable("session store unavailable", err).WithOp(op)
}
