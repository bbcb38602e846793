package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/KauaneAlmeida/back-end-teste/internal/intake"
	"github.com/KauaneAlmeida/back-end-teste/platform/apperr"
	"github.com/KauaneAlmeida/back-end-teste/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type slowRepository struct {
	*MemoryRepository
	delay time.Duration
}

func (r *slowRepository) Get(ctx context.Context, sessionID string) (*intake.Session, error) {
	select {
	case <-time.After(r.delay):
		return nil, ErrNotFound
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type brokenRepository struct {
	*MemoryRepository
}

func (r *brokenRepository) Get(context.Context, string) (*intake.Session, error) {
	return nil, errors.New("connection refused")
}

func newTestStore(repo Repository, ttl time.Duration, now time.Time) *Store {
	s := NewStore(repo, Options{TTL: ttl, Timeout: 50 * time.Millisecond}, logger.Discard())
	s.now = func() time.Time { return now }
	return s
}

func TestLoadCreatesNewSession(t *testing.T) {
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	store := newTestStore(NewMemoryRepository(), 24*time.Hour, now)

	got, err := store.Load(context.Background(), "web_1", intake.PlatformWeb)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Status != StatusNew || !got.Status.Fresh() {
		t.Fatalf("expected new session, got %v", got.Status)
	}
	if got.Session.LeadData == nil || got.Session.State != intake.StateInitial {
		t.Fatalf("unexpected fresh session %+v", got.Session)
	}
}

func TestLoadExpiresIdleSession(t *testing.T) {
	repo := NewMemoryRepository()
	created := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	old := intake.NewSession("web_1", intake.PlatformWeb, created)
	old.LeadData[intake.FieldName] = "João Silva"
	old.CurrentStep = 3
	_ = repo.Save(context.Background(), old)

	store := newTestStore(repo, 24*time.Hour, created.Add(25*time.Hour))
	got, err := store.Load(context.Background(), "web_1", intake.PlatformWeb)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Status != StatusExpired || got.Session.CurrentStep != 0 || len(got.Session.LeadData) != 0 {
		t.Fatalf("expected a fresh session replacing the expired one, got %+v", got)
	}
	if repo.Len() != 0 {
		t.Fatal("expired session should be deleted")
	}
}

func TestLoadRepairsAndPersists(t *testing.T) {
	repo := NewMemoryRepository()
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	repo.sessions["web_1"] = &intake.Session{SessionID: "web_1", Platform: intake.PlatformWeb, State: intake.StateCollecting, CurrentStep: 2, LastUpdated: now}

	store := newTestStore(repo, 24*time.Hour, now)
	got, err := store.Load(context.Background(), "web_1", intake.PlatformWeb)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Status != StatusFound || len(got.Repaired) == 0 || got.Session.LeadData == nil {
		t.Fatalf("expected repaired session, got %+v", got)
	}

	stored, _ := repo.Get(context.Background(), "web_1")
	if stored.LeadData == nil || stored.ConversationID == "" {
		t.Fatalf("repair should be written back, got %+v", stored)
	}
}

func TestLoadTimesOut(t *testing.T) {
	store := newTestStore(&slowRepository{MemoryRepository: NewMemoryRepository(), delay: time.Second}, time.Hour, time.Now())

	_, err := store.Load(context.Background(), "web_1", intake.PlatformWeb)
	if !apperr.Is(err, apperr.KindTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestLoadReportsUnavailable(t *testing.T) {
	store := newTestStore(&brokenRepository{MemoryRepository: NewMemoryRepository()}, time.Hour, time.Now())

	_, err := store.Load(context.Background(), "web_1", intake.PlatformWeb)
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestPeekRepairsWithoutWritingBack(t *testing.T) {
	repo := NewMemoryRepository()
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	repo.sessions["web_1"] = &intake.Session{SessionID: "web_1", Platform: intake.PlatformWeb, State: intake.StateCollecting, CurrentStep: 2, LastUpdated: now}

	store := newTestStore(repo, 24*time.Hour, now)
	got, err := store.Peek(context.Background(), "web_1")
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if got.LeadData == nil || got.ConversationID == "" {
		t.Fatalf("expected repaired copy, got %+v", got)
	}

	stored, _ := repo.Get(context.Background(), "web_1")
	if stored.ConversationID != "" {
		t.Fatalf("peek must not write the session back, got %+v", stored)
	}
}

func TestPeekUnknownSession(t *testing.T) {
	store := newTestStore(NewMemoryRepository(), time.Hour, time.Now())
	if _, err := store.Peek(context.Background(), "missing"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRedisRepositoryRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := NewRedisRepository(client, time.Hour)
	ctx := context.Background()

	s := intake.NewSession("web_1", intake.PlatformWeb, time.Now())
	s.LeadData[intake.FieldName] = "João Silva"
	if err := repo.Save(ctx, s); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ttl := mr.TTL(keyPrefix + "web_1"); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %v", ttl)
	}

	got, err := repo.Get(ctx, "web_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LeadData[intake.FieldName] != "João Silva" || got.ConversationID != s.ConversationID {
		t.Fatalf("unexpected session %+v", got)
	}

	if err := repo.Delete(ctx, "web_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, "web_1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestRedisRepositoryDecodesNullLeadData(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	if err := mr.Set(keyPrefix+"web_1", `{"session_id":"web_1","platform":"web","state":"collecting","lead_data":null}`); err != nil {
		t.Fatalf("seed: %v", err)
	}

	store := newTestStore(NewRedisRepository(client, time.Hour), 0, time.Now())
	got, err := store.Load(context.Background(), "web_1", intake.PlatformWeb)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Session.LeadData == nil {
		t.Fatal("lead_data must never be nil after load")
	}
}

func TestMemoryRepositoryDeleteIdle(t *testing.T) {
	repo := NewMemoryRepository()
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	store := newTestStore(repo, time.Hour, now.Add(-2*time.Hour))

	ctx := context.Background()
	if err := store.Save(ctx, intake.NewSession("web_old", intake.PlatformWeb, now)); err != nil {
		t.Fatalf("save: %v", err)
	}
	store.now = func() time.Time { return now }
	if err := store.Save(ctx, intake.NewSession("web_new", intake.PlatformWeb, now)); err != nil {
		t.Fatalf("save: %v", err)
	}

	if got := repo.DeleteIdle(now.Add(-time.Hour)); got != 1 {
		t.Fatalf("expected 1 removed, got %d", got)
	}
	if repo.Len() != 1 {
		t.Fatalf("expected 1 session left, got %d", repo.Len())
	}
	if _, err := repo.Get(ctx, "web_new"); err != nil {
		t.Fatalf("recent session must survive: %v", err)
	}
}
