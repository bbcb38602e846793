package completion

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KauaneAlmeida/back-end-teste/internal/intake"
	"github.com/KauaneAlmeida/back-end-teste/internal/leads"
	"github.com/KauaneAlmeida/back-end-teste/platform/logger"
)

type fakeNotifier struct {
	calls    atomic.Int32
	failures int32
}

func (f *fakeNotifier) Notify(context.Context, intake.LeadRecord) error {
	n := f.calls.Add(1)
	if f.failures < 0 || n <= f.failures {
		return errors.New("gateway down")
	}
	return nil
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent map[string]string
	err  error
}

func (f *fakeMessenger) SendMessage(_ context.Context, phone, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.sent == nil {
		f.sent = make(map[string]string)
	}
	f.sent[phone] = text
	return nil
}

type recordingDispatcher struct {
	jobs []Job
}

func (d *recordingDispatcher) Dispatch(_ context.Context, job Job) error {
	d.jobs = append(d.jobs, job)
	return nil
}

// flakyDispatcher refuses the first failures jobs, then records the rest.
type flakyDispatcher struct {
	failures int
	recordingDispatcher
}

func (d *flakyDispatcher) Dispatch(ctx context.Context, job Job) error {
	if d.failures > 0 {
		d.failures--
		return errors.New("redis: connection refused")
	}
	return d.recordingDispatcher.Dispatch(ctx, job)
}

func qualifiedWebSession() *intake.Session {
	s := intake.NewSession("web_1", intake.PlatformWeb, time.Now())
	s.State = intake.StateCompleted
	s.FlowCompleted = true
	s.CurrentStep = 5
	s.LeadData = intake.LeadData{
		intake.FieldName:         "João Silva",
		intake.FieldPhone:        "5511987654321",
		intake.FieldContact:      "5511987654321",
		intake.FieldArea:         intake.AreaCriminal,
		intake.FieldCaseDetails:  "Meu irmão foi preso ontem",
		intake.FieldConfirmation: "sim",
	}
	return s
}

func testRunner(notifier Notifier, messenger Messenger, breaker *Breaker) *Runner {
	return NewRunner(leads.NewMemoryRepository(), notifier, messenger, breaker,
		RunnerOptions{NotifyAttempts: 3, NotifyBaseBackoff: time.Millisecond, Timeout: time.Second}, logger.Discard())
}

func TestPrepareMarksSessionAndPlansJobsOnce(t *testing.T) {
	c := NewCoordinator(&recordingDispatcher{}, logger.Discard())
	s := qualifiedWebSession()
	decision := intake.NewEvaluator(intake.DefaultThresholds()).Evaluate(s, intake.DefaultFlow())

	plan := c.Prepare(s, decision)

	if !s.LawyersNotified || !s.CompletionDispatched {
		t.Fatalf("expected session flags set, got notified=%v dispatched=%v", s.LawyersNotified, s.CompletionDispatched)
	}
	kinds := map[string]bool{}
	for _, j := range plan.Jobs {
		kinds[j.Key()] = true
	}
	for _, want := range []string{
		s.ConversationID + ":lead.persist:qualified",
		s.ConversationID + ":lead.notify",
		s.ConversationID + ":lead.persist:completed",
		s.ConversationID + ":lead.confirm",
	} {
		if !kinds[want] {
			t.Fatalf("missing job %s in %v", want, kinds)
		}
	}
	if plan.Closing() != intake.ClosingWithConfirmation {
		t.Fatalf("unexpected closing %q", plan.Closing())
	}

	again := c.Prepare(s, intake.NewEvaluator(intake.DefaultThresholds()).Evaluate(s, intake.DefaultFlow()))
	if !again.Empty() {
		t.Fatalf("second prepare must plan nothing, got %d jobs", len(again.Jobs))
	}
}

func TestFailedDispatchIsPlannedAgain(t *testing.T) {
	d := &flakyDispatcher{failures: 2}
	c := NewCoordinator(d, logger.Discard())
	s := qualifiedWebSession()
	evaluator := intake.NewEvaluator(intake.DefaultThresholds())

	plan := c.Prepare(s, evaluator.Evaluate(s, intake.DefaultFlow()))
	failed := c.Dispatch(context.Background(), plan)
	if len(failed) != 2 || len(d.jobs) != len(plan.Jobs)-2 {
		t.Fatalf("expected two refused jobs, got %d failed and %d queued", len(failed), len(d.jobs))
	}
	Defer(s, failed)
	if len(s.PendingEffects) != 2 {
		t.Fatalf("expected pending effects on the session, got %d", len(s.PendingEffects))
	}

	retry := c.Prepare(s, evaluator.Evaluate(s, intake.DefaultFlow()))
	if retry.Retried != 2 || len(retry.Jobs) != 2 || len(s.PendingEffects) != 0 {
		t.Fatalf("expected the refused jobs planned again, got %+v", retry)
	}
	for i, job := range retry.Jobs {
		if job.Key() != failed[i].Key() || job.Lead.ConversationID != s.ConversationID {
			t.Fatalf("retried job %d changed: %s vs %s", i, job.Key(), failed[i].Key())
		}
	}
	if left := c.Dispatch(context.Background(), retry); len(left) != 0 {
		t.Fatalf("expected retry to queue everything, %d left", len(left))
	}
	if len(d.jobs) != len(plan.Jobs) {
		t.Fatalf("expected every planned job queued once, got %d of %d", len(d.jobs), len(plan.Jobs))
	}
}

func TestPrepareWithoutPhoneSkipsConfirmation(t *testing.T) {
	c := NewCoordinator(&recordingDispatcher{}, logger.Discard())
	s := qualifiedWebSession()
	delete(s.LeadData, intake.FieldPhone)
	s.LeadData[intake.FieldContact] = "joao@example.com"
	s.LeadData[intake.FieldEmail] = "joao@example.com"

	plan := c.Prepare(s, intake.Decision{ShouldNotify: true, Score: 0.95})
	if plan.ConfirmationQueued || plan.Closing() != intake.ClosingGeneric {
		t.Fatalf("expected no confirmation, got %+v", plan)
	}
}

func TestLocalDispatcherRunsEachKeyOnce(t *testing.T) {
	notifier := &fakeNotifier{}
	d := NewLocalDispatcher(testRunner(notifier, nil, nil), logger.Discard())
	job := Job{Kind: KindNotify, ConversationID: "conv-1"}

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.Dispatch(context.Background(), job); err == nil {
				accepted.Add(1)
			} else if !errors.Is(err, ErrDuplicate) {
				t.Errorf("unexpected dispatch error: %v", err)
			}
		}()
	}
	wg.Wait()
	d.Wait()

	if accepted.Load() != 1 || notifier.calls.Load() != 1 {
		t.Fatalf("expected one run, got accepted=%d calls=%d", accepted.Load(), notifier.calls.Load())
	}
}

func TestNotifyRetriesThenSucceeds(t *testing.T) {
	notifier := &fakeNotifier{failures: 2}
	r := testRunner(notifier, nil, nil)

	if err := r.Run(context.Background(), Job{Kind: KindNotify, ConversationID: "conv-1"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if notifier.calls.Load() != 3 || r.Breaker().State() != BreakerClosed {
		t.Fatalf("expected 3 attempts and closed breaker, got %d and %s", notifier.calls.Load(), r.Breaker().State())
	}
}

func TestBreakerOpensAfterExhaustedNotifications(t *testing.T) {
	notifier := &fakeNotifier{failures: -1}
	breaker := NewBreaker(3, time.Hour)
	r := testRunner(notifier, nil, breaker)

	for i := 0; i < 3; i++ {
		if err := r.Run(context.Background(), Job{Kind: KindNotify, ConversationID: "conv"}); err != nil {
			t.Fatalf("notify failures must not surface, got %v", err)
		}
	}
	if breaker.State() != BreakerOpen || notifier.calls.Load() != 9 {
		t.Fatalf("expected open breaker after 9 attempts, got %s after %d", breaker.State(), notifier.calls.Load())
	}

	_ = r.Run(context.Background(), Job{Kind: KindNotify, ConversationID: "conv-4"})
	if notifier.calls.Load() != 9 {
		t.Fatal("open breaker must skip the notifier")
	}
}

func TestBreakerHalfOpenTrial(t *testing.T) {
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(1, time.Minute)
	b.now = func() time.Time { return now }

	b.Failure()
	if b.Allow() {
		t.Fatal("breaker should be open")
	}

	now = now.Add(time.Minute)
	if !b.Allow() {
		t.Fatal("breaker should allow a trial after the cooldown")
	}
	if b.Allow() {
		t.Fatal("only one trial may run at a time")
	}
	b.Success()
	if b.State() != BreakerClosed || !b.Allow() {
		t.Fatal("successful trial should close the breaker")
	}
}

func TestConfirmIsBestEffort(t *testing.T) {
	messenger := &fakeMessenger{err: errors.New("bridge offline")}
	r := testRunner(&fakeNotifier{}, messenger, nil)

	if err := r.Run(context.Background(), Job{Kind: KindConfirm, Phone: "5511987654321", Message: "oi"}); err != nil {
		t.Fatalf("confirmation failure must not surface, got %v", err)
	}
}

func TestWelcomeSendsMessage(t *testing.T) {
	messenger := &fakeMessenger{}
	r := testRunner(&fakeNotifier{}, messenger, nil)

	job := Job{Kind: KindWelcome, ConversationID: "web_1700000000_abcd", Phone: "5511987654321", Message: "Olá!"}
	if err := r.Run(context.Background(), job); err != nil {
		t.Fatalf("run: %v", err)
	}
	if messenger.sent["5511987654321"] != "Olá!" {
		t.Fatalf("expected welcome sent, got %v", messenger.sent)
	}
	if job.Key() != "web_1700000000_abcd:whatsapp.welcome" {
		t.Fatalf("unexpected key %s", job.Key())
	}
}

func TestPersistUpsertsLead(t *testing.T) {
	repo := leads.NewMemoryRepository()
	r := NewRunner(repo, nil, nil, nil, RunnerOptions{}, logger.Discard())
	s := qualifiedWebSession()

	for _, stage := range []string{intake.LeadStageQualified, intake.LeadStageCompleted} {
		job := Job{Kind: KindPersist, ConversationID: s.ConversationID, Stage: stage, Lead: intake.NewLeadRecord(s, stage, time.Now())}
		if err := r.Run(context.Background(), job); err != nil {
			t.Fatalf("persist: %v", err)
		}
	}
	if repo.Count() != 1 || repo.Saves() != 2 {
		t.Fatalf("expected one lead saved twice, got %d leads and %d saves", repo.Count(), repo.Saves())
	}
}
