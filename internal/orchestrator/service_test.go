package orchestrator

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KauaneAlmeida/back-end-teste/internal/assistant"
	"github.com/KauaneAlmeida/back-end-teste/internal/completion"
	"github.com/KauaneAlmeida/back-end-teste/internal/flows"
	"github.com/KauaneAlmeida/back-end-teste/internal/intake"
	"github.com/KauaneAlmeida/back-end-teste/internal/leads"
	"github.com/KauaneAlmeida/back-end-teste/internal/locking"
	"github.com/KauaneAlmeida/back-end-teste/internal/ratelimit"
	"github.com/KauaneAlmeida/back-end-teste/internal/sessions"
	"github.com/KauaneAlmeida/back-end-teste/platform/apperr"
	"github.com/KauaneAlmeida/back-end-teste/platform/logger"
)

// 13:00 UTC is 10:00 in São Paulo.
var morning = time.Date(2024, 3, 4, 13, 0, 0, 0, time.UTC)

type countingNotifier struct {
	calls atomic.Int32
}

func (n *countingNotifier) Notify(context.Context, intake.LeadRecord) error {
	n.calls.Add(1)
	return nil
}

type recordingMessenger struct {
	mu   sync.Mutex
	sent []string
}

func (m *recordingMessenger) SendMessage(_ context.Context, phone, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, phone)
	return nil
}

type scriptedGenerator struct {
	mu      sync.Mutex
	outcome assistant.Outcome
	panics  bool
	calls   int
	resets  int
}

func (g *scriptedGenerator) Generate(context.Context, string, string, assistant.Context) assistant.Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.panics {
		panic("model client exploded")
	}
	return g.outcome
}

func (g *scriptedGenerator) Reset(context.Context, string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resets++
	return nil
}

// flakyDispatcher refuses the first failures jobs before handing the rest on.
type flakyDispatcher struct {
	mu       sync.Mutex
	failures int
	next     completion.Dispatcher
}

func (d *flakyDispatcher) Dispatch(ctx context.Context, job completion.Job) error {
	d.mu.Lock()
	refuse := d.failures > 0
	if refuse {
		d.failures--
	}
	d.mu.Unlock()
	if refuse {
		return apperr.Unavailable("queue unavailable", nil)
	}
	return d.next.Dispatch(ctx, job)
}

type harness struct {
	svc        *Service
	repo       *sessions.MemoryRepository
	leads      *leads.MemoryRepository
	locker     *locking.LocalLocker
	dispatcher *completion.LocalDispatcher
	notifier   *countingNotifier
	messenger  *recordingMessenger
}

type harnessOptions struct {
	generator assistant.Generator
	gate      *assistant.Gate
	limit     int
	opts      Options
	// refuse makes the first refuse dispatches fail.
	refuse int
}

func newHarness(t *testing.T, ho harnessOptions) *harness {
	t.Helper()
	log := logger.Discard()
	if ho.limit == 0 {
		ho.limit = 100
	}
	if ho.opts.DuplicateWindow == 0 {
		ho.opts.DuplicateWindow = 10 * time.Second
	}

	h := &harness{
		repo:      sessions.NewMemoryRepository(),
		leads:     leads.NewMemoryRepository(),
		locker:    locking.NewLocal(),
		notifier:  &countingNotifier{},
		messenger: &recordingMessenger{},
	}
	breaker := completion.NewBreaker(3, 5*time.Minute)
	runner := completion.NewRunner(h.leads, h.notifier, h.messenger, breaker, completion.RunnerOptions{
		NotifyAttempts:    1,
		NotifyBaseBackoff: time.Millisecond,
		Timeout:           time.Second,
	}, log)
	h.dispatcher = completion.NewLocalDispatcher(runner, log)
	var dispatcher completion.Dispatcher = h.dispatcher
	if ho.refuse > 0 {
		dispatcher = &flakyDispatcher{failures: ho.refuse, next: h.dispatcher}
	}

	h.svc = New(Deps{
		Store:       sessions.NewStore(h.repo, sessions.Options{TTL: 24 * time.Hour, Timeout: time.Second}, log),
		Flows:       flows.NewProvider(log, time.Minute),
		Limiter:     ratelimit.NewLocal(ho.limit, time.Minute),
		Locker:      h.locker,
		Generator:   ho.generator,
		Gate:        ho.gate,
		Evaluator:   intake.NewEvaluator(intake.DefaultThresholds()),
		Coordinator: completion.NewCoordinator(dispatcher, log),
		Greeter:     intake.NewGreeter("America/Sao_Paulo"),
		Breaker:     breaker,
	}, ho.opts, log)
	h.svc.now = func() time.Time { return morning }
	return h
}

func (h *harness) send(t *testing.T, sessionID, message string) Envelope {
	t.Helper()
	env := h.svc.ProcessMessage(context.Background(), Request{Message: message, SessionID: sessionID, Platform: intake.PlatformWeb})
	if env.LeadData == nil {
		t.Fatalf("lead_data missing for %q (%s)", message, env.ResponseType)
	}
	return env
}

var webAnswers = []string{
	"João Silva",
	"11987654321",
	"direito penal",
	"Fui preso injustamente ontem à noite",
}

func TestFreshSessionIsGreeted(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	env := h.send(t, "web_a", "oi")

	if env.ResponseType != ResponseGreeting || !strings.HasPrefix(env.Response, "Bom dia!") {
		t.Fatalf("expected morning greeting, got %s %q", env.ResponseType, env.Response)
	}
	if !strings.Contains(env.Response, "nome completo") || env.CurrentStep != 1 {
		t.Fatalf("expected the name question on step 1, got step %d: %q", env.CurrentStep, env.Response)
	}
	if len(env.LeadData) != 0 {
		t.Fatalf("greeting must not consume the message, got %v", env.LeadData)
	}
}

func TestNameStepValidatesAndAdvances(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.send(t, "web_b", "oi")

	env := h.send(t, "web_b", "x")
	if env.ResponseType != ResponseClarification || env.CurrentStep != 1 || len(env.LeadData) != 0 {
		t.Fatalf("expected rejection on step 1, got %+v", env)
	}
	if !strings.Contains(env.Response, "nome completo") {
		t.Fatalf("expected the name question again, got %q", env.Response)
	}

	env = h.send(t, "web_b", "João Silva")
	if env.LeadData[intake.FieldName] != "João Silva" || env.CurrentStep != 2 {
		t.Fatalf("expected name accepted and step 2, got %+v", env)
	}
	if !strings.Contains(env.Response, "telefone") {
		t.Fatalf("expected the contact question, got %q", env.Response)
	}
}

func TestConcurrentFinalMessageNotifiesOnce(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.send(t, "web_d", "oi")
	lastStep := 0
	for _, answer := range webAnswers {
		env := h.send(t, "web_d", answer)
		if env.CurrentStep < lastStep {
			t.Fatalf("step went back from %d to %d", lastStep, env.CurrentStep)
		}
		lastStep = env.CurrentStep
	}

	var wg sync.WaitGroup
	envs := make([]Envelope, 2)
	for i := range envs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			envs[i] = h.svc.ProcessMessage(context.Background(), Request{Message: "sim", SessionID: "web_d", Platform: intake.PlatformWeb})
		}(i)
	}
	wg.Wait()
	h.dispatcher.Wait()

	completed := 0
	for _, env := range envs {
		if env.ResponseType == ResponseCompleted {
			completed++
			if !env.FlowCompleted || !env.LawyersNotified || env.Response != intake.ClosingWithConfirmation {
				t.Fatalf("unexpected completion envelope %+v", env)
			}
		}
	}
	if completed != 1 {
		t.Fatalf("expected exactly one completing turn, got %d (%s, %s)", completed, envs[0].ResponseType, envs[1].ResponseType)
	}
	if got := h.notifier.calls.Load(); got != 1 {
		t.Fatalf("expected one lawyer notification, got %d", got)
	}
	if h.leads.Count() != 1 {
		t.Fatalf("expected one persisted lead, got %d", h.leads.Count())
	}
	stored, _ := h.repo.Get(context.Background(), "web_d")
	rec, err := h.leads.FindByConversation(context.Background(), stored.ConversationID)
	if err != nil || rec.Stage != intake.LeadStageCompleted || rec.Phone != "5511987654321" {
		t.Fatalf("unexpected lead %+v (%v)", rec, err)
	}
	if len(h.messenger.sent) != 1 {
		t.Fatalf("expected one confirmation, got %v", h.messenger.sent)
	}
}

func TestAssistantTimeoutsFallBackToQuestionnaire(t *testing.T) {
	gen := &scriptedGenerator{outcome: assistant.Outcome{Status: assistant.StatusTimeout}}
	h := newHarness(t, harnessOptions{generator: gen, gate: assistant.NewGate(0, 0)})

	h.send(t, "web_e", "oi")
	for _, answer := range append(webAnswers, "sim") {
		env := h.send(t, "web_e", answer)
		if env.AIMode {
			t.Fatalf("assistant reply used despite timeout: %+v", env)
		}
	}
	h.dispatcher.Wait()

	stored, _ := h.repo.Get(context.Background(), "web_e")
	if !stored.FlowCompleted || !stored.LawyersNotified {
		t.Fatalf("expected completion through the questionnaire, got %+v", stored)
	}
	if gen.calls != len(webAnswers)+1 {
		t.Fatalf("expected the assistant tried on every answer, got %d calls", gen.calls)
	}
}

func TestAssistantReplyStillCapturesLeadData(t *testing.T) {
	gen := &scriptedGenerator{outcome: assistant.Outcome{Status: assistant.StatusOK, Text: "Prazer! Como posso ajudar?"}}
	h := newHarness(t, harnessOptions{generator: gen})
	h.send(t, "web_ai", "oi")

	env := h.send(t, "web_ai", "Meu nome é Ana Souza, meu telefone é 11987654321")

	if !env.AIMode || env.ResponseType != ResponseAI || env.Response != "Prazer! Como posso ajudar?" {
		t.Fatalf("expected the assistant reply, got %+v", env)
	}
	if env.LeadData[intake.FieldName] != "Ana Souza" || env.LeadData[intake.FieldPhone] != "5511987654321" {
		t.Fatalf("expected extraction into lead data, got %v", env.LeadData)
	}
	if env.CurrentStep != 3 {
		t.Fatalf("expected the questionnaire to skip answered steps, got step %d", env.CurrentStep)
	}
}

func TestExpiredSessionStartsOver(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	old := intake.NewSession("web_f", intake.PlatformWeb, time.Now().Add(-26*time.Hour))
	old.State = intake.StateCollecting
	old.CurrentStep = 3
	old.LeadData[intake.FieldName] = "João Silva"
	old.LastUpdated = time.Now().Add(-25 * time.Hour)
	if err := h.repo.Save(context.Background(), old); err != nil {
		t.Fatalf("seed: %v", err)
	}

	env := h.send(t, "web_f", "direito penal")

	if env.ResponseType != ResponseGreeting || env.CurrentStep != 1 || len(env.LeadData) != 0 {
		t.Fatalf("expected a fresh greeting, got %+v", env)
	}
}

func TestRateLimitShortCircuits(t *testing.T) {
	h := newHarness(t, harnessOptions{limit: 2})
	h.send(t, "web_rl", "oi")
	h.send(t, "web_rl", "João Silva")

	env := h.send(t, "web_rl", "11987654321")

	if env.ResponseType != ResponseRateLimited || env.Response != intake.RateLimited {
		t.Fatalf("expected rate limited envelope, got %+v", env)
	}
	stored, _ := h.repo.Get(context.Background(), "web_rl")
	if stored.MessageCount != 2 || stored.CurrentStep != 2 {
		t.Fatalf("rate limited message must not touch the session, got count=%d step=%d", stored.MessageCount, stored.CurrentStep)
	}
}

func TestBusySessionAnswersTryAgain(t *testing.T) {
	h := newHarness(t, harnessOptions{opts: Options{LockTimeout: 20 * time.Millisecond}})
	release, err := h.locker.Acquire(context.Background(), "web_busy", time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	env := h.send(t, "web_busy", "oi")
	if env.ResponseType != ResponseBusy || env.Response != intake.Busy {
		t.Fatalf("expected busy envelope, got %+v", env)
	}
}

func TestDuplicateDeliveryIsSuppressed(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.send(t, "web_dup", "oi")
	first := h.send(t, "web_dup", "João Silva")

	second := h.send(t, "web_dup", "João Silva")

	if second.ResponseType != ResponseDuplicate || second.Response != first.Response {
		t.Fatalf("expected the previous response replayed, got %+v", second)
	}
	if second.MessageCount != first.MessageCount || second.CurrentStep != 2 {
		t.Fatalf("duplicate must not consume a turn: %d/%d step %d", first.MessageCount, second.MessageCount, second.CurrentStep)
	}
}

func TestPanicIsRecoveredWithEscalatingApology(t *testing.T) {
	gen := &scriptedGenerator{panics: true}
	h := newHarness(t, harnessOptions{generator: gen})
	h.send(t, "web_p", "oi")

	first := h.send(t, "web_p", "João Silva")
	second := h.send(t, "web_p", "João Silva de novo")

	if first.ResponseType != ResponseErrorRecovery || first.State != intake.StateErrorRecovery {
		t.Fatalf("expected error recovery, got %+v", first)
	}
	if first.Response == second.Response || !strings.Contains(second.Response, "nome completo") {
		t.Fatalf("expected an escalating apology that re-asks the question, got %q then %q", first.Response, second.Response)
	}
	stored, _ := h.repo.Get(context.Background(), "web_p")
	if stored.RecoveryCount != 2 {
		t.Fatalf("expected two recorded recoveries, got %d", stored.RecoveryCount)
	}

	gen.mu.Lock()
	gen.panics = false
	gen.outcome = assistant.Outcome{Status: assistant.StatusError}
	gen.mu.Unlock()
	env := h.send(t, "web_p", "Maria Souza")
	if env.State != intake.StateCollecting || env.CurrentStep != 2 {
		t.Fatalf("expected the session to resume, got %+v", env)
	}
}

func TestRefusedDispatchKeepsJobsPending(t *testing.T) {
	h := newHarness(t, harnessOptions{refuse: 100})
	h.send(t, "web_q", "oi")
	for _, answer := range append(webAnswers, "sim") {
		h.send(t, "web_q", answer)
	}
	h.dispatcher.Wait()

	stored, _ := h.repo.Get(context.Background(), "web_q")
	if !stored.LawyersNotified || len(stored.PendingEffects) == 0 || h.notifier.calls.Load() != 0 {
		t.Fatalf("expected effects kept pending, got notified=%v pending=%d calls=%d",
			stored.LawyersNotified, len(stored.PendingEffects), h.notifier.calls.Load())
	}
}

func TestPendingJobsSurviveRestart(t *testing.T) {
	h := newHarness(t, harnessOptions{refuse: 4})
	h.send(t, "web_p", "oi")
	for _, answer := range append(webAnswers, "sim") {
		h.send(t, "web_p", answer)
	}
	before, _ := h.repo.Get(context.Background(), "web_p")
	if len(before.PendingEffects) == 0 {
		t.Fatal("expected pending effects after refused dispatch")
	}

	h.send(t, "web_p", "olá de novo")
	h.dispatcher.Wait()

	after, _ := h.repo.Get(context.Background(), "web_p")
	if len(after.PendingEffects) != 0 || after.ConversationID == before.ConversationID {
		t.Fatalf("expected pending effects dispatched on the restarted session, got %+v", after.PendingEffects)
	}
	if h.notifier.calls.Load() != 1 || h.leads.Count() != 1 {
		t.Fatalf("expected one notification and one lead, got %d and %d", h.notifier.calls.Load(), h.leads.Count())
	}
	if _, err := h.leads.FindByConversation(context.Background(), before.ConversationID); err != nil {
		t.Fatalf("lead should be stored under the finished conversation: %v", err)
	}
}

func TestCompletedSessionRestarts(t *testing.T) {
	gen := &scriptedGenerator{outcome: assistant.Outcome{Status: assistant.StatusError}}
	h := newHarness(t, harnessOptions{generator: gen, gate: assistant.NewGate(0, 0)})
	h.send(t, "web_r", "oi")
	for _, answer := range append(webAnswers, "sim") {
		h.send(t, "web_r", answer)
	}
	h.dispatcher.Wait()
	before, _ := h.repo.Get(context.Background(), "web_r")

	env := h.send(t, "web_r", "olá de novo")

	if env.ResponseType != ResponseRestarted || env.CurrentStep != 1 || env.FlowCompleted || len(env.LeadData) != 0 {
		t.Fatalf("expected a restarted conversation, got %+v", env)
	}
	after, _ := h.repo.Get(context.Background(), "web_r")
	if after.ConversationID == before.ConversationID || !after.RestartedFromCompleted {
		t.Fatal("expected a new conversation id")
	}
	if gen.resets != 1 {
		t.Fatalf("expected assistant memory reset, got %d", gen.resets)
	}
}

func TestWhatsAppSenderSkipsContactAndQualifiesEarly(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	send := func(message string) Envelope {
		return h.svc.ProcessMessage(context.Background(), Request{
			Message:     message,
			PhoneNumber: "5511987654321@s.whatsapp.net",
			Platform:    intake.PlatformWhatsApp,
		})
	}

	env := send("oi")
	if env.SessionID != "whatsapp_5511987654321" || !env.PhoneSubmitted {
		t.Fatalf("unexpected whatsapp session %+v", env)
	}
	env = send("Maria Souza")
	if env.CurrentStep != 3 {
		t.Fatalf("expected contact step skipped, got step %d", env.CurrentStep)
	}
	env = send("direito penal")
	if env.LawyersNotified {
		t.Fatal("lead must not qualify before the case details step")
	}
	env = send("Fui presa ontem e preciso de ajuda")
	if !env.LawyersNotified || env.FlowCompleted {
		t.Fatalf("expected early qualification on whatsapp, got %+v", env)
	}
	h.dispatcher.Wait()
	if h.notifier.calls.Load() != 1 {
		t.Fatalf("expected one notification, got %d", h.notifier.calls.Load())
	}
}

func TestStartConversation(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	env := h.svc.StartConversation(context.Background(), "")
	if !strings.HasPrefix(env.SessionID, "web_") || env.Step != 1 || env.ResponseType != ResponseGreeting {
		t.Fatalf("unexpected start envelope %+v", env)
	}
	h.send(t, env.SessionID, "João Silva")

	again := h.svc.StartConversation(context.Background(), env.SessionID)
	if again.Step != 2 || again.LeadData[intake.FieldName] != "João Silva" || !strings.Contains(again.Response, "telefone") {
		t.Fatalf("expected progress kept on restart of the chat widget, got %+v", again)
	}
}

func TestGetSessionContextAndReset(t *testing.T) {
	gen := &scriptedGenerator{outcome: assistant.Outcome{Status: assistant.StatusError}}
	h := newHarness(t, harnessOptions{generator: gen})
	ctx := context.Background()

	if _, err := h.svc.GetSessionContext(ctx, "web_missing"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	h.send(t, "web_ctx", "oi")
	snapshot, err := h.svc.GetSessionContext(ctx, "web_ctx")
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if snapshot.LeadData == nil || !strings.Contains(snapshot.CurrentQuestion, "nome completo") {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}

	if err := h.svc.ResetSession(ctx, "web_ctx"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := h.svc.GetSessionContext(ctx, "web_ctx"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected session gone after reset, got %v", err)
	}
	if gen.resets != 1 {
		t.Fatalf("expected assistant memory reset, got %d", gen.resets)
	}
}

func TestStatusWithoutAssistant(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	st := h.svc.Status(context.Background())

	if st.Status != "ok" || st.Store != HealthUp || st.AI != HealthNotConfigured || !st.FallbackMode {
		t.Fatalf("unexpected status %+v", st)
	}
	if st.Breaker != string(completion.BreakerClosed) || st.FlowSteps != 5 {
		t.Fatalf("unexpected breaker or flow %+v", st)
	}
}

func TestNewSessionID(t *testing.T) {
	if got := NewSessionID(intake.PlatformWhatsApp, "+55 (11) 98765-4321", morning); got != "whatsapp_5511987654321" {
		t.Fatalf("unexpected whatsapp id %q", got)
	}
	got := NewSessionID(intake.PlatformWeb, "", morning)
	parts := strings.Split(got, "_")
	if len(parts) != 3 || parts[0] != "web" || parts[1] != "1709557200" || len(parts[2]) != 8 {
		t.Fatalf("unexpected web id %q", got)
	}
}
