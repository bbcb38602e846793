package assistant

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/KauaneAlmeida/back-end-teste/internal/intake"
	"github.com/KauaneAlmeida/back-end-teste/platform/config"
	"github.com/KauaneAlmeida/back-end-teste/platform/logger"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"
)

const appName = "legal_intake"

// Responder runs an ADK agent over a language model. The ADK session
// service keeps one conversation memory per intake session.
type Responder struct {
	runner         *runner.Runner
	sessionService session.Service
	timeout        time.Duration
	log            *logger.Logger

	mu    sync.Mutex
	known map[string]bool
}

// NewGemini builds a Responder backed by the configured Gemini model.
func NewGemini(ctx context.Context, cfg config.AIConfig, log *logger.Logger) (*Responder, error) {
	if cfg.GetGeminiAPIKey() == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}
	llm, err := gemini.NewModel(ctx, cfg.GetGeminiModel(), &genai.ClientConfig{
		APIKey:  cfg.GetGeminiAPIKey(),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini model: %w", err)
	}
	return New(llm, cfg.GetAITimeout(), log)
}

// New builds a Responder over any ADK model.
func New(llm model.LLM, timeout time.Duration, log *logger.Logger) (*Responder, error) {
	adkAgent, err := llmagent.New(llmagent.Config{
		Name:        "IntakeAssistant",
		Model:       llm,
		Description: "Atendente virtual do escritório m.lima que acolhe potenciais clientes e coleta os dados do caso.",
		Instruction: systemPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ADK agent: %w", err)
	}

	sessionService := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        appName,
		Agent:          adkAgent,
		SessionService: sessionService,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ADK runner: %w", err)
	}

	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Responder{
		runner:         r,
		sessionService: sessionService,
		timeout:        timeout,
		log:            log,
		known:          make(map[string]bool),
	}, nil
}

// Generate asks the model for the next reply. It never returns an error;
// failures are reported through the Outcome status.
func (r *Responder) Generate(ctx context.Context, message, sessionID string, c Context) Outcome {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	text, err := r.run(ctx, sessionID, buildPrompt(message, c))
	out := Outcome{Latency: time.Since(started)}
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		out.Status, out.Err = Classify(err), err
		r.log.WithContext(ctx).Warn("assistant generation failed", "status", string(out.Status), "error", err)
		return out
	}

	out.Text = strings.TrimSpace(text)
	if out.Text == "" {
		out.Status = StatusEmpty
		return out
	}
	out.Status = StatusOK
	return out
}

// Reset drops the conversation memory of sessionID.
func (r *Responder) Reset(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	known := r.known[sessionID]
	delete(r.known, sessionID)
	r.mu.Unlock()
	if !known {
		return nil
	}
	return r.sessionService.Delete(ctx, &session.DeleteRequest{
		AppName:   appName,
		UserID:    sessionID,
		SessionID: sessionID,
	})
}

func (r *Responder) run(ctx context.Context, sessionID string, msg *genai.Content) (string, error) {
	if err := r.ensureSession(ctx, sessionID); err != nil {
		return "", err
	}

	var output strings.Builder
	runConfig := agent.RunConfig{StreamingMode: agent.StreamingModeNone}
	for event, err := range r.runner.Run(ctx, sessionID, sessionID, msg, runConfig) {
		if err != nil {
			return "", fmt.Errorf("assistant run failed: %w", err)
		}
		if event == nil || event.Content == nil {
			continue
		}
		for _, part := range event.Content.Parts {
			if part != nil {
				output.WriteString(part.Text)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return output.String(), nil
}

func (r *Responder) ensureSession(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.known[sessionID] {
		return nil
	}
	_, err := r.sessionService.Create(ctx, &session.CreateRequest{
		AppName:   appName,
		UserID:    sessionID,
		SessionID: sessionID,
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	r.known[sessionID] = true
	return nil
}

func buildPrompt(message string, c Context) *genai.Content {
	var b strings.Builder
	b.WriteString("Contexto do atendimento:\n")
	fmt.Fprintf(&b, "- Canal: %s\n", c.Platform)
	if c.FlowCompleted {
		b.WriteString("- Coleta de dados concluída.\n")
	} else if c.Question != "" {
		fmt.Fprintf(&b, "- Pergunta pendente (etapa %d): %s\n", c.CurrentStep, c.Question)
	}
	for _, field := range []string{intake.FieldName, intake.FieldPhone, intake.FieldEmail, intake.FieldArea, intake.FieldCaseDetails} {
		if v := c.LeadData[field]; v != "" {
			fmt.Fprintf(&b, "- %s: %s\n", field, v)
		}
	}
	b.WriteString("\nMensagem do cliente:\n")
	b.WriteString(message)

	return &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: b.String()}},
	}
}

const systemPrompt = `Você é a assistente virtual do escritório de advocacia m.lima, especializado em Direito Penal e Saúde/Liminares.

Seu objetivo é acolher o cliente com empatia e coletar, uma informação por vez:
1. nome completo;
2. telefone com DDD ou e-mail;
3. área jurídica (Direito Penal ou Saúde/Liminares);
4. breve descrição da situação;
5. confirmação para que um advogado entre em contato.

Regras:
- Responda sempre em português do Brasil, em no máximo três frases.
- Não dê parecer jurídico nem prometa resultados.
- Se houver uma pergunta pendente no contexto, conduza a conversa até ela.
- Se a coleta já estiver concluída, agradeça e informe que a equipe entrará em contato.`
