package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KauaneAlmeida/back-end-teste/internal/assistant"
	"github.com/KauaneAlmeida/back-end-teste/internal/completion"
	"github.com/KauaneAlmeida/back-end-teste/internal/conversation"
	"github.com/KauaneAlmeida/back-end-teste/internal/flows"
	"github.com/KauaneAlmeida/back-end-teste/internal/handoff"
	apphttp "github.com/KauaneAlmeida/back-end-teste/internal/http"
	"github.com/KauaneAlmeida/back-end-teste/internal/http/router"
	"github.com/KauaneAlmeida/back-end-teste/internal/intake"
	"github.com/KauaneAlmeida/back-end-teste/internal/leads"
	"github.com/KauaneAlmeida/back-end-teste/internal/locking"
	"github.com/KauaneAlmeida/back-end-teste/internal/notification"
	"github.com/KauaneAlmeida/back-end-teste/internal/orchestrator"
	"github.com/KauaneAlmeida/back-end-teste/internal/ratelimit"
	"github.com/KauaneAlmeida/back-end-teste/internal/scheduler"
	"github.com/KauaneAlmeida/back-end-teste/internal/sessions"
	"github.com/KauaneAlmeida/back-end-teste/internal/whatsapp"
	"github.com/KauaneAlmeida/back-end-teste/platform/config"
	"github.com/KauaneAlmeida/back-end-teste/platform/db"
	"github.com/KauaneAlmeida/back-end-teste/platform/logger"
	"github.com/KauaneAlmeida/back-end-teste/platform/rediskit"
	"github.com/KauaneAlmeida/back-end-teste/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	redisClient := connectRedis(ctx, cfg, log)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	pool := connectDatabase(ctx, cfg, log)
	if pool != nil {
		defer pool.Close()
	}

	janitor := scheduler.NewJanitor(log, 0)

	// ========================================================================
	// Conversation State
	// ========================================================================

	var (
		sessionRepo sessions.Repository
		limiter     ratelimit.Limiter
		locker      locking.Locker
	)
	if redisClient != nil {
		sessionRepo = sessions.NewRedisRepository(redisClient, cfg.GetSessionTTL())
		limiter = ratelimit.NewRedis(redisClient, cfg.GetRateLimit(), cfg.GetRateWindow())
		locker = locking.NewRedis(redisClient, 2*cfg.GetLockTimeout())
	} else {
		memorySessions := sessions.NewMemoryRepository()
		janitor.Add("sessions", func(now time.Time) int {
			return memorySessions.DeleteIdle(now.Add(-cfg.GetSessionTTL()))
		})
		sessionRepo = memorySessions
		limiter = ratelimit.NewLocal(cfg.GetRateLimit(), cfg.GetRateWindow())
		locker = locking.NewLocal()
	}
	store := sessions.NewStore(sessionRepo, sessions.Options{
		TTL:     cfg.GetSessionTTL(),
		Timeout: cfg.GetStoreTimeout(),
	}, log)

	var flowSources []flows.Source
	if cfg.GetFlowFile() != "" {
		flowSources = append(flowSources, flows.NewFileSource(cfg.GetFlowFile()))
	}
	if pool != nil {
		flowSources = append(flowSources, flows.NewPostgresSource(pool, "default"))
	}
	flowProvider := flows.NewProvider(log, cfg.GetFlowCacheTTL(), flowSources...)

	// ========================================================================
	// Outbound Channels
	// ========================================================================

	gateway := whatsapp.NewGateway(log, whatsapp.NewClient(cfg, log), whatsapp.NewTwilioClient(cfg, log))

	var (
		messenger      completion.Messenger
		whatsappHealth orchestrator.Pinger
		lawyerWhatsApp *notification.WhatsAppChannel
	)
	if gateway.Configured() {
		messenger = gateway
		whatsappHealth = gateway
		lawyerWhatsApp = notification.NewWhatsAppChannel(gateway, cfg.GetLawyerPhones(), log)
	} else {
		log.Warn("no WhatsApp gateway configured; confirmations and WhatsApp notifications disabled")
	}
	notifier := notification.NewFanout(log, lawyerWhatsApp, notification.NewEmailChannel(cfg, cfg.GetLawyerEmails()))
	log.Info("lawyer notification channels", "channels", notifier.Channels())

	// ========================================================================
	// Completion Side Effects
	// ========================================================================

	var leadRepo leads.Repository = leads.NewMemoryRepository()
	if pool != nil {
		leadRepo = leads.NewPostgresRepository(pool)
	}

	var (
		dispatcher completion.Dispatcher
		local      *completion.LocalDispatcher
		breaker    *completion.Breaker
	)
	if redisClient != nil {
		queue, err := scheduler.NewClient(cfg)
		if err != nil {
			log.Error("failed to initialize job queue client", "error", err)
			panic("failed to initialize job queue client: " + err.Error())
		}
		defer func() { _ = queue.Close() }()
		dispatcher = queue
		log.Info("completion jobs are queued for the scheduler", "queue", cfg.GetAsynqQueueName())
	} else {
		breaker = completion.NewBreaker(cfg.GetBreakerThreshold(), cfg.GetBreakerCooldown())
		runner := completion.NewRunner(leadRepo, notifier, messenger, breaker, completion.RunnerOptions{
			NotifyAttempts:    cfg.GetNotifyAttempts(),
			NotifyBaseBackoff: cfg.GetNotifyBaseBackoff(),
			Timeout:           cfg.GetSideEffectTimeout(),
		}, log)
		local = completion.NewLocalDispatcher(runner, log)
		dispatcher = local
		log.Warn("REDIS_URL not configured; completion jobs run in process")
	}

	// ========================================================================
	// Assistant
	// ========================================================================

	var generator assistant.Generator
	if cfg.IsAIEnabled() {
		responder, err := assistant.NewGemini(ctx, cfg, log)
		if err != nil {
			log.Error("failed to initialize assistant; questionnaire only", "error", err)
		} else {
			generator = responder
			log.Info("assistant enabled", "model", cfg.GetGeminiModel())
		}
	}
	gate := assistant.NewGate(cfg.GetAICooldown(), cfg.GetAIQuotaCooldown())
	janitor.Add("ai_gate", gate.Prune)

	svc := orchestrator.New(orchestrator.Deps{
		Store:       store,
		Flows:       flowProvider,
		Limiter:     limiter,
		Locker:      locker,
		Generator:   generator,
		Gate:        gate,
		Evaluator:   intake.NewEvaluator(thresholds(cfg)),
		Coordinator: completion.NewCoordinator(dispatcher, log),
		Greeter:     intake.NewGreeter(cfg.GetTimezone()),
		WhatsApp:    whatsappHealth,
		Breaker:     breaker,
	}, orchestrator.Options{
		LockTimeout:     cfg.GetLockTimeout(),
		DuplicateWindow: cfg.GetDuplicateWindow(),
		Policy: intake.Policy{
			CaseDetailsMinLength: cfg.GetCaseDetailsMinLength(),
			AreaAcceptFreeText:   cfg.GetAreaAcceptFreeText(),
			StrictConfirmation:   cfg.GetStrictConfirmation(),
		},
	}, log)

	// ========================================================================
	// WhatsApp Handoff
	// ========================================================================

	var authRepo handoff.Repository
	if redisClient != nil {
		authRepo = handoff.NewRedisRepository(redisClient)
	} else {
		memoryAuths := handoff.NewMemoryRepository()
		janitor.Add("whatsapp_auth", memoryAuths.DeleteExpired)
		authRepo = memoryAuths
	}
	handoffSvc := handoff.NewService(authRepo, dispatcher, cfg.GetWhatsAppAuthTTL(), log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	val := validator.New()
	conversationModule := conversation.NewModule(svc, gateway, val, conversation.Options{
		WebhookSecret: cfg.GetWhatsAppWebhookSecret(),
		VerifyToken:   cfg.GetWhatsAppVerifyToken(),
		Resolver:      handoffSvc,
	}, log)
	handoffModule := handoff.NewModule(handoffSvc, val, log)

	app := &apphttp.App{
		Config:  cfg,
		Logger:  log,
		Health:  store,
		Modules: []apphttp.Module{conversationModule, handoffModule},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		janitor.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if local != nil {
			local.Wait()
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		panic("server error: " + err.Error())
	}
}

func thresholds(cfg config.ConversationConfig) intake.Thresholds {
	return intake.Thresholds{
		WebMinScore:         cfg.GetWebMinScore(),
		WhatsAppMinScore:    cfg.GetWhatsAppMinScore(),
		WhatsAppMinMessages: cfg.GetWhatsAppMinMessages(),
	}
}

// connectRedis returns nil when no Redis URL is configured.
func connectRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) *redis.Client {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; sessions, limits and locks are kept in process")
		return nil
	}

	var client *redis.Client
	if err := withRetry(ctx, log, "redis connection", 5, 2*time.Second, func() error {
		c, err := rediskit.NewClient(ctx, cfg)
		if err != nil {
			return err
		}
		client = c
		return nil
	}); err != nil {
		log.Error("failed to connect to redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}
	log.Info("redis connection established")
	return client
}

// connectDatabase returns nil when no database URL is configured.
func connectDatabase(ctx context.Context, cfg *config.Config, log *logger.Logger) *pgxpool.Pool {
	if cfg.GetDatabaseURL() == "" {
		log.Warn("DATABASE_URL not configured; leads are kept in memory and the flow is not read from the database")
		return nil
	}

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	log.Info("database connection established")

	if cfg.MigrationsEnabled {
		if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
			return db.RunMigrations(ctx, pool)
		}); err != nil {
			log.Error("failed to run database migrations", "error", err)
			panic("failed to run database migrations: " + err.Error())
		}
		log.Info("database migrations complete")
	}
	return pool
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
