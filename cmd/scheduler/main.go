package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KauaneAlmeida/back-end-teste/internal/completion"
	"github.com/KauaneAlmeida/back-end-teste/internal/leads"
	"github.com/KauaneAlmeida/back-end-teste/internal/notification"
	"github.com/KauaneAlmeida/back-end-teste/internal/scheduler"
	"github.com/KauaneAlmeida/back-end-teste/internal/whatsapp"
	"github.com/KauaneAlmeida/back-end-teste/platform/config"
	"github.com/KauaneAlmeida/back-end-teste/platform/db"
	"github.com/KauaneAlmeida/back-end-teste/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "queue", cfg.GetAsynqQueueName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.GetRedisURL() == "" {
		panic("REDIS_URL is required by the scheduler")
	}

	var leadRepo leads.Repository = leads.NewMemoryRepository()
	if cfg.GetDatabaseURL() != "" {
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
		defer pool.Close()
		leadRepo = leads.NewPostgresRepository(pool)
	} else {
		log.Warn("DATABASE_URL not configured; persisted leads are kept in memory")
	}

	gateway := whatsapp.NewGateway(log, whatsapp.NewClient(cfg, log), whatsapp.NewTwilioClient(cfg, log))

	var (
		messenger      completion.Messenger
		lawyerWhatsApp *notification.WhatsAppChannel
	)
	if gateway.Configured() {
		messenger = gateway
		lawyerWhatsApp = notification.NewWhatsAppChannel(gateway, cfg.GetLawyerPhones(), log)
	}
	notifier := notification.NewFanout(log, lawyerWhatsApp, notification.NewEmailChannel(cfg, cfg.GetLawyerEmails()))

	runner := completion.NewRunner(
		leadRepo,
		notifier,
		messenger,
		completion.NewBreaker(cfg.GetBreakerThreshold(), cfg.GetBreakerCooldown()),
		completion.RunnerOptions{
			NotifyAttempts:    cfg.GetNotifyAttempts(),
			NotifyBaseBackoff: cfg.GetNotifyBaseBackoff(),
			Timeout:           cfg.GetSideEffectTimeout(),
		},
		log,
	)

	worker, err := scheduler.NewWorker(cfg, runner, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	log.Info("scheduler ready", "channels", notifier.Channels())
	if err := worker.Run(ctx); err != nil {
		panic("scheduler worker failed: " + err.Error())
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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
