package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/KauaneAlmeida/back-end-teste/internal/intake"
	"github.com/KauaneAlmeida/back-end-teste/platform/logger"

	"github.com/sethvargo/go-retry"
)

// LeadSaver persists a lead and returns its id.
type LeadSaver interface {
	SaveLead(ctx context.Context, rec intake.LeadRecord) (string, error)
}

// Notifier delivers a qualified lead to the lawyers. It returns an error
// only when no channel accepted the lead.
type Notifier interface {
	Notify(ctx context.Context, lead intake.LeadRecord) error
}

// Messenger sends a WhatsApp text to one phone number.
type Messenger interface {
	SendMessage(ctx context.Context, phone, text string) error
}

// ErrBreakerOpen is reported when notifications are suspended.
var ErrBreakerOpen = errors.New("notification breaker open")

// RunnerOptions tunes retries and timeouts.
type RunnerOptions struct {
	NotifyAttempts    int
	NotifyBaseBackoff time.Duration
	Timeout           time.Duration
}

// Runner executes completion jobs. It is shared by the in-process
// dispatcher and the queue worker.
type Runner struct {
	saver     LeadSaver
	notifier  Notifier
	messenger Messenger
	breaker   *Breaker
	opts      RunnerOptions
	log       *logger.Logger
}

// NewRunner wires the job targets. Any of saver, notifier and messenger may
// be nil, in which case the matching jobs are skipped.
func NewRunner(saver LeadSaver, notifier Notifier, messenger Messenger, breaker *Breaker, opts RunnerOptions, log *logger.Logger) *Runner {
	if opts.NotifyAttempts < 1 {
		opts.NotifyAttempts = 3
	}
	if opts.NotifyBaseBackoff <= 0 {
		opts.NotifyBaseBackoff = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if breaker == nil {
		breaker = NewBreaker(3, 5*time.Minute)
	}
	return &Runner{saver: saver, notifier: notifier, messenger: messenger, breaker: breaker, opts: opts, log: log}
}

// Breaker exposes the notification breaker for status reporting.
func (r *Runner) Breaker() *Breaker { return r.breaker }

// Run executes one job.
func (r *Runner) Run(ctx context.Context, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	ctx = logger.ContextWithCorrelation(ctx, job.CorrelationID, job.SessionID)
	log := r.log.WithContext(ctx).With("job", string(job.Kind), "conversation_id", job.ConversationID)

	switch job.Kind {
	case KindPersist:
		if r.saver == nil {
			return nil
		}
		id, err := r.saver.SaveLead(ctx, job.Lead)
		if err != nil {
			log.Error("lead persist failed", "stage", job.Stage, "error", err)
			return fmt.Errorf("persist lead: %w", err)
		}
		log.Info("lead persisted", "lead_id", id, "stage", job.Stage)
		return nil

	case KindNotify:
		if r.notifier == nil {
			return nil
		}
		return r.notify(ctx, log, job)

	case KindConfirm:
		if r.messenger == nil || job.Phone == "" {
			return nil
		}
		if err := r.messenger.SendMessage(ctx, job.Phone, job.Message); err != nil {
			// Best effort: the lawyers already have the lead.
			log.Warn("lead confirmation failed", "error", err)
			return nil
		}
		log.Info("lead confirmation sent")
		return nil

	case KindWelcome:
		if r.messenger == nil || job.Phone == "" {
			return nil
		}
		if err := r.messenger.SendMessage(ctx, job.Phone, job.Message); err != nil {
			log.Warn("whatsapp welcome failed", "error", err)
			return nil
		}
		log.Info("whatsapp welcome sent")
		return nil

	default:
		return fmt.Errorf("unknown completion job %q", job.Kind)
	}
}

func (r *Runner) notify(ctx context.Context, log *slog.Logger, job Job) error {
	if !r.breaker.Allow() {
		log.Warn("lawyer notification skipped", "reason", ErrBreakerOpen.Error())
		return nil
	}

	attempt := 0
	backoff := retry.WithMaxRetries(uint64(r.opts.NotifyAttempts-1), retry.NewExponential(r.opts.NotifyBaseBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := r.notifier.Notify(ctx, job.Lead); err != nil {
			log.Warn("lawyer notification attempt failed", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		r.breaker.Failure()
		log.Error("lawyer notification exhausted", "attempts", attempt, "breaker", string(r.breaker.State()), "error", err)
		return nil
	}

	r.breaker.Success()
	log.Info("lawyers notified", "attempts", attempt)
	return nil
}
