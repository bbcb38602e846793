// Package notification delivers qualified leads to the lawyers over every
// configured channel.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/KauaneAlmeida/back-end-teste/internal/intake"
	"github.com/KauaneAlmeida/back-end-teste/platform/logger"

	"golang.org/x/sync/errgroup"
)

// Channel is one way of reaching the lawyers.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, lead intake.LeadRecord) error
}

// Fanout sends a lead to all channels at once. A lead counts as notified
// when at least one channel accepted it.
type Fanout struct {
	channels []Channel
	log      *logger.Logger
}

// NewFanout keeps the non-nil channels.
func NewFanout(log *logger.Logger, channels ...Channel) *Fanout {
	f := &Fanout{log: log}
	for _, ch := range channels {
		switch v := ch.(type) {
		case nil:
		case *WhatsAppChannel:
			if v != nil {
				f.channels = append(f.channels, v)
			}
		case *EmailChannel:
			if v != nil {
				f.channels = append(f.channels, v)
			}
		default:
			f.channels = append(f.channels, v)
		}
	}
	return f
}

// Channels returns the names of the active channels.
func (f *Fanout) Channels() []string {
	names := make([]string, 0, len(f.channels))
	for _, ch := range f.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Notify implements completion.Notifier. Without any channel the lead is
// only logged, so an unconfigured deployment never trips the breaker.
func (f *Fanout) Notify(ctx context.Context, lead intake.LeadRecord) error {
	log := f.log.WithContext(ctx).With("conversation_id", lead.ConversationID)
	if len(f.channels) == 0 {
		log.Warn("no notification channel configured, lead only persisted", "summary", lead.Summary)
		return nil
	}

	var (
		mu        sync.Mutex
		errs      []error
		delivered int
		g         errgroup.Group
	)
	for _, ch := range f.channels {
		g.Go(func() error {
			err := ch.Deliver(ctx, lead)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn("notification channel failed", "channel", ch.Name(), "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
				return nil
			}
			delivered++
			return nil
		})
	}
	_ = g.Wait()

	if delivered == 0 {
		return errors.Join(errs...)
	}
	log.Info("lawyers notified", "channels", delivered, "failed", len(errs))
	return nil
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}
