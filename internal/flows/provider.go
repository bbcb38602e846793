package flows

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/KauaneAlmeida/back-end-teste/internal/intake"
	"github.com/KauaneAlmeida/back-end-teste/platform/logger"

	"golang.org/x/sync/singleflight"
)

const defaultLoadTimeout = 3 * time.Second

// Provider returns the active flow. Sources are tried in order and the
// first valid definition is cached for the TTL; concurrent refreshes
// collapse into one load.
type Provider struct {
	sources []Source
	ttl     time.Duration
	timeout time.Duration
	log     *logger.Logger
	now     func() time.Time

	group singleflight.Group

	mu       sync.RWMutex
	cached   intake.Flow
	loadedAt time.Time
	loaded   bool
}

// NewProvider builds a provider over sources. A non-positive ttl caches
// the first successful load for the process lifetime.
func NewProvider(log *logger.Logger, ttl time.Duration, sources ...Source) *Provider {
	return &Provider{
		sources: sources,
		ttl:     ttl,
		timeout: defaultLoadTimeout,
		log:     log,
		now:     time.Now,
	}
}

// Current returns the active flow. It never fails: a refresh that finds no
// valid source keeps the last good flow, or the built-in default when there
// is none.
func (p *Provider) Current(ctx context.Context) intake.Flow {
	if flow, fresh := p.snapshot(); fresh {
		return flow
	}

	v, _, _ := p.group.Do("flow", func() (any, error) {
		if flow, fresh := p.snapshot(); fresh {
			return flow, nil
		}
		return p.refresh(ctx), nil
	})
	return v.(intake.Flow)
}

// Invalidate drops the cached flow so the next call reloads it.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.loaded = false
	p.mu.Unlock()
}

func (p *Provider) snapshot() (intake.Flow, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.loaded {
		return intake.Flow{}, false
	}
	if p.ttl > 0 && p.now().Sub(p.loadedAt) > p.ttl {
		return p.cached, false
	}
	return p.cached, true
}

func (p *Provider) refresh(ctx context.Context) intake.Flow {
	for _, src := range p.sources {
		flow, err := p.load(ctx, src)
		if err != nil {
			if !errors.Is(err, ErrNoFlow) {
				p.log.WithContext(ctx).Warn("flow source failed", "source", src.Name(), "error", err)
			}
			continue
		}
		p.store(flow)
		return flow
	}

	p.mu.RLock()
	stale, ok := p.cached, p.loaded || p.cached.Steps != nil
	p.mu.RUnlock()
	if ok {
		p.store(stale)
		return stale
	}

	p.log.WithContext(ctx).Info("using built-in flow")
	flow := intake.DefaultFlow()
	p.store(flow)
	return flow
}

func (p *Provider) load(ctx context.Context, src Source) (intake.Flow, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	flow, err := src.Load(ctx)
	if err != nil {
		return intake.Flow{}, err
	}
	if err := flow.Validate(); err != nil {
		return intake.Flow{}, err
	}
	return flow, nil
}

func (p *Provider) store(flow intake.Flow) {
	p.mu.Lock()
	p.cached = flow
	p.loadedAt = p.now()
	p.loaded = true
	p.mu.Unlock()
}
