// Package preload keeps opened-but-idle source sessions ready for instant promotion.
package preload

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/osa030/mpcore/internal/app/session"
	"github.com/osa030/mpcore/internal/domain/media"
	"github.com/osa030/mpcore/internal/pipeline"
)

// DefaultMaxSessions bounds the pool when no limit is configured.
const DefaultMaxSessions = 4

// NotifyFunc receives preload progress keyed by source.
type NotifyFunc func(src string, ev media.PreloadEvent)

// Config holds pool settings.
type Config struct {
	MaxSessions int
	Session     session.Config
}

// Pool maps a source key to a preloaded session. It has its own lock and never touches
// the active session.
type Pool struct {
	factory pipeline.Factory
	cfg     Config
	notify  NotifyFunc

	mu      sync.RWMutex
	entries map[string]*session.Session
}

// NewPool creates an empty pool.
func NewPool(factory pipeline.Factory, cfg Config, notify NotifyFunc) *Pool {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if notify == nil {
		notify = func(string, media.PreloadEvent) {}
	}
	return &Pool{
		factory: factory,
		cfg:     cfg,
		notify:  notify,
		entries: make(map[string]*session.Session),
	}
}

// Preload opens src into the pool. Preloading a key that is already pooled is a no-op.
func (p *Pool) Preload(src string, startPos time.Duration, opts session.Options) error {
	if src == "" {
		return errors.Wrap(media.ErrInvalidArguments, "preload source is empty")
	}

	p.mu.Lock()
	if _, ok := p.entries[src]; ok {
		p.mu.Unlock()
		return nil
	}
	if len(p.entries) >= p.cfg.MaxSessions {
		p.mu.Unlock()
		return errors.Wrapf(media.ErrNoResource, "preload pool full: max=%d", p.cfg.MaxSessions)
	}
	s, err := session.New(p.factory, session.Descriptor{Key: src, URL: src, StartPos: startPos, Options: opts}, p.cfg.Session, p, session.PhasePreloading)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.entries[src] = s
	p.mu.Unlock()

	zlog.Info().Msgf("preload begin: src=%s start=%v", src, startPos)
	p.notify(src, media.PreloadBegin)
	if err := s.Open(); err != nil {
		p.remove(src, s)
		s.Shutdown()
		p.notify(src, media.PreloadError)
		return errors.Wrap(err, "failed to open preload session")
	}
	return nil
}

// Unload destroys the pooled session for src.
func (p *Pool) Unload(src string) error {
	p.mu.Lock()
	s, ok := p.entries[src]
	if !ok {
		p.mu.Unlock()
		return errors.Wrapf(media.ErrNotFound, "preload source not found: src=%s", src)
	}
	delete(p.entries, src)
	p.mu.Unlock()

	zlog.Info().Msgf("preload unloaded: src=%s", src)
	s.Shutdown()
	return nil
}

// Evict destroys the pooled session for src if there is one.
func (p *Pool) Evict(src string) bool {
	return p.Unload(src) == nil
}

// Take removes a ready session from the pool and hands it to the caller.
func (p *Pool) Take(src string) (*session.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.entries[src]
	if !ok {
		return nil, errors.Wrapf(media.ErrNotFound, "preload source not found: src=%s", src)
	}
	if s.Phase() != session.PhaseReady {
		return nil, errors.Wrapf(media.ErrInvalidState, "preload not complete: src=%s phase=%s", src, s.Phase())
	}
	delete(p.entries, src)
	return s, nil
}

// Contains reports whether src is pooled.
func (p *Pool) Contains(src string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.entries[src]
	return ok
}

// Keys returns the pooled sources in sorted order.
func (p *Pool) Keys() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	keys := lo.Keys(p.entries)
	slices.Sort(keys)
	return keys
}

// Len returns the number of pooled sessions.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Drain closes every pooled session and waits for them to release their engines.
func (p *Pool) Drain(ctx context.Context) error {
	p.mu.Lock()
	sessions := lo.Values(p.entries)
	p.entries = make(map[string]*session.Session)
	p.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, s := range sessions {
		g.Go(func() error {
			return s.Close(ctx)
		})
	}
	return g.Wait()
}

func (p *Pool) remove(src string, s *session.Session) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.entries[src] != s {
		return false
	}
	delete(p.entries, src)
	return true
}

func (p *Pool) pooled(src string, s *session.Session) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.entries[src] == s
}

// SessionEvent implements session.Owner.
func (p *Pool) SessionEvent(s *session.Session, ev pipeline.Event) {
	src := s.Key()
	switch ev.Type {
	case pipeline.EventOpened:
		if !p.pooled(src, s) {
			return
		}
		zlog.Info().Msgf("preload complete: src=%s duration=%v", src, ev.Duration)
		p.notify(src, media.PreloadComplete)
	case pipeline.EventOpenFailed, pipeline.EventError:
		if !p.remove(src, s) {
			return
		}
		zlog.Warn().Msgf("preload failed: src=%s code=%s message=%s", src, ev.Code, ev.Message)
		s.Shutdown()
		p.notify(src, media.PreloadError)
	}
}

// SessionPosition implements session.Owner. Pooled sessions are not playing.
func (p *Pool) SessionPosition(*session.Session, time.Duration) {}

// SessionAudioFrame implements session.Owner. Pooled sessions produce no output.
func (p *Pool) SessionAudioFrame(*session.Session, *media.AudioPcmFrame) {}

// SessionVideoFrame implements session.Owner. Pooled sessions produce no output.
func (p *Pool) SessionVideoFrame(*session.Session, *media.VideoFrame) {}
