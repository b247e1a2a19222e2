// Package player provides the media player: the public command surface over one active
// session, a preload pool, the CDN line controller and the observer registry.
package player

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/mo"

	"github.com/osa030/mpcore/internal/app/cdn"
	"github.com/osa030/mpcore/internal/app/notification"
	"github.com/osa030/mpcore/internal/app/playback"
	"github.com/osa030/mpcore/internal/app/report"
	"github.com/osa030/mpcore/internal/app/session"
	"github.com/osa030/mpcore/internal/app/session/preload"
	"github.com/osa030/mpcore/internal/domain/media"
	"github.com/osa030/mpcore/internal/pipeline"
)

// Version is reported when no report sender supplies one.
const Version = "1.0.0"

// Config holds player settings.
type Config struct {
	PositionInterval time.Duration
	Volume           int
	LoopCount        int
	Preload          preload.Config
	CDN              cdn.Config
	Resolver         cdn.Resolver
}

// Player is one media player instance. All methods are safe for concurrent use and none
// of them wait for the engine: outcomes arrive through the registered observers.
type Player struct {
	id      uuid.UUID
	created time.Time
	cfg     Config
	factory pipeline.Factory

	machine    *playback.Machine
	registry   *notification.Registry
	dispatcher *notification.Dispatcher
	pool       *preload.Pool
	lines      *cdn.Controller
	stats      *report.Collector

	ctx    context.Context
	cancel context.CancelFunc

	// current mirrors active for the frame path, which must not take mu.
	current atomic.Pointer[session.Session]
	run     atomic.Pointer[playRun]

	mu        sync.Mutex
	active    *session.Session
	viaCDN    bool
	options   map[string]any
	loopCount int
	speed     media.PlaybackSpeed
	mute      bool
	volume    int
	render    media.RenderMode
	view      any
	seekStart time.Time
	infoSent  bool
	sender    report.Sender
	released  bool
	onRelease func(*Player)
}

// New creates a player in StateIdle.
func New(factory pipeline.Factory, cfg Config) (*Player, error) {
	if factory == nil {
		return nil, errors.Wrap(media.ErrInvalidArguments, "pipeline factory is nil")
	}
	if cfg.Volume == 0 {
		cfg.Volume = 100
	}
	if cfg.Preload.Session.PositionInterval == 0 {
		cfg.Preload.Session.PositionInterval = cfg.PositionInterval
	}
	if cfg.Preload.Session.Volume == 0 {
		cfg.Preload.Session.Volume = cfg.Volume
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Player{
		id:        uuid.New(),
		created:   time.Now(),
		cfg:       cfg,
		factory:   factory,
		registry:  notification.NewRegistry(),
		stats:     &report.Collector{},
		ctx:       ctx,
		cancel:    cancel,
		options:   make(map[string]any),
		loopCount: cfg.LoopCount,
		speed:     media.SpeedOriginal,
		volume:    cfg.Volume,
		render:    media.RenderFit,
	}
	p.dispatcher = notification.NewDispatcher(p.registry)
	p.machine = playback.NewMachine(p.onStateChange)
	p.pool = preload.NewPool(factory, cfg.Preload, p.onPreloadEvent)
	p.lines = cdn.NewController(cfg.CDN, cfg.Resolver, cdn.Hooks{
		OnWillExpire: p.onTokenWillExpire,
		OnExpired:    p.onTokenExpired,
	})

	zlog.Info().Msgf("player created: player_id=%s", p.id)
	return p, nil
}

// ID returns the player id.
func (p *Player) ID() uuid.UUID { return p.id }

// State returns the current public state.
func (p *Player) State() playback.State {
	return p.machine.State()
}

// SDKVersion returns the version string of the player.
func (p *Player) SDKVersion() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sender != nil {
		if v := p.sender.SDKVersion(); v != "" {
			return v
		}
	}
	return Version
}

// RegisterPlayerObserver adds an observer of state changes and events.
func (p *Player) RegisterPlayerObserver(o notification.PlayerObserver) error {
	return p.registry.RegisterPlayerObserver(o)
}

// UnregisterPlayerObserver removes o. It may be called from inside a callback.
func (p *Player) UnregisterPlayerObserver(o notification.PlayerObserver) {
	p.registry.UnregisterPlayerObserver(o)
}

// RegisterAudioFrameObserver adds an observer of decoded audio.
func (p *Player) RegisterAudioFrameObserver(o notification.AudioFrameObserver) error {
	return p.registry.RegisterAudioFrameObserver(o)
}

// UnregisterAudioFrameObserver removes o.
func (p *Player) UnregisterAudioFrameObserver(o notification.AudioFrameObserver) {
	p.registry.UnregisterAudioFrameObserver(o)
}

// RegisterVideoFrameObserver adds an observer of decoded video.
func (p *Player) RegisterVideoFrameObserver(o notification.VideoFrameObserver) error {
	return p.registry.RegisterVideoFrameObserver(o)
}

// UnregisterVideoFrameObserver removes o.
func (p *Player) UnregisterVideoFrameObserver(o notification.VideoFrameObserver) {
	p.registry.UnregisterVideoFrameObserver(o)
}

// SetReportSender installs the telemetry sink. A nil sender disables reporting.
func (p *Player) SetReportSender(sender report.Sender) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return errors.Wrap(media.ErrNotInitialized, "player released")
	}
	if p.sender != nil {
		p.sender.StopCounterStats()
		p.sender.UninitializeReporter()
	}
	p.sender = sender
	if sender == nil {
		return nil
	}
	if err := sender.InitializeReporter(p.stats); err != nil {
		p.sender = nil
		return errors.Wrap(err, "initialize reporter")
	}
	sender.StartCounterStats()
	p.reportLocked(report.ItemInitialize, map[string]any{"install_id": sender.InstallID()})
	p.publishInfoLocked()
	return nil
}

// Release stops playback, drains the preload pool and removes every observer. The player
// cannot be used afterwards. Release is idempotent.
func (p *Player) Release(ctx context.Context) error {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return nil
	}
	p.released = true
	s := p.active
	p.setActiveLocked(nil)
	p.endRunLocked()
	p.viaCDN = false
	p.reportLocked(report.ItemDestroy, nil)
	if p.sender != nil {
		p.sender.StopCounterStats()
		p.sender.UninitializeReporter()
		p.sender = nil
	}
	onRelease := p.onRelease
	p.mu.Unlock()

	p.cancel()
	p.registry.Clear()
	p.lines.Reset()

	var errs error
	if s != nil {
		if err := s.Close(ctx); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrap(err, "close active session"))
		}
	}
	if err := p.pool.Drain(ctx); err != nil {
		errs = errors.CombineErrors(errs, errors.Wrap(err, "drain preload pool"))
	}
	if err := p.dispatcher.Close(ctx); err != nil {
		errs = errors.CombineErrors(errs, errors.Wrap(err, "close dispatcher"))
	}
	if onRelease != nil {
		onRelease(p)
	}

	zlog.Info().Msgf("player released: player_id=%s", p.id)
	return errs
}

// Flush blocks until every notification raised so far has been delivered.
func (p *Player) Flush(ctx context.Context) error {
	return p.dispatcher.Flush(ctx)
}

func (p *Player) checkLocked() error {
	if p.released {
		return errors.Wrap(media.ErrNotInitialized, "player released")
	}
	return nil
}

func (p *Player) setActiveLocked(s *session.Session) {
	p.active = s
	p.current.Store(s)
}

// activeLocked returns the active session or InvalidState.
func (p *Player) activeLocked() (*session.Session, error) {
	if p.active == nil {
		return nil, errors.Wrapf(media.ErrInvalidState, "no source in state %s", p.machine.State())
	}
	return p.active, nil
}

// releaseActiveLocked detaches the active session and releases its engine in the background.
func (p *Player) releaseActiveLocked() {
	if p.active == nil {
		return
	}
	p.active.Shutdown()
	p.setActiveLocked(nil)
}

// playRun is one stretch of playback from an open or promotion until the next stop. Its
// notifications are dropped once it has ended, including those already queued.
type playRun struct {
	ended atomic.Bool
}

// Detached implements notification.Origin.
func (r *playRun) Detached() bool { return r.ended.Load() }

func (p *Player) beginRunLocked() {
	if prev := p.run.Swap(&playRun{}); prev != nil {
		prev.ended.Store(true)
	}
}

func (p *Player) endRunLocked() {
	if prev := p.run.Swap(nil); prev != nil {
		prev.ended.Store(true)
	}
}

// origin returns the current run as a notification origin.
func (p *Player) origin() notification.Origin {
	if r := p.run.Load(); r != nil {
		return r
	}
	return nil
}

// transitionLocked moves the public state and keeps the session's mirror and position
// reports in step. Transitions to Idle, Stopped and Failed are never suppressed by the
// end of the run.
func (p *Player) transitionLocked(s *session.Session, target playback.State, code media.ErrorCode) bool {
	var origin any
	switch target {
	case playback.StateIdle, playback.StateStopped, playback.StateFailed:
	default:
		if o := p.origin(); o != nil {
			origin = o
		}
	}
	if err := p.machine.TransitionFrom(origin, target, code); err != nil {
		zlog.Warn().Msgf("state transition rejected: player_id=%s err=%v", p.id, err)
		return false
	}
	if s != nil {
		s.SetState(target)
		if target == playback.StatePlaying {
			s.StartPositionReports()
		} else {
			s.StopPositionReports()
		}
	}
	p.reportLocked(report.ItemPlayState, map[string]any{"state": target.String(), "code": int(code)})
	return true
}

// reenterLocked restarts target under the current run without leaving it.
func (p *Player) reenterLocked(s *session.Session, target playback.State) {
	var origin any
	if o := p.origin(); o != nil {
		origin = o
	}
	if err := p.machine.Reenter(origin, target, media.CodeOK); err != nil {
		zlog.Warn().Msgf("state reenter rejected: player_id=%s err=%v", p.id, err)
		return
	}
	s.SetState(target)
	p.reportLocked(report.ItemPlayState, map[string]any{"state": target.String(), "code": int(media.CodeOK)})
}

// failLocked moves to Failed and releases the active session.
func (p *Player) failLocked(s *session.Session, code media.ErrorCode, reason string) {
	if code == media.CodeOK {
		code = media.CodeFailed
	}
	zlog.Warn().Msgf("playback failed: player_id=%s code=%s reason=%s", p.id, code, reason)
	p.transitionLocked(s, playback.StateFailed, code)
	if s != nil && s == p.active {
		p.releaseActiveLocked()
	}
}

// resetToIdleLocked leaves a terminal state so that a new source can be opened.
func (p *Player) resetToIdleLocked() {
	switch p.machine.State() {
	case playback.StateStopped, playback.StateFailed, playback.StateAllLoopsCompleted:
		p.transitionLocked(nil, playback.StateIdle, media.CodeOK)
	}
}

func (p *Player) onStateChange(c playback.Change) {
	var origin notification.Origin
	if o, ok := c.Origin.(notification.Origin); ok {
		origin = o
	}
	p.dispatcher.Post(origin, func(o notification.PlayerObserver) {
		o.OnPlayerStateChanged(c.To, c.Code)
	})
}

func (p *Player) onPreloadEvent(src string, ev media.PreloadEvent) {
	p.dispatcher.Post(nil, func(o notification.PlayerObserver) {
		o.OnPreloadEvent(src, ev)
	})
}

func (p *Player) postEventLocked(ev media.PlayerEvent, elapsedMs int64, msg string) {
	p.dispatcher.Post(p.origin(), func(o notification.PlayerObserver) {
		o.OnPlayerEvent(ev, elapsedMs, msg)
	})
}

// publishInfoLocked announces the player and device ids once they are known.
func (p *Player) publishInfoLocked() {
	info := media.PlayerUpdatedInfo{PlayerID: mo.Some(p.id.String())}
	if p.sender != nil {
		if dev := p.sender.DeviceID(); dev != "" {
			info.DeviceID = mo.Some(dev)
		}
	}
	p.infoSent = true
	p.dispatcher.Post(nil, func(o notification.PlayerObserver) {
		o.OnPlayerInfoUpdated(info)
	})
}

func (p *Player) reportLocked(id report.ItemType, fields map[string]any) {
	if p.sender == nil {
		return
	}
	p.sender.ReportEvent(report.NewEvent(id, p.id, p.created, fields))
}
