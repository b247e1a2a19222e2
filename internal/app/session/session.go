// Package session provides the source session: one opened source bound to one pipeline handle.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mpcore/internal/app/playback"
	"github.com/osa030/mpcore/internal/app/worker"
	"github.com/osa030/mpcore/internal/domain/media"
	"github.com/osa030/mpcore/internal/pipeline"
)

// DefaultPositionInterval is the cadence of position reports.
const DefaultPositionInterval = time.Second

// Owner receives everything a session reports while it is attached.
type Owner interface {
	SessionEvent(s *Session, ev pipeline.Event)
	SessionPosition(s *Session, pos time.Duration)
	SessionAudioFrame(s *Session, frame *media.AudioPcmFrame)
	SessionVideoFrame(s *Session, frame *media.VideoFrame)
}

// Descriptor identifies what a session opens.
type Descriptor struct {
	Key      string // source identifier; the URL for URL sources
	URL      string
	Custom   *CustomSource
	StartPos time.Duration
	Options  Options
}

// Config holds session settings.
type Config struct {
	PositionInterval time.Duration
	Volume           int
}

// Session owns one pipeline handle and the playback parameters applied to it.
// Commands run on the session's own serial executor and never block the caller.
type Session struct {
	id     uuid.UUID
	desc   Descriptor
	cfg    Config
	handle pipeline.Handle
	exec   *worker.Loop

	ctx    context.Context
	cancel context.CancelFunc

	detached  atomic.Bool
	seekSeq   atomic.Uint64
	switchSeq atomic.Uint64

	mu           sync.RWMutex
	owner        Owner
	phase        Phase
	state        playback.State
	url          string
	streams      []media.StreamInfo
	duration     time.Duration
	opened       bool
	audioTrack   int
	loopCount    int
	playsLeft    int
	speed        media.PlaybackSpeed
	mute         bool
	volume       int
	tickerCancel func()
}

// New creates a session and its pipeline handle. The source is not opened until Open.
func New(factory pipeline.Factory, desc Descriptor, cfg Config, owner Owner, phase Phase) (*Session, error) {
	if desc.URL == "" && desc.Custom == nil {
		return nil, errors.Wrap(media.ErrInvalidArguments, "source is empty")
	}
	if desc.URL != "" && desc.Custom != nil {
		return nil, errors.Wrap(media.ErrInvalidArguments, "source has both url and custom provider")
	}
	if desc.StartPos < 0 {
		return nil, errors.Wrap(media.ErrInvalidArguments, "negative start position")
	}
	if cfg.PositionInterval == 0 {
		cfg.PositionInterval = DefaultPositionInterval
	}
	if cfg.Volume == 0 {
		cfg.Volume = 100
	}

	id := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:         id,
		desc:       desc,
		cfg:        cfg,
		exec:       worker.New("session-" + id.String()),
		ctx:        ctx,
		cancel:     cancel,
		owner:      owner,
		phase:      phase,
		state:      playback.StateIdle,
		url:        desc.URL,
		audioTrack: -1,
		playsLeft:  1,
		speed:      media.SpeedOriginal,
		volume:     cfg.Volume,
	}
	s.handle = factory.NewHandle(s)
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() uuid.UUID { return s.id }

// Key returns the source identifier.
func (s *Session) Key() string { return s.desc.Key }

// Descriptor returns what the session was created for.
func (s *Session) Descriptor() Descriptor { return s.desc }

// URL returns the source currently bound, which changes after a source switch.
func (s *Session) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.url
}

// Owner returns the current owner.
func (s *Session) Owner() Owner {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner
}

// SetOwner rebinds the session, e.g. when a preloaded session is promoted.
func (s *Session) SetOwner(o Owner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owner = o
}

// Phase returns the session phase.
func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// SetPhase sets the session phase.
func (s *Session) SetPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
}

// State returns the last public state mirrored onto the session.
func (s *Session) State() playback.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetState mirrors the player's public state onto the session.
func (s *Session) SetState(st playback.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// Detached reports whether the session no longer forwards anything.
func (s *Session) Detached() bool {
	return s.detached.Load()
}

// Opened reports whether the engine has finished opening the source.
func (s *Session) Opened() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opened
}

// HandleEvent implements pipeline.Handler.
func (s *Session) HandleEvent(ev pipeline.Event) {
	if s.detached.Load() {
		return
	}

	s.mu.Lock()
	switch ev.Type {
	case pipeline.EventOpened:
		s.opened = true
		s.duration = ev.Duration
		s.streams = make([]media.StreamInfo, len(ev.Streams))
		for i, info := range ev.Streams {
			s.streams[i] = info.Normalize()
		}
		if s.phase == PhasePreloading {
			s.phase = PhaseReady
		}
	case pipeline.EventSwitchCompleted:
		if ev.Message != "" {
			s.url = ev.Message
		}
		if ev.Duration > 0 {
			s.duration = ev.Duration
		}
	}
	owner := s.owner
	s.mu.Unlock()

	if owner != nil {
		owner.SessionEvent(s, ev)
	}
}

// HandleAudioFrame implements pipeline.Handler.
func (s *Session) HandleAudioFrame(frame *media.AudioPcmFrame) {
	if s.detached.Load() {
		return
	}
	if owner := s.Owner(); owner != nil {
		owner.SessionAudioFrame(s, frame)
	}
}

// HandleVideoFrame implements pipeline.Handler.
func (s *Session) HandleVideoFrame(frame *media.VideoFrame) {
	if s.detached.Load() {
		return
	}
	if owner := s.Owner(); owner != nil {
		owner.SessionVideoFrame(s, frame)
	}
}

// post runs fn on the executor. A failure is reported to the owner as an error event.
func (s *Session) post(op string, fn func() error) error {
	err := s.exec.Post(func() {
		if s.detached.Load() {
			return
		}
		if err := fn(); err != nil {
			zlog.Warn().Msgf("session command failed: session_id=%s op=%s err=%v", s.id, op, err)
			s.HandleEvent(pipeline.Event{Type: pipeline.EventError, Code: media.CodeOf(err), Message: op + ": " + err.Error()})
		}
	})
	if err != nil {
		return errors.Wrapf(media.ErrInvalidState, "session closed: op=%s", op)
	}
	return nil
}

// Open asks the engine to open the source.
func (s *Session) Open() error {
	src := pipeline.Source{
		URL:      s.desc.URL,
		StartPos: s.desc.StartPos,
		Options:  s.desc.Options.Map(),
	}
	if s.desc.Custom != nil {
		src.Reader = s.desc.Custom
	}
	zlog.Info().Msgf("session open: session_id=%s key=%s start=%v", s.id, s.desc.Key, s.desc.StartPos)
	return s.exec.Post(func() {
		if s.detached.Load() {
			return
		}
		if err := s.handle.Open(s.ctx, src); err != nil {
			s.HandleEvent(pipeline.Event{Type: pipeline.EventOpenFailed, Code: media.CodeOf(err), Message: err.Error()})
		}
	})
}

// Play starts or resumes rendering.
func (s *Session) Play() error {
	return s.post("play", s.handle.Play)
}

// Pause pauses rendering.
func (s *Session) Pause() error {
	return s.post("pause", s.handle.Pause)
}

// Resume resumes rendering after Pause.
func (s *Session) Resume() error {
	return s.post("resume", s.handle.Play)
}

// Rewind restarts the source from the beginning without reopening it.
func (s *Session) Rewind() error {
	return s.post("rewind", func() error {
		if err := s.handle.Stop(); err != nil {
			return err
		}
		return s.handle.Play()
	})
}

// Seek asks the engine to move to pos and returns the sequence number identifying the
// request. Only the latest sequence is honoured when results come back.
func (s *Session) Seek(pos time.Duration) (uint64, error) {
	if pos < 0 {
		return 0, errors.Wrap(media.ErrInvalidArguments, "negative seek position")
	}
	s.mu.RLock()
	duration, opened := s.duration, s.opened
	s.mu.RUnlock()
	if opened && duration == 0 {
		return 0, errors.Wrap(media.ErrNotSupported, "seek on a live source")
	}
	if opened && pos > duration {
		return 0, errors.Wrapf(media.ErrInvalidArguments, "seek position %v beyond duration %v", pos, duration)
	}

	seq := s.seekSeq.Add(1)
	err := s.post("seek", func() error { return s.handle.Seek(seq, pos) })
	return seq, err
}

// IsLatestSeek reports whether seq answers the most recent Seek.
func (s *Session) IsLatestSeek(seq uint64) bool {
	return seq == s.seekSeq.Load()
}

// SwitchSource swaps the source under the running session and returns the request's
// sequence number. Only the latest switch is honoured.
func (s *Session) SwitchSource(url string, syncPts bool) (uint64, error) {
	if url == "" {
		return 0, errors.Wrap(media.ErrInvalidArguments, "switch source is empty")
	}
	if syncPts && s.Live() {
		return 0, errors.Wrap(media.ErrInvalidArguments, "position sync is not possible on a live source")
	}
	seq := s.switchSeq.Add(1)
	err := s.post("switch", func() error {
		return s.handle.SwitchSource(seq, url, syncPts, s.handle.Position())
	})
	return seq, err
}

// IsLatestSwitch reports whether seq answers the most recent SwitchSource.
func (s *Session) IsLatestSwitch(seq uint64) bool {
	return seq == s.switchSeq.Load()
}

// Live reports whether the opened source has no fixed duration.
func (s *Session) Live() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opened && s.duration == 0
}

// Duration returns the source duration, zero for live sources or before open completes.
func (s *Session) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.duration
}

// Position returns the current playback position.
func (s *Session) Position() time.Duration {
	return s.handle.Position()
}

// StreamCount returns the number of elementary streams.
func (s *Session) StreamCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.streams)
}

// StreamInfo returns stream i.
func (s *Session) StreamInfo(i int) (media.StreamInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.streams) {
		return media.StreamInfo{}, errors.Wrapf(media.ErrIndexOutOfRange, "stream %d of %d", i, len(s.streams))
	}
	return s.streams[i], nil
}

// SelectAudioTrack switches the audio stream.
func (s *Session) SelectAudioTrack(i int) error {
	info, err := s.StreamInfo(i)
	if err != nil {
		return err
	}
	if info.Type != media.StreamAudio {
		return errors.Wrapf(media.ErrInvalidArguments, "stream %d is not audio", i)
	}
	s.mu.Lock()
	s.audioTrack = i
	s.mu.Unlock()
	return s.post("select_audio_track", func() error { return s.handle.SelectAudioTrack(i) })
}

// AudioTrack returns the selected audio stream, -1 when the engine default is used.
func (s *Session) AudioTrack() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.audioTrack
}

// SetLoopCount sets how many times the source plays: -1 forever, n > 0 n times in total,
// anything else once.
func (s *Session) SetLoopCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loopCount = n
	s.playsLeft = playsFor(n)
}

// ResetLoops restores the loop budget before a replay.
func (s *Session) ResetLoops() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playsLeft = playsFor(s.loopCount)
}

// LoopCount returns the configured loop count.
func (s *Session) LoopCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loopCount
}

// ConsumeLoop accounts for one finished pass and reports whether another pass follows.
func (s *Session) ConsumeLoop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playsLeft < 0 {
		return true
	}
	if s.playsLeft > 0 {
		s.playsLeft--
	}
	return s.playsLeft > 0
}

func playsFor(n int) int {
	switch {
	case n == -1:
		return -1
	case n > 0:
		return n
	default:
		return 1
	}
}

// SetPlaybackSpeed sets the playback rate.
func (s *Session) SetPlaybackSpeed(speed media.PlaybackSpeed) error {
	if !speed.Valid() {
		return errors.Wrapf(media.ErrInvalidArguments, "unsupported speed %d", speed)
	}
	s.mu.Lock()
	s.speed = speed
	s.mu.Unlock()
	return s.post("set_playback_speed", func() error { return s.handle.SetPlaybackSpeed(speed) })
}

// Speed returns the playback rate.
func (s *Session) Speed() media.PlaybackSpeed {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speed
}

// SetMute mutes or unmutes output.
func (s *Session) SetMute(mute bool) error {
	s.mu.Lock()
	s.mute = mute
	s.mu.Unlock()
	return s.post("set_mute", func() error { return s.handle.SetMute(mute) })
}

// Muted reports the mute flag.
func (s *Session) Muted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mute
}

// SetVolume sets the playout volume in 0..100.
func (s *Session) SetVolume(volume int) error {
	if volume < 0 || volume > 100 {
		return errors.Wrapf(media.ErrInvalidArguments, "volume %d out of range", volume)
	}
	s.mu.Lock()
	s.volume = volume
	s.mu.Unlock()
	return s.post("set_volume", func() error { return s.handle.SetVolume(volume) })
}

// Volume returns the playout volume.
func (s *Session) Volume() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.volume
}

// SetRenderMode sets how video fits its view.
func (s *Session) SetRenderMode(mode media.RenderMode) error {
	if !mode.Valid() {
		return errors.Wrapf(media.ErrInvalidArguments, "unknown render mode %d", mode)
	}
	return s.post("set_render_mode", func() error { return s.handle.SetRenderMode(mode) })
}

// SetView binds the rendering surface.
func (s *Session) SetView(view any) error {
	return s.post("set_view", func() error { return s.handle.SetView(view) })
}

// TakeSnapshot writes the current picture to filename. done is called on the executor
// with the outcome.
func (s *Session) TakeSnapshot(filename string, done func(error)) error {
	if filename == "" {
		return errors.Wrap(media.ErrInvalidArguments, "snapshot filename is empty")
	}
	return s.exec.Post(func() {
		if s.detached.Load() {
			return
		}
		done(s.handle.TakeSnapshot(filename))
	})
}

// SelectInternalSubtitle selects an embedded subtitle stream.
func (s *Session) SelectInternalSubtitle(i int) error {
	info, err := s.StreamInfo(i)
	if err != nil {
		return err
	}
	if info.Type != media.StreamSubtitle {
		return errors.Wrapf(media.ErrInvalidArguments, "stream %d is not a subtitle", i)
	}
	return s.post("select_internal_subtitle", func() error { return s.handle.SelectInternalSubtitle(i) })
}

// SetExternalSubtitle loads a subtitle file.
func (s *Session) SetExternalSubtitle(url string) error {
	if url == "" {
		return errors.Wrap(media.ErrInvalidArguments, "subtitle url is empty")
	}
	return s.post("set_external_subtitle", func() error { return s.handle.SetExternalSubtitle(url) })
}

// SetToken hands a renewed access token to the engine for its next request.
func (s *Session) SetToken(token string) error {
	return s.post("set_token", func() error { return s.handle.SetToken(token) })
}

// ApplyPlayback sets the playback parameters and pushes them to the engine.
func (s *Session) ApplyPlayback(speed media.PlaybackSpeed, mute bool, volume int) error {
	if !speed.Valid() || volume < 0 || volume > 100 {
		return errors.Wrapf(media.ErrInvalidArguments, "invalid playback parameters: speed=%d volume=%d", speed, volume)
	}
	s.mu.Lock()
	s.speed, s.mute, s.volume = speed, mute, volume
	s.mu.Unlock()
	return s.post("apply_playback", func() error {
		if err := s.handle.SetPlaybackSpeed(speed); err != nil {
			return err
		}
		if err := s.handle.SetMute(mute); err != nil {
			return err
		}
		return s.handle.SetVolume(volume)
	})
}

// StartPositionReports starts the periodic position report.
func (s *Session) StartPositionReports() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tickerCancel != nil || s.cfg.PositionInterval < 0 || s.detached.Load() {
		return
	}
	s.tickerCancel = s.startTicker(s.cfg.PositionInterval, func() {
		if owner := s.Owner(); owner != nil {
			owner.SessionPosition(s, s.handle.Position())
		}
	})
}

// StopPositionReports stops the periodic position report.
func (s *Session) StopPositionReports() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTickerLocked()
}

func (s *Session) stopTickerLocked() {
	if s.tickerCancel != nil {
		s.tickerCancel()
		s.tickerCancel = nil
	}
}

func (s *Session) startTicker(interval time.Duration, fn func()) func() {
	ctx, cancel := context.WithCancel(s.ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if s.detached.Load() {
					return
				}
				fn()
			}
		}
	}()
	return cancel
}

// Detach synchronously stops every report from the session. It is idempotent.
func (s *Session) Detach() {
	if s.detached.Swap(true) {
		return
	}
	s.mu.Lock()
	s.stopTickerLocked()
	s.phase = PhaseReleased
	s.mu.Unlock()
}

// Shutdown detaches the session, discards queued commands and releases the engine
// on the executor. It does not wait.
func (s *Session) Shutdown() {
	s.Detach()
	if n := s.exec.Discard(); n > 0 {
		zlog.Debug().Msgf("session discarded queued commands: session_id=%s count=%d", s.id, n)
	}
	_ = s.exec.Post(func() {
		s.cancel()
		if err := s.handle.Stop(); err != nil {
			zlog.Debug().Msgf("session stop on shutdown: session_id=%s err=%v", s.id, err)
		}
		if err := s.handle.Close(); err != nil {
			zlog.Warn().Msgf("session close failed: session_id=%s err=%v", s.id, err)
		}
	})
	s.exec.Close()
}

// Wait blocks until a shut down session has released its engine.
func (s *Session) Wait(ctx context.Context) error {
	return s.exec.Wait(ctx)
}

// Close is Shutdown followed by Wait.
func (s *Session) Close(ctx context.Context) error {
	s.Shutdown()
	return s.Wait(ctx)
}
