package player

import (
	"maps"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mpcore/internal/app/playback"
	"github.com/osa030/mpcore/internal/app/report"
	"github.com/osa030/mpcore/internal/app/session"
	"github.com/osa030/mpcore/internal/domain/media"
)

// Open opens url and starts at startPos. The outcome is reported as OpenCompleted or
// Failed.
func (p *Player) Open(url string, startPos time.Duration) error {
	if url == "" {
		return errors.Wrap(media.ErrInvalidArguments, "url is empty")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return err
	}
	if _, err := p.machine.Check(playback.CmdOpen); err != nil {
		return err
	}
	opts, err := session.DecodeOptions(p.options)
	if err != nil {
		return err
	}
	p.lines.Reset()
	p.viaCDN = false
	return p.openLocked(session.Descriptor{Key: url, URL: url, StartPos: startPos, Options: opts})
}

// OpenWithCustomSource opens a source read through provider.
func (p *Player) OpenWithCustomSource(provider session.DataProvider, startPos time.Duration) error {
	custom, err := session.NewCustomSource(provider)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return err
	}
	if _, err := p.machine.Check(playback.CmdOpen); err != nil {
		return err
	}
	opts, err := session.DecodeOptions(p.options)
	if err != nil {
		return err
	}
	p.lines.Reset()
	p.viaCDN = false
	key := "custom:" + uuid.NewString()
	return p.openLocked(session.Descriptor{Key: key, Custom: custom, StartPos: startPos, Options: opts})
}

// openLocked replaces whatever session is active with a new one for desc. An open still
// in progress is abandoned and its notifications are dropped.
func (p *Player) openLocked(desc session.Descriptor) error {
	if desc.URL != "" && p.pool.Evict(desc.Key) {
		zlog.Debug().Msgf("preloaded source evicted by open: key=%s", desc.Key)
	}
	s, err := p.newSessionLocked(desc)
	if err != nil {
		return err
	}

	replacing := p.machine.State() == playback.StateOpening
	p.releaseActiveLocked()
	p.beginRunLocked()
	p.resetToIdleLocked()
	p.setActiveLocked(s)
	if !p.infoSent {
		p.publishInfoLocked()
	}
	if replacing {
		p.reenterLocked(s, playback.StateOpening)
	} else {
		p.transitionLocked(s, playback.StateOpening, media.CodeOK)
	}
	p.reportLocked(report.ItemOpen, map[string]any{"url": desc.Key, "start_pos": desc.StartPos.Milliseconds()})

	if err := s.Open(); err != nil {
		p.failLocked(s, media.CodeOf(err), err.Error())
		return err
	}
	return nil
}

func (p *Player) newSessionLocked(desc session.Descriptor) (*session.Session, error) {
	s, err := session.New(p.factory, desc, session.Config{
		PositionInterval: p.cfg.PositionInterval,
		Volume:           p.volume,
	}, p, session.PhaseActive)
	if err != nil {
		return nil, err
	}
	p.adoptLocked(s)
	return s, nil
}

// adoptLocked applies the player's cached playback parameters to s.
func (p *Player) adoptLocked(s *session.Session) {
	s.SetLoopCount(p.loopCount)
	if err := s.ApplyPlayback(p.speed, p.mute, p.volume); err != nil {
		zlog.Warn().Msgf("apply playback parameters failed: session_id=%s err=%v", s.ID(), err)
	}
	if err := s.SetRenderMode(p.render); err != nil {
		zlog.Warn().Msgf("apply render mode failed: session_id=%s err=%v", s.ID(), err)
	}
	if p.view != nil {
		if err := s.SetView(p.view); err != nil {
			zlog.Warn().Msgf("apply view failed: session_id=%s err=%v", s.ID(), err)
		}
	}
}

// Play starts playback of an opened source, or restarts one whose loops are exhausted.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return err
	}
	op, err := p.machine.Check(playback.CmdPlay)
	if err != nil || op == playback.DoNothingInternal {
		return err
	}
	s, err := p.activeLocked()
	if err != nil {
		return err
	}

	if p.machine.State() == playback.StateAllLoopsCompleted {
		s.ResetLoops()
		err = s.Rewind()
	} else {
		err = s.Play()
	}
	if err != nil {
		return err
	}
	p.transitionLocked(s, playback.StatePlaying, media.CodeOK)
	p.reportLocked(report.ItemPlay, nil)
	return nil
}

// Pause pauses playback.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return err
	}
	op, err := p.machine.Check(playback.CmdPause)
	if err != nil || op == playback.DoNothingInternal {
		return err
	}
	s, err := p.activeLocked()
	if err != nil {
		return err
	}
	if _, err := p.machine.Begin(playback.PausingInternal); err != nil {
		return err
	}
	defer p.machine.End(playback.PausingInternal)

	if err := s.Pause(); err != nil {
		return err
	}
	p.transitionLocked(s, playback.StatePaused, media.CodeOK)
	p.reportLocked(report.ItemPause, nil)
	return nil
}

// Resume resumes paused playback.
func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return err
	}
	op, err := p.machine.Check(playback.CmdResume)
	if err != nil || op == playback.DoNothingInternal {
		return err
	}
	s, err := p.activeLocked()
	if err != nil {
		return err
	}
	if err := s.Resume(); err != nil {
		return err
	}
	p.transitionLocked(s, playback.StatePlaying, media.CodeOK)
	p.reportLocked(report.ItemPlay, map[string]any{"resume": true})
	return nil
}

// Stop stops playback and releases the source. Nothing raised for the stopped source
// is delivered once Stop returns. Stopping a failed player releases it and leaves the
// state at Failed.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return err
	}
	op, err := p.machine.Check(playback.CmdStop)
	if err != nil || op == playback.DoNothingInternal {
		return err
	}
	if _, err := p.machine.Begin(playback.StoppingInternal); err != nil {
		return err
	}
	defer p.machine.End(playback.StoppingInternal)

	p.reportLocked(report.ItemStop, nil)
	s := p.active
	p.releaseActiveLocked()
	p.endRunLocked()
	if p.viaCDN {
		p.lines.Reset()
		p.viaCDN = false
	}
	if p.machine.State() != playback.StateFailed {
		p.transitionLocked(s, playback.StateStopped, media.CodeOK)
	}
	p.reportLocked(report.ItemStopResponse, nil)
	return nil
}

// Seek moves playback to pos. A seek issued while another is in flight supersedes it:
// only the latest one is reported.
func (p *Player) Seek(pos time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return err
	}
	if _, err := p.machine.Check(playback.CmdSeek); err != nil {
		return err
	}
	s, err := p.activeLocked()
	if err != nil {
		return err
	}
	superseded, err := p.machine.Begin(playback.SeekingInternal)
	if err != nil {
		return err
	}
	if _, err := s.Seek(pos); err != nil {
		if !superseded {
			p.machine.End(playback.SeekingInternal)
		}
		return err
	}
	p.seekStart = time.Now()
	p.postEventLocked(media.EventSeekBegin, 0, "")
	p.reportLocked(report.ItemSeek, map[string]any{"pos": pos.Milliseconds(), "superseded": superseded})
	return nil
}

// SetLoopCount sets how many times the source plays: -1 loops forever, n > 0 plays n
// times in total and anything else plays once.
func (p *Player) SetLoopCount(n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return err
	}
	p.loopCount = n
	if p.active != nil {
		p.active.SetLoopCount(n)
	}
	return nil
}

// SetPlaybackSpeed changes the rendering speed.
func (p *Player) SetPlaybackSpeed(speed media.PlaybackSpeed) error {
	if !speed.Valid() {
		return errors.Wrapf(media.ErrInvalidArguments, "unsupported playback speed %d", speed)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return err
	}
	p.speed = speed
	if p.active != nil {
		return p.active.SetPlaybackSpeed(speed)
	}
	return nil
}

// SelectAudioTrack selects the audio stream at index.
func (p *Player) SelectAudioTrack(index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return err
	}
	s, err := p.activeLocked()
	if err != nil {
		return err
	}
	return s.SelectAudioTrack(index)
}

// SetPlayerOptionInt sets an integer option applied at the next open.
func (p *Player) SetPlayerOptionInt(key string, value int) error {
	return p.setOption(key, value)
}

// SetPlayerOptionString sets a string option applied at the next open.
func (p *Player) SetPlayerOptionString(key, value string) error {
	return p.setOption(key, value)
}

func (p *Player) setOption(key string, value any) error {
	if key == "" {
		return errors.Wrap(media.ErrInvalidArguments, "option key is empty")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return err
	}
	next := maps.Clone(p.options)
	next[key] = value
	if _, err := session.DecodeOptions(next); err != nil {
		return err
	}
	p.options = next
	return nil
}

// TakeScreenshot writes the current picture to filename.
func (p *Player) TakeScreenshot(filename string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return err
	}
	if _, err := p.machine.Check(playback.CmdSnapshot); err != nil {
		return err
	}
	s, err := p.activeLocked()
	if err != nil {
		return err
	}
	if p.machine.Pending(playback.GettingInternal) {
		return errors.Wrap(media.ErrInvalidState, "snapshot already in progress")
	}
	if _, err := p.machine.Begin(playback.GettingInternal); err != nil {
		return err
	}
	err = s.TakeSnapshot(filename, func(err error) {
		p.machine.End(playback.GettingInternal)
		if err != nil {
			zlog.Warn().Msgf("snapshot failed: player_id=%s file=%s err=%v", p.id, filename, err)
			return
		}
		zlog.Info().Msgf("snapshot taken: player_id=%s file=%s", p.id, filename)
	})
	if err != nil {
		p.machine.End(playback.GettingInternal)
	}
	return err
}

// SelectInternalSubtitle selects the embedded subtitle stream at index.
func (p *Player) SelectInternalSubtitle(index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return err
	}
	s, err := p.activeLocked()
	if err != nil {
		return err
	}
	return s.SelectInternalSubtitle(index)
}

// SetExternalSubtitle loads subtitles from url.
func (p *Player) SetExternalSubtitle(url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return err
	}
	s, err := p.activeLocked()
	if err != nil {
		return err
	}
	return s.SetExternalSubtitle(url)
}

// Mute mutes or unmutes the output.
func (p *Player) Mute(mute bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return err
	}
	p.mute = mute
	if p.active != nil {
		return p.active.SetMute(mute)
	}
	return nil
}

// IsMuted reports whether the output is muted.
func (p *Player) IsMuted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mute
}

// AdjustPlayoutVolume sets the output volume in [0, 100].
func (p *Player) AdjustPlayoutVolume(volume int) error {
	if volume < 0 || volume > 100 {
		return errors.Wrapf(media.ErrInvalidArguments, "volume %d out of range", volume)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return err
	}
	p.volume = volume
	if p.active != nil {
		return p.active.SetVolume(volume)
	}
	return nil
}

// PlayoutVolume returns the output volume.
func (p *Player) PlayoutVolume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// SetRenderMode sets how video is fitted to the view.
func (p *Player) SetRenderMode(mode media.RenderMode) error {
	if !mode.Valid() {
		return errors.Wrapf(media.ErrInvalidArguments, "unsupported render mode %d", mode)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return err
	}
	p.render = mode
	if p.active != nil {
		return p.active.SetRenderMode(mode)
	}
	return nil
}

// SetView sets the opaque render target.
func (p *Player) SetView(view any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return err
	}
	p.view = view
	if p.active != nil {
		return p.active.SetView(view)
	}
	return nil
}

// Duration returns the duration of the active source, zero for live sources.
func (p *Player) Duration() (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.activeLocked()
	if err != nil {
		return 0, err
	}
	return s.Duration(), nil
}

// PlayPosition returns the playback position of the active source.
func (p *Player) PlayPosition() (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.activeLocked()
	if err != nil {
		return 0, err
	}
	return s.Position(), nil
}

// StreamCount returns how many streams the active source has.
func (p *Player) StreamCount() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.activeLocked()
	if err != nil {
		return 0, err
	}
	return s.StreamCount(), nil
}

// StreamInfo returns the stream at index.
func (p *Player) StreamInfo(index int) (media.StreamInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.activeLocked()
	if err != nil {
		return media.StreamInfo{}, err
	}
	return s.StreamInfo(index)
}

// SwitchSrc swaps the source under the running session. With syncPts the new source
// continues from the current position.
func (p *Player) SwitchSrc(url string, syncPts bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return err
	}
	if _, err := p.machine.Check(playback.CmdSwitch); err != nil {
		return err
	}
	s, err := p.activeLocked()
	if err != nil {
		return err
	}
	if p.viaCDN {
		return errors.Wrap(media.ErrInvalidState, "source was opened through a cdn")
	}
	if _, err := s.SwitchSource(url, syncPts); err != nil {
		return err
	}
	p.postEventLocked(media.EventSwitchBegin, 0, url)
	p.reportLocked(report.ItemSwitch, map[string]any{"url": url, "sync_pts": syncPts})
	return nil
}

// PreloadSrc opens src in the background so that PlayPreloadedSrc can start it at once.
func (p *Player) PreloadSrc(src string, startPos time.Duration) error {
	if src == "" {
		return errors.Wrap(media.ErrInvalidArguments, "preload source is empty")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return err
	}
	if p.active != nil && p.active.Key() == src {
		return errors.Wrapf(media.ErrInvalidArguments, "source is already active: %s", src)
	}
	opts, err := session.DecodeOptions(p.options)
	if err != nil {
		return err
	}
	return p.pool.Preload(src, startPos, opts)
}

// UnloadSrc releases a preloaded source.
func (p *Player) UnloadSrc(src string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return err
	}
	return p.pool.Unload(src)
}

// PlayPreloadedSrc makes a preloaded source the active one and starts playing it. The
// previously active source is stopped. Like an open, it resets a failed player to Idle
// before the new source starts.
func (p *Player) PlayPreloadedSrc(src string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return err
	}
	if _, err := p.machine.Check(playback.CmdPromote); err != nil {
		return err
	}
	s, err := p.pool.Take(src)
	if err != nil {
		return err
	}

	if p.active != nil {
		prev := p.active
		p.releaseActiveLocked()
		p.transitionLocked(prev, playback.StateStopped, media.CodeOK)
	}
	if p.viaCDN {
		p.lines.Reset()
		p.viaCDN = false
	}
	if p.machine.State() == playback.StateFailed {
		p.transitionLocked(nil, playback.StateIdle, media.CodeOK)
	}

	p.beginRunLocked()
	s.SetOwner(p)
	s.SetPhase(session.PhaseActive)
	p.adoptLocked(s)
	p.setActiveLocked(s)
	if !p.infoSent {
		p.publishInfoLocked()
	}
	if err := s.Play(); err != nil {
		p.failLocked(s, media.CodeOf(err), err.Error())
		return err
	}
	p.transitionLocked(s, playback.StatePlaying, media.CodeOK)
	p.reportLocked(report.ItemPlay, map[string]any{"preloaded": src})
	return nil
}
