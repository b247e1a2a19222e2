package player

import (
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mpcore/internal/app/notification"
	"github.com/osa030/mpcore/internal/app/playback"
	"github.com/osa030/mpcore/internal/app/report"
	"github.com/osa030/mpcore/internal/app/session"
	"github.com/osa030/mpcore/internal/domain/media"
	"github.com/osa030/mpcore/internal/pipeline"
)

// SessionEvent implements session.Owner.
func (p *Player) SessionEvent(s *session.Session, ev pipeline.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s != p.active || p.released {
		zlog.Debug().Msgf("event from inactive session dropped: session_id=%s type=%d", s.ID(), ev.Type)
		return
	}

	switch ev.Type {
	case pipeline.EventOpened:
		p.reportLocked(report.ItemOpenResponse, map[string]any{"code": int(media.CodeOK), "duration": ev.Duration.Milliseconds()})
		if p.viaCDN {
			p.lines.Settle()
			p.reportLocked(report.ItemCdnConnectState, map[string]any{"connected": true, "url": s.URL()})
		}
		p.transitionLocked(s, playback.StateOpenCompleted, media.CodeOK)

	case pipeline.EventOpenFailed:
		p.reportLocked(report.ItemOpenResponse, map[string]any{"code": int(ev.Code), "message": ev.Message})
		if p.viaCDN && p.lines.AutoSwitch() {
			p.failoverLocked(s, ev.Code)
			return
		}
		p.failLocked(s, ev.Code, "open failed: "+ev.Message)

	case pipeline.EventSeekCompleted, pipeline.EventSeekFailed:
		if !s.IsLatestSeek(ev.Seq) {
			zlog.Debug().Msgf("superseded seek result dropped: seq=%d", ev.Seq)
			return
		}
		p.machine.End(playback.SeekingInternal)
		elapsed := time.Since(p.seekStart).Milliseconds()
		kind, code := media.EventSeekComplete, media.CodeOK
		if ev.Type == pipeline.EventSeekFailed {
			kind, code = media.EventSeekError, ev.Code
		}
		p.postEventLocked(kind, elapsed, ev.Message)
		p.reportLocked(report.ItemSeekResponse, map[string]any{"code": int(code), "pos": ev.Position.Milliseconds(), "elapsed": elapsed})

	case pipeline.EventEOF:
		p.completeLocked(s)

	case pipeline.EventError:
		p.failLocked(s, ev.Code, ev.Message)

	case pipeline.EventPlayer:
		p.playerEventLocked(s, ev)

	case pipeline.EventBufferUpdated:
		cached := ev.CachedMs
		p.dispatcher.Post(p.origin(), func(o notification.PlayerObserver) { o.OnPlayBufferUpdated(cached) })

	case pipeline.EventMetadata:
		typ, data := ev.MetadataType, ev.Data
		p.dispatcher.Post(p.origin(), func(o notification.PlayerObserver) { o.OnMetaData(typ, data) })

	case pipeline.EventLineFailed:
		if p.viaCDN {
			p.reportLocked(report.ItemCdnConnectState, map[string]any{"connected": false, "url": s.URL(), "code": int(ev.Code)})
			if p.lines.AutoSwitch() {
				p.failoverLocked(s, ev.Code)
				return
			}
		}
		p.failLocked(s, ev.Code, "line failed: "+ev.Message)

	case pipeline.EventTokenWillExpire:
		p.dispatcher.Post(p.origin(), func(o notification.PlayerObserver) { o.OnAgoraCDNTokenWillExpire() })

	case pipeline.EventSwitchCompleted, pipeline.EventSwitchFailed:
		if !s.IsLatestSwitch(ev.Seq) {
			zlog.Debug().Msgf("superseded switch result dropped: seq=%d", ev.Seq)
			return
		}
		if ev.Type == pipeline.EventSwitchCompleted {
			if p.viaCDN {
				p.lines.Settle()
				p.lines.MarkHealthy()
			}
			p.postEventLocked(media.EventSwitchComplete, 0, ev.Message)
			p.reportLocked(report.ItemSwitchResponse, map[string]any{"code": int(media.CodeOK), "url": ev.Message})
			return
		}
		p.postEventLocked(media.EventSwitchError, 0, ev.Message)
		p.reportLocked(report.ItemSwitchResponse, map[string]any{"code": int(ev.Code), "url": ev.Message})
		if p.viaCDN && p.lines.AutoSwitch() {
			p.failoverLocked(s, ev.Code)
		}

	case pipeline.EventBitrateChanged:
		change := ev.Bitrate
		p.stats.BitrateObserved(change.ToBitrate)
		p.dispatcher.Post(p.origin(), func(o notification.PlayerObserver) { o.OnPlaySrcBitrateChanged(change) })

	case pipeline.EventInfoUpdated:
		info := ev.Info
		p.dispatcher.Post(p.origin(), func(o notification.PlayerObserver) { o.OnPlayerInfoUpdated(info) })

	default:
		zlog.Warn().Msgf("unknown pipeline event: type=%d", ev.Type)
	}
}

func (p *Player) playerEventLocked(s *session.Session, ev pipeline.Event) {
	switch ev.PlayerEvent {
	case media.EventFreezeStart:
		p.stats.FreezeStarted(time.Now())
	case media.EventFreezeStop:
		p.stats.FreezeStopped(time.Now())
	case media.EventFirstDisplayed, media.EventBufferRecover:
		if p.viaCDN {
			p.lines.MarkHealthy()
		}
	}
	p.postEventLocked(ev.PlayerEvent, ev.ElapsedMs, ev.Message)
}

// completeLocked handles the end of one play: it either restarts the source for the
// next loop or settles at AllLoopsCompleted.
func (p *Player) completeLocked(s *session.Session) {
	if p.machine.State() != playback.StatePlaying {
		zlog.Debug().Msgf("eof ignored: state=%s", p.machine.State())
		return
	}
	p.dispatcher.Post(p.origin(), func(o notification.PlayerObserver) { o.OnCompleted() })
	p.transitionLocked(s, playback.StatePlaybackCompleted, media.CodeOK)

	if !s.ConsumeLoop() {
		p.transitionLocked(s, playback.StateAllLoopsCompleted, media.CodeOK)
		return
	}
	zlog.Debug().Msgf("restarting source for next loop: session_id=%s remaining=%d", s.ID(), s.LoopCount())
	p.transitionLocked(s, playback.StateOpening, media.CodeOK)
	if err := s.Rewind(); err != nil {
		p.failLocked(s, media.CodeOf(err), err.Error())
		return
	}
	p.transitionLocked(s, playback.StatePlaying, media.CodeOK)
}

// SessionPosition implements session.Owner.
func (p *Player) SessionPosition(s *session.Session, pos time.Duration) {
	origin := p.origin()
	if p.current.Load() != s {
		return
	}
	ms := pos.Milliseconds()
	p.dispatcher.Post(origin, func(o notification.PlayerObserver) { o.OnPositionChanged(ms) })
}

// SessionAudioFrame implements session.Owner. Frames are delivered on the engine's
// goroutine.
func (p *Player) SessionAudioFrame(s *session.Session, frame *media.AudioPcmFrame) {
	if p.current.Load() != s {
		return
	}
	p.registry.EachAudio(func(o notification.AudioFrameObserver) { o.OnAudioFrame(frame) })
}

// SessionVideoFrame implements session.Owner.
func (p *Player) SessionVideoFrame(s *session.Session, frame *media.VideoFrame) {
	if p.current.Load() != s {
		return
	}
	p.registry.EachVideo(func(o notification.VideoFrameObserver) { o.OnVideoFrame(frame) })
}
