package player

import (
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mpcore/internal/app/notification"
	"github.com/osa030/mpcore/internal/app/playback"
	"github.com/osa030/mpcore/internal/app/report"
	"github.com/osa030/mpcore/internal/app/session"
	"github.com/osa030/mpcore/internal/domain/media"
)

// OpenWithAgoraCDNSrc opens a live source served over several CDN lines. The first line
// is opened; the others are failover candidates.
func (p *Player) OpenWithAgoraCDNSrc(src string, startPos time.Duration) error {
	if src == "" {
		return errors.Wrap(media.ErrInvalidArguments, "cdn source is empty")
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
	url, err := p.lines.Load(src)
	if err != nil {
		return err
	}
	p.viaCDN = true
	if err := p.openLocked(session.Descriptor{Key: src, URL: url, StartPos: startPos, Options: opts}); err != nil {
		p.lines.Reset()
		p.viaCDN = false
		return err
	}
	return nil
}

// AgoraCDNLineCount returns the number of lines of the open CDN source.
func (p *Player) AgoraCDNLineCount() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.cdnLocked(); err != nil {
		return 0, err
	}
	return p.lines.LineCount()
}

// CurrentAgoraCDNIndex returns the index of the line in use.
func (p *Player) CurrentAgoraCDNIndex() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.cdnLocked(); err != nil {
		return 0, err
	}
	return p.lines.CurrentIndex()
}

// EnableAutoSwitchAgoraCDN turns automatic line failover on or off.
func (p *Player) EnableAutoSwitchAgoraCDN(enable bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return err
	}
	p.lines.SetAutoSwitch(enable)
	return nil
}

// SwitchAgoraCDNLineByIndex moves playback to the line at index. An index out of range
// leaves the current line unchanged.
func (p *Player) SwitchAgoraCDNLineByIndex(index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.cdnLocked(); err != nil {
		return err
	}
	s, err := p.activeLocked()
	if err != nil {
		return err
	}
	url, err := p.lines.Select(index)
	if err != nil {
		return err
	}
	p.postEventLocked(media.EventSwitchBegin, 0, url)
	p.reportLocked(report.ItemLasSwitch, map[string]any{"index": index, "url": url, "auto": false})
	p.switchLineLocked(s, url)
	return nil
}

// RenewAgoraCDNSrcToken replaces the access token of the CDN source. ts is the new
// expiry in Unix seconds; zero or less means the token does not expire.
func (p *Player) RenewAgoraCDNSrcToken(token string, ts int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.cdnLocked(); err != nil {
		return err
	}
	if err := p.lines.RenewToken(token, ts); err != nil {
		return err
	}
	if p.active != nil {
		return p.active.SetToken(token)
	}
	return nil
}

// SwitchAgoraCDNSrc swaps the CDN source under the running session. Position sync is
// not possible on live CDN sources.
func (p *Player) SwitchAgoraCDNSrc(src string, syncPts bool) error {
	if src == "" {
		return errors.Wrap(media.ErrInvalidArguments, "cdn source is empty")
	}
	if syncPts {
		return errors.Wrap(media.ErrInvalidArguments, "position sync is not possible on a cdn source")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.cdnLocked(); err != nil {
		return err
	}
	if _, err := p.machine.Check(playback.CmdSwitch); err != nil {
		return err
	}
	s, err := p.activeLocked()
	if err != nil {
		return err
	}
	url, err := p.lines.Load(src)
	if err != nil {
		return err
	}
	if _, err := s.SwitchSource(url, false); err != nil {
		return err
	}
	p.postEventLocked(media.EventSwitchBegin, 0, url)
	p.reportLocked(report.ItemSwitch, map[string]any{"url": src, "cdn": true})
	return nil
}

func (p *Player) cdnLocked() error {
	if err := p.checkLocked(); err != nil {
		return err
	}
	if !p.viaCDN {
		return errors.Wrap(media.ErrInvalidState, "no cdn source open")
	}
	return nil
}

// failoverLocked moves to the next line of the current failure episode, or fails once
// every line has been tried.
func (p *Player) failoverLocked(s *session.Session, code media.ErrorCode) {
	index, url, ok := p.lines.NextLine()
	if !ok {
		zlog.Error().Msgf("every cdn line failed: player_id=%s last_code=%s", p.id, code)
		p.failLocked(s, media.CodeInvalidConnectionState, "every cdn line failed")
		return
	}
	p.postEventLocked(media.EventSwitchBegin, 0, url)
	p.reportLocked(report.ItemLasSwitch, map[string]any{"index": index, "url": url, "auto": true, "code": int(code)})
	go p.attemptLine(s, url)
}

// attemptLine waits for the switch pacing and then switches s to url if it is still the
// active CDN session.
func (p *Player) attemptLine(s *session.Session, url string) {
	if err := p.lines.Wait(p.ctx); err != nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released || !p.viaCDN || p.active != s {
		return
	}
	p.switchLineLocked(s, url)
}

// switchLineLocked moves s to url. A source that never opened is reopened on the new
// line with the state left unchanged.
func (p *Player) switchLineLocked(s *session.Session, url string) {
	if s.Opened() {
		if _, err := s.SwitchSource(url, false); err != nil {
			p.failLocked(s, media.CodeOf(err), err.Error())
		}
		return
	}

	desc := s.Descriptor()
	desc.URL = url
	next, err := p.newSessionLocked(desc)
	if err != nil {
		p.failLocked(s, media.CodeOf(err), err.Error())
		return
	}
	p.releaseActiveLocked()
	p.setActiveLocked(next)
	next.SetState(p.machine.State())
	if err := next.Open(); err != nil {
		p.failLocked(next, media.CodeOf(err), err.Error())
	}
}

func (p *Player) onTokenWillExpire() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released || !p.viaCDN || p.active == nil {
		return
	}
	p.dispatcher.Post(p.origin(), func(o notification.PlayerObserver) { o.OnAgoraCDNTokenWillExpire() })
}

func (p *Player) onTokenExpired() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released || !p.viaCDN || p.active == nil {
		return
	}
	p.failLocked(p.active, media.CodeTokenExpired, "cdn token expired")
}
