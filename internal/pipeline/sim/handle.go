package sim

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"

	"github.com/osa030/mpcore/internal/domain/media"
	"github.com/osa030/mpcore/internal/pipeline"
)

var (
	ErrClosed    = errors.New("handle closed")
	ErrNotOpened = errors.New("handle not opened")
)

// Handle is a simulated pipeline.Handle.
type Handle struct {
	engine  *Engine
	handler pipeline.Handler

	mu        sync.Mutex
	url       string
	token     string
	opened    bool
	closed    bool
	playing   bool
	displayed bool
	duration  time.Duration
	pos       time.Duration // position when the clock was last anchored
	anchor    time.Time
	speed     media.PlaybackSpeed
	mute      bool
	volume    int
	track     int
	gen       uint64 // bumped whenever the clock stops or jumps
	seekTimer *time.Timer
	eofTimer  *time.Timer
	stopTicks func()
	calls     map[string]int
}

// URL returns the source currently bound to the handle.
func (h *Handle) URL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.url
}

// Token returns the last token set on the handle.
func (h *Handle) Token() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.token
}

// Calls returns how many times a command was issued.
func (h *Handle) Calls(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[name]
}

// Closed reports whether Close was called.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Playing reports whether the clock is running.
func (h *Handle) Playing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playing
}

// Complete reports EOF as if the source had been played to its end.
func (h *Handle) Complete() {
	h.mu.Lock()
	h.haltLocked()
	h.pos = h.duration
	h.mu.Unlock()
	h.emit(pipeline.Event{Type: pipeline.EventEOF, Position: h.duration})
}

// FailLine reports a transient failure of the current network line.
func (h *Handle) FailLine(code media.ErrorCode) {
	h.emit(pipeline.Event{Type: pipeline.EventLineFailed, Code: code, Message: h.URL()})
}

// Emit reports ev to the handler.
func (h *Handle) Emit(ev pipeline.Event) {
	h.emit(ev)
}

func (h *Handle) emit(ev pipeline.Event) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return
	}
	h.handler.HandleEvent(ev)
}

func (h *Handle) count(name string) {
	h.calls[name]++
}

func (h *Handle) cfg() Config {
	return h.engine.cfg
}

// Open implements pipeline.Handle.
func (h *Handle) Open(ctx context.Context, src pipeline.Source) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count("open")
	if h.closed {
		return ErrClosed
	}
	h.url = src.URL
	h.pos = src.StartPos
	if tok, ok := src.Options["token"].(string); ok {
		h.token = tok
	}
	h.engine.countOpen()

	gen := h.gen
	time.AfterFunc(h.cfg().OpenDelay, func() {
		if ctx.Err() != nil {
			return
		}
		ev := h.completeOpen(gen, src)
		if ev != nil {
			h.emit(*ev)
		}
	})
	return nil
}

func (h *Handle) completeOpen(gen uint64, src pipeline.Source) *pipeline.Event {
	if code, ok := h.engine.failure(src.URL); ok && src.Reader == nil {
		return &pipeline.Event{Type: pipeline.EventOpenFailed, Code: code, Message: src.URL}
	}
	if src.Reader != nil {
		probe := make([]byte, 4)
		if _, err := src.Reader.Read(probe); err != nil && !errors.Is(err, io.EOF) {
			return &pipeline.Event{Type: pipeline.EventOpenFailed, Code: media.CodeInvalidMediaSource, Message: err.Error()}
		}
		if _, err := src.Reader.Seek(0, io.SeekStart); err != nil {
			return &pipeline.Event{Type: pipeline.EventOpenFailed, Code: media.CodeInvalidMediaSource, Message: err.Error()}
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || gen != h.gen {
		return nil
	}
	h.opened = true
	h.duration = h.cfg().Duration
	streams := make([]media.StreamInfo, len(h.cfg().Streams))
	copy(streams, h.cfg().Streams)
	for i := range streams {
		streams[i].Duration = h.duration
	}
	return &pipeline.Event{
		Type:     pipeline.EventOpened,
		Position: h.pos,
		Duration: h.duration,
		Streams:  streams,
	}
}

// Play implements pipeline.Handle.
func (h *Handle) Play() error {
	h.mu.Lock()
	h.count("play")
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	if !h.opened {
		h.mu.Unlock()
		return ErrNotOpened
	}
	if h.playing {
		h.mu.Unlock()
		return nil
	}
	h.playing = true
	h.anchor = time.Now()
	h.armLocked()
	first := !h.displayed
	h.displayed = true
	h.mu.Unlock()

	if first {
		h.emit(pipeline.Event{Type: pipeline.EventPlayer, PlayerEvent: media.EventFirstDisplayed})
	}
	return nil
}

// Pause implements pipeline.Handle.
func (h *Handle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count("pause")
	if h.closed {
		return ErrClosed
	}
	h.haltLocked()
	return nil
}

// Stop implements pipeline.Handle. The clock rewinds to zero.
func (h *Handle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count("stop")
	if h.closed {
		return ErrClosed
	}
	h.haltLocked()
	h.pos = 0
	return nil
}

// Seek implements pipeline.Handle. A new seek cancels the one in flight.
func (h *Handle) Seek(seq uint64, pos time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count("seek")
	if h.closed {
		return ErrClosed
	}
	if !h.opened {
		return ErrNotOpened
	}
	if h.seekTimer != nil {
		h.seekTimer.Stop()
	}
	h.seekTimer = time.AfterFunc(h.cfg().SeekDelay, func() {
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			return
		}
		if h.duration > 0 && pos > h.duration {
			h.mu.Unlock()
			h.emit(pipeline.Event{Type: pipeline.EventSeekFailed, Seq: seq, Code: media.CodeInvalidArguments, Position: pos})
			return
		}
		h.gen++
		h.pos = pos
		h.anchor = time.Now()
		if h.playing {
			h.armLocked()
		}
		h.mu.Unlock()
		h.emit(pipeline.Event{Type: pipeline.EventSeekCompleted, Seq: seq, Position: pos})
	})
	return nil
}

// Position implements pipeline.Handle.
func (h *Handle) Position() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.positionLocked()
}

func (h *Handle) positionLocked() time.Duration {
	pos := h.pos
	if h.playing {
		pos += time.Duration(float64(time.Since(h.anchor)) * h.speed.Multiplier())
	}
	if h.duration > 0 && pos > h.duration {
		pos = h.duration
	}
	return pos
}

// SelectAudioTrack implements pipeline.Handle.
func (h *Handle) SelectAudioTrack(index int) error {
	h.mu.Lock()
	h.count("select_audio_track")
	h.track = index
	h.mu.Unlock()
	h.emit(pipeline.Event{Type: pipeline.EventPlayer, PlayerEvent: media.EventAudioTrackChanged})
	return nil
}

// SetPlaybackSpeed implements pipeline.Handle.
func (h *Handle) SetPlaybackSpeed(speed media.PlaybackSpeed) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count("set_playback_speed")
	if h.playing {
		h.pos = h.positionLocked()
		h.anchor = time.Now()
	}
	h.speed = speed
	if h.playing {
		h.gen++
		h.armLocked()
	}
	return nil
}

// SetMute implements pipeline.Handle.
func (h *Handle) SetMute(mute bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count("set_mute")
	h.mute = mute
	return nil
}

// SetVolume implements pipeline.Handle.
func (h *Handle) SetVolume(volume int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count("set_volume")
	h.volume = volume
	return nil
}

// SetRenderMode implements pipeline.Handle.
func (h *Handle) SetRenderMode(mode media.RenderMode) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count("set_render_mode")
	return nil
}

// SetView implements pipeline.Handle.
func (h *Handle) SetView(view any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count("set_view")
	return nil
}

// TakeSnapshot implements pipeline.Handle by writing a placeholder image.
func (h *Handle) TakeSnapshot(filename string) error {
	h.mu.Lock()
	h.count("take_snapshot")
	pos := h.positionLocked()
	h.mu.Unlock()
	data := []byte("snapshot@" + pos.String())
	if err := afero.WriteFile(h.cfg().Fs, filename, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write snapshot: filename=%s", filename)
	}
	return nil
}

// SelectInternalSubtitle implements pipeline.Handle.
func (h *Handle) SelectInternalSubtitle(index int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count("select_internal_subtitle")
	return nil
}

// SetExternalSubtitle implements pipeline.Handle.
func (h *Handle) SetExternalSubtitle(url string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count("set_external_subtitle")
	return nil
}

// SwitchSource implements pipeline.Handle.
func (h *Handle) SwitchSource(seq uint64, url string, syncPts bool, pos time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count("switch_source")
	if h.closed {
		return ErrClosed
	}
	if !h.opened {
		return ErrNotOpened
	}
	time.AfterFunc(h.cfg().SwitchDelay, func() {
		if code, ok := h.engine.failure(url); ok {
			h.emit(pipeline.Event{Type: pipeline.EventSwitchFailed, Seq: seq, Code: code, Message: url})
			return
		}
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			return
		}
		h.url = url
		h.gen++
		if syncPts {
			h.pos = pos
		} else {
			h.pos = 0
		}
		h.anchor = time.Now()
		if h.playing {
			h.armLocked()
		}
		at := h.pos
		h.mu.Unlock()
		h.engine.countOpen()
		h.emit(pipeline.Event{Type: pipeline.EventSwitchCompleted, Seq: seq, Position: at, Message: url})
	})
	return nil
}

// SetToken implements pipeline.Handle.
func (h *Handle) SetToken(token string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count("set_token")
	h.token = token
	return nil
}

// Close implements pipeline.Handle.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count("close")
	if h.closed {
		return nil
	}
	h.haltLocked()
	if h.seekTimer != nil {
		h.seekTimer.Stop()
	}
	h.closed = true
	return nil
}

// haltLocked freezes the clock and cancels clock-driven output.
func (h *Handle) haltLocked() {
	if h.playing {
		h.pos = h.positionLocked()
		h.playing = false
	}
	h.gen++
	if h.eofTimer != nil {
		h.eofTimer.Stop()
		h.eofTimer = nil
	}
	if h.stopTicks != nil {
		h.stopTicks()
		h.stopTicks = nil
	}
}

// armLocked schedules EOF and starts frame delivery for a running clock.
func (h *Handle) armLocked() {
	gen := h.gen
	if h.eofTimer != nil {
		h.eofTimer.Stop()
		h.eofTimer = nil
	}
	if h.cfg().AutoEOF && h.duration > 0 {
		remaining := time.Duration(float64(h.duration-h.pos) / h.speed.Multiplier())
		h.eofTimer = time.AfterFunc(max(remaining, 0), func() {
			h.mu.Lock()
			if h.closed || gen != h.gen {
				h.mu.Unlock()
				return
			}
			h.haltLocked()
			h.pos = h.duration
			h.mu.Unlock()
			h.emit(pipeline.Event{Type: pipeline.EventEOF, Position: h.duration})
		})
	}
	if h.stopTicks == nil && (h.cfg().FrameInterval > 0 || h.cfg().BufferInterval > 0) {
		h.stopTicks = h.startTicks()
	}
}

func (h *Handle) startTicks() func() {
	ctx, cancel := context.WithCancel(context.Background())
	tick := func(interval time.Duration, fn func()) {
		if interval <= 0 {
			return
		}
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					fn()
				}
			}
		}()
	}
	tick(h.cfg().FrameInterval, h.deliverFrames)
	tick(h.cfg().BufferInterval, func() {
		h.emit(pipeline.Event{Type: pipeline.EventBufferUpdated, CachedMs: 2000})
	})
	return cancel
}

func (h *Handle) deliverFrames() {
	h.mu.Lock()
	if h.closed || !h.playing {
		h.mu.Unlock()
		return
	}
	pos := h.positionLocked()
	h.mu.Unlock()

	audio, err := media.NewAudioPcmFrame(pos.Milliseconds(), 480, 48000, 2, make([]int16, 960))
	if err == nil {
		h.handler.HandleAudioFrame(audio)
	}
	h.handler.HandleVideoFrame(&media.VideoFrame{
		Format:       media.PixelI420,
		Width:        16,
		Height:       16,
		Planes:       [3]media.Plane{{Stride: 16, Data: make([]byte, 256)}, {Stride: 8, Data: make([]byte, 64)}, {Stride: 8, Data: make([]byte, 64)}},
		RenderTimeMs: pos.Milliseconds(),
	})
}
