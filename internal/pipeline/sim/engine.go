// Package sim is an in-process engine that plays sources on a clock without decoding them.
// The daemon uses it as its default engine and tests drive it through its hooks.
package sim

import (
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/osa030/mpcore/internal/domain/media"
	"github.com/osa030/mpcore/internal/pipeline"
)

// Config controls the simulated engine.
type Config struct {
	OpenDelay      time.Duration
	SeekDelay      time.Duration
	SwitchDelay    time.Duration
	Duration       time.Duration // zero plays as a live source
	AutoEOF        bool          // report EOF when the clock reaches Duration
	FrameInterval  time.Duration // zero disables frame delivery
	BufferInterval time.Duration // zero disables buffer updates
	Streams        []media.StreamInfo
	Fs             afero.Fs
}

// DefaultStreams is one video and one audio stream.
var DefaultStreams = []media.StreamInfo{
	{Index: 0, Type: media.StreamVideo, Codec: "h264", VideoFrameRate: 30, VideoBitRate: 2000, VideoWidth: 1280, VideoHeight: 720},
	{Index: 1, Type: media.StreamAudio, Codec: "aac", Language: "und", AudioSampleRate: 48000, AudioChannels: 2, AudioBitsPerSample: 16},
}

// Engine creates simulated handles and records what they were asked to do.
type Engine struct {
	cfg Config

	mu      sync.Mutex
	handles []*Handle
	failing map[string]media.ErrorCode
	opens   int
}

// New creates an engine.
func New(cfg Config) *Engine {
	if cfg.Streams == nil {
		cfg.Streams = DefaultStreams
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewMemMapFs()
	}
	return &Engine{
		cfg:     cfg,
		failing: make(map[string]media.ErrorCode),
	}
}

// NewHandle implements pipeline.Factory.
func (e *Engine) NewHandle(h pipeline.Handler) pipeline.Handle {
	handle := &Handle{
		engine:  e,
		handler: h,
		speed:   media.SpeedOriginal,
		volume:  100,
		calls:   make(map[string]int),
	}
	e.mu.Lock()
	e.handles = append(e.handles, handle)
	e.mu.Unlock()
	return handle
}

// Fail makes every open of, or switch to, url fail with code.
func (e *Engine) Fail(url string, code media.ErrorCode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failing[url] = code
}

// Recover undoes Fail.
func (e *Engine) Recover(url string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.failing, url)
}

// Handles returns every handle created so far.
func (e *Engine) Handles() []*Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Handle(nil), e.handles...)
}

// Last returns the most recently created handle, or nil.
func (e *Engine) Last() *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.handles) == 0 {
		return nil
	}
	return e.handles[len(e.handles)-1]
}

// Opens returns how many sources were opened.
func (e *Engine) Opens() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opens
}

// Fs returns the filesystem snapshots are written to.
func (e *Engine) Fs() afero.Fs {
	return e.cfg.Fs
}

func (e *Engine) failure(url string) (media.ErrorCode, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	code, ok := e.failing[url]
	return code, ok
}

func (e *Engine) countOpen() {
	e.mu.Lock()
	e.opens++
	e.mu.Unlock()
}
