// Package pipeline defines the contract between the player core and the decode/render engine.
//
// A Handle never blocks on media work: every command returns once accepted and its outcome
// comes back through the Handler passed to Factory.NewHandle.
package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/osa030/mpcore/internal/domain/media"
)

// EventType identifies a pipeline event.
type EventType int

const (
	EventOpened EventType = iota
	EventOpenFailed
	EventSeekCompleted
	EventSeekFailed
	EventEOF
	EventError
	EventPlayer
	EventBufferUpdated
	EventMetadata
	EventLineFailed
	EventTokenWillExpire
	EventSwitchCompleted
	EventSwitchFailed
	EventBitrateChanged
	EventInfoUpdated
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventOpened:
		return "opened"
	case EventOpenFailed:
		return "open_failed"
	case EventSeekCompleted:
		return "seek_completed"
	case EventSeekFailed:
		return "seek_failed"
	case EventEOF:
		return "eof"
	case EventError:
		return "error"
	case EventPlayer:
		return "player"
	case EventBufferUpdated:
		return "buffer_updated"
	case EventMetadata:
		return "metadata"
	case EventLineFailed:
		return "line_failed"
	case EventTokenWillExpire:
		return "token_will_expire"
	case EventSwitchCompleted:
		return "switch_completed"
	case EventSwitchFailed:
		return "switch_failed"
	case EventBitrateChanged:
		return "bitrate_changed"
	case EventInfoUpdated:
		return "info_updated"
	default:
		return "unknown"
	}
}

// Event is reported by the engine to its Handler.
type Event struct {
	Type     EventType
	Seq      uint64 // seek or switch sequence the event answers
	Code     media.ErrorCode
	Position time.Duration
	Duration time.Duration // zero for live sources
	Streams  []media.StreamInfo
	CachedMs int64

	PlayerEvent  media.PlayerEvent
	ElapsedMs    int64
	Message      string
	MetadataType media.MetadataType
	Data         []byte
	Bitrate      media.BitrateChange
	Info         media.PlayerUpdatedInfo
}

// Handler consumes engine output. Methods are called from engine goroutines.
type Handler interface {
	HandleEvent(ev Event)
	HandleAudioFrame(frame *media.AudioPcmFrame)
	HandleVideoFrame(frame *media.VideoFrame)
}

// Source is what the engine opens: a URL or a pull reader.
type Source struct {
	URL      string
	Reader   io.ReadSeeker
	StartPos time.Duration
	Options  map[string]any
}

// Handle is one engine instance bound to one source.
type Handle interface {
	Open(ctx context.Context, src Source) error
	Play() error
	Pause() error
	Stop() error
	Seek(seq uint64, pos time.Duration) error
	Position() time.Duration
	SelectAudioTrack(index int) error
	SetPlaybackSpeed(speed media.PlaybackSpeed) error
	SetMute(mute bool) error
	SetVolume(volume int) error
	SetRenderMode(mode media.RenderMode) error
	SetView(view any) error
	TakeSnapshot(filename string) error
	SelectInternalSubtitle(index int) error
	SetExternalSubtitle(url string) error
	SwitchSource(seq uint64, url string, syncPts bool, pos time.Duration) error
	SetToken(token string) error
	Close() error
}

// Factory creates engine handles.
type Factory interface {
	NewHandle(h Handler) Handle
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(h Handler) Handle

// NewHandle implements Factory.
func (f FactoryFunc) NewHandle(h Handler) Handle {
	return f(h)
}
