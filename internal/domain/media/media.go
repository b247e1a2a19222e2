// Package media defines the value types shared by the player core and its observers.
package media

import "time"

// MaxCharBufferLength bounds the codec and language strings of a StreamInfo.
const MaxCharBufferLength = 50

// PlaybackSpeed is a playback rate expressed in percent.
type PlaybackSpeed int

const (
	SpeedOriginal PlaybackSpeed = 100
	Speed50       PlaybackSpeed = 50
	Speed75       PlaybackSpeed = 75
	Speed125      PlaybackSpeed = 125
	Speed150      PlaybackSpeed = 150
	Speed200      PlaybackSpeed = 200
)

// Valid reports whether the speed is one of the supported rates.
func (s PlaybackSpeed) Valid() bool {
	switch s {
	case SpeedOriginal, Speed50, Speed75, Speed125, Speed150, Speed200:
		return true
	}
	return false
}

// Multiplier returns the speed as a factor of the original rate.
func (s PlaybackSpeed) Multiplier() float64 {
	return float64(s) / 100
}

// StreamType is the kind of an elementary stream.
type StreamType int

const (
	StreamUnknown StreamType = iota
	StreamVideo
	StreamAudio
	StreamSubtitle
)

// String returns the string representation of the stream type.
func (t StreamType) String() string {
	switch t {
	case StreamVideo:
		return "video"
	case StreamAudio:
		return "audio"
	case StreamSubtitle:
		return "subtitle"
	default:
		return "unknown"
	}
}

// StreamInfo describes one elementary stream of the open source.
type StreamInfo struct {
	Index              int
	Type               StreamType
	Codec              string
	Language           string
	VideoFrameRate     int
	VideoBitRate       int
	VideoWidth         int
	VideoHeight        int
	VideoRotation      int
	AudioSampleRate    int
	AudioChannels      int
	AudioBitsPerSample int
	Duration           time.Duration
}

// Normalize truncates the bounded string fields.
func (s StreamInfo) Normalize() StreamInfo {
	s.Codec = truncate(s.Codec, MaxCharBufferLength)
	s.Language = truncate(s.Language, MaxCharBufferLength)
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// PlayerEvent is an in-playback occurrence reported to player observers.
type PlayerEvent int

const (
	EventSeekBegin PlayerEvent = iota
	EventSeekComplete
	EventSeekError
	EventVideoPublished
	EventAudioPublished
	EventAudioTrackChanged
	EventBufferLow
	EventBufferRecover
	EventFreezeStart
	EventFreezeStop
	EventSwitchBegin
	EventSwitchComplete
	EventSwitchError
	EventFirstDisplayed
)

var playerEventNames = [...]string{
	"seek_begin",
	"seek_complete",
	"seek_error",
	"video_published",
	"audio_published",
	"audio_track_changed",
	"buffer_low",
	"buffer_recover",
	"freeze_start",
	"freeze_stop",
	"switch_begin",
	"switch_complete",
	"switch_error",
	"first_displayed",
}

// String returns the string representation of the event.
func (e PlayerEvent) String() string {
	if e >= 0 && int(e) < len(playerEventNames) {
		return playerEventNames[e]
	}
	return "unknown"
}

// PreloadEvent reports the progress of a preload request.
type PreloadEvent int

const (
	PreloadBegin PreloadEvent = iota
	PreloadComplete
	PreloadError
)

// String returns the string representation of the preload event.
func (e PreloadEvent) String() string {
	switch e {
	case PreloadBegin:
		return "begin"
	case PreloadComplete:
		return "complete"
	case PreloadError:
		return "error"
	default:
		return "unknown"
	}
}

// MetadataType identifies the payload of OnMetaData.
type MetadataType int

const (
	MetadataUnknown MetadataType = iota
	MetadataSEI
)

// RenderMode controls how video is fitted into its view.
type RenderMode int

const (
	RenderHidden RenderMode = 1
	RenderFit    RenderMode = 2
)

// Valid reports whether the mode is known.
func (m RenderMode) Valid() bool {
	return m == RenderHidden || m == RenderFit
}

// PixelFormat is the layout of decoded video frames.
type PixelFormat int

const (
	PixelUnknown PixelFormat = iota
	PixelI420
	PixelVideoToolbox
	PixelMediaCodec
	PixelD3D11
	PixelDXVA2VLD
	PixelQSV
	PixelMMAL
)

// BitrateChange describes an adaptive bitrate step of the playing source.
type BitrateChange struct {
	FromBitrate int
	FromName    string
	ToBitrate   int
	ToName      string
}
