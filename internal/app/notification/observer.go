// Package notification fans player notifications out to registered observers.
package notification

import (
	"github.com/osa030/mpcore/internal/app/playback"
	"github.com/osa030/mpcore/internal/domain/media"
)

// PlayerObserver receives lifecycle, state and playback notifications.
type PlayerObserver interface {
	OnPlayerStateChanged(state playback.State, code media.ErrorCode)
	OnPositionChanged(positionMs int64)
	OnPlayerEvent(event media.PlayerEvent, elapsedMs int64, message string)
	OnMetaData(typ media.MetadataType, data []byte)
	OnPlayBufferUpdated(cachedMs int64)
	OnPreloadEvent(src string, event media.PreloadEvent)
	OnCompleted()
	OnAgoraCDNTokenWillExpire()
	OnPlaySrcBitrateChanged(change media.BitrateChange)
	OnPlayerInfoUpdated(info media.PlayerUpdatedInfo)
}

// AudioFrameObserver receives decoded PCM frames.
type AudioFrameObserver interface {
	OnAudioFrame(frame *media.AudioPcmFrame)
}

// VideoFrameObserver receives decoded video frames.
type VideoFrameObserver interface {
	OnVideoFrame(frame *media.VideoFrame)
}

// BaseObserver implements PlayerObserver with no-ops. Embed it to override a subset.
type BaseObserver struct{}

func (BaseObserver) OnPlayerStateChanged(playback.State, media.ErrorCode) {}
func (BaseObserver) OnPositionChanged(int64)                              {}
func (BaseObserver) OnPlayerEvent(media.PlayerEvent, int64, string)       {}
func (BaseObserver) OnMetaData(media.MetadataType, []byte)                {}
func (BaseObserver) OnPlayBufferUpdated(int64)                            {}
func (BaseObserver) OnPreloadEvent(string, media.PreloadEvent)            {}
func (BaseObserver) OnCompleted()                                         {}
func (BaseObserver) OnAgoraCDNTokenWillExpire()                           {}
func (BaseObserver) OnPlaySrcBitrateChanged(media.BitrateChange)          {}
func (BaseObserver) OnPlayerInfoUpdated(media.PlayerUpdatedInfo)          {}
