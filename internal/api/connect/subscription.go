package connect

import (
	"sync"
	"sync/atomic"

	"github.com/osa030/mpcore/internal/app/playback"
	"github.com/osa030/mpcore/internal/domain/media"
)

const subscriptionBufferSize = 64

// subscription is a player observer feeding one Subscribe stream. Sends never block the
// player's dispatcher: a notification that does not fit the buffer is dropped.
type subscription struct {
	ch      chan *Notification
	done    chan struct{}
	once    sync.Once
	seq     atomic.Int64
	dropped atomic.Int64
}

func newSubscription() *subscription {
	return &subscription{
		ch:   make(chan *Notification, subscriptionBufferSize),
		done: make(chan struct{}),
	}
}

func (s *subscription) close() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscription) send(n *Notification) {
	n.Seq = s.seq.Add(1)
	select {
	case s.ch <- n:
	default:
		// Drop if buffer full
		s.dropped.Add(1)
	}
}

func (s *subscription) OnPlayerStateChanged(state playback.State, code media.ErrorCode) {
	s.send(&Notification{Kind: KindState, State: state.String(), Code: int(code)})
}

func (s *subscription) OnPositionChanged(positionMs int64) {
	s.send(&Notification{Kind: KindPosition, PositionMs: positionMs})
}

func (s *subscription) OnPlayerEvent(event media.PlayerEvent, elapsedMs int64, message string) {
	s.send(&Notification{Kind: KindEvent, Event: event.String(), ElapsedMs: elapsedMs, Message: message})
}

func (s *subscription) OnMetaData(_ media.MetadataType, data []byte) {
	s.send(&Notification{Kind: KindMetadata, Metadata: append([]byte(nil), data...)})
}

func (s *subscription) OnPlayBufferUpdated(cachedMs int64) {
	s.send(&Notification{Kind: KindBuffer, CachedMs: cachedMs})
}

func (s *subscription) OnPreloadEvent(src string, event media.PreloadEvent) {
	s.send(&Notification{Kind: KindPreload, Src: src, Preload: event.String()})
}

func (s *subscription) OnCompleted() {
	s.send(&Notification{Kind: KindCompleted})
}

func (s *subscription) OnAgoraCDNTokenWillExpire() {
	s.send(&Notification{Kind: KindTokenWillExpire})
}

func (s *subscription) OnPlaySrcBitrateChanged(change media.BitrateChange) {
	s.send(&Notification{Kind: KindBitrate, Bitrate: &change})
}

func (s *subscription) OnPlayerInfoUpdated(info media.PlayerUpdatedInfo) {
	s.send(&Notification{Kind: KindInfo, DeviceID: info.DeviceID.OrEmpty()})
}
