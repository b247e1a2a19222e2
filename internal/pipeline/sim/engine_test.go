package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/mpcore/internal/domain/media"
	"github.com/osa030/mpcore/internal/pipeline"
)

type eventSink struct {
	mu     sync.Mutex
	events []pipeline.Event
	audio  int
	video  int
}

func (s *eventSink) HandleEvent(ev pipeline.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *eventSink) HandleAudioFrame(*media.AudioPcmFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio++
}

func (s *eventSink) HandleVideoFrame(*media.VideoFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.video++
}

func (s *eventSink) ofType(t pipeline.EventType) []pipeline.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []pipeline.Event
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func openHandle(t *testing.T, e *Engine, sink *eventSink, url string) *Handle {
	t.Helper()
	h := e.NewHandle(sink).(*Handle)
	require.NoError(t, h.Open(context.Background(), pipeline.Source{URL: url}))
	return h
}

func TestHandle_OpenReportsStreams(t *testing.T) {
	e := New(Config{Duration: 5 * time.Second})
	sink := &eventSink{}
	openHandle(t, e, sink, "a.mp4")

	require.Eventually(t, func() bool { return len(sink.ofType(pipeline.EventOpened)) == 1 }, time.Second, 5*time.Millisecond)
	ev := sink.ofType(pipeline.EventOpened)[0]
	assert.Equal(t, 5*time.Second, ev.Duration)
	assert.Len(t, ev.Streams, 2)
	assert.Equal(t, 1, e.Opens())
}

func TestHandle_OpenFailure(t *testing.T) {
	e := New(Config{})
	e.Fail("bad.mp4", media.CodeURLNotFound)
	sink := &eventSink{}
	openHandle(t, e, sink, "bad.mp4")

	require.Eventually(t, func() bool { return len(sink.ofType(pipeline.EventOpenFailed)) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, media.CodeURLNotFound, sink.ofType(pipeline.EventOpenFailed)[0].Code)
}

func TestHandle_SeekCancelsInFlight(t *testing.T) {
	e := New(Config{Duration: 10 * time.Second, SeekDelay: 30 * time.Millisecond})
	sink := &eventSink{}
	h := openHandle(t, e, sink, "a.mp4")
	require.Eventually(t, func() bool { return len(sink.ofType(pipeline.EventOpened)) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.Seek(1, 2*time.Second))
	require.NoError(t, h.Seek(2, 4*time.Second))

	require.Eventually(t, func() bool { return len(sink.ofType(pipeline.EventSeekCompleted)) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	seeks := sink.ofType(pipeline.EventSeekCompleted)
	require.Len(t, seeks, 1)
	assert.Equal(t, uint64(2), seeks[0].Seq)
	assert.Equal(t, 4*time.Second, h.Position())
}

func TestHandle_AutoEOF(t *testing.T) {
	e := New(Config{Duration: 40 * time.Millisecond, AutoEOF: true})
	sink := &eventSink{}
	h := openHandle(t, e, sink, "a.mp4")
	require.Eventually(t, func() bool { return len(sink.ofType(pipeline.EventOpened)) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.Play())
	require.Eventually(t, func() bool { return len(sink.ofType(pipeline.EventEOF)) == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, h.Playing())
	assert.Len(t, sink.ofType(pipeline.EventPlayer), 1)
}

func TestHandle_FramesWhilePlaying(t *testing.T) {
	e := New(Config{Duration: 10 * time.Second, FrameInterval: 5 * time.Millisecond})
	sink := &eventSink{}
	h := openHandle(t, e, sink, "a.mp4")
	require.Eventually(t, func() bool { return len(sink.ofType(pipeline.EventOpened)) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.Play())
	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return sink.audio > 2 && sink.video > 2
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, h.Close())
	assert.True(t, h.Closed())
}

func TestHandle_SwitchSource(t *testing.T) {
	e := New(Config{Duration: 10 * time.Second})
	e.Fail("line2", media.CodeInvalidConnectionState)
	sink := &eventSink{}
	h := openHandle(t, e, sink, "line1")
	require.Eventually(t, func() bool { return len(sink.ofType(pipeline.EventOpened)) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.SwitchSource(1, "line2", false, 0))
	require.Eventually(t, func() bool { return len(sink.ofType(pipeline.EventSwitchFailed)) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "line1", h.URL())

	require.NoError(t, h.SwitchSource(2, "line3", true, 3*time.Second))
	require.Eventually(t, func() bool { return len(sink.ofType(pipeline.EventSwitchCompleted)) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "line3", h.URL())
	assert.Equal(t, 3*time.Second, h.Position())
}

func TestHandle_TakeSnapshot(t *testing.T) {
	fs := afero.NewMemMapFs()
	e := New(Config{Fs: fs})
	h := e.NewHandle(&eventSink{}).(*Handle)
	require.NoError(t, h.TakeSnapshot("/snap.jpg"))

	ok, err := afero.Exists(fs, "/snap.jpg")
	require.NoError(t, err)
	assert.True(t, ok)
}
