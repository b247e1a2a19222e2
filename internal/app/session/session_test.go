package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/mpcore/internal/domain/media"
	"github.com/osa030/mpcore/internal/pipeline"
	"github.com/osa030/mpcore/internal/pipeline/sim"
)

type ownerRecorder struct {
	mu        sync.Mutex
	events    []pipeline.Event
	positions int
	frames    int
}

func (o *ownerRecorder) SessionEvent(_ *Session, ev pipeline.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

func (o *ownerRecorder) SessionPosition(*Session, time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.positions++
}

func (o *ownerRecorder) SessionAudioFrame(*Session, *media.AudioPcmFrame) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.frames++
}

func (o *ownerRecorder) SessionVideoFrame(*Session, *media.VideoFrame) {}

func (o *ownerRecorder) count(t pipeline.EventType) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, ev := range o.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (o *ownerRecorder) snapshot() (positions, frames int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.positions, o.frames
}

func newOpenedSession(t *testing.T, engine *sim.Engine, cfg Config) (*Session, *ownerRecorder) {
	t.Helper()
	owner := &ownerRecorder{}
	s, err := New(engine, Descriptor{Key: "a.mp4", URL: "a.mp4"}, cfg, owner, PhaseActive)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	require.NoError(t, s.Open())
	require.Eventually(t, s.Opened, time.Second, 5*time.Millisecond)
	return s, owner
}

func TestNew_RejectsBadDescriptors(t *testing.T) {
	engine := sim.New(sim.Config{})
	tests := []struct {
		name string
		desc Descriptor
	}{
		{"empty", Descriptor{}},
		{"negative start", Descriptor{URL: "a.mp4", StartPos: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(engine, tt.desc, Config{}, nil, PhaseActive)
			assert.Equal(t, media.CodeInvalidArguments, media.CodeOf(err))
		})
	}
}

func TestSession_StreamInfo(t *testing.T) {
	s, owner := newOpenedSession(t, sim.New(sim.Config{Duration: 10 * time.Second}), Config{})

	assert.Equal(t, 1, owner.count(pipeline.EventOpened))
	assert.Equal(t, 2, s.StreamCount())
	assert.Equal(t, 10*time.Second, s.Duration())

	info, err := s.StreamInfo(1)
	require.NoError(t, err)
	assert.Equal(t, media.StreamAudio, info.Type)

	_, err = s.StreamInfo(2)
	assert.ErrorIs(t, err, media.ErrIndexOutOfRange)
	_, err = s.StreamInfo(-1)
	assert.ErrorIs(t, err, media.ErrIndexOutOfRange)
}

func TestSession_SeekLastWins(t *testing.T) {
	s, _ := newOpenedSession(t, sim.New(sim.Config{Duration: 10 * time.Second, SeekDelay: 20 * time.Millisecond}), Config{})

	first, err := s.Seek(2 * time.Second)
	require.NoError(t, err)
	second, err := s.Seek(5 * time.Second)
	require.NoError(t, err)

	assert.False(t, s.IsLatestSeek(first))
	assert.True(t, s.IsLatestSeek(second))

	_, err = s.Seek(20 * time.Second)
	assert.Equal(t, media.CodeInvalidArguments, media.CodeOf(err))
}

func TestSession_LiveSource(t *testing.T) {
	s, _ := newOpenedSession(t, sim.New(sim.Config{}), Config{})

	assert.True(t, s.Live())
	_, err := s.Seek(time.Second)
	assert.Equal(t, media.CodeNotSupported, media.CodeOf(err))
	_, err = s.SwitchSource("b.flv", true)
	assert.Equal(t, media.CodeInvalidArguments, media.CodeOf(err))
	_, err = s.SwitchSource("b.flv", false)
	assert.NoError(t, err)
}

func TestSession_LoopBudget(t *testing.T) {
	tests := []struct {
		name  string
		count int
		plays int // passes until ConsumeLoop reports false; -1 means never
	}{
		{"single", 0, 1},
		{"negative other than -1", -5, 1},
		{"two", 2, 2},
		{"infinite", -1, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(sim.New(sim.Config{}), Descriptor{URL: "a"}, Config{}, nil, PhaseActive)
			require.NoError(t, err)
			defer func() { _ = s.Close(context.Background()) }()
			s.SetLoopCount(tt.count)

			if tt.plays < 0 {
				for range 10 {
					assert.True(t, s.ConsumeLoop())
				}
				return
			}
			for i := 1; i < tt.plays; i++ {
				assert.True(t, s.ConsumeLoop())
			}
			assert.False(t, s.ConsumeLoop())

			s.ResetLoops()
			if tt.plays > 1 {
				assert.True(t, s.ConsumeLoop())
			}
		})
	}
}

func TestSession_ParameterValidation(t *testing.T) {
	s, _ := newOpenedSession(t, sim.New(sim.Config{Duration: time.Second}), Config{})

	assert.Equal(t, media.CodeInvalidArguments, media.CodeOf(s.SetVolume(101)))
	assert.Equal(t, media.CodeInvalidArguments, media.CodeOf(s.SetPlaybackSpeed(media.PlaybackSpeed(33))))
	assert.Equal(t, media.CodeInvalidArguments, media.CodeOf(s.SetRenderMode(media.RenderMode(0))))
	assert.Equal(t, media.CodeInvalidArguments, media.CodeOf(s.SelectAudioTrack(0)))
	assert.Equal(t, media.CodeInvalidArguments, media.CodeOf(s.SelectInternalSubtitle(1)))

	require.NoError(t, s.SetVolume(40))
	require.NoError(t, s.SetMute(true))
	require.NoError(t, s.SelectAudioTrack(1))
	assert.Equal(t, 40, s.Volume())
	assert.True(t, s.Muted())
	assert.Equal(t, 1, s.AudioTrack())
}

func TestSession_DetachStopsForwarding(t *testing.T) {
	engine := sim.New(sim.Config{Duration: 10 * time.Second, FrameInterval: 5 * time.Millisecond})
	s, owner := newOpenedSession(t, engine, Config{PositionInterval: 10 * time.Millisecond})

	require.NoError(t, s.Play())
	s.StartPositionReports()
	require.Eventually(t, func() bool {
		positions, frames := owner.snapshot()
		return positions > 0 && frames > 0
	}, time.Second, 5*time.Millisecond)

	s.Detach()
	time.Sleep(20 * time.Millisecond)
	positions, frames := owner.snapshot()
	engine.Last().Complete()
	time.Sleep(40 * time.Millisecond)

	p2, f2 := owner.snapshot()
	assert.Equal(t, positions, p2)
	assert.Equal(t, frames, f2)
	assert.Zero(t, owner.count(pipeline.EventEOF))
	assert.Equal(t, PhaseReleased, s.Phase())

	require.NoError(t, s.Close(context.Background()))
	assert.True(t, engine.Last().Closed())
}
