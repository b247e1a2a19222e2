package notification

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/mpcore/internal/app/playback"
	"github.com/osa030/mpcore/internal/domain/media"
)

type recordingObserver struct {
	BaseObserver
	mu     sync.Mutex
	states []playback.State
	onCall func()
}

func (o *recordingObserver) OnPlayerStateChanged(state playback.State, _ media.ErrorCode) {
	o.mu.Lock()
	o.states = append(o.states, state)
	o.mu.Unlock()
	if o.onCall != nil {
		o.onCall()
	}
}

func (o *recordingObserver) got() []playback.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]playback.State(nil), o.states...)
}

type fakeOrigin struct {
	detached atomic.Bool
}

func (f *fakeOrigin) Detached() bool { return f.detached.Load() }

func notifyState(r *Registry, s playback.State) {
	r.EachPlayer(func(o PlayerObserver) { o.OnPlayerStateChanged(s, media.CodeOK) })
}

func TestRegistry_RegisterRejectsDuplicatesAndNil(t *testing.T) {
	r := NewRegistry()
	o := &recordingObserver{}

	require.NoError(t, r.RegisterPlayerObserver(o))
	err := r.RegisterPlayerObserver(o)
	assert.ErrorIs(t, err, ErrDuplicateObserver)
	assert.Equal(t, media.CodeInvalidArguments, media.CodeOf(err))
	assert.ErrorIs(t, r.RegisterPlayerObserver(nil), ErrNilObserver)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	o := &recordingObserver{}
	require.NoError(t, r.RegisterPlayerObserver(o))

	r.UnregisterPlayerObserver(o)
	r.UnregisterPlayerObserver(o)
	notifyState(r, playback.StatePlaying)

	assert.Empty(t, o.got())
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_SelfUnregisterDuringCallback(t *testing.T) {
	r := NewRegistry()
	o := &recordingObserver{}
	o.onCall = func() { r.UnregisterPlayerObserver(o) }
	other := &recordingObserver{}
	require.NoError(t, r.RegisterPlayerObserver(o))
	require.NoError(t, r.RegisterPlayerObserver(other))

	notifyState(r, playback.StateOpening)
	notifyState(r, playback.StateOpenCompleted)

	assert.Equal(t, []playback.State{playback.StateOpening}, o.got())
	assert.Equal(t, []playback.State{playback.StateOpening, playback.StateOpenCompleted}, other.got())
}

func TestRegistry_UnregisterOtherDuringCallback(t *testing.T) {
	r := NewRegistry()
	second := &recordingObserver{}
	first := &recordingObserver{}
	first.onCall = func() { r.UnregisterPlayerObserver(second) }
	require.NoError(t, r.RegisterPlayerObserver(first))
	require.NoError(t, r.RegisterPlayerObserver(second))

	notifyState(r, playback.StatePlaying)

	assert.Len(t, first.got(), 1)
	assert.Empty(t, second.got())
}

func TestRegistry_OrderIsRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	var order []int
	for i := range 3 {
		o := &recordingObserver{}
		o.onCall = func() { order = append(order, i) }
		require.NoError(t, r.RegisterPlayerObserver(o))
	}
	notifyState(r, playback.StatePlaying)
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestRegistry_Clear(t *testing.T) {
	r := NewRegistry()
	o := &recordingObserver{}
	require.NoError(t, r.RegisterPlayerObserver(o))
	r.Clear()
	notifyState(r, playback.StatePlaying)
	assert.Empty(t, o.got())
	audio, video := r.HasFrameObservers()
	assert.False(t, audio)
	assert.False(t, video)
}

func TestDispatcher_DropsDetachedOrigin(t *testing.T) {
	r := NewRegistry()
	o := &recordingObserver{}
	require.NoError(t, r.RegisterPlayerObserver(o))
	d := NewDispatcher(r)
	defer func() { _ = d.Close(context.Background()) }()

	origin := &fakeOrigin{}
	d.Post(origin, func(po PlayerObserver) { po.OnPlayerStateChanged(playback.StateOpening, media.CodeOK) })
	require.NoError(t, d.Flush(context.Background()))

	origin.detached.Store(true)
	d.Post(origin, func(po PlayerObserver) { po.OnPlayerStateChanged(playback.StatePlaying, media.CodeOK) })
	d.Post(nil, func(po PlayerObserver) { po.OnPlayerStateChanged(playback.StateStopped, media.CodeOK) })
	require.NoError(t, d.Flush(context.Background()))

	assert.Equal(t, []playback.State{playback.StateOpening, playback.StateStopped}, o.got())
}

func TestDispatcher_CloseDelivers(t *testing.T) {
	r := NewRegistry()
	o := &recordingObserver{}
	require.NoError(t, r.RegisterPlayerObserver(o))
	d := NewDispatcher(r)

	for _, s := range []playback.State{playback.StateOpening, playback.StateOpenCompleted, playback.StatePlaying} {
		d.Post(nil, func(po PlayerObserver) { po.OnPlayerStateChanged(s, media.CodeOK) })
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	assert.Equal(t, []playback.State{playback.StateOpening, playback.StateOpenCompleted, playback.StatePlaying}, o.got())
}

func TestDispatcher_PostAfterCloseIsDropped(t *testing.T) {
	r := NewRegistry()
	o := &recordingObserver{}
	require.NoError(t, r.RegisterPlayerObserver(o))
	d := NewDispatcher(r)

	assert.True(t, d.Post(nil, func(po PlayerObserver) { po.OnPlayerStateChanged(playback.StateOpening, media.CodeOK) }))
	require.NoError(t, d.Close(context.Background()))

	assert.False(t, d.Post(nil, func(po PlayerObserver) { po.OnPlayerStateChanged(playback.StatePlaying, media.CodeOK) }))
	assert.Equal(t, []playback.State{playback.StateOpening}, o.got())
}
