package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/mpcore/internal/domain/media"
)

type changeRecorder struct {
	changes []Change
}

func (r *changeRecorder) record(c Change) {
	r.changes = append(r.changes, c)
}

func (r *changeRecorder) states() []State {
	out := make([]State, 0, len(r.changes))
	for _, c := range r.changes {
		out = append(out, c.To)
	}
	return out
}

func TestMachine_HappyPath(t *testing.T) {
	rec := &changeRecorder{}
	m := NewMachine(rec.record)

	steps := []State{
		StateOpening, StateOpenCompleted, StatePlaying, StatePaused,
		StatePlaying, StatePlaybackCompleted, StateOpening, StatePlaying,
		StatePlaybackCompleted, StateAllLoopsCompleted, StateStopped, StateIdle,
	}
	for _, s := range steps {
		require.NoError(t, m.Transition(s, media.CodeOK), s.String())
	}

	assert.Equal(t, steps, rec.states())
	assert.Equal(t, StateIdle, m.State())
}

func TestMachine_InvalidTransition(t *testing.T) {
	tests := []struct {
		name   string
		from   []State
		target State
	}{
		{"idle to paused", nil, StatePaused},
		{"idle to open completed", nil, StateOpenCompleted},
		{"opening to paused", []State{StateOpening}, StatePaused},
		{"failed to playing", []State{StateFailed}, StatePlaying},
		{"paused to completed", []State{StateOpening, StateOpenCompleted, StatePlaying, StatePaused}, StatePlaybackCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &changeRecorder{}
			m := NewMachine(rec.record)
			for _, s := range tt.from {
				require.NoError(t, m.Transition(s, media.CodeOK))
			}
			before := m.State()
			notified := len(rec.changes)

			err := m.Transition(tt.target, media.CodeOK)
			require.Error(t, err)
			assert.ErrorIs(t, err, media.ErrInvalidTransition)
			assert.Equal(t, media.CodeInvalidState, media.CodeOf(err))
			assert.Equal(t, before, m.State())
			assert.Len(t, rec.changes, notified)
		})
	}
}

func TestMachine_AnyStateToFailed(t *testing.T) {
	for _, s := range []State{StateIdle, StateOpening, StatePlaying, StatePaused, StateStopped} {
		assert.True(t, CanTransition(s, StateFailed), s.String())
	}
	assert.False(t, CanTransition(StateFailed, StateFailed))

	rec := &changeRecorder{}
	m := NewMachine(rec.record)
	require.NoError(t, m.Transition(StateOpening, media.CodeOK))
	require.NoError(t, m.Transition(StateFailed, media.CodeURLNotFound))
	assert.Equal(t, media.CodeURLNotFound, m.Code())
	assert.Equal(t, media.CodeURLNotFound, rec.changes[1].Code)
}

func TestMachine_SameStateIsSilent(t *testing.T) {
	rec := &changeRecorder{}
	m := NewMachine(rec.record)
	require.NoError(t, m.Transition(StateIdle, media.CodeOK))
	assert.Empty(t, rec.changes)
}

func TestMachine_OriginIsCarried(t *testing.T) {
	rec := &changeRecorder{}
	m := NewMachine(rec.record)
	require.NoError(t, m.TransitionFrom("session-a", StateOpening, media.CodeOK))
	require.Len(t, rec.changes, 1)
	assert.Equal(t, "session-a", rec.changes[0].Origin)
	assert.Equal(t, StateIdle, rec.changes[0].From)
}

func TestMachine_Reenter(t *testing.T) {
	rec := &changeRecorder{}
	m := NewMachine(rec.record)

	assert.ErrorIs(t, m.Reenter(nil, StateOpening, media.CodeOK), media.ErrInvalidTransition)
	assert.Empty(t, rec.changes)

	require.NoError(t, m.TransitionFrom("first", StateOpening, media.CodeOK))
	require.NoError(t, m.Reenter("second", StateOpening, media.CodeOK))
	require.Len(t, rec.changes, 2)
	assert.Equal(t, Change{From: StateOpening, To: StateOpening, Code: media.CodeOK, Origin: "second"}, rec.changes[1])
	assert.Equal(t, StateOpening, m.State())
}

func TestMachine_OverlayNeverNotifies(t *testing.T) {
	rec := &changeRecorder{}
	m := NewMachine(rec.record)
	require.NoError(t, m.Transition(StateOpening, media.CodeOK))
	require.NoError(t, m.Transition(StateOpenCompleted, media.CodeOK))
	require.NoError(t, m.Transition(StatePlaying, media.CodeOK))
	n := len(rec.changes)

	superseded, err := m.Begin(SeekingInternal)
	require.NoError(t, err)
	assert.False(t, superseded)
	assert.Equal(t, StatePlaying, m.State())

	superseded, err = m.Begin(SeekingInternal)
	require.NoError(t, err)
	assert.True(t, superseded)
	assert.Equal(t, []InternalState{SeekingInternal}, m.Overlay())

	m.End(SeekingInternal)
	assert.False(t, m.Pending(SeekingInternal))
	assert.Len(t, rec.changes, n)
}

func TestMachine_StoppingBlocksOthers(t *testing.T) {
	m := NewMachine(nil)
	require.NoError(t, m.Transition(StateOpening, media.CodeOK))
	require.NoError(t, m.Transition(StateOpenCompleted, media.CodeOK))
	require.NoError(t, m.Transition(StatePlaying, media.CodeOK))

	_, err := m.Begin(SeekingInternal)
	require.NoError(t, err)
	_, err = m.Begin(StoppingInternal)
	require.NoError(t, err)
	assert.Equal(t, []InternalState{StoppingInternal}, m.Overlay())

	_, err = m.Begin(PausingInternal)
	assert.ErrorIs(t, err, media.ErrInvalidState)

	_, err = m.Check(CmdSeek)
	assert.ErrorIs(t, err, media.ErrInvalidState)
	op, err := m.Check(CmdStop)
	require.NoError(t, err)
	assert.Equal(t, DoNothingInternal, op)

	require.NoError(t, m.Transition(StateStopped, media.CodeOK))
	assert.Empty(t, m.Overlay())
}

func TestMachine_Check(t *testing.T) {
	tests := []struct {
		name    string
		path    []State
		cmd     Command
		want    InternalState
		wantErr bool
	}{
		{"seek while idle", nil, CmdSeek, NoneInternal, true},
		{"play while idle", nil, CmdPlay, NoneInternal, true},
		{"open while idle", nil, CmdOpen, NoneInternal, false},
		{"open while playing", []State{StateOpening, StateOpenCompleted, StatePlaying}, CmdOpen, NoneInternal, true},
		{"play while playing", []State{StateOpening, StateOpenCompleted, StatePlaying}, CmdPlay, DoNothingInternal, false},
		{"pause while playing", []State{StateOpening, StateOpenCompleted, StatePlaying}, CmdPause, NoneInternal, false},
		{"pause while paused", []State{StateOpening, StateOpenCompleted, StatePlaying, StatePaused}, CmdPause, DoNothingInternal, false},
		{"resume while open completed", []State{StateOpening, StateOpenCompleted}, CmdResume, NoneInternal, true},
		{"stop while idle", nil, CmdStop, DoNothingInternal, false},
		{"stop while opening", []State{StateOpening}, CmdStop, NoneInternal, false},
		{"seek while open completed", []State{StateOpening, StateOpenCompleted}, CmdSeek, NoneInternal, false},
		{"open after failure", []State{StateOpening, StateFailed}, CmdOpen, NoneInternal, false},
		{"open while opening", []State{StateOpening}, CmdOpen, NoneInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(nil)
			for _, s := range tt.path {
				require.NoError(t, m.Transition(s, media.CodeOK))
			}
			got, err := m.Check(tt.cmd)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, media.CodeInvalidState, media.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "all_loops_completed", StateAllLoopsCompleted.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "seeking", SeekingInternal.String())
}
