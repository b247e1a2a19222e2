package playback

import (
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mpcore/internal/domain/media"
)

// Change is one accepted change of the public state.
type Change struct {
	From   State
	To     State
	Code   media.ErrorCode
	Origin any // opaque tag supplied by the caller of TransitionFrom
}

// transitions lists the allowed public state edges. Any state may also move to Failed.
var transitions = map[State][]State{
	StateIdle:              {StateOpening, StatePlaying},
	StateOpening:           {StateOpenCompleted, StatePlaying, StateStopped},
	StateOpenCompleted:     {StatePlaying, StateStopped},
	StatePlaying:           {StatePaused, StatePlaybackCompleted, StateStopped},
	StatePaused:            {StatePlaying, StateStopped},
	StatePlaybackCompleted: {StateOpening, StateAllLoopsCompleted, StateStopped},
	StateAllLoopsCompleted: {StatePlaying, StateStopped, StateIdle},
	StateStopped:           {StateIdle, StatePlaying},
	StateFailed:            {StateIdle},
}

// preconditions maps a command to the states it proceeds in and the states where it is
// accepted as a no-op.
var preconditions = map[Command]struct {
	proceed []State
	noop    []State
}{
	CmdOpen:     {proceed: []State{StateIdle, StateOpening, StateStopped, StateFailed, StateAllLoopsCompleted}},
	CmdPlay:     {proceed: []State{StateOpenCompleted, StatePaused, StateAllLoopsCompleted}, noop: []State{StatePlaying}},
	CmdPause:    {proceed: []State{StatePlaying}, noop: []State{StatePaused}},
	CmdResume:   {proceed: []State{StatePaused}, noop: []State{StatePlaying}},
	CmdStop:     {proceed: []State{StateOpening, StateOpenCompleted, StatePlaying, StatePaused, StatePlaybackCompleted, StateAllLoopsCompleted, StateFailed}, noop: []State{StateStopped, StateIdle}},
	CmdSeek:     {proceed: []State{StateOpenCompleted, StatePlaying, StatePaused}},
	CmdSwitch:   {proceed: []State{StateOpenCompleted, StatePlaying, StatePaused}},
	CmdSnapshot: {proceed: []State{StatePlaying, StatePaused}},
	CmdPromote:  {proceed: []State{StateIdle, StateOpening, StateOpenCompleted, StatePlaying, StatePaused, StatePlaybackCompleted, StateAllLoopsCompleted, StateStopped, StateFailed}},
}

// Machine holds the current public state and the overlay of outstanding internal operations.
type Machine struct {
	mu      sync.RWMutex
	state   State
	code    media.ErrorCode
	overlay []InternalState
	notify  func(Change)
}

// NewMachine creates a machine in StateIdle. notify is invoked with the machine lock held,
// once per accepted public state change, and must not block or call back into the machine.
func NewMachine(notify func(Change)) *Machine {
	if notify == nil {
		notify = func(Change) {}
	}
	return &Machine{
		state:  StateIdle,
		notify: notify,
	}
}

// State returns the current public state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Code returns the error code carried by the last transition.
func (m *Machine) Code() media.ErrorCode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.code
}

// CanTransition reports whether the edge from -> to is allowed.
func CanTransition(from, to State) bool {
	if to == StateFailed {
		return from != StateFailed
	}
	return slices.Contains(transitions[from], to)
}

// Transition moves to target. A request for the current state is a no-op.
func (m *Machine) Transition(target State, code media.ErrorCode) error {
	return m.TransitionFrom(nil, target, code)
}

// TransitionFrom is Transition with an origin tag attached to the emitted Change.
func (m *Machine) TransitionFrom(origin any, target State, code media.ErrorCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == target {
		return nil
	}
	if !CanTransition(m.state, target) {
		return errors.Wrapf(media.ErrInvalidTransition, "%s -> %s", m.state, target)
	}

	from := m.state
	m.state = target
	m.code = code
	switch target {
	case StateIdle, StateStopped, StateFailed:
		m.overlay = nil
	}

	zlog.Debug().Msgf("state changed: from=%s to=%s code=%s", from, target, code)
	m.notify(Change{From: from, To: target, Code: code, Origin: origin})
	return nil
}

// Reenter emits a change from target to itself when the machine is already in target.
// A replaced open uses it so observers see the new attempt start.
func (m *Machine) Reenter(origin any, target State, code media.ErrorCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != target {
		return errors.Wrapf(media.ErrInvalidTransition, "reenter %s in state %s", target, m.state)
	}
	m.code = code
	zlog.Debug().Msgf("state reentered: state=%s code=%s", target, code)
	m.notify(Change{From: target, To: target, Code: code, Origin: origin})
	return nil
}

// Begin records op as outstanding. superseded is true when an operation of the same
// class was already outstanding; the caller then cancels the earlier one's effect.
// While a stop is outstanding every other operation is rejected.
func (m *Machine) Begin(op InternalState) (superseded bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if slices.Contains(m.overlay, op) {
		return true, nil
	}
	if op == StoppingInternal {
		m.overlay = []InternalState{StoppingInternal}
		return false, nil
	}
	if slices.Contains(m.overlay, StoppingInternal) {
		return false, errors.Wrapf(media.ErrInvalidState, "%s while stopping", op)
	}
	m.overlay = append(m.overlay, op)
	return false, nil
}

// End clears op from the overlay.
func (m *Machine) End(op InternalState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overlay = slices.DeleteFunc(m.overlay, func(s InternalState) bool { return s == op })
}

// Pending reports whether op is outstanding.
func (m *Machine) Pending(op InternalState) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Contains(m.overlay, op)
}

// Overlay returns a copy of the outstanding operations.
func (m *Machine) Overlay() []InternalState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.overlay)
}

// Check validates cmd against the current state. It returns NoneInternal when the
// command should proceed and DoNothingInternal when it is accepted as a no-op.
func (m *Machine) Check(cmd Command) (InternalState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if slices.Contains(m.overlay, StoppingInternal) {
		if cmd == CmdStop {
			return DoNothingInternal, nil
		}
		return NoneInternal, errors.Wrapf(media.ErrInvalidState, "%s while stopping", cmd)
	}

	rule, ok := preconditions[cmd]
	if !ok {
		return NoneInternal, errors.Wrapf(media.ErrInvalidArguments, "unknown command %d", cmd)
	}
	if slices.Contains(rule.noop, m.state) {
		return DoNothingInternal, nil
	}
	if slices.Contains(rule.proceed, m.state) {
		return NoneInternal, nil
	}
	return NoneInternal, errors.Wrapf(media.ErrInvalidState, "%s in state %s", cmd, m.state)
}
