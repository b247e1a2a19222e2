// Package playback provides the player state machine.
package playback

// State represents the externally observable playback state.
type State int

const (
	StateIdle              State = 0   // Nothing open
	StateOpening           State = 1   // Source is being opened
	StateOpenCompleted     State = 2   // Source opened, ready to play
	StatePlaying           State = 3   // Rendering
	StatePaused            State = 4   // Paused by the caller
	StatePlaybackCompleted State = 5   // One pass of the source finished
	StateAllLoopsCompleted State = 6   // Loop budget exhausted
	StateStopped           State = 7   // Stopped by the caller
	StateFailed            State = 100 // Unrecoverable error, needs a new open
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateOpenCompleted:
		return "open_completed"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StatePlaybackCompleted:
		return "playback_completed"
	case StateAllLoopsCompleted:
		return "all_loops_completed"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// InternalState marks an outstanding asynchronous sub-operation. It is a separate
// type so it can never reach a state-change observer.
type InternalState int

const (
	PausingInternal   InternalState = 50
	StoppingInternal  InternalState = 51
	SeekingInternal   InternalState = 52
	GettingInternal   InternalState = 53
	NoneInternal      InternalState = 54 // proceed
	DoNothingInternal InternalState = 55 // accepted, nothing to do
)

// String returns the string representation of the internal state.
func (s InternalState) String() string {
	switch s {
	case PausingInternal:
		return "pausing"
	case StoppingInternal:
		return "stopping"
	case SeekingInternal:
		return "seeking"
	case GettingInternal:
		return "getting"
	case NoneInternal:
		return "none"
	case DoNothingInternal:
		return "do_nothing"
	default:
		return "unknown"
	}
}

// Command is a caller command subject to state preconditions.
type Command int

const (
	CmdOpen Command = iota
	CmdPlay
	CmdPause
	CmdResume
	CmdStop
	CmdSeek
	CmdSwitch
	CmdSnapshot
	CmdPromote
)

// String returns the string representation of the command.
func (c Command) String() string {
	switch c {
	case CmdOpen:
		return "open"
	case CmdPlay:
		return "play"
	case CmdPause:
		return "pause"
	case CmdResume:
		return "resume"
	case CmdStop:
		return "stop"
	case CmdSeek:
		return "seek"
	case CmdSwitch:
		return "switch"
	case CmdSnapshot:
		return "snapshot"
	case CmdPromote:
		return "promote"
	default:
		return "unknown"
	}
}
