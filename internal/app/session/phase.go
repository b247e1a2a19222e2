package session

// Phase is the role a session currently plays for its player.
type Phase int

const (
	PhasePreloading Phase = iota // Opening inside the preload pool
	PhaseReady                   // Opened inside the preload pool
	PhaseActive                  // Driving the player's output
	PhaseReleased                // Detached and closing
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhasePreloading:
		return "preloading"
	case PhaseReady:
		return "ready"
	case PhaseActive:
		return "active"
	case PhaseReleased:
		return "released"
	default:
		return "unknown"
	}
}
