package scanner

import "fmt"

// State is the lifecycle phase of the live scan session.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateLive
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateLive:
		return "live"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var transitions = map[State][]State{
	StateIdle:      {StateAcquiring},
	StateAcquiring: {StateLive, StateIdle},
	StateLive:      {StateClosing},
	StateClosing:   {StateIdle},
}

// CanTransition reports whether the session may move from one state to
// another.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Snapshot is a point-in-time view of the controller.
type Snapshot struct {
	State     State
	SessionID string
	// Active is true while a live session is attached and delivering hits.
	Active bool
	// Pending names the interactive op occupying the slot, if any.
	Pending Op
}
