package fetch

import "fmt"

// State is the lifecycle state of a download session.
type State uint8

const (
	StateCreated State = iota
	StateSizeProbing
	StatePlanning
	StateFetching
	StateDraining
	StateCompleted
	StateFailed
	StateCancelled
)

var stateNames = [...]string{
	StateCreated:     "created",
	StateSizeProbing: "size_probing",
	StatePlanning:    "planning",
	StateFetching:    "fetching",
	StateDraining:    "draining",
	StateCompleted:   "completed",
	StateFailed:      "failed",
	StateCancelled:   "cancelled",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Terminal reports whether s has no outbound transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// transitions lists the allowed successors of every non-terminal state.
var transitions = map[State][]State{
	StateCreated:     {StateSizeProbing, StatePlanning, StateCancelled},
	StateSizeProbing: {StatePlanning, StateFailed, StateCancelled},
	StatePlanning:    {StateFetching, StateFailed, StateCancelled},
	StateFetching:    {StateDraining, StateFailed, StateCancelled},
	StateDraining:    {StateCompleted, StateFailed, StateCancelled},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
