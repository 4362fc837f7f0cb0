package orchestrator

import "fmt"

// LoopState is one of {STOPPED, RUNNING, PAUSED, SLEEPING}, per spec §4.9.
type LoopState string

const (
	StateStopped  LoopState = "STOPPED"
	StateRunning  LoopState = "RUNNING"
	StatePaused   LoopState = "PAUSED"
	StateSleeping LoopState = "SLEEPING"
)

// InvalidTransitionError surfaces a rejected state-transition request per
// spec §4.9/§7.
type InvalidTransitionError struct {
	From  LoopState
	Event string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("<InvalidTransition> %s does not accept %s", e.From, e.Event)
}

// transitions encodes exactly the diagram in spec §4.9.
var transitions = map[LoopState]map[string]LoopState{
	StateStopped: {
		"start":              StateRunning,
		"initializeSleeping": StateSleeping,
	},
	StateRunning: {
		"pause": StatePaused,
		"stop":  StateStopped,
	},
	StatePaused: {
		"resume": StateRunning,
		"stop":   StateStopped,
	},
	StateSleeping: {
		"wake":  StateRunning,
		"start": StateRunning,
		"stop":  StateStopped,
	},
}

// next returns the resulting state for event fired from from, or an error
// if the transition isn't in the diagram.
func next(from LoopState, event string) (LoopState, error) {
	if byEvent, ok := transitions[from]; ok {
		if to, ok := byEvent[event]; ok {
			return to, nil
		}
	}
	return from, &InvalidTransitionError{From: from, Event: event}
}
