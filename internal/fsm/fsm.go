// Package fsm implements the dictation session lifecycle as a small, pure
// state machine: a fixed set of states, a fixed set of events, and a
// transition table between them. Nothing in this package touches I/O;
// callers drive it and react to the (state, error) it returns.
package fsm

import "fmt"

// State is one lifecycle state for a dictation session.
type State string

// Event is one transition trigger consumed by the state machine.
type Event string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
	StateError        State = "error"
)

const (
	EventStart       Event = "start"
	EventStop        Event = "stop"
	EventCancel      Event = "cancel"
	EventTranscribed Event = "transcribed"
	EventFail        Event = "fail"
	EventReset       Event = "reset"
)

// transitionTable enumerates every valid (state, event) -> state edge.
// EventFail is handled separately in Transition since it applies uniformly
// from any state rather than needing a row per origin state.
var transitionTable = map[State]map[Event]State{
	StateIdle: {
		EventStart: StateRecording,
	},
	StateRecording: {
		EventStop:   StateTranscribing,
		EventCancel: StateIdle,
	},
	StateTranscribing: {
		EventTranscribed: StateIdle,
		EventCancel:      StateIdle,
	},
	StateError: {
		EventReset: StateIdle,
	},
}

// Transition validates and applies one state transition. An event not
// defined for the current state leaves the state unchanged and returns an
// error describing the rejected edge.
func Transition(current State, event Event) (State, error) {
	if event == EventFail {
		return StateError, nil
	}

	edges, known := transitionTable[current]
	if !known {
		return current, fmt.Errorf("unknown state %q", current)
	}

	next, ok := edges[event]
	if !ok {
		return current, invalidTransition(current, event)
	}
	return next, nil
}

// invalidTransition formats a stable error message used by tests and callers.
func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
