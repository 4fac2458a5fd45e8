// Package fsm defines the recording session state machine.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StatePaused    State = "paused"
	StateError     State = "error"
)

const (
	EventStart Event = "start"
	EventPause Event = "pause"
	EventStop  Event = "stop"
	EventFail  Event = "fail"
	EventReset Event = "reset"
)

// Transition returns the next state for event applied to current.
//
// Stop is accepted from every state and start re-enters recording even when a
// recorder is already active; the session replaces it rather than refusing.
func Transition(current State, event Event) (State, error) {
	if event == EventFail {
		return StateError, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateRecording, nil
		case EventStop:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRecording:
		switch event {
		case EventStart:
			return StateRecording, nil
		case EventPause:
			return StatePaused, nil
		case EventStop:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StatePaused:
		switch event {
		case EventStart:
			return StateRecording, nil
		case EventPause:
			return StatePaused, nil
		case EventStop:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateError:
		switch event {
		case EventReset, EventStop:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
