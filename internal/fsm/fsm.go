// Package fsm defines the dictation session lifecycle state machine.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateStopping   State = "stopping"
	StateCancelling State = "cancelling"
)

const (
	EventStart    Event = "start"
	EventStop     Event = "stop"
	EventCancel   Event = "cancel"
	EventFinalize Event = "finalize"
)

// Transition applies one event to the current state and returns the next
// state. Invalid transitions return the unchanged state and an error; the
// controller logs these as ignored signals rather than failing the session.
func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateRecording, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRecording:
		switch event {
		case EventStop:
			return StateStopping, nil
		case EventCancel:
			return StateCancelling, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateStopping:
		switch event {
		case EventFinalize:
			return StateIdle, nil
		case EventCancel:
			// Escape during drain abandons the remaining chunks.
			return StateCancelling, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateCancelling:
		switch event {
		case EventFinalize:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

// Active reports whether a session currently owns the microphone and link.
func Active(state State) bool {
	return state == StateRecording || state == StateStopping || state == StateCancelling
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
