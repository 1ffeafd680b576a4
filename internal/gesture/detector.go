// Package gesture classifies raw modifier-key events into session control
// signals. A double tap of the designated key starts a session; a single
// isolated tap while recording stops it.
package gesture

import (
	"time"

	"github.com/maree217/aqua-voice/internal/fsm"
)

// DefaultDoubleTapWindow is the maximum spacing between two key-down events
// that still counts as a double tap.
const DefaultDoubleTapWindow = 350 * time.Millisecond

type Kind int

const (
	KeyDown Kind = iota + 1
	KeyUp
)

// Event is one press or release of the designated modifier key.
type Event struct {
	Kind Kind
	At   time.Time
}

type Signal int

const (
	SignalNone Signal = iota
	SignalStart
	SignalStop
)

// Detector turns a stream of Events into at most one control signal per
// physical gesture. It is not safe for concurrent use; the hotkey loop is
// its only caller.
type Detector struct {
	window time.Duration
	state  func() fsm.State

	lastPress time.Time
	pairDown  bool
}

// NewDetector builds a detector around a state snapshot function. The state
// function decides whether a tap means start (idle) or stop (recording).
func NewDetector(window time.Duration, state func() fsm.State) *Detector {
	if window <= 0 {
		window = DefaultDoubleTapWindow
	}
	return &Detector{window: window, state: state}
}

// Feed consumes one key event and returns the resulting control signal.
func (d *Detector) Feed(ev Event) Signal {
	switch ev.Kind {
	case KeyDown:
		return d.feedDown(ev.At)
	case KeyUp:
		return d.feedUp()
	default:
		return SignalNone
	}
}

func (d *Detector) feedDown(at time.Time) Signal {
	if fsm.Active(d.state()) {
		// Taps while a session is live never start another one. The
		// release handler decides whether this tap stops the session.
		d.lastPress = at
		d.pairDown = false
		return SignalNone
	}

	if !d.lastPress.IsZero() && at.Sub(d.lastPress) <= d.window {
		// Second press of a double tap. Reset the window so a rapid
		// third tap starts a fresh pair instead of chaining starts.
		d.lastPress = time.Time{}
		d.pairDown = true
		return SignalStart
	}

	d.lastPress = at
	d.pairDown = false
	return SignalNone
}

func (d *Detector) feedUp() Signal {
	if d.pairDown {
		// Release completing the starting double tap; consumed.
		d.pairDown = false
		return SignalNone
	}
	if d.state() == fsm.StateRecording {
		return SignalStop
	}
	return SignalNone
}
