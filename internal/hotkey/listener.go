// Package hotkey owns global key capture. It translates raw hook events into
// typed session control signals so the session controller never touches the
// capture mechanism directly. Capture is listen-only: events still reach the
// foreground application.
package hotkey

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-vgo/robotgo"
	hook "github.com/robotn/gohook"

	"github.com/maree217/aqua-voice/internal/fsm"
	"github.com/maree217/aqua-voice/internal/gesture"
)

// probeWindow bounds how long Start waits for the hook to echo the key event
// synthesized by the startup self-check.
const probeWindow = 750 * time.Millisecond

// ErrCaptureUnavailable means global key capture cannot be acquired, usually
// a missing accessibility/input permission or no display session. Without it
// the stop and cancel keys are undetectable, so callers must surface this
// instead of starting silently degraded.
var ErrCaptureUnavailable = errors.New("global key capture unavailable: check input-monitoring permission and display session")

type Signal int

const (
	SignalStart Signal = iota + 1
	SignalStop
	SignalCancel
)

// Listener runs the global hook and feeds the gesture detector plus the
// Enter/Escape watcher. Signals are delivered on a buffered channel; a full
// channel drops the signal with a log line rather than blocking the hook.
type Listener struct {
	logger   *slog.Logger
	detector *gesture.Detector
	state    func() fsm.State
	keys     keymap
	signals  chan Signal

	// tap synthesizes one harmless key event so Start can confirm the hook
	// actually sees input. Swapped out in tests.
	tap func() error
}

func NewListener(logger *slog.Logger, doubleTapWindow time.Duration, state func() fsm.State) *Listener {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Listener{
		logger:   logger,
		detector: gesture.NewDetector(doubleTapWindow, state),
		state:    state,
		keys:     platformKeymap(),
		signals:  make(chan Signal, 16),
		tap:      func() error { return robotgo.KeyTap("shift") },
	}
}

// Signals returns the control-signal stream consumed by the controller.
func (l *Listener) Signals() <-chan Signal {
	return l.signals
}

// Start acquires the global hook, verifies it actually delivers events, and
// runs the translation loop until the context is cancelled. It fails fast
// with ErrCaptureUnavailable when the environment cannot support capture or
// the hook attaches but stays silent, as it does on macOS without the
// input-monitoring permission.
func (l *Listener) Start(ctx context.Context) error {
	if err := checkCaptureEnvironment(); err != nil {
		return err
	}

	events := hook.Start()
	var endOnce sync.Once
	end := func() { endOnce.Do(hook.End) }
	go func() {
		<-ctx.Done()
		end()
	}()

	if err := l.probe(events); err != nil {
		end()
		return err
	}

	go l.run(events)
	return nil
}

// probe taps a harmless key and waits for the hook to report anything at
// all. A hook that misses its own synthesized event is capturing nothing.
// Events that arrive during the wait are dispatched, so a real keystroke
// racing the probe is not lost.
func (l *Listener) probe(events <-chan hook.Event) error {
	if l.tap == nil {
		return nil
	}
	if err := l.tap(); err != nil {
		l.logger.Debug("self-check key tap failed", "error", err.Error())
	}

	timer := time.NewTimer(probeWindow)
	defer timer.Stop()

	select {
	case ev, ok := <-events:
		if !ok {
			return ErrCaptureUnavailable
		}
		l.dispatch(ev)
		return nil
	case <-timer.C:
		return ErrCaptureUnavailable
	}
}

// run consumes raw hook events until the source channel closes.
func (l *Listener) run(events <-chan hook.Event) {
	defer close(l.signals)

	for ev := range events {
		l.dispatch(ev)
	}
}

func (l *Listener) dispatch(ev hook.Event) {
	switch ev.Kind {
	case hook.KeyDown, hook.KeyHold:
		l.onKeyDown(ev)
	case hook.KeyUp:
		l.onKeyUp(ev)
	}
}

func (l *Listener) onKeyDown(ev hook.Event) {
	switch ev.Rawcode {
	case l.keys.Modifier:
		l.emitGesture(gesture.Event{Kind: gesture.KeyDown, At: eventTime(ev)})
	case l.keys.Enter:
		if fsm.Active(l.state()) {
			l.emit(SignalStop, "enter")
		}
	case l.keys.Escape:
		if fsm.Active(l.state()) {
			l.emit(SignalCancel, "escape")
		}
	}
}

func (l *Listener) onKeyUp(ev hook.Event) {
	if ev.Rawcode != l.keys.Modifier {
		return
	}
	l.emitGesture(gesture.Event{Kind: gesture.KeyUp, At: eventTime(ev)})
}

func (l *Listener) emitGesture(ev gesture.Event) {
	switch l.detector.Feed(ev) {
	case gesture.SignalStart:
		l.emit(SignalStart, "double-tap")
	case gesture.SignalStop:
		l.emit(SignalStop, "single-tap")
	}
}

func (l *Listener) emit(sig Signal, source string) {
	select {
	case l.signals <- sig:
		l.logger.Debug("hotkey signal", "signal", signalName(sig), "source", source)
	default:
		l.logger.Warn("hotkey signal dropped; controller inbox full", "signal", signalName(sig), "source", source)
	}
}

func signalName(sig Signal) string {
	switch sig {
	case SignalStart:
		return "start"
	case SignalStop:
		return "stop"
	case SignalCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

func eventTime(ev hook.Event) time.Time {
	if !ev.When.IsZero() {
		return ev.When
	}
	return time.Now()
}

// checkCaptureEnvironment rejects environments where the hook cannot attach.
// The hook library itself reports nothing on failure, so this is the only
// chance to distinguish "no permission" from "no events yet".
func checkCaptureEnvironment() error {
	if runtime.GOOS != "linux" {
		return nil
	}
	if strings.TrimSpace(os.Getenv("DISPLAY")) == "" && strings.TrimSpace(os.Getenv("WAYLAND_DISPLAY")) == "" {
		return ErrCaptureUnavailable
	}
	return nil
}
