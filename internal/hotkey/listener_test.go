package hotkey

import (
	"testing"
	"time"

	hook "github.com/robotn/gohook"
	"github.com/stretchr/testify/require"

	"github.com/maree217/aqua-voice/internal/fsm"
)

type stateStub struct {
	state fsm.State
}

func (s *stateStub) get() fsm.State { return s.state }

func newTestListener(st *stateStub) *Listener {
	return NewListener(nil, 350*time.Millisecond, st.get)
}

func keyEvent(kind uint8, rawcode uint16, at time.Time) hook.Event {
	return hook.Event{Kind: kind, Rawcode: rawcode, When: at}
}

func collectSignals(t *testing.T, l *Listener, want int) []Signal {
	t.Helper()
	got := make([]Signal, 0, want)
	timeout := time.After(2 * time.Second)
	for len(got) < want {
		select {
		case sig, ok := <-l.signals:
			if !ok {
				return got
			}
			got = append(got, sig)
		case <-timeout:
			t.Fatalf("timed out waiting for %d signals, got %v", want, got)
		}
	}
	return got
}

func TestDoubleTapEmitsStart(t *testing.T) {
	st := &stateStub{state: fsm.StateIdle}
	l := newTestListener(st)
	keys := l.keys

	events := make(chan hook.Event, 8)
	go l.run(events)

	base := time.Now()
	events <- keyEvent(hook.KeyDown, keys.Modifier, base)
	events <- keyEvent(hook.KeyUp, keys.Modifier, base.Add(20*time.Millisecond))
	events <- keyEvent(hook.KeyDown, keys.Modifier, base.Add(180*time.Millisecond))
	close(events)

	got := collectSignals(t, l, 1)
	require.Equal(t, []Signal{SignalStart}, got)
}

func TestEnterAndEscapeIgnoredWhileIdle(t *testing.T) {
	st := &stateStub{state: fsm.StateIdle}
	l := newTestListener(st)
	keys := l.keys

	events := make(chan hook.Event, 4)
	done := make(chan struct{})
	go func() {
		l.run(events)
		close(done)
	}()

	events <- keyEvent(hook.KeyDown, keys.Enter, time.Now())
	events <- keyEvent(hook.KeyDown, keys.Escape, time.Now())
	close(events)
	<-done

	_, open := <-l.signals
	require.False(t, open, "expected no signals while idle")
}

func TestEnterStopsAndEscapeCancelsWhileRecording(t *testing.T) {
	st := &stateStub{state: fsm.StateRecording}
	l := newTestListener(st)
	keys := l.keys

	events := make(chan hook.Event, 4)
	go l.run(events)

	events <- keyEvent(hook.KeyDown, keys.Enter, time.Now())
	events <- keyEvent(hook.KeyDown, keys.Escape, time.Now())
	close(events)

	got := collectSignals(t, l, 2)
	require.Equal(t, []Signal{SignalStop, SignalCancel}, got)
}

func TestUnrelatedKeysIgnored(t *testing.T) {
	st := &stateStub{state: fsm.StateRecording}
	l := newTestListener(st)

	events := make(chan hook.Event, 4)
	done := make(chan struct{})
	go func() {
		l.run(events)
		close(done)
	}()

	events <- keyEvent(hook.KeyDown, 42, time.Now())
	events <- keyEvent(hook.KeyUp, 42, time.Now())
	close(events)
	<-done

	_, open := <-l.signals
	require.False(t, open, "expected no signals and a closed channel")
}

func TestProbePassesWhenHookEchoesTap(t *testing.T) {
	st := &stateStub{state: fsm.StateIdle}
	l := newTestListener(st)

	events := make(chan hook.Event, 1)
	tapped := false
	l.tap = func() error {
		tapped = true
		events <- keyEvent(hook.KeyDown, 42, time.Now())
		return nil
	}

	require.NoError(t, l.probe(events))
	require.True(t, tapped)
}

func TestProbeFailsWhenHookStaysSilent(t *testing.T) {
	st := &stateStub{state: fsm.StateIdle}
	l := newTestListener(st)
	l.tap = func() error { return nil }

	events := make(chan hook.Event)
	err := l.probe(events)
	require.ErrorIs(t, err, ErrCaptureUnavailable)
}

func TestProbeForwardsRacingControlKey(t *testing.T) {
	// A real keystroke that lands during the self-check window must still be
	// translated, not swallowed.
	st := &stateStub{state: fsm.StateRecording}
	l := newTestListener(st)
	l.tap = func() error { return nil }

	events := make(chan hook.Event, 1)
	events <- keyEvent(hook.KeyDown, l.keys.Enter, time.Now())

	require.NoError(t, l.probe(events))
	got := collectSignals(t, l, 1)
	require.Equal(t, []Signal{SignalStop}, got)
}

func TestPlatformKeymapNonZero(t *testing.T) {
	keys := platformKeymap()
	require.NotZero(t, keys.Modifier)
	require.NotZero(t, keys.Enter)
	require.NotZero(t, keys.Escape)
}
