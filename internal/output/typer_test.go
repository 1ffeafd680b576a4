package output

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestTyper() (*Typer, *[]string) {
	var taps []string
	typer := &Typer{
		keystrokeDelay: time.Millisecond,
		typeStr:        func(string) {},
		keyTap: func(key string) error {
			taps = append(taps, key)
			return nil
		},
		sleep: func(time.Duration) {},
	}
	return typer, &taps
}

func TestTyperEmitCountsRunes(t *testing.T) {
	typer, _ := newTestTyper()

	var typed string
	typer.typeStr = func(text string) { typed = text }

	n, err := typer.Emit("héllo wörld")
	require.NoError(t, err)
	require.Equal(t, 11, n)
	require.Equal(t, "héllo wörld", typed)
}

func TestTyperEmitEmptyText(t *testing.T) {
	typer, _ := newTestTyper()

	n, err := typer.Emit("")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestTyperEmitPermissionError(t *testing.T) {
	typer, _ := newTestTyper()
	typer.permErr = ErrPermission

	n, err := typer.Emit("hello")
	require.Zero(t, n)
	require.ErrorIs(t, err, ErrPermission)

	require.ErrorIs(t, typer.Undo(3), ErrPermission)
}

func TestTyperUndoTapsBackspacePerCharacter(t *testing.T) {
	typer, taps := newTestTyper()

	require.NoError(t, typer.Undo(4))
	require.Len(t, *taps, 4)
	for _, key := range *taps {
		require.Equal(t, "backspace", key)
	}
}

func TestTyperUndoZeroCount(t *testing.T) {
	typer, taps := newTestTyper()

	require.NoError(t, typer.Undo(0))
	require.Empty(t, *taps)
}

func TestTyperUndoStopsOnTapError(t *testing.T) {
	typer, _ := newTestTyper()

	calls := 0
	typer.keyTap = func(string) error {
		calls++
		if calls == 2 {
			return errors.New("tap rejected")
		}
		return nil
	}

	err := typer.Undo(5)
	require.Error(t, err)
	require.Contains(t, err.Error(), "backspace 2 of 5")
	require.Equal(t, 2, calls)
}
