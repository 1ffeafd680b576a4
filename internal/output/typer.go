package output

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"
	"unicode/utf8"

	"github.com/go-vgo/robotgo"
)

// ErrPermission marks typing failures caused by missing OS-level input
// permissions (macOS accessibility, X11 access). Callers match it with
// errors.Is to surface remediation instead of retrying.
var ErrPermission = errors.New("typing permission not granted")

// DefaultKeystrokeDelay paces synthetic backspaces so target applications
// do not drop events.
const DefaultKeystrokeDelay = 5 * time.Millisecond

// Typer injects recognized text into the focused application as synthetic
// keystrokes and can retract previously typed characters.
type Typer struct {
	keystrokeDelay time.Duration
	permErr        error

	typeStr func(text string)
	keyTap  func(key string) error
	sleep   func(d time.Duration)
}

// NewTyper builds a typer backed by the OS input synthesis layer.
func NewTyper(keystrokeDelay time.Duration) *Typer {
	if keystrokeDelay <= 0 {
		keystrokeDelay = DefaultKeystrokeDelay
	}
	return &Typer{
		keystrokeDelay: keystrokeDelay,
		permErr:        checkTypingEnvironment(),
		typeStr:        func(text string) { robotgo.TypeStr(text) },
		keyTap:         func(key string) error { return robotgo.KeyTap(key) },
		sleep:          time.Sleep,
	}
}

// checkTypingEnvironment verifies synthetic input can reach a display server.
func checkTypingEnvironment() error {
	if runtime.GOOS != "linux" {
		return nil
	}
	if os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != "" {
		return nil
	}
	return fmt.Errorf("%w: no display server (set DISPLAY or WAYLAND_DISPLAY)", ErrPermission)
}

// Emit types text into the focused application and returns the number of
// characters actually injected.
func (t *Typer) Emit(text string) (int, error) {
	if t.permErr != nil {
		return 0, t.permErr
	}
	if text == "" {
		return 0, nil
	}

	t.typeStr(text)
	return utf8.RuneCountInString(text), nil
}

// Undo retracts count previously typed characters with paced backspaces.
// It returns the first tap error so the caller knows retraction is partial.
func (t *Typer) Undo(count int) error {
	if t.permErr != nil {
		return t.permErr
	}

	for i := 0; i < count; i++ {
		if err := t.keyTap("backspace"); err != nil {
			return fmt.Errorf("backspace %d of %d: %w", i+1, count, err)
		}
		t.sleep(t.keystrokeDelay)
	}
	return nil
}
