// Package session owns the dictation lifecycle: one controller goroutine
// consumes start/stop/cancel signals and transcript chunks from a single
// inbox and drives capture, transcription, typing, and clipboard effects.
package session

import (
	"context"
	"time"
)

// Chunk is one committed transcript fragment from the transcription link.
// Seq orders chunks within a session; Final marks the end of an utterance.
type Chunk struct {
	Text  string
	Seq   uint64
	Final bool
}

// AudioStream is a live microphone capture. Frames closes after Stop or
// device failure; Err reports the terminal error afterward.
type AudioStream interface {
	Frames() <-chan []byte
	Stop() error
	Err() error
}

// AudioSource opens microphone captures.
type AudioSource interface {
	Start(ctx context.Context) (AudioStream, error)
}

// Link is an active streaming transcription connection.
type Link interface {
	Send(frame []byte) error
	Chunks() <-chan Chunk
	Close(ctx context.Context) error
	Abort()
	Err() error
}

// LinkDialer opens transcription links.
type LinkDialer interface {
	Dial(ctx context.Context) (Link, error)
}

// TypingSink injects text at the cursor and retracts typed characters.
// Emit returns the number of characters actually injected.
type TypingSink interface {
	Emit(text string) (int, error)
	Undo(count int) error
}

// Clipboard receives the assembled transcript on stop and cancel.
type Clipboard interface {
	Copy(ctx context.Context, text string) error
}

// Indicator is the session-facing subset of user feedback behavior.
type Indicator interface {
	CueStart(context.Context)
	CueStop(context.Context)
	CueComplete(context.Context)
	CueCancel(context.Context)
	CueError(context.Context)
	Notify(title string, message string)
}

// noopIndicator preserves session flow when no indicator is wired.
type noopIndicator struct{}

func (noopIndicator) CueStart(context.Context)    {}
func (noopIndicator) CueStop(context.Context)     {}
func (noopIndicator) CueComplete(context.Context) {}
func (noopIndicator) CueCancel(context.Context) {}
func (noopIndicator) CueError(context.Context)  {}
func (noopIndicator) Notify(string, string)     {}

// ErrorKind classifies the most recent session failure for status output.
type ErrorKind string

const (
	KindNone       ErrorKind = ""
	KindPermission ErrorKind = "permission"
	KindDevice     ErrorKind = "device"
	KindLink       ErrorKind = "link"
	KindTyping     ErrorKind = "typing"
)

// Status is a point-in-time snapshot of the controller for the IPC surface.
type Status struct {
	State         string
	SessionID     string
	StartedAt     time.Time
	TypedChars    int
	Transcript    string
	LastError     string
	LastErrorKind ErrorKind
}
