// Package indicator gives the user audible and desktop feedback for session
// lifecycle moments: short synthesized tone cues plus desktop notifications.
package indicator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gen2brain/beeep"

	"github.com/maree217/aqua-voice/internal/config"
)

// Notifier is the runtime indicator implementation.
type Notifier struct {
	cfg    config.IndicatorConfig
	logger *slog.Logger

	soundMu sync.Mutex
}

// New creates an indicator from config.
func New(cfg config.IndicatorConfig, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Notifier{cfg: cfg, logger: logger}
}

// CueStart plays the recording-started cue.
func (n *Notifier) CueStart(context.Context) { n.playCue(cueStart) }

// CueStop plays the stop-acknowledged cue.
func (n *Notifier) CueStop(context.Context) { n.playCue(cueStop) }

// CueComplete plays the transcript-delivered cue.
func (n *Notifier) CueComplete(context.Context) { n.playCue(cueComplete) }

// CueCancel plays the session-abandoned cue.
func (n *Notifier) CueCancel(context.Context) { n.playCue(cueCancel) }

// CueError plays the failure cue.
func (n *Notifier) CueError(context.Context) { n.playCue(cueError) }

// Notify sends a desktop notification when enabled.
func (n *Notifier) Notify(title string, message string) {
	if !n.cfg.Enable {
		return
	}
	if err := beeep.Notify(title, message, ""); err != nil {
		n.logger.Debug("desktop notification failed", "error", err.Error())
	}
}

// playCue serializes cue playback and emits audio asynchronously so session
// flow never waits on the sound server.
func (n *Notifier) playCue(kind cueKind) {
	if !n.cfg.SoundEnable {
		return
	}
	go func() {
		n.soundMu.Lock()
		defer n.soundMu.Unlock()
		if err := emitCue(kind, n.cfg); err != nil {
			n.logger.Debug("audio cue failed", "error", err.Error())
		}
	}()
}
