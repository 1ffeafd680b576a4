package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maree217/aqua-voice/internal/fsm"
	"github.com/maree217/aqua-voice/internal/ipc"
	"github.com/maree217/aqua-voice/internal/output"
	"github.com/maree217/aqua-voice/internal/transcript"
)

const (
	// DefaultOrderingTimeout bounds how long a sequence gap may stall chunk
	// application before the controller skips ahead.
	DefaultOrderingTimeout = 1 * time.Second
	// DefaultDrainTimeout bounds waiting for trailing chunks after stop.
	DefaultDrainTimeout = 5 * time.Second

	defaultPreviewLimit = 80
)

// Config tunes controller timing and typing behavior.
type Config struct {
	OrderingTimeout time.Duration
	DrainTimeout    time.Duration
	TrailingSpace   bool
	PreviewLimit    int
}

func (cfg Config) withDefaults() Config {
	if cfg.OrderingTimeout <= 0 {
		cfg.OrderingTimeout = DefaultOrderingTimeout
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.PreviewLimit <= 0 {
		cfg.PreviewLimit = defaultPreviewLimit
	}
	return cfg
}

// Inbox messages. External signals carry a source tag for logging; internal
// events carry the session id so stale events from a finished session are
// dropped instead of corrupting the next one.
type message any

type sigStart struct{ source string }
type sigStop struct{ source string }
type sigCancel struct{ source string }

type evChunk struct {
	id    uuid.UUID
	chunk Chunk
}
type evAudioDone struct {
	id  uuid.UUID
	err error
}
type evLinkFault struct {
	id  uuid.UUID
	err error
}
type evLinkDone struct {
	id  uuid.UUID
	err error
}
type evGap struct {
	id     uuid.UUID
	expect uint64
}

// active is the goroutine-owned record of the one live session.
type active struct {
	id        uuid.UUID
	startedAt time.Time
	stream    AudioStream
	link      Link

	typed    int
	nextSeq  uint64
	pending  map[uint64]Chunk
	segments []string
	gapTimer *time.Timer

	sessionErr  error
	sessionKind ErrorKind
	undone      bool
}

// Controller serializes all session mutations through one run loop.
type Controller struct {
	logger    *slog.Logger
	source    AudioSource
	dialer    LinkDialer
	typer     TypingSink
	clipboard Clipboard
	indicator Indicator
	cfg       Config

	inbox chan message

	mu   sync.RWMutex
	snap Status

	state fsm.State
	cur   *active
}

// NewController wires session orchestration with safe fallbacks.
func NewController(
	logger *slog.Logger,
	source AudioSource,
	dialer LinkDialer,
	typer TypingSink,
	clipboard Clipboard,
	indicator Indicator,
	cfg Config,
) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if indicator == nil {
		indicator = noopIndicator{}
	}

	c := &Controller{
		logger:    logger,
		source:    source,
		dialer:    dialer,
		typer:     typer,
		clipboard: clipboard,
		indicator: indicator,
		cfg:       cfg.withDefaults(),
		inbox:     make(chan message, 128),
		state:     fsm.StateIdle,
	}
	c.snap.State = string(c.state)
	return c
}

// State returns the live FSM state. Safe from any goroutine.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fsm.State(c.snap.State)
}

// Snapshot returns the current status for the IPC surface.
func (c *Controller) Snapshot() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// RequestStart asks the controller to begin a session.
func (c *Controller) RequestStart(source string) { c.post(sigStart{source: source}) }

// RequestStop asks the controller to finish the live session normally.
func (c *Controller) RequestStop(source string) { c.post(sigStop{source: source}) }

// RequestCancel asks the controller to abandon the live session.
func (c *Controller) RequestCancel(source string) { c.post(sigCancel{source: source}) }

func (c *Controller) post(msg message) {
	select {
	case c.inbox <- msg:
	default:
		c.logger.Warn("controller inbox full; message dropped", "message", fmt.Sprintf("%T", msg))
	}
}

// Run consumes the inbox until ctx is cancelled. A live session at shutdown
// is cancelled without retracting typed text.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case msg := <-c.inbox:
			c.handle(ctx, msg)
		}
	}
}

func (c *Controller) handle(ctx context.Context, msg message) {
	switch m := msg.(type) {
	case sigStart:
		c.onStart(ctx, m.source)
	case sigStop:
		c.onStop(m.source)
	case sigCancel:
		c.onCancel(m.source)
	case evChunk:
		c.onChunk(m.id, m.chunk)
	case evAudioDone:
		c.onAudioDone(m.id, m.err)
	case evLinkFault:
		c.onLinkFault(m.id, m.err)
	case evLinkDone:
		c.onLinkDone(m.id, m.err)
	case evGap:
		c.onGap(m.id, m.expect)
	default:
		c.logger.Warn("unknown controller message", "message", fmt.Sprintf("%T", msg))
	}
}

// onStart opens capture and the transcription link, then enters Recording.
func (c *Controller) onStart(ctx context.Context, source string) {
	if c.state != fsm.StateIdle {
		c.logger.Debug("start ignored", "state", c.state, "source", source)
		return
	}

	stream, err := c.source.Start(ctx)
	if err != nil {
		kind := KindDevice
		if errors.Is(err, output.ErrPermission) {
			kind = KindPermission
		}
		c.logger.Error("audio capture failed to start", "error", err.Error())
		c.indicator.CueError(ctx)
		c.indicator.Notify("Dictation unavailable", "Could not open the microphone: "+err.Error())
		c.recordError(err, kind)
		return
	}

	link, err := c.dialer.Dial(ctx)
	if err != nil {
		_ = stream.Stop()
		c.logger.Error("transcription link failed to open", "error", err.Error())
		c.indicator.CueError(ctx)
		c.indicator.Notify("Dictation unavailable", "Could not reach the transcription service: "+err.Error())
		c.recordError(err, KindLink)
		return
	}

	c.transition(fsm.EventStart)
	c.cur = &active{
		id:        uuid.New(),
		startedAt: time.Now(),
		stream:    stream,
		link:      link,
		nextSeq:   1,
		pending:   make(map[uint64]Chunk),
	}
	c.publish()
	c.indicator.CueStart(ctx)
	c.logger.Info("session started", "session_id", c.cur.id.String(), "source", source)

	go c.pump(c.cur.id, stream, link)
	go c.receive(c.cur.id, link)
}

// pump forwards PCM frames to the link until capture ends.
func (c *Controller) pump(id uuid.UUID, stream AudioStream, link Link) {
	for frame := range stream.Frames() {
		if err := link.Send(frame); err != nil {
			c.post(evLinkFault{id: id, err: err})
			return
		}
	}
	c.post(evAudioDone{id: id, err: stream.Err()})
}

// receive delivers transcript chunks until the link drains or fails.
func (c *Controller) receive(id uuid.UUID, link Link) {
	for chunk := range link.Chunks() {
		c.post(evChunk{id: id, chunk: chunk})
	}
	c.post(evLinkDone{id: id, err: link.Err()})
}

// onStop begins the normal finish: capture stops, the link drains trailing
// chunks, typing continues until the link closes.
func (c *Controller) onStop(source string) {
	if c.state != fsm.StateRecording {
		c.logger.Debug("stop ignored", "state", c.state, "source", source)
		return
	}

	c.transition(fsm.EventStop)
	c.publish()
	c.indicator.CueStop(context.Background())
	c.logger.Info("session stopping", "session_id", c.cur.id.String(), "source", source)

	_ = c.cur.stream.Stop()
	go c.drainLink(c.cur.link)
}

func (c *Controller) drainLink(link Link) {
	drainCtx, cancel := context.WithTimeout(context.Background(), c.cfg.DrainTimeout)
	defer cancel()
	// Close's terminal error reaches the run loop through evLinkDone.
	_ = link.Close(drainCtx)
}

// onCancel abandons the session: typed text is retracted immediately and
// trailing chunks are discarded, but the transcript gathered so far is still
// copied to the clipboard at finalization.
func (c *Controller) onCancel(source string) {
	if c.state != fsm.StateRecording && c.state != fsm.StateStopping {
		c.logger.Debug("cancel ignored", "state", c.state, "source", source)
		return
	}

	c.transition(fsm.EventCancel)
	c.publish()
	c.indicator.CueCancel(context.Background())
	c.logger.Info("session cancelling", "session_id", c.cur.id.String(), "source", source)

	_ = c.cur.stream.Stop()
	c.undoTyped()
	go c.cur.link.Abort()
}

// undoTyped retracts exactly the confirmed typed character count, once.
func (c *Controller) undoTyped() {
	if c.cur.undone {
		return
	}
	c.cur.undone = true

	if c.cur.typed == 0 {
		return
	}
	if err := c.typer.Undo(c.cur.typed); err != nil {
		c.logger.Error("failed to retract typed text", "chars", c.cur.typed, "error", err.Error())
		c.indicator.Notify("Undo incomplete", "Some dictated text may remain at the cursor")
	}
}

// onChunk applies transcript chunks in sequence order, buffering ahead-of-
// order arrivals behind a bounded gap timer.
func (c *Controller) onChunk(id uuid.UUID, chunk Chunk) {
	if c.cur == nil || c.cur.id != id {
		return
	}
	if c.state == fsm.StateCancelling {
		return
	}

	switch {
	case chunk.Seq < c.cur.nextSeq:
		c.logger.Debug("duplicate chunk dropped", "seq", chunk.Seq, "next", c.cur.nextSeq)
	case chunk.Seq == c.cur.nextSeq:
		c.applyChunk(chunk)
		c.drainPending()
	default:
		c.cur.pending[chunk.Seq] = chunk
		c.armGapTimer()
	}
}

// applyChunk records the transcript segment and types it at the cursor.
func (c *Controller) applyChunk(chunk Chunk) {
	c.cur.nextSeq = chunk.Seq + 1
	c.cur.segments = append(c.cur.segments, chunk.Text)

	piece := chunk.Text
	if c.cfg.TrailingSpace {
		piece += " "
	} else if c.cur.typed > 0 {
		piece = " " + piece
	}

	n, err := c.typer.Emit(piece)
	c.cur.typed += n
	c.publish()
	if err == nil {
		return
	}

	// Typing can no longer reach the cursor. The session cannot continue;
	// preserve the transcript and fall back to the clipboard.
	kind := KindTyping
	if errors.Is(err, output.ErrPermission) {
		kind = KindPermission
		c.indicator.Notify(
			"Typing permission required",
			"Grant input permissions (macOS: System Settings > Privacy & Security > Accessibility) to let dictation type for you",
		)
	}
	c.logger.Error("keystroke emission failed", "error", err.Error())
	c.recordSessionError(err, kind)

	if c.state == fsm.StateRecording || c.state == fsm.StateStopping {
		c.transition(fsm.EventCancel)
		c.publish()
		c.indicator.CueError(context.Background())
		_ = c.cur.stream.Stop()
		// Emit reports exactly how many runes reached the cursor, partial
		// failures included, so retraction stays precise here.
		c.undoTyped()
		go c.cur.link.Abort()
	}
}

// drainPending applies buffered chunks that have become contiguous.
func (c *Controller) drainPending() {
	for {
		chunk, ok := c.cur.pending[c.cur.nextSeq]
		if !ok {
			break
		}
		delete(c.cur.pending, c.cur.nextSeq)
		if c.state == fsm.StateCancelling {
			return
		}
		c.applyChunk(chunk)
	}

	if len(c.cur.pending) == 0 {
		c.stopGapTimer()
	} else {
		c.rearmGapTimer()
	}
}

func (c *Controller) armGapTimer() {
	if c.cur.gapTimer != nil {
		return
	}
	id, expect := c.cur.id, c.cur.nextSeq
	c.cur.gapTimer = time.AfterFunc(c.cfg.OrderingTimeout, func() {
		c.post(evGap{id: id, expect: expect})
	})
}

func (c *Controller) rearmGapTimer() {
	c.stopGapTimer()
	c.armGapTimer()
}

func (c *Controller) stopGapTimer() {
	if c.cur.gapTimer != nil {
		c.cur.gapTimer.Stop()
		c.cur.gapTimer = nil
	}
}

// onGap fires when a sequence gap has stalled longer than the ordering
// timeout: skip the missing chunk and apply what arrived.
func (c *Controller) onGap(id uuid.UUID, expect uint64) {
	if c.cur == nil || c.cur.id != id || c.state == fsm.StateCancelling {
		return
	}
	if c.cur.nextSeq != expect || len(c.cur.pending) == 0 {
		return
	}

	seqs := make([]uint64, 0, len(c.cur.pending))
	for seq := range c.cur.pending {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	c.logger.Warn("chunk ordering gap timed out; skipping ahead",
		"expected_seq", expect, "resume_seq", seqs[0])

	c.cur.gapTimer = nil
	c.cur.nextSeq = seqs[0]
	c.drainPending()
}

// onAudioDone fires when the capture stream closes. During Recording that
// means the device failed or vanished: force a stop, keep the transcript.
func (c *Controller) onAudioDone(id uuid.UUID, err error) {
	if c.cur == nil || c.cur.id != id {
		return
	}
	if c.state != fsm.StateRecording {
		return
	}

	if err != nil {
		c.logger.Error("audio device lost; stopping session", "error", err.Error())
		c.recordSessionError(err, KindDevice)
		c.indicator.Notify("Microphone lost", "Recording stopped; the transcript so far is kept")
	} else {
		c.logger.Warn("audio capture ended unexpectedly; stopping session")
	}

	c.transition(fsm.EventStop)
	c.publish()
	c.indicator.CueError(context.Background())
	go c.drainLink(c.cur.link)
}

// onLinkFault fires when sending audio to the link fails mid-session.
func (c *Controller) onLinkFault(id uuid.UUID, err error) {
	if c.cur == nil || c.cur.id != id {
		return
	}

	c.logger.Error("transcription link send failed", "error", err.Error())
	c.recordSessionError(err, KindLink)

	if c.state == fsm.StateRecording {
		c.transition(fsm.EventStop)
		c.publish()
		c.indicator.CueError(context.Background())
		_ = c.cur.stream.Stop()
		go c.drainLink(c.cur.link)
	}
}

// onLinkDone finalizes the session once the chunk stream has closed.
func (c *Controller) onLinkDone(id uuid.UUID, err error) {
	if c.cur == nil || c.cur.id != id {
		return
	}

	if c.state == fsm.StateRecording {
		// The link closed on its own: infrastructure fault, implicit stop.
		if err != nil {
			c.logger.Error("transcription link failed; stopping session", "error", err.Error())
			c.recordSessionError(err, KindLink)
		} else {
			c.logger.Warn("transcription link closed unexpectedly; stopping session")
		}
		c.transition(fsm.EventStop)
		c.publish()
		c.indicator.CueError(context.Background())
		_ = c.cur.stream.Stop()
	} else if err != nil && c.state == fsm.StateStopping {
		c.recordSessionError(err, KindLink)
	}

	c.stopGapTimer()

	if c.state == fsm.StateStopping {
		c.flushPending()
	}

	c.finalize()
}

// flushPending applies every buffered chunk in sequence order, gaps included,
// so the final drain never discards recognized speech.
func (c *Controller) flushPending() {
	for len(c.cur.pending) > 0 && c.state == fsm.StateStopping {
		var lowest uint64
		for seq := range c.cur.pending {
			if lowest == 0 || seq < lowest {
				lowest = seq
			}
		}
		chunk := c.cur.pending[lowest]
		delete(c.cur.pending, lowest)
		c.applyChunk(chunk)
	}
}

// finalize copies the transcript, emits completion feedback, and returns the
// controller to idle.
func (c *Controller) finalize() {
	cur := c.cur
	cancelled := c.state == fsm.StateCancelling

	text := transcript.Assemble(cur.segments, transcript.Options{})
	if text != "" {
		if err := c.clipboard.Copy(context.Background(), text); err != nil {
			c.logger.Error("clipboard copy failed", "error", err.Error())
			c.indicator.Notify("Clipboard copy failed", err.Error())
		}
	} else if !cancelled && cur.sessionErr == nil {
		c.logger.Info("no speech recognized", "session_id", cur.id.String())
		c.indicator.Notify("No speech detected", "Check the microphone input or mute state")
	}

	if !cancelled && cur.sessionErr == nil {
		c.indicator.CueComplete(context.Background())
	}

	c.logger.Info("session finished",
		"session_id", cur.id.String(),
		"cancelled", cancelled,
		"typed_chars", cur.typed,
		"transcript_chars", len(text),
		"duration", time.Since(cur.startedAt).String(),
	)

	c.transition(fsm.EventFinalize)
	c.cur = nil

	c.mu.Lock()
	c.snap.State = string(c.state)
	c.snap.SessionID = cur.id.String()
	c.snap.StartedAt = cur.startedAt
	c.snap.TypedChars = cur.typed
	c.snap.Transcript = transcript.Preview(text, c.cfg.PreviewLimit)
	if cur.sessionErr != nil {
		c.snap.LastError = cur.sessionErr.Error()
		c.snap.LastErrorKind = cur.sessionKind
	} else {
		c.snap.LastError = ""
		c.snap.LastErrorKind = KindNone
	}
	c.mu.Unlock()
}

// shutdown aborts any live session without retracting typed text.
func (c *Controller) shutdown() {
	if c.cur == nil {
		return
	}
	c.logger.Warn("shutting down with a live session; aborting", "session_id", c.cur.id.String())
	_ = c.cur.stream.Stop()
	c.stopGapTimer()
	c.cur.link.Abort()
	c.cur = nil
	c.state = fsm.StateIdle
	c.publish()
}

// transition applies one FSM event; invalid events are controller bugs here
// because every handler checks state first.
func (c *Controller) transition(event fsm.Event) {
	next, err := fsm.Transition(c.state, event)
	if err != nil {
		c.logger.Error("state transition rejected", "state", c.state, "event", event, "error", err.Error())
		return
	}
	c.state = next
}

// publish refreshes the live parts of the status snapshot.
func (c *Controller) publish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.State = string(c.state)
	if c.cur != nil {
		c.snap.SessionID = c.cur.id.String()
		c.snap.StartedAt = c.cur.startedAt
		c.snap.TypedChars = c.cur.typed
	}
}

// recordError stores a failure that prevented a session from starting.
func (c *Controller) recordError(err error, kind ErrorKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.LastError = err.Error()
	c.snap.LastErrorKind = kind
}

// recordSessionError stores the first failure of the live session.
func (c *Controller) recordSessionError(err error, kind ErrorKind) {
	if c.cur.sessionErr == nil {
		c.cur.sessionErr = err
		c.cur.sessionKind = kind
	}
	c.recordError(err, kind)
}

// Handle serves IPC commands against the live controller.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case "status":
		snap := c.Snapshot()
		msg := fmt.Sprintf("typed %d chars", snap.TypedChars)
		if snap.LastError != "" {
			msg = fmt.Sprintf("%s; last error (%s): %s", msg, snap.LastErrorKind, snap.LastError)
		}
		return ipc.Response{OK: true, State: snap.State, Message: msg}
	case "stop":
		return c.requestStopIPC()
	case "cancel":
		return c.requestCancelIPC()
	default:
		return ipc.Response{OK: false, State: string(c.State()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

func (c *Controller) requestStopIPC() ipc.Response {
	state := c.State()
	switch state {
	case fsm.StateRecording:
		c.RequestStop("ipc")
		return ipc.Response{OK: true, State: string(state), Message: "stop requested"}
	case fsm.StateStopping, fsm.StateCancelling:
		return ipc.Response{OK: true, State: string(state), Message: "already finishing"}
	default:
		return ipc.Response{OK: false, State: string(state), Error: "no recording to stop"}
	}
}

func (c *Controller) requestCancelIPC() ipc.Response {
	state := c.State()
	switch state {
	case fsm.StateRecording, fsm.StateStopping:
		c.RequestCancel("ipc")
		return ipc.Response{OK: true, State: string(state), Message: "cancel requested"}
	case fsm.StateCancelling:
		return ipc.Response{OK: true, State: string(state), Message: "already cancelling"}
	default:
		return ipc.Response{OK: false, State: string(state), Error: "no recording to cancel"}
	}
}
