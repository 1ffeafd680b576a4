package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/maree217/aqua-voice/internal/audio"
	"github.com/maree217/aqua-voice/internal/config"
	"github.com/maree217/aqua-voice/internal/deepgram"
	"github.com/maree217/aqua-voice/internal/session"
)

// micSource adapts Pulse device selection and capture to the session's
// audio port. Device selection runs on every start so an unplugged
// microphone falls back without restarting the daemon.
type micSource struct {
	cfg    config.AudioConfig
	logger *slog.Logger
}

func newMicSource(cfg config.AudioConfig, logger *slog.Logger) *micSource {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &micSource{cfg: cfg, logger: logger}
}

func (s *micSource) Start(ctx context.Context) (session.AudioStream, error) {
	selection, err := audio.SelectDevice(ctx, s.cfg.Input, s.cfg.Fallback)
	if err != nil {
		return nil, err
	}
	if selection.Warning != "" {
		s.logger.Warn("audio device fallback", "warning", selection.Warning)
	}
	return audio.StartCapture(ctx, selection.Device)
}

// linkDialer adapts the Deepgram dialer to the session's transcription port.
type linkDialer struct {
	dialer *deepgram.Dialer
}

func newLinkDialer(cfg config.DeepgramConfig, apiKey string, sendTimeout time.Duration) *linkDialer {
	return &linkDialer{dialer: deepgram.NewDialer(deepgram.Config{
		APIKey:        apiKey,
		Model:         cfg.Model,
		Language:      cfg.Language,
		EndpointingMS: cfg.EndpointingMS,
		SmartFormat:   cfg.SmartFormat,
		SendTimeout:   sendTimeout,
	})}
}

func (d *linkDialer) Dial(ctx context.Context) (session.Link, error) {
	link, err := d.dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	return newChunkLink(link), nil
}

// chunkLink forwards transport chunks onto the session's chunk type. The
// forwarding goroutine exits when the transport closes its channel.
type chunkLink struct {
	*deepgram.Link
	out chan session.Chunk
}

func newChunkLink(link *deepgram.Link) *chunkLink {
	cl := &chunkLink{Link: link, out: make(chan session.Chunk, 64)}
	go func() {
		defer close(cl.out)
		for chunk := range link.Chunks() {
			cl.out <- session.Chunk{Text: chunk.Text, Seq: chunk.Seq, Final: chunk.Final}
		}
	}()
	return cl
}

func (cl *chunkLink) Chunks() <-chan session.Chunk {
	return cl.out
}
