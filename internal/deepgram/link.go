// Package deepgram streams session audio to the Deepgram live transcription
// websocket and yields ordered transcript chunks.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultBaseURL is the public Deepgram API endpoint.
	DefaultBaseURL = "https://api.deepgram.com/v1"
	// DefaultModel is used when the config does not name one.
	DefaultModel = "nova-3"

	defaultSendTimeout = 2 * time.Second
)

// Config controls the websocket dial and recognition parameters.
type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	Language      string
	EndpointingMS int
	SmartFormat   bool
	SendTimeout   time.Duration
}

// Chunk is one committed transcript fragment. Seq is assigned by the receive
// loop in arrival order and is strictly increasing within a link. Final marks
// a chunk Deepgram considers the end of an utterance.
type Chunk struct {
	Text  string
	Seq   uint64
	Final bool
}

// Dialer opens live transcription links with a fixed config.
type Dialer struct {
	cfg Config
}

// NewDialer fills config defaults and returns a ready dialer.
func NewDialer(cfg Config) *Dialer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	return &Dialer{cfg: cfg}
}

// Dial connects the websocket, starts the read and write loops, and returns
// a live link. The audio format is fixed: mono 16-bit linear PCM at 16 kHz.
func (d *Dialer) Dial(ctx context.Context) (*Link, error) {
	if strings.TrimSpace(d.cfg.APIKey) == "" {
		return nil, errors.New("deepgram api key is empty")
	}

	listenURL, err := buildListenURL(d.cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.cfg.APIKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, listenURL, headers)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("deepgram rejected the api key (http %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial deepgram websocket: %w", err)
	}

	link := &Link{
		conn:        conn,
		sendTimeout: d.cfg.SendTimeout,
		audio:       make(chan []byte, 32),
		chunks:      make(chan Chunk, 64),
		recvDone:    make(chan struct{}),
		abortCh:     make(chan struct{}),
		sendDone:    make(chan struct{}),
	}
	go link.writeLoop()
	go link.readLoop()
	return link, nil
}

// Link wraps one active websocket transcription stream.
type Link struct {
	conn        *websocket.Conn
	sendTimeout time.Duration

	audio  chan []byte
	chunks chan Chunk

	recvDone chan struct{}
	abortCh  chan struct{}
	sendDone chan struct{}

	mu         sync.Mutex
	seq        uint64
	termErr    error
	sendClosed bool
	aborted    bool
}

// Send queues one PCM frame for delivery. It blocks at most the configured
// send timeout when the writer falls behind.
func (l *Link) Send(frame []byte) error {
	if len(frame) == 0 {
		return nil
	}

	l.mu.Lock()
	closed := l.sendClosed
	termErr := l.termErr
	l.mu.Unlock()

	if closed {
		return errors.New("link already closed for sending")
	}
	if termErr != nil {
		return fmt.Errorf("link receive loop failed: %w", termErr)
	}

	copied := append([]byte(nil), frame...)
	timer := time.NewTimer(l.sendTimeout)
	defer timer.Stop()

	select {
	case l.audio <- copied:
		return nil
	case <-l.sendDone:
		return errors.New("link already closed for sending")
	case <-l.recvDone:
		if err := l.Err(); err != nil {
			return err
		}
		return errors.New("link closed")
	case <-timer.C:
		return errors.New("audio send timed out")
	}
}

// Chunks returns the transcript stream. It closes when Deepgram finishes the
// session or the link fails; Err reports the terminal error afterward.
func (l *Link) Chunks() <-chan Chunk {
	return l.chunks
}

// Err reports the terminal link error, nil after a clean shutdown.
func (l *Link) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.termErr
}

// Close finishes the send side, asks Deepgram to flush remaining results,
// and waits for the receive loop to drain or the context to expire.
func (l *Link) Close(ctx context.Context) error {
	l.closeSend()

	select {
	case <-l.recvDone:
	case <-ctx.Done():
		l.Abort()
		return ctx.Err()
	}
	return l.Err()
}

// Abort tears the connection down without waiting for remaining results.
func (l *Link) Abort() {
	l.mu.Lock()
	if l.aborted {
		l.mu.Unlock()
		return
	}
	l.aborted = true
	l.mu.Unlock()

	close(l.abortCh)
	l.closeSend()
	_ = l.conn.Close()
	<-l.recvDone
}

func (l *Link) closeSend() {
	l.mu.Lock()
	if l.sendClosed {
		l.mu.Unlock()
		return
	}
	l.sendClosed = true
	l.mu.Unlock()
	close(l.sendDone)
}

func (l *Link) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.termErr == nil && !l.aborted {
		l.termErr = err
	}
}

// writeLoop forwards queued PCM frames until closeSend signals end-of-audio,
// then drains what is already buffered and asks the server to flush its
// remaining results. The audio channel is never closed; producers blocked in
// Send are released by the sendDone signal instead.
func (l *Link) writeLoop() {
	for {
		select {
		case frame := <-l.audio:
			if err := l.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				l.setErr(fmt.Errorf("send audio frame: %w", err))
				return
			}
		case <-l.sendDone:
			for {
				select {
				case frame := <-l.audio:
					if err := l.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
						l.setErr(fmt.Errorf("send audio frame: %w", err))
						return
					}
				default:
					if err := l.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
						l.setErr(fmt.Errorf("finish audio stream: %w", err))
					}
					return
				}
			}
		}
	}
}

// readLoop receives server messages until the stream ends, stamping each
// transcript with the next sequence number.
func (l *Link) readLoop() {
	defer func() {
		close(l.chunks)
		close(l.recvDone)
		_ = l.conn.Close()
	}()

	for {
		_, payload, err := l.conn.ReadMessage()
		if err != nil {
			l.setErr(fmt.Errorf("read transcription result: %w", err))
			return
		}

		var result listenResult
		if err := json.Unmarshal(payload, &result); err != nil {
			continue
		}

		switch {
		case strings.EqualFold(result.Type, "Metadata"):
			// Sent after CloseStream once all results have been flushed.
			return
		case strings.EqualFold(result.Type, "Error"):
			message := strings.TrimSpace(result.Message)
			if message == "" {
				message = "deepgram reported an unspecified error"
			}
			l.setErr(errors.New(message))
			return
		}

		text := strings.TrimSpace(result.transcript())
		if text == "" {
			continue
		}

		l.mu.Lock()
		l.seq++
		chunk := Chunk{Text: text, Seq: l.seq, Final: result.SpeechFinal}
		l.mu.Unlock()

		select {
		case l.chunks <- chunk:
		case <-l.abortCh:
			return
		}
	}
}

type listenResult struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (r listenResult) transcript() string {
	if len(r.Channel.Alternatives) == 0 {
		return ""
	}
	return r.Channel.Alternatives[0].Transcript
}

// buildListenURL converts the HTTP base URL to its websocket form and encodes
// the fixed recognition parameters.
func buildListenURL(cfg Config) (string, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid deepgram base url: %w", err)
	}

	query := listenURL.Query()
	query.Set("model", cfg.Model)
	query.Set("encoding", "linear16")
	query.Set("sample_rate", "16000")
	query.Set("channels", "1")
	query.Set("interim_results", "false")
	query.Set("smart_format", strconv.FormatBool(cfg.SmartFormat))
	if cfg.EndpointingMS > 0 {
		query.Set("endpointing", strconv.Itoa(cfg.EndpointingMS))
	}
	if cfg.Language != "" {
		query.Set("language", cfg.Language)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
