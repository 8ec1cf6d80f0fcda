package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/voicecore/pkg/audioio"
	"github.com/teslashibe/voicecore/pkg/session"
)

// DefaultDeepgramURL is the streaming listen endpoint.
const DefaultDeepgramURL = "wss://api.deepgram.com/v1/listen"

// DeepgramConfig configures the Deepgram recognizer.
type DeepgramConfig struct {
	APIKey      string
	URL         string
	Model       string
	Language    string
	Endpointing time.Duration
	KeepAlive   time.Duration
	Logger      *slog.Logger
}

// DefaultDeepgramConfig returns nova-3 English with 300ms endpointing.
func DefaultDeepgramConfig() DeepgramConfig {
	return DeepgramConfig{
		URL:         DefaultDeepgramURL,
		Model:       "nova-3",
		Language:    "en-US",
		Endpointing: 300 * time.Millisecond,
		KeepAlive:   5 * time.Second,
		Logger:      slog.Default(),
	}
}

// Deepgram recognizes speech captured from an audio source over the
// Deepgram streaming socket. Audio is sent as 16kHz mono linear16.
type Deepgram struct {
	cfg    DeepgramConfig
	source audioio.Source
	dialer *websocket.Dialer
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDeepgram creates a recognizer reading from source.
func NewDeepgram(cfg DeepgramConfig, source audioio.Source) (*Deepgram, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("stt: deepgram API key required")
	}
	def := DefaultDeepgramConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Language == "" {
		cfg.Language = def.Language
	}
	if cfg.Endpointing == 0 {
		cfg.Endpointing = def.Endpointing
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = def.KeepAlive
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	return &Deepgram{
		cfg:    cfg,
		source: source,
		dialer: websocket.DefaultDialer,
		logger: cfg.Logger.With("component", "stt.deepgram"),
	}, nil
}

// Endpoint returns the listen URL with query parameters.
func (d *Deepgram) Endpoint() string {
	u, err := url.Parse(d.cfg.URL)
	if err != nil {
		return d.cfg.URL
	}
	q := u.Query()
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(audioio.RecognizerSampleRate))
	q.Set("channels", "1")
	q.Set("model", d.cfg.Model)
	q.Set("language", d.cfg.Language)
	q.Set("smart_format", "true")
	q.Set("interim_results", "true")
	q.Set("endpointing", strconv.FormatInt(d.cfg.Endpointing.Milliseconds(), 10))
	q.Set("utterance_end_ms", "1000")
	q.Set("vad_events", "true")
	u.RawQuery = q.Encode()
	return u.String()
}

// Start dials Deepgram and begins streaming captured audio.
func (d *Deepgram) Start(ctx context.Context) (<-chan session.Transcript, <-chan float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		return nil, nil, errors.New("stt: already started")
	}

	conn, resp, err := d.dialer.DialContext(ctx, d.Endpoint(),
		http.Header{"Authorization": {"Token " + d.cfg.APIKey}})
	if err != nil {
		if resp != nil {
			return nil, nil, &HandshakeError{StatusCode: resp.StatusCode, Err: err}
		}
		return nil, nil, fmt.Errorf("stt: dial deepgram: %w", err)
	}

	if err := d.source.Start(ctx); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("stt: start capture: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.conn = conn
	d.cancel = cancel

	transcripts := make(chan session.Transcript, 16)
	levels := make(chan float64, 16)

	d.wg.Add(3)
	go d.sendLoop(runCtx, conn, levels)
	go d.keepAlive(runCtx, conn)
	go d.readLoop(runCtx, cancel, conn, transcripts)

	go func() {
		d.wg.Wait()
		close(levels)
	}()

	d.logger.Debug("recognition started")
	return transcripts, levels, nil
}

// Stop ends the current run. The socket is asked to flush first.
func (d *Deepgram) Stop() error {
	d.mu.Lock()
	conn, cancel := d.conn, d.cancel
	d.conn, d.cancel = nil, nil
	d.mu.Unlock()

	if conn == nil {
		return ErrNotStarted
	}

	_ = d.writeJSON(conn, map[string]string{"type": string(api.TypeCloseStreamResponse)})
	cancel()
	err := d.source.Stop()
	_ = conn.Close()
	d.wg.Wait()
	d.logger.Debug("recognition stopped")
	return err
}

func (d *Deepgram) writeJSON(conn *websocket.Conn, v any) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func (d *Deepgram) sendLoop(ctx context.Context, conn *websocket.Conn, levels chan<- float64) {
	defer d.wg.Done()
	stream := d.source.Stream()
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-stream:
			if !ok {
				return
			}
			mono := audioio.Convert(chunk, audioio.RecognizerSampleRate)
			select {
			case levels <- audioio.Level(mono.Samples):
			default:
			}

			d.writeMu.Lock()
			err := conn.WriteMessage(websocket.BinaryMessage, mono.Bytes())
			d.writeMu.Unlock()
			if err != nil {
				if ctx.Err() == nil {
					d.logger.Warn("send audio failed", "error", err)
				}
				return
			}
		}
	}
}

func (d *Deepgram) keepAlive(ctx context.Context, conn *websocket.Conn) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.cfg.KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.writeJSON(conn, map[string]string{"type": "KeepAlive"}); err != nil {
				return
			}
		}
	}
}

func (d *Deepgram) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out chan<- session.Transcript) {
	defer d.wg.Done()
	defer close(out)
	defer cancel()

	var acc utterance
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				d.logger.Warn("read failed", "error", err)
			}
			return
		}
		if msgType == websocket.BinaryMessage {
			continue
		}
		for _, t := range acc.process(msg, d.logger) {
			select {
			case out <- t:
			case <-ctx.Done():
				return
			}
		}
	}
}

// utterance accumulates finalized segments until Deepgram signals the end
// of speech.
type utterance struct {
	finals  []string
	pending bool
}

func (u *utterance) process(msg []byte, logger *slog.Logger) []session.Transcript {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &head); err != nil {
		logger.Debug("malformed message", "error", err)
		return nil
	}

	switch api.TypeResponse(head.Type) {
	case api.TypeMessageResponse:
		var resp api.MessageResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			logger.Debug("malformed transcript", "error", err)
			return nil
		}
		text := ""
		if len(resp.Channel.Alternatives) > 0 {
			text = strings.TrimSpace(resp.Channel.Alternatives[0].Transcript)
		}

		var out []session.Transcript
		if resp.IsFinal {
			if text != "" {
				u.finals = append(u.finals, text)
				u.pending = true
				out = append(out, u.transcript(false))
			}
			if resp.SpeechFinal {
				out = append(out, u.flush()...)
			}
			return out
		}
		if text == "" {
			return nil
		}
		partial := strings.TrimSpace(strings.Join(append(append([]string(nil), u.finals...), text), " "))
		return []session.Transcript{{Text: partial, Role: session.RoleUser}}

	case api.TypeUtteranceEndResponse:
		return u.flush()
	}
	return nil
}

func (u *utterance) transcript(final bool) session.Transcript {
	return session.Transcript{
		Text:    strings.Join(u.finals, " "),
		IsFinal: final,
		Role:    session.RoleUser,
	}
}

func (u *utterance) flush() []session.Transcript {
	if !u.pending {
		return nil
	}
	t := u.transcript(true)
	u.finals = nil
	u.pending = false
	return []session.Transcript{t}
}

// HandshakeError reports a rejected socket upgrade.
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("stt: deepgram handshake failed (%d): %v", e.StatusCode, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// HTTPStatus returns the upgrade response status.
func (e *HandshakeError) HTTPStatus() int { return e.StatusCode }

var _ Recognizer = (*Deepgram)(nil)
