package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned after the connection has been closed locally.
var ErrClosed = errors.New("realtime: connection closed")

// Conn is a live duplex connection.
type Conn interface {
	// Send writes one client event. Safe for concurrent use.
	Send(ctx context.Context, event any) error

	// Receive blocks for the next server event. Any error is terminal.
	Receive(ctx context.Context) (ServerEvent, error)

	Close() error
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// WSDialer dials the realtime endpoint over WebSocket.
type WSDialer struct {
	config *Config
	logger *slog.Logger
}

// NewDialer creates a WebSocket dialer.
func NewDialer(opts ...Option) (*WSDialer, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WSDialer{config: cfg, logger: cfg.Logger.With("component", "realtime.ws")}, nil
}

// Endpoint returns the URL dialed, including the model query.
func (d *WSDialer) Endpoint() string {
	u, err := url.Parse(d.config.URL)
	if err != nil {
		return d.config.URL
	}
	if d.config.Model != "" {
		q := u.Query()
		q.Set("model", d.config.Model)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Dial connects and starts the keepalive pinger.
func (d *WSDialer) Dial(ctx context.Context) (Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+d.config.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")
	for k, v := range d.config.Header {
		header[k] = v
	}

	dialer := websocket.Dialer{HandshakeTimeout: d.config.HandshakeTimeout}
	ws, resp, err := dialer.DialContext(ctx, d.Endpoint(), header)
	if err != nil {
		if resp != nil {
			return nil, &HandshakeError{StatusCode: resp.StatusCode, Err: err}
		}
		return nil, fmt.Errorf("dial realtime: %w", err)
	}

	c := &wsConn{
		ws:          ws,
		readTimeout: d.config.ReadTimeout,
		logger:      d.logger,
		done:        make(chan struct{}),
	}
	ws.SetPingHandler(func(data string) error {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})
	// A quiet peer that answers pings is still alive.
	ws.SetPongHandler(func(string) error {
		if c.readTimeout > 0 {
			return ws.SetReadDeadline(time.Now().Add(c.readTimeout))
		}
		return nil
	})
	if d.config.PingInterval > 0 {
		go c.keepAlive(d.config.PingInterval)
	}

	d.logger.Info("connected", "model", d.config.Model)
	return c, nil
}

// HandshakeError is a rejected WebSocket upgrade.
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("realtime handshake failed with status %d: %v", e.StatusCode, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// HTTPStatus exposes the status for error classification.
func (e *HandshakeError) HTTPStatus() int { return e.StatusCode }

type wsConn struct {
	ws          *websocket.Conn
	readTimeout time.Duration
	logger      *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func (c *wsConn) Send(ctx context.Context, event any) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.ws.SetWriteDeadline(deadline)
	} else {
		_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	}
	return c.ws.WriteJSON(event)
}

func (c *wsConn) Receive(ctx context.Context) (ServerEvent, error) {
	// Unblock ReadMessage when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	for {
		if c.readTimeout > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))
		}
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				if ctx.Err() != nil {
					return ServerEvent{}, ctx.Err()
				}
				return ServerEvent{}, ErrClosed
			default:
			}
			return ServerEvent{}, fmt.Errorf("read realtime event: %w", err)
		}

		var ev ServerEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Debug("skipping malformed event", "error", err)
			continue
		}
		return ev, nil
	}
}

func (c *wsConn) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
