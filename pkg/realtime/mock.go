package realtime

import (
	"context"
	"encoding/json"
	"sync"
)

// MockConn is an in-memory Conn for tests. Push feeds server events,
// Fail makes the next Receive return an error and FailSend makes every
// later Send return one.
type MockConn struct {
	inbound chan ServerEvent
	failCh  chan error

	mu      sync.Mutex
	sent    []any
	sendErr error
	closed  bool
	done    chan struct{}
}

// NewMockConn creates a connected mock.
func NewMockConn() *MockConn {
	return &MockConn{
		inbound: make(chan ServerEvent, 64),
		failCh:  make(chan error, 1),
		done:    make(chan struct{}),
	}
}

// Push queues a server event.
func (m *MockConn) Push(ev ServerEvent) {
	m.inbound <- ev
}

// Fail makes Receive return err.
func (m *MockConn) Fail(err error) {
	m.failCh <- err
}

// FailSend makes Send return err until the connection is closed.
func (m *MockConn) FailSend(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

func (m *MockConn) Send(ctx context.Context, event any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, event)
	return nil
}

func (m *MockConn) Receive(ctx context.Context) (ServerEvent, error) {
	// drain queued events before reporting a failure
	select {
	case ev := <-m.inbound:
		return ev, nil
	default:
	}
	select {
	case ev := <-m.inbound:
		return ev, nil
	case err := <-m.failCh:
		return ServerEvent{}, err
	case <-m.done:
		return ServerEvent{}, ErrClosed
	case <-ctx.Done():
		return ServerEvent{}, ctx.Err()
	}
}

func (m *MockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

// Closed reports whether Close was called.
func (m *MockConn) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// SentTypes returns the "type" field of every sent event, in order.
func (m *MockConn) SentTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.sent))
	for _, ev := range m.sent {
		data, _ := json.Marshal(ev)
		var head struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(data, &head)
		types = append(types, head.Type)
	}
	return types
}

// Sent returns every sent event.
func (m *MockConn) Sent() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.sent...)
}

// MockDialer hands out a fixed connection, or fails with Err.
type MockDialer struct {
	Conn *MockConn
	Err  error

	mu    sync.Mutex
	dials int
}

func (d *MockDialer) Dial(ctx context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Conn, nil
}

// Dials returns how many times Dial was called.
func (d *MockDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

var (
	_ Conn   = (*MockConn)(nil)
	_ Dialer = (*MockDialer)(nil)
)
