package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records writes and blocks reads until closed.
type fakeConn struct {
	mu     sync.Mutex
	frames []frame
	closed chan struct{}
	once   sync.Once
	block  chan struct{} // when set, writes wait on it
}

type frame struct {
	kind int
	data string
}

func newFakeConn() *fakeConn { return &fakeConn{closed: make(chan struct{})} }

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, errors.New("closed")
}

func (f *fakeConn) WriteMessage(kind int, data []byte) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame{kind, string(data)})
	return nil
}

func (f *fakeConn) SetReadLimit(int64)                {}
func (f *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeConn) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, fr := range f.frames {
		if fr.kind == websocket.TextMessage {
			out = append(out, fr.data)
		}
	}
	return out
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	require.Eventually(t, h.IsRunning, time.Second, time.Millisecond)
	t.Cleanup(cancel)
	return h, cancel
}

func attach(t *testing.T, h *Hub, conn *fakeConn, initial ...Message) {
	t.Helper()
	c, err := NewClient(h, conn, initial...)
	require.NoError(t, err)
	go c.Run()
}

func TestHub_BroadcastReachesEveryClient(t *testing.T) {
	h, _ := startHub(t)
	a, b := newFakeConn(), newFakeConn()
	attach(t, h, a)
	attach(t, h, b)
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, time.Millisecond)

	require.NoError(t, h.BroadcastJSON(map[string]string{"phase": "listening"}))
	h.Broadcast(NewTextMessage([]byte(`{"phase":"speaking"}`)))

	want := []string{`{"phase":"listening"}`, `{"phase":"speaking"}`}
	for _, conn := range []*fakeConn{a, b} {
		require.Eventually(t, func() bool { return len(conn.texts()) == 2 }, time.Second, time.Millisecond)
		assert.Equal(t, want, conn.texts())
	}
}

func TestHub_InitialFramesFirst(t *testing.T) {
	h, _ := startHub(t)
	conn := newFakeConn()
	attach(t, h, conn, NewTextMessage([]byte(`"snapshot"`)))
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, time.Millisecond)

	h.Broadcast(NewTextMessage([]byte(`"event"`)))
	require.Eventually(t, func() bool { return len(conn.texts()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{`"snapshot"`, `"event"`}, conn.texts())
}

func TestHub_DropsSlowClient(t *testing.T) {
	h, _ := startHub(t)
	slow := newFakeConn()
	slow.block = make(chan struct{})
	attach(t, h, slow)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, time.Millisecond)

	for i := 0; i < sendBuffer+8; i++ {
		h.Broadcast(NewTextMessage([]byte(`1`)))
	}

	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, time.Millisecond)
	assert.Equal(t, int64(1), h.Dropped())
	close(slow.block)
	assert.Eventually(t, slow.isClosed, time.Second, time.Millisecond)
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	h, _ := startHub(t)
	conn := newFakeConn()
	attach(t, h, conn)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, time.Millisecond)

	_ = conn.Close()
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, time.Millisecond)
}

func TestHub_StopClosesClients(t *testing.T) {
	h, cancel := startHub(t)
	conn := newFakeConn()
	attach(t, h, conn)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, time.Millisecond)

	cancel()
	require.Eventually(t, conn.isClosed, time.Second, time.Millisecond)
	assert.False(t, h.IsRunning())

	_, err := NewClient(h, newFakeConn())
	assert.ErrorIs(t, err, ErrHubStopped)
}
