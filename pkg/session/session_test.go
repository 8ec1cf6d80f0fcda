package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/voicecore/pkg/backend"
)

func TestState(t *testing.T) {
	tests := []struct {
		state  State
		active bool
		str    string
	}{
		{Idle, false, "idle"},
		{Listening, true, "listening"},
		{Processing, true, "processing"},
		{Speaking, true, "speaking"},
		{Failed("socket closed"), false, "error(socket closed)"},
	}
	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			assert.Equal(t, tt.active, tt.state.IsActive())
			assert.Equal(t, tt.str, tt.state.String())
		})
	}
	assert.True(t, Failed("x").IsError())
}

func TestStreams_TransitionsInOrder(t *testing.T) {
	s := NewStreams("test", nil)
	ch := s.States()

	s.SetState(Listening)
	s.SetState(Listening) // no-op
	s.SetState(Processing)
	s.SetState(Speaking)
	s.SetState(Listening)
	s.SetState(Failed("boom"))
	s.Close()

	var got []State
	for st := range ch {
		got = append(got, st)
	}
	assert.Equal(t, []State{Listening, Processing, Speaking, Listening, Failed("boom")}, got)
	assert.Equal(t, Failed("boom"), s.State())
}

func TestStreams_LevelsClamped(t *testing.T) {
	s := NewStreams("test", nil)
	ch := s.Levels()
	s.EmitLevel(-0.5)
	s.EmitLevel(0.25)
	s.EmitLevel(3)

	assert.Equal(t, 0.0, <-ch)
	assert.Equal(t, 0.25, <-ch)
	assert.Equal(t, 1.0, <-ch)
}

func TestBroadcaster_LosslessDropsSlowSubscriber(t *testing.T) {
	b := NewBroadcaster[int]("test", 2, false, nil)
	slow := b.Subscribe()

	b.Publish(1)
	b.Publish(2)
	b.Publish(3) // overflows, subscriber dropped

	assert.Equal(t, 0, b.Len())
	var got []int
	for v := range slow {
		got = append(got, v)
	}
	assert.Equal(t, []int{1, 2}, got)
}

func TestBroadcaster_LossySkips(t *testing.T) {
	b := NewBroadcaster[int]("test", 1, true, nil)
	ch := b.Subscribe()

	b.Publish(1)
	b.Publish(2) // skipped

	assert.Equal(t, 1, b.Len())
	assert.Equal(t, 1, <-ch)

	b.Publish(3)
	assert.Equal(t, 3, <-ch)
}

func TestBroadcaster_SubscribeAfterClose(t *testing.T) {
	b := NewBroadcaster[string]("test", 1, false, nil)
	b.Close()
	b.Close()
	_, ok := <-b.Subscribe()
	assert.False(t, ok)
	b.Publish("ignored")
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewBroadcaster[int]("test", 1, false, nil)
	ch := b.Subscribe()
	b.Unsubscribe(ch)
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, b.Len())
}

func TestOnce_ResolvesExactlyOnce(t *testing.T) {
	o := NewOnce[string]()
	assert.False(t, o.Resolved())
	assert.True(t, o.Resolve("first"))
	assert.False(t, o.Resolve("second"))

	v, err := o.Wait(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "first", v)
}

func TestOnce_ConcurrentResolve(t *testing.T) {
	o := NewOnce[int]()
	var wg sync.WaitGroup
	wins := make(chan int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if o.Resolve(i) {
				wins <- i
			}
		}(i)
	}
	wg.Wait()
	close(wins)
	assert.Len(t, wins, 1)
}

func TestOnce_WatchdogFires(t *testing.T) {
	o := NewOnce[struct{}]()
	start := time.Now()
	_, err := o.Wait(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimedOut)
	assert.Less(t, time.Since(start), time.Second)

	// a late callback is ignored
	assert.False(t, o.Resolve(struct{}{}))
}

func TestOnce_Cancelled(t *testing.T) {
	o := NewOnce[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.Wait(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, o.Resolved())
}

type stubSession struct {
	*Streams
	mu      sync.Mutex
	stopped int
}

func newStub() *stubSession { return &stubSession{Streams: NewStreams("stub", nil)} }

func (s *stubSession) Start(context.Context, string) error { return nil }
func (s *stubSession) Interrupt()                          {}
func (s *stubSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped++
	return nil
}
func (s *stubSession) stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

var _ Session = (*stubSession)(nil)

func TestRegistry_ClaimStopsPrevious(t *testing.T) {
	r := NewRegistry(nil)
	a, b := newStub(), newStub()

	r.Claim(backend.SurfacePhone, a)
	r.Claim(backend.SurfacePhone, a) // same session: not stopped
	assert.Equal(t, 0, a.stops())

	r.Claim(backend.SurfacePhone, b)
	assert.Equal(t, 1, a.stops())

	active, ok := r.Active(backend.SurfacePhone)
	require.True(t, ok)
	assert.Same(t, b, active)
}

func TestRegistry_SurfacesIndependent(t *testing.T) {
	r := NewRegistry(nil)
	phone, car := newStub(), newStub()
	r.Claim(backend.SurfacePhone, phone)
	r.Claim(backend.SurfaceHeadUnit, car)
	assert.Equal(t, 0, phone.stops())

	r.StopAll()
	assert.Equal(t, 1, phone.stops())
	assert.Equal(t, 1, car.stops())
	_, ok := r.Active(backend.SurfacePhone)
	assert.False(t, ok)
}

func TestRegistry_ReleaseOnlyOwner(t *testing.T) {
	r := NewRegistry(nil)
	a, b := newStub(), newStub()
	r.Claim(backend.SurfacePhone, a)
	r.Claim(backend.SurfacePhone, b)

	r.Release(backend.SurfacePhone, a) // stale owner, ignored
	_, ok := r.Active(backend.SurfacePhone)
	assert.True(t, ok)

	r.Release(backend.SurfacePhone, b)
	_, ok = r.Active(backend.SurfacePhone)
	assert.False(t, ok)
}
