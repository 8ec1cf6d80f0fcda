package inference

import (
	"context"
	"sync"
	"time"
)

// Mock implements Model for testing.
type Mock struct {
	// StreamFunc overrides the scripted reply when set.
	StreamFunc func(ctx context.Context, history []Message) (Stream, error)

	// ValidateFunc is called when ValidateCredential is invoked.
	ValidateFunc func(ctx context.Context) bool

	// Fragments are streamed in order by the default StreamReply.
	Fragments []string

	// FailAfter, when positive with Err set, fails the stream after that
	// many fragments. With FailAfter zero, Err fails StreamReply itself.
	FailAfter int
	Err       error

	// Delay is slept before each fragment; honors ctx.
	Delay time.Duration

	mu        sync.Mutex
	calls     []MockCall
	histories [][]Message
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Time   time.Time
}

// NewMock creates a mock that replies with the given fragments.
func NewMock(fragments ...string) *Mock {
	return &Mock{Fragments: fragments}
}

// WithError returns a mock whose StreamReply always fails with err.
func WithError(err error) *Mock {
	return &Mock{Err: err}
}

// StreamReply records history and returns the scripted stream.
func (m *Mock) StreamReply(ctx context.Context, history []Message) (Stream, error) {
	m.record("StreamReply")
	m.mu.Lock()
	m.histories = append(m.histories, append([]Message(nil), history...))
	m.mu.Unlock()

	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, history)
	}
	if m.Err != nil && m.FailAfter <= 0 {
		return nil, m.Err
	}
	return &mockStream{
		ctx:       ctx,
		fragments: m.Fragments,
		failAfter: m.FailAfter,
		err:       m.Err,
		delay:     m.Delay,
	}, nil
}

// ValidateCredential calls ValidateFunc, defaulting to true.
func (m *Mock) ValidateCredential(ctx context.Context) bool {
	m.record("ValidateCredential")
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx)
	}
	return true
}

// Histories returns copies of every history passed to StreamReply.
func (m *Mock) Histories() [][]Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]Message, len(m.histories))
	copy(out, m.histories)
	return out
}

// record adds a call to the tracking list.
func (m *Mock) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{
		Method: method,
		Time:   time.Now(),
	})
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.histories = nil
}

// mockStream replays fragments, then reports done.
type mockStream struct {
	ctx       context.Context
	fragments []string
	failAfter int
	err       error
	delay     time.Duration

	mu     sync.Mutex
	pos    int
	closed bool
}

func (s *mockStream) Recv() (*StreamChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStreamClosed
	}
	if s.err != nil && s.failAfter > 0 && s.pos >= s.failAfter {
		return nil, s.err
	}
	if s.pos >= len(s.fragments) {
		return &StreamChunk{FinishReason: "stop", Done: true}, nil
	}
	if s.delay > 0 {
		select {
		case <-s.ctx.Done():
			return nil, s.ctx.Err()
		case <-time.After(s.delay):
		}
	}
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}

	chunk := &StreamChunk{Delta: s.fragments[s.pos]}
	s.pos++
	return chunk, nil
}

func (s *mockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Verify Mock implements Model at compile time.
var _ Model = (*Mock)(nil)
