package tts

import (
	"context"
	"sync"
	"time"
)

// Mock implements Provider for testing.
type Mock struct {
	// SynthesizeFunc is called when Synthesize is invoked.
	// If nil, returns silent audio of appropriate length.
	SynthesizeFunc func(ctx context.Context, text string) (*AudioResult, error)

	// Tracking
	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation for verification.
type MockCall struct {
	Method string
	Text   string
	Time   time.Time
}

// NewMock creates a new mock provider that returns silence.
func NewMock() *Mock {
	return &Mock{
		SynthesizeFunc: func(ctx context.Context, text string) (*AudioResult, error) {
			// ~20ms per character at 24kHz PCM16
			silence := make([]byte, len(text)*960)
			format := PCMFormat(EncodingPCM24)
			return &AudioResult{
				Audio:     silence,
				Format:    format,
				CharCount: len(text),
				LatencyMs: 10,
				Duration:  pcmDuration(len(silence), format.SampleRate),
			}, nil
		},
	}
}

// NewMockWithError creates a mock whose Synthesize always fails.
func NewMockWithError(err error) *Mock {
	return &Mock{
		SynthesizeFunc: func(ctx context.Context, text string) (*AudioResult, error) {
			return nil, err
		},
	}
}

// Name returns "mock".
func (m *Mock) Name() string { return "mock" }

// Synthesize calls SynthesizeFunc and records the call.
func (m *Mock) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	m.recordCall("Synthesize", text)
	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, text)
	}
	return nil, WrapError("mock", ErrEmptyAudio)
}

func (m *Mock) recordCall(method, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{
		Method: method,
		Text:   text,
		Time:   time.Now(),
	})
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of calls to a specific method.
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

// MockEngine is a scriptable Engine. By default it completes immediately.
type MockEngine struct {
	// Hang leaves every utterance uncompleted.
	Hang bool

	// Delay postpones completion.
	Delay time.Duration

	// StartErr fails Speak synchronously.
	StartErr error

	mu    sync.Mutex
	texts []string
	stops int
}

// Name returns "mock".
func (e *MockEngine) Name() string { return "mock" }

// Speak records text and schedules completion.
func (e *MockEngine) Speak(text, voice string, done func(error)) error {
	e.mu.Lock()
	e.texts = append(e.texts, text)
	e.mu.Unlock()

	if e.StartErr != nil {
		return e.StartErr
	}
	if e.Hang {
		return nil
	}
	go func() {
		if e.Delay > 0 {
			time.Sleep(e.Delay)
		}
		done(nil)
	}()
	return nil
}

// Stop counts stop requests.
func (e *MockEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stops++
	return nil
}

// Texts returns everything spoken, in order.
func (e *MockEngine) Texts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.texts...)
}

// Stops returns the number of Stop calls.
func (e *MockEngine) Stops() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stops
}

// MockSpeaker is a Speaker that records text.
type MockSpeaker struct {
	// SpeakFunc overrides the default no-op behaviour.
	SpeakFunc func(ctx context.Context, text string) error

	mu       sync.Mutex
	texts    []string
	stops    int
	speaking bool
}

// Speak records text.
func (s *MockSpeaker) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.speaking = true
	fn := s.SpeakFunc
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.speaking = false
		s.mu.Unlock()
	}()
	if fn != nil {
		return fn(ctx, text)
	}
	return ctx.Err()
}

// Stop counts stop requests.
func (s *MockSpeaker) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return nil
}

// IsSpeaking reports whether Speak is running.
func (s *MockSpeaker) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Texts returns every spoken text, in order.
func (s *MockSpeaker) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

// Stops returns the number of Stop calls.
func (s *MockSpeaker) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

var (
	_ Provider = (*Mock)(nil)
	_ Engine   = (*MockEngine)(nil)
	_ Speaker  = (*MockSpeaker)(nil)
)
