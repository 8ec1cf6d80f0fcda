package session

import (
	"log/slog"
	"sync"

	"github.com/teslashibe/voicecore/pkg/metrics"
)

const (
	stateBuffer      = 64
	transcriptBuffer = 256
	levelBuffer      = 16
)

// Streams bundles the state machine with the transcript and level
// broadcasters. Pipelines embed it to satisfy the stream half of Session.
type Streams struct {
	pipeline string
	logger   *slog.Logger

	mu    sync.RWMutex
	state State

	states      *Broadcaster[State]
	transcripts *Broadcaster[Transcript]
	levels      *Broadcaster[float64]
}

// NewStreams creates streams for the named pipeline in the idle state.
func NewStreams(pipeline string, logger *slog.Logger) *Streams {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Streams{
		pipeline:    pipeline,
		logger:      logger,
		state:       Idle,
		states:      NewBroadcaster[State]("state", stateBuffer, false, logger),
		transcripts: NewBroadcaster[Transcript]("transcript", transcriptBuffer, false, logger),
		levels:      NewBroadcaster[float64]("level", levelBuffer, true, logger),
	}
	return s
}

// State returns the current state.
func (s *Streams) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetState records and publishes a transition. Re-entering the current
// state is a no-op. Transitions are published under the lock so
// subscribers observe them in call order.
func (s *Streams) SetState(next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == next {
		return
	}
	prev := s.state
	s.state = next
	s.states.Publish(next)
	metrics.StateTransitions.WithLabelValues(s.pipeline, string(next.Phase)).Inc()
	s.logger.Debug("state", "from", prev.String(), "to", next.String())
}

// EmitTranscript publishes a transcript.
func (s *Streams) EmitTranscript(t Transcript) {
	s.transcripts.Publish(t)
}

// EmitLevel publishes a level, clamped to 0..1.
func (s *Streams) EmitLevel(level float64) {
	switch {
	case level < 0:
		level = 0
	case level > 1:
		level = 1
	}
	s.levels.Publish(level)
}

// States subscribes to state transitions. Each call returns a new
// subscription that sees transitions from that point on.
func (s *Streams) States() <-chan State { return s.states.Subscribe() }

// Transcripts subscribes to transcripts.
func (s *Streams) Transcripts() <-chan Transcript { return s.transcripts.Subscribe() }

// Levels subscribes to input levels.
func (s *Streams) Levels() <-chan float64 { return s.levels.Subscribe() }

// Close closes every stream.
func (s *Streams) Close() {
	s.states.Close()
	s.transcripts.Close()
	s.levels.Close()
}
