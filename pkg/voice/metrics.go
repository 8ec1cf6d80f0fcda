package voice

import (
	"sync"
	"time"

	"github.com/teslashibe/voicecore/pkg/metrics"
)

// Metrics tracks latency at each stage of one turn. All durations are
// measured from the moment user speech ends.
type Metrics struct {
	SpeechEndTime    time.Time `json:"speech_end_time"`
	FirstTokenTime   time.Time `json:"first_token_time"`
	FirstAudioTime   time.Time `json:"first_audio_time"`
	ResponseDoneTime time.Time `json:"response_done_time"`

	FirstToken time.Duration `json:"first_token"`
	FirstAudio time.Duration `json:"first_audio"`
	Total      time.Duration `json:"total"`

	AudioChunksIn  int `json:"audio_chunks_in"`
	AudioChunksOut int `json:"audio_chunks_out"`
}

const historySize = 100

// latencyTracker collects per-turn Metrics and exports them to the
// turn stage histogram. It is goroutine-safe.
type latencyTracker struct {
	pipeline string

	mu      sync.Mutex
	current Metrics
	history []Metrics
}

func newLatencyTracker(pipeline string) *latencyTracker {
	return &latencyTracker{pipeline: pipeline, history: make([]Metrics, 0, historySize)}
}

// markSpeechEnd starts a new turn.
func (m *latencyTracker) markSpeechEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = Metrics{SpeechEndTime: time.Now()}
}

func (m *latencyTracker) markFirstToken() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.current.FirstTokenTime.IsZero() || m.current.SpeechEndTime.IsZero() {
		return
	}
	m.current.FirstTokenTime = time.Now()
	m.current.FirstToken = m.current.FirstTokenTime.Sub(m.current.SpeechEndTime)
	metrics.TurnLatency.WithLabelValues(m.pipeline, "first_token").Observe(m.current.FirstToken.Seconds())
}

func (m *latencyTracker) markFirstAudio() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.current.FirstAudioTime.IsZero() || m.current.SpeechEndTime.IsZero() {
		return
	}
	m.current.FirstAudioTime = time.Now()
	m.current.FirstAudio = m.current.FirstAudioTime.Sub(m.current.SpeechEndTime)
	metrics.TurnLatency.WithLabelValues(m.pipeline, "first_audio").Observe(m.current.FirstAudio.Seconds())
}

// markResponseDone closes the turn and archives it.
func (m *latencyTracker) markResponseDone() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.SpeechEndTime.IsZero() || !m.current.ResponseDoneTime.IsZero() {
		return
	}
	m.current.ResponseDoneTime = time.Now()
	m.current.Total = m.current.ResponseDoneTime.Sub(m.current.SpeechEndTime)
	metrics.TurnLatency.WithLabelValues(m.pipeline, "turn").Observe(m.current.Total.Seconds())

	m.history = append(m.history, m.current)
	if len(m.history) > historySize {
		m.history = m.history[1:]
	}
}

func (m *latencyTracker) audioIn() {
	m.mu.Lock()
	m.current.AudioChunksIn++
	m.mu.Unlock()
}

func (m *latencyTracker) audioOut() {
	m.mu.Lock()
	m.current.AudioChunksOut++
	m.mu.Unlock()
}

// snapshot returns the current turn.
func (m *latencyTracker) snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// average returns mean latencies over recent completed turns.
func (m *latencyTracker) average() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.history) == 0 {
		return Metrics{}
	}
	var avg Metrics
	for _, h := range m.history {
		avg.FirstToken += h.FirstToken
		avg.FirstAudio += h.FirstAudio
		avg.Total += h.Total
	}
	n := time.Duration(len(m.history))
	avg.FirstToken /= n
	avg.FirstAudio /= n
	avg.Total /= n
	return avg
}

// FormatLatency returns a one-line latency summary.
func (m Metrics) FormatLatency() string {
	return formatDuration(m.FirstToken) + " first token | " +
		formatDuration(m.FirstAudio) + " first audio | " +
		formatDuration(m.Total) + " total"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}
