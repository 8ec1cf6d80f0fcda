package stt

import (
	"context"
	"sync"

	"github.com/teslashibe/voicecore/pkg/session"
)

// Mock is a scripted Recognizer. Each Start consumes the next script; a
// run emits its levels and transcripts, then waits for Stop or ctx.
type Mock struct {
	// StartErr fails every Start.
	StartErr error

	mu      sync.Mutex
	scripts []MockRun
	starts  int
	stops   int
	stop    chan struct{}
}

// MockRun is the output of one recognition run.
type MockRun struct {
	Levels      []float64
	Transcripts []session.Transcript
}

// NewMock creates a recognizer that plays runs in order.
func NewMock(runs ...MockRun) *Mock {
	return &Mock{scripts: runs}
}

// Utterance builds a run of interim transcripts ending in a final one.
func Utterance(partials []string, final string) MockRun {
	run := MockRun{}
	for _, p := range partials {
		run.Transcripts = append(run.Transcripts, session.Transcript{Text: p, Role: session.RoleUser})
	}
	run.Transcripts = append(run.Transcripts, session.Transcript{Text: final, IsFinal: true, Role: session.RoleUser})
	return run
}

// Start emits the next scripted run. With no scripts left the run stays
// silent until stopped.
func (m *Mock) Start(ctx context.Context) (<-chan session.Transcript, <-chan float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.starts++
	if m.StartErr != nil {
		return nil, nil, m.StartErr
	}

	var run MockRun
	if len(m.scripts) > 0 {
		run = m.scripts[0]
		m.scripts = m.scripts[1:]
	}

	stop := make(chan struct{})
	m.stop = stop
	transcripts := make(chan session.Transcript)
	levels := make(chan float64, len(run.Levels))
	for _, l := range run.Levels {
		levels <- l
	}

	go func() {
		defer close(transcripts)
		defer close(levels)
		for _, t := range run.Transcripts {
			select {
			case transcripts <- t:
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
		select {
		case <-stop:
		case <-ctx.Done():
		}
	}()
	return transcripts, levels, nil
}

// Stop ends the current run.
func (m *Mock) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	if m.stop == nil {
		return ErrNotStarted
	}
	close(m.stop)
	m.stop = nil
	return nil
}

// Starts returns the number of Start calls.
func (m *Mock) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// Stops returns the number of Stop calls.
func (m *Mock) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

var _ Recognizer = (*Mock)(nil)
