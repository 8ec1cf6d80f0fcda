package voice

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/teslashibe/voicecore/pkg/session"
)

const scopeName = "github.com/teslashibe/voicecore/pkg/voice"

var tracer = otel.Tracer(scopeName)

// Common errors returned by pipelines.
var (
	ErrAlreadyStarted = errors.New("voice: pipeline already started")
	ErrStopped        = errors.New("voice: pipeline stopped")
	ErrMissingDep     = errors.New("voice: missing dependency")
)

// errInterrupted is the cancel cause of a reply cut short by Interrupt.
var errInterrupted = errors.New("voice: interrupted")

// AudioSession configures the audio hardware around each stage.
// *audiosession.Manager satisfies it.
type AudioSession interface {
	ConfigureForListening(ctx context.Context) error
	ConfigureForSpeaking(ctx context.Context) error
	Deactivate() error
}

type noAudioSession struct{}

func (noAudioSession) ConfigureForListening(context.Context) error { return nil }
func (noAudioSession) ConfigureForSpeaking(context.Context) error  { return nil }
func (noAudioSession) Deactivate() error                           { return nil }

// lifecycle holds the start/stop bookkeeping shared by both pipelines.
// Callers hold their own mutex around it.
type lifecycle struct {
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// running reports whether a loop started by begin has not yet exited.
func (l *lifecycle) running() bool {
	if l.done == nil {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

func (l *lifecycle) begin(ctx context.Context) (context.Context, chan struct{}, error) {
	if l.stopped {
		return nil, nil, ErrStopped
	}
	if l.running() {
		return nil, nil, ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	return runCtx, l.done, nil
}

// end marks the lifecycle stopped and returns what Stop must wait on.
func (l *lifecycle) end() (context.CancelFunc, chan struct{}, bool) {
	if l.stopped {
		return nil, nil, false
	}
	l.stopped = true
	return l.cancel, l.done, true
}

func logger(l *slog.Logger, component string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With("component", component)
}

var (
	_ session.Session = (*TurnPipeline)(nil)
	_ session.Session = (*RealtimePipeline)(nil)
)
