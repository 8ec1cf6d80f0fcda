package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/voicecore/pkg/metrics"
	"github.com/teslashibe/voicecore/pkg/session"
)

// Engine is a callback-style on-device synthesizer. Speak returns once
// speech has started; done is called when it finishes or fails. An engine
// may never call done.
type Engine interface {
	Speak(text, voice string, done func(error)) error
	Stop() error
	Name() string
}

// LocalOption configures a LocalSpeaker.
type LocalOption func(*LocalSpeaker)

// WithLocalVoice selects the engine voice.
func WithLocalVoice(voice string) LocalOption {
	return func(l *LocalSpeaker) { l.voice = voice }
}

// WithWatchdog overrides the completion watchdog.
func WithWatchdog(d time.Duration) LocalOption {
	return func(l *LocalSpeaker) { l.watchdog = d }
}

// LocalSpeaker drives an on-device Engine. Every Speak is bounded by a
// watchdog: if the engine never reports completion the call is
// force-completed and the speaker returns to idle.
type LocalSpeaker struct {
	engine   Engine
	voice    string
	watchdog time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	current  *session.Once[error]
	speaking atomic.Int32
}

// NewLocalSpeaker creates a speaker over engine.
func NewLocalSpeaker(engine Engine, logger *slog.Logger, opts ...LocalOption) *LocalSpeaker {
	if logger == nil {
		logger = slog.Default()
	}
	l := &LocalSpeaker{
		engine:   engine,
		watchdog: DefaultWatchdog,
		logger:   logger.With("component", "tts.local", "engine", engine.Name()),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Engine returns the engine name.
func (l *LocalSpeaker) Engine() string { return l.engine.Name() }

// Speak blocks until the engine finishes, the watchdog fires, ctx is done
// or Stop is called. A watchdog expiry is not an error.
func (l *LocalSpeaker) Speak(ctx context.Context, text string) error {
	once := session.NewOnce[error]()

	l.mu.Lock()
	if prev := l.current; prev != nil {
		prev.Resolve(ErrStopped)
	}
	l.current = once
	l.mu.Unlock()

	l.speaking.Add(1)
	defer l.speaking.Add(-1)

	if err := l.engine.Speak(text, l.voice, func(err error) { once.Resolve(err) }); err != nil {
		once.Resolve(err)
		return WrapError(l.engine.Name(), err)
	}

	result, err := once.Wait(ctx, l.watchdog)
	switch {
	case errors.Is(err, session.ErrTimedOut):
		metrics.SynthesisWatchdog.Inc()
		l.logger.Warn("engine never completed, forcing completion",
			"watchdog", l.watchdog,
			"chars", len(text),
		)
		_ = l.engine.Stop()
		return nil
	case err != nil:
		_ = l.engine.Stop()
		return err
	}
	return result
}

// Stop interrupts current speech.
func (l *LocalSpeaker) Stop() error {
	l.mu.Lock()
	once := l.current
	l.mu.Unlock()

	if once != nil {
		once.Resolve(ErrStopped)
	}
	return l.engine.Stop()
}

// IsSpeaking reports whether Speak is in progress.
func (l *LocalSpeaker) IsSpeaking() bool {
	return l.speaking.Load() > 0
}

var _ Speaker = (*LocalSpeaker)(nil)

// CommandEngine speaks through the platform's command line synthesizer:
// say on macOS and espeak-ng elsewhere.
type CommandEngine struct {
	bin    string
	logger *slog.Logger

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewCommandEngine picks the synthesizer for the running platform.
func NewCommandEngine(logger *slog.Logger) *CommandEngine {
	if logger == nil {
		logger = slog.Default()
	}
	bin := "espeak-ng"
	if runtime.GOOS == "darwin" {
		bin = "say"
	}
	return &CommandEngine{bin: bin, logger: logger.With("component", "tts.command")}
}

// Name returns the synthesizer binary.
func (e *CommandEngine) Name() string { return e.bin }

// Available reports whether the synthesizer binary is on PATH.
func (e *CommandEngine) Available() bool {
	_, err := exec.LookPath(e.bin)
	return err == nil
}

// Speak starts the synthesizer; done fires when the process exits.
func (e *CommandEngine) Speak(text, voice string, done func(error)) error {
	args := []string{text}
	if voice != "" {
		args = []string{"-v", voice, text}
	}
	cmd := exec.Command(e.bin, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", e.bin, err)
	}

	e.mu.Lock()
	e.cmd = cmd
	e.mu.Unlock()

	go func() {
		err := cmd.Wait()
		e.mu.Lock()
		if e.cmd == cmd {
			e.cmd = nil
		}
		e.mu.Unlock()
		done(err)
	}()
	return nil
}

// Stop kills the running synthesizer, if any.
func (e *CommandEngine) Stop() error {
	e.mu.Lock()
	cmd := e.cmd
	e.cmd = nil
	e.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil {
		e.logger.Debug("kill synthesizer", "error", err)
	}
	return nil
}
