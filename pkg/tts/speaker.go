package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/voicecore/pkg/audioio"
)

// NetworkSpeaker synthesizes with a Provider and plays the audio through a
// sink. Speak returns once the sink has drained.
type NetworkSpeaker struct {
	provider Provider
	player   *audioio.Player
	logger   *slog.Logger

	mu       sync.Mutex
	cancel   context.CancelCauseFunc
	started  bool
	speaking atomic.Int32
}

// NewNetworkSpeaker creates a speaker over provider and sink.
func NewNetworkSpeaker(provider Provider, sink audioio.Sink, logger *slog.Logger) *NetworkSpeaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &NetworkSpeaker{
		provider: provider,
		player:   audioio.NewPlayer(sink, logger),
		logger:   logger.With("component", "tts.speaker", "engine", provider.Name()),
	}
}

// Engine returns the provider name.
func (s *NetworkSpeaker) Engine() string { return s.provider.Name() }

// Speak synthesizes text and blocks until it has played.
func (s *NetworkSpeaker) Speak(ctx context.Context, text string) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel(ErrStopped)
	}
	s.cancel = cancel
	if !s.started {
		if err := s.player.Start(context.Background()); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("start playback: %w", err)
		}
		s.started = true
	}
	s.mu.Unlock()

	s.speaking.Add(1)
	defer s.speaking.Add(-1)

	result, err := s.provider.Synthesize(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return s.interrupted(ctx)
		}
		return err
	}

	chunk := audioio.ChunkFromBytes(result.Audio, result.Format.SampleRate, max(result.Format.Channels, 1))
	if err := s.player.Enqueue(ctx, chunk); err != nil {
		return fmt.Errorf("enqueue audio: %w", err)
	}
	if err := s.player.Flush(ctx); err != nil {
		if ctx.Err() != nil {
			return s.interrupted(ctx)
		}
		return fmt.Errorf("flush audio: %w", err)
	}

	s.logger.Debug("spoke", "chars", len(text), "duration", result.Duration)
	return nil
}

// interrupted maps a cancellation from Stop to ErrStopped and passes
// caller cancellation through.
func (s *NetworkSpeaker) interrupted(ctx context.Context) error {
	if errors.Is(context.Cause(ctx), ErrStopped) {
		return ErrStopped
	}
	return ctx.Err()
}

// Stop cancels the in-flight Speak and drops queued audio.
func (s *NetworkSpeaker) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	started := s.started
	s.mu.Unlock()

	if cancel != nil {
		cancel(ErrStopped)
	}
	if !started {
		return nil
	}
	return s.player.Clear()
}

// IsSpeaking reports whether Speak is in progress.
func (s *NetworkSpeaker) IsSpeaking() bool {
	return s.speaking.Load() > 0
}

// Close stops playback for good.
func (s *NetworkSpeaker) Close() error {
	_ = s.Stop()
	return s.player.Stop()
}

var _ Speaker = (*NetworkSpeaker)(nil)
