package tts

import (
	"context"
	"errors"
	"log/slog"

	"github.com/teslashibe/voicecore/pkg/metrics"
)

// Fallback speaks through a network speaker and, when it fails for any
// reason other than cancellation or Stop, repeats the text on the local
// speaker. The failure is logged and never surfaced.
type Fallback struct {
	primary Speaker
	local   Speaker
	engine  string
	logger  *slog.Logger
}

// NewFallback pairs primary with local.
func NewFallback(primary, local Speaker, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	engine := "network"
	if named, ok := primary.(interface{ Engine() string }); ok {
		engine = named.Engine()
	}
	return &Fallback{
		primary: primary,
		local:   local,
		engine:  engine,
		logger:  logger.With("component", "tts.fallback"),
	}
}

// Speak tries the primary speaker first.
func (f *Fallback) Speak(ctx context.Context, text string) error {
	err := f.primary.Speak(ctx, text)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, ErrStopped) {
		return err
	}

	metrics.SynthesisFallbacks.WithLabelValues(f.engine).Inc()
	f.logger.Warn("network synthesis failed, using local voice",
		"engine", f.engine,
		"chars", len(text),
		"error", err,
	)
	return f.local.Speak(ctx, text)
}

// Stop halts both speakers.
func (f *Fallback) Stop() error {
	return errors.Join(f.primary.Stop(), f.local.Stop())
}

// IsSpeaking reports whether either speaker is speaking.
func (f *Fallback) IsSpeaking() bool {
	return f.primary.IsSpeaking() || f.local.IsSpeaking()
}

var _ Speaker = (*Fallback)(nil)
