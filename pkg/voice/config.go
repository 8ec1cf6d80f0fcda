package voice

import (
	"errors"
	"time"

	"github.com/teslashibe/voicecore/pkg/realtime"
)

// Config holds the tunables of both pipelines, grouped by stage.
type Config struct {
	// Realtime session
	Voice           string // Realtime output voice (default: alloy)
	TranscribeModel string // Model transcribing user audio

	// VAD (server-side voice activity detection)
	VADThreshold       float64       // Activation threshold 0.0-1.0 (default: 0.5)
	VADPrefixPadding   time.Duration // Audio kept before speech start (default: 300ms)
	VADSilenceDuration time.Duration // Silence that ends a turn (default: 500ms)

	// Audio
	WireSampleRate int           // Realtime PCM16 rate (default: 24000)
	LevelInterval  time.Duration // Minimum spacing of level samples (default: 50ms)

	// OnReply is called after each completed turn-based reply.
	OnReply func(user, assistant string)
}

// Option configures a pipeline.
type Option func(*Config)

// DefaultConfig returns the defaults shared by both pipelines.
func DefaultConfig() Config {
	return Config{
		Voice:              realtime.DefaultVoice,
		TranscribeModel:    realtime.DefaultTranscribeModel,
		VADThreshold:       0.5,
		VADPrefixPadding:   300 * time.Millisecond,
		VADSilenceDuration: 500 * time.Millisecond,
		WireSampleRate:     24000,
		LevelInterval:      50 * time.Millisecond,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.VADThreshold < 0 || c.VADThreshold > 1 {
		return errors.New("voice: VAD threshold must be between 0 and 1")
	}
	if c.WireSampleRate <= 0 {
		return errors.New("voice: wire sample rate must be positive")
	}
	if c.LevelInterval < 0 {
		return errors.New("voice: level interval must not be negative")
	}
	return nil
}

// WithVoice sets the realtime voice.
func WithVoice(voice string) Option {
	return func(c *Config) {
		if voice != "" {
			c.Voice = voice
		}
	}
}

// WithVAD sets server VAD threshold and silence duration.
func WithVAD(threshold float64, silence time.Duration) Option {
	return func(c *Config) {
		c.VADThreshold = threshold
		c.VADSilenceDuration = silence
	}
}

// WithLevelInterval throttles the level stream.
func WithLevelInterval(d time.Duration) Option {
	return func(c *Config) { c.LevelInterval = d }
}

// WithReplyHook registers fn to run after each completed reply.
func WithReplyHook(fn func(user, assistant string)) Option {
	return func(c *Config) { c.OnReply = fn }
}

// session builds the realtime session.update payload.
func (c *Config) session(instructions string) realtime.Session {
	s := realtime.DefaultSession(instructions)
	s.Voice = c.Voice
	if c.TranscribeModel != "" {
		s.InputAudioTranscription = &realtime.Transcription{Model: c.TranscribeModel}
	}
	s.TurnDetection.Threshold = c.VADThreshold
	s.TurnDetection.PrefixPaddingMs = int(c.VADPrefixPadding / time.Millisecond)
	s.TurnDetection.SilenceDurationMs = int(c.VADSilenceDuration / time.Millisecond)
	return s
}

func buildConfig(opts []Option) (Config, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg, cfg.Validate()
}
