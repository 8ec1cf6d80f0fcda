package providers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/teslashibe/voicecore/pkg/audioio"
	"github.com/teslashibe/voicecore/pkg/tts"
)

// SpeechEngine names a synthesis engine.
type SpeechEngine string

const (
	EngineOpenAI     SpeechEngine = "openai"
	EngineElevenLabs SpeechEngine = "elevenlabs"
	EngineGoogle     SpeechEngine = "google"
	EngineLocal      SpeechEngine = "local"
)

// SpeakerConfig configures NewSpeaker.
type SpeakerConfig struct {
	// Local is the on-device engine. Defaults to tts.NewCommandEngine.
	Local tts.Engine

	// LocalVoice is passed to the local engine.
	LocalVoice string

	// TTS are extra options for the network engine.
	TTS []tts.Option

	Logger *slog.Logger
}

// SpeakerOption configures NewSpeaker.
type SpeakerOption func(*SpeakerConfig)

// WithLocalEngine overrides the on-device engine.
func WithLocalEngine(e tts.Engine) SpeakerOption {
	return func(c *SpeakerConfig) { c.Local = e }
}

// WithLocalVoice sets the on-device voice.
func WithLocalVoice(voice string) SpeakerOption {
	return func(c *SpeakerConfig) { c.LocalVoice = voice }
}

// WithTTSOptions appends options for the network engine.
func WithTTSOptions(opts ...tts.Option) SpeakerOption {
	return func(c *SpeakerConfig) { c.TTS = append(c.TTS, opts...) }
}

// WithSpeakerLogger sets the logger.
func WithSpeakerLogger(l *slog.Logger) SpeakerOption {
	return func(c *SpeakerConfig) { c.Logger = l }
}

// NewSpeaker always returns a usable speaker. A network engine is wrapped
// in tts.Fallback over the local voice; when the network engine cannot be
// built the local speaker is returned on its own.
func NewSpeaker(ctx context.Context, engine SpeechEngine, credential, voice string, sink audioio.Sink, opts ...SpeakerOption) tts.Speaker {
	cfg := &SpeakerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("component", "providers.speaker")
	if cfg.Local == nil {
		cfg.Local = tts.NewCommandEngine(cfg.Logger)
	}

	var localOpts []tts.LocalOption
	if cfg.LocalVoice != "" {
		localOpts = append(localOpts, tts.WithLocalVoice(cfg.LocalVoice))
	}
	local := tts.NewLocalSpeaker(cfg.Local, cfg.Logger, localOpts...)

	if engine == EngineLocal || engine == "" {
		return local
	}
	if sink == nil {
		logger.Warn("no playback sink, using local voice", "engine", engine)
		return local
	}

	provider, err := newProvider(ctx, engine, credential, voice, cfg)
	if err != nil {
		logger.Warn("network voice unavailable, using local voice", "engine", engine, "error", err)
		return local
	}
	return tts.NewFallback(tts.NewNetworkSpeaker(provider, sink, cfg.Logger), local, cfg.Logger)
}

func newProvider(ctx context.Context, engine SpeechEngine, credential, voice string, cfg *SpeakerConfig) (tts.Provider, error) {
	credential = strings.TrimSpace(credential)
	opts := append([]tts.Option{
		tts.WithAPIKey(credential),
		tts.WithVoice(voice),
		tts.WithLogger(cfg.Logger),
	}, cfg.TTS...)

	switch engine {
	case EngineOpenAI:
		return tts.NewOpenAI(opts...)
	case EngineElevenLabs:
		return tts.NewElevenLabs(opts...)
	case EngineGoogle:
		// an empty credential means application default credentials
		return tts.NewGoogle(ctx, opts...)
	}
	return nil, fmt.Errorf("unknown speech engine %q", engine)
}
