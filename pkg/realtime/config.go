package realtime

import (
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Defaults.
const (
	DefaultURL              = "wss://api.openai.com/v1/realtime"
	DefaultModel            = "gpt-4o-realtime-preview-2024-12-17"
	DefaultVoice            = "alloy"
	DefaultTranscribeModel  = "whisper-1"
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultReadTimeout      = 120 * time.Second
	DefaultPingInterval     = 30 * time.Second
)

// ErrNoAPIKey is returned when the API key is missing.
var ErrNoAPIKey = errors.New("realtime: API key required")

// Config holds transport configuration.
type Config struct {
	APIKey string
	URL    string
	Model  string

	// Header is merged into the handshake request.
	Header http.Header

	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration

	Logger *slog.Logger
}

// Option is a functional option for configuring the transport.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithURL overrides the endpoint. Tests point this at an httptest server.
func WithURL(url string) Option {
	return func(c *Config) { c.URL = url }
}

// WithModel sets the realtime model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithHeader adds a handshake header.
func WithHeader(key, value string) Option {
	return func(c *Config) {
		if c.Header == nil {
			c.Header = http.Header{}
		}
		c.Header.Set(key, value)
	}
}

// WithReadTimeout sets how long a read may stay idle.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) { c.ReadTimeout = d }
}

// WithPingInterval sets the keepalive ping period. Zero disables pings.
func WithPingInterval(d time.Duration) Option {
	return func(c *Config) { c.PingInterval = d }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		URL:              DefaultURL,
		Model:            DefaultModel,
		HandshakeTimeout: DefaultHandshakeTimeout,
		ReadTimeout:      DefaultReadTimeout,
		PingInterval:     DefaultPingInterval,
		Logger:           slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}

// DefaultSession returns the session settings the pipeline starts with.
func DefaultSession(instructions string) Session {
	return Session{
		Modalities:              []string{"text", "audio"},
		Instructions:            instructions,
		Voice:                   DefaultVoice,
		InputAudioFormat:        AudioFormat,
		OutputAudioFormat:       AudioFormat,
		InputAudioTranscription: &Transcription{Model: DefaultTranscribeModel},
		TurnDetection: VAD{
			Type:              "server_vad",
			Threshold:         0.5,
			PrefixPaddingMs:   300,
			SilenceDurationMs: 500,
		},
	}
}
