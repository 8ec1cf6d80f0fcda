package tts

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/teslashibe/voicecore/internal/httpc"
)

// DefaultWatchdog bounds a single Speak on the local engine.
const DefaultWatchdog = 15 * time.Second

// Config is shared by the network providers. Each constructor fills in its
// own model and voice defaults before applying options.
type Config struct {
	APIKey  string
	BaseURL string

	VoiceID       string
	ModelID       string
	LanguageCode  string // Google only
	VoiceSettings VoiceSettings
	OutputFormat  Encoding

	HTTP *http.Client

	// Rate limits and 5xx responses are retried MaxRetries times with a
	// linear backoff of RetryDelay.
	MaxRetries int
	RetryDelay time.Duration

	Logger *slog.Logger
}

type Option func(*Config)

func WithAPIKey(key string) Option { return func(c *Config) { c.APIKey = key } }

// WithBaseURL points the provider at another endpoint, typically a test server.
func WithBaseURL(url string) Option { return func(c *Config) { c.BaseURL = url } }

// WithVoice sets the voice. An empty id keeps the provider default.
func WithVoice(voiceID string) Option {
	return func(c *Config) {
		if voiceID != "" {
			c.VoiceID = voiceID
		}
	}
}

// WithModel sets the model. An empty id keeps the provider default.
func WithModel(modelID string) Option {
	return func(c *Config) {
		if modelID != "" {
			c.ModelID = modelID
		}
	}
}

func WithHTTPClient(h *http.Client) Option { return func(c *Config) { c.HTTP = h } }

func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries, c.RetryDelay = maxRetries, delay
	}
}

func WithLogger(logger *slog.Logger) Option { return func(c *Config) { c.Logger = logger } }

func DefaultConfig() *Config {
	return &Config{
		OutputFormat:  EncodingPCM24,
		LanguageCode:  "en-US",
		VoiceSettings: DefaultVoiceSettings(),
		HTTP:          httpc.Client,
		MaxRetries:    2,
		RetryDelay:    100 * time.Millisecond,
		Logger:        slog.Default(),
	}
}

func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
	if c.HTTP == nil {
		c.HTTP = httpc.Client
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Validate requires an API key.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}
