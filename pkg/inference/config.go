package inference

import (
	"log/slog"
	"net/http"

	"github.com/teslashibe/voicecore/internal/httpc"
)

// Default endpoints per backend family.
const (
	OpenAIBaseURL    = "https://api.openai.com/v1"
	GroqBaseURL      = "https://api.groq.com/openai/v1"
	LocalBaseURL     = "http://localhost:11434/v1"
	AnthropicBaseURL = "https://api.anthropic.com/v1"
	AnthropicVersion = "2023-06-01"
)

// Config holds provider configuration.
type Config struct {
	// Connection
	BaseURL string // API base URL
	APIKey  string // API key (optional for local and managed providers)

	// Model is the chat model name.
	Model string

	// Request defaults
	MaxTokens   int
	Temperature float64

	// HTTP is the client for streaming requests. Defaults to httpc.StreamClient.
	HTTP *http.Client

	// Name labels errors and log lines ("openai", "managed", ...).
	Name string

	Logger *slog.Logger
}

// Option is a functional option for configuring providers.
type Option func(*Config)

// WithBaseURL sets the API base URL.
// Examples: "https://api.openai.com/v1", "http://localhost:11434/v1"
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(c *Config) {
		if model != "" {
			c.Model = model
		}
	}
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = t }
}

// WithHTTPClient overrides the streaming HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Config) { c.HTTP = h }
}

// WithName sets the provider label.
func WithName(name string) Option {
	return func(c *Config) { c.Name = name }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns sensible defaults for OpenAI.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     OpenAIBaseURL,
		Model:       "gpt-4o-mini",
		MaxTokens:   1024,
		Temperature: 0.7,
		HTTP:        httpc.StreamClient,
		Name:        "openai",
		Logger:      slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
	if c.HTTP == nil {
		c.HTTP = httpc.StreamClient
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
