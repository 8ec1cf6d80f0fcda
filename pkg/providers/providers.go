// Package providers builds concrete model, speech and realtime clients
// for a resolved backend.
//
// Credential checks happen here, before any network I/O: a backend that
// needs a key and is handed an empty one fails with
// backend.ErrInvalidCredential.
package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/voicecore/pkg/backend"
	"github.com/teslashibe/voicecore/pkg/inference"
	"github.com/teslashibe/voicecore/pkg/realtime"
)

// Config holds factory settings shared by every backend.
type Config struct {
	// ManagedURL is the OpenAI-compatible proxy serving the managed backend.
	ManagedURL string

	// LocalURL is the on-device OpenAI-compatible server.
	LocalURL string

	// BaseURL overrides the endpoint of whichever backend is built.
	BaseURL string

	MaxTokens   int
	Temperature float64
	HTTP        *http.Client
	Logger      *slog.Logger
}

// Option configures the factory.
type Option func(*Config)

// WithManagedURL sets the managed proxy endpoint.
func WithManagedURL(url string) Option {
	return func(c *Config) { c.ManagedURL = url }
}

// WithLocalURL sets the on-device endpoint. Empty keeps the default.
func WithLocalURL(url string) Option {
	return func(c *Config) {
		if url != "" {
			c.LocalURL = url
		}
	}
}

// WithBaseURL points the built client at url.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithMaxTokens caps reply length.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithTemperature sets sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = t }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Config) { c.HTTP = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns factory defaults.
func DefaultConfig() *Config {
	return &Config{
		LocalURL: inference.LocalBaseURL,
		Logger:   slog.Default(),
	}
}

// Apply applies opts.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c *Config) inferenceOptions(name, credential, model string) []inference.Option {
	opts := []inference.Option{
		inference.WithName(name),
		inference.WithAPIKey(credential),
		inference.WithModel(model),
		inference.WithLogger(c.Logger),
	}
	if c.BaseURL != "" {
		opts = append(opts, inference.WithBaseURL(c.BaseURL))
	}
	if c.MaxTokens > 0 {
		opts = append(opts, inference.WithMaxTokens(c.MaxTokens))
	}
	if c.Temperature > 0 {
		opts = append(opts, inference.WithTemperature(c.Temperature))
	}
	if c.HTTP != nil {
		opts = append(opts, inference.WithHTTPClient(c.HTTP))
	}
	return opts
}

// checkCredential enforces the credential rule for id.
func checkCredential(id backend.ID, credential string) error {
	if !id.Known() {
		return backend.ConfigurationMissing(fmt.Sprintf("unknown backend %q", id))
	}
	if id.Caps().RequiresCredential && strings.TrimSpace(credential) == "" {
		return backend.InvalidCredential(id)
	}
	return nil
}

// NewModel builds the streaming model client for id. An empty model uses
// the backend's default.
func NewModel(ctx context.Context, id backend.ID, credential, model string, opts ...Option) (inference.Model, error) {
	if err := checkCredential(id, credential); err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	credential = strings.TrimSpace(credential)

	var (
		m   inference.Model
		err error
	)
	switch id {
	case backend.Managed:
		url := cfg.ManagedURL
		if cfg.BaseURL != "" {
			url = cfg.BaseURL
		}
		if url == "" {
			return nil, backend.ConfigurationMissing("managed backend URL is not configured")
		}
		m, err = inference.NewClient(append(cfg.inferenceOptions(string(id), credential, model), inference.WithBaseURL(url))...)
	case backend.OpenAI:
		m, err = inference.NewClient(prepend(inference.WithBaseURL(inference.OpenAIBaseURL), cfg.inferenceOptions(string(id), credential, model))...)
	case backend.Groq:
		m, err = inference.NewClient(prepend(inference.WithBaseURL(inference.GroqBaseURL), cfg.inferenceOptions(string(id), credential, model))...)
	case backend.OnDevice:
		m, err = inference.NewClient(prepend(inference.WithBaseURL(cfg.LocalURL), cfg.inferenceOptions(string(id), credential, model))...)
	case backend.Anthropic:
		m, err = inference.NewAnthropic(cfg.inferenceOptions(string(id), credential, model)...)
	case backend.Gemini:
		m, err = inference.NewGemini(ctx, cfg.inferenceOptions(string(id), credential, model)...)
	case backend.OpenAIRealtime:
		return nil, backend.ConfigurationMissing("openai_realtime has no turn-based model; use NewRealtime")
	default:
		return nil, backend.ConfigurationMissing(fmt.Sprintf("no model client for %q", id))
	}
	if err != nil {
		if errors.Is(err, inference.ErrNoAPIKey) {
			return nil, backend.InvalidCredential(id)
		}
		return nil, backend.Classify(string(id), err)
	}
	cfg.Logger.Debug("model built", "component", "providers", "backend", id, "model", model)
	return m, nil
}

func prepend(first inference.Option, rest []inference.Option) []inference.Option {
	return append([]inference.Option{first}, rest...)
}

// CredentialLookup fetches stored credentials.
type CredentialLookup interface {
	Get(ctx context.Context, id backend.ID) (string, error)
}

// ModelFromStore looks up the credential for id and builds its model.
// A missing credential is treated as empty.
func ModelFromStore(ctx context.Context, creds CredentialLookup, id backend.ID, model string, opts ...Option) (inference.Model, error) {
	credential := ""
	if id.Caps().RequiresCredential {
		credential, _ = creds.Get(ctx, id)
	}
	return NewModel(ctx, id, credential, model, opts...)
}

// DefaultProbeTimeout bounds one runtime availability check.
const DefaultProbeTimeout = 2 * time.Second

// RuntimeProbe returns a runtime availability check for access.Probes.
// on_device is available only while its local server answers a model
// listing within timeout; the other backends are remote and pass.
func RuntimeProbe(ctx context.Context, timeout time.Duration, opts ...Option) func(backend.ID) bool {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return func(id backend.ID) bool {
		if id != backend.OnDevice {
			return true
		}
		m, err := NewModel(ctx, id, "", "", opts...)
		if err != nil {
			return false
		}
		pctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if !m.ValidateCredential(pctx) {
			cfg.Logger.Info("local model server unreachable", "component", "providers", "url", cfg.LocalURL)
			return false
		}
		return true
	}
}

// NewRealtime builds the realtime dialer. The credential rule matches
// NewModel.
func NewRealtime(credential string, opts ...realtime.Option) (*realtime.WSDialer, error) {
	if err := checkCredential(backend.OpenAIRealtime, credential); err != nil {
		return nil, err
	}
	opts = append(opts, realtime.WithAPIKey(strings.TrimSpace(credential)))
	d, err := realtime.NewDialer(opts...)
	if err != nil {
		return nil, backend.Classify(string(backend.OpenAIRealtime), err)
	}
	return d, nil
}
