package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const providerAnthropic = "anthropic"

// Anthropic streams replies from the Messages API.
type Anthropic struct {
	baseURL string
	apiKey  string
	config  *Config
	http    *http.Client
	logger  *slog.Logger
}

// NewAnthropic creates an Anthropic provider.
func NewAnthropic(opts ...Option) (*Anthropic, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = AnthropicBaseURL
	cfg.Model = "claude-3-5-haiku-latest"
	cfg.Name = providerAnthropic
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, WrapError(providerAnthropic, ErrNoAPIKey)
	}

	return &Anthropic{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		config:  cfg,
		http:    cfg.HTTP,
		logger:  cfg.Logger.With("component", "inference.anthropic"),
	}, nil
}

// StreamReply starts a streaming message over history.
func (a *Anthropic) StreamReply(ctx context.Context, history []Message) (Stream, error) {
	if len(history) == 0 {
		return nil, WrapError(providerAnthropic, ErrEmptyHistory)
	}

	body, err := json.Marshal(toAnthropicRequest(a.config.Model, a.config.MaxTokens, history))
	if err != nil {
		return nil, WrapError(providerAnthropic, fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(providerAnthropic, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	a.authorize(req)

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, WrapError(providerAnthropic, fmt.Errorf("stream request: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, parseError(providerAnthropic, resp)
	}

	a.logger.Debug("stream opened", "model", a.config.Model, "messages", len(history))
	return newSSEStream(providerAnthropic, resp.Body, decodeAnthropicEvent), nil
}

// ValidateCredential lists models with the configured key.
func (a *Anthropic) ValidateCredential(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	a.authorize(req)

	resp, err := a.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (a *Anthropic) authorize(req *http.Request) {
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", AnthropicVersion)
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
	Stream    bool               `json:"stream"`
}

// toAnthropicRequest lifts system messages into the top-level system field.
func toAnthropicRequest(model string, maxTokens int, history []Message) anthropicRequest {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	system, rest := splitSystem(history)
	msgs := make([]anthropicMessage, len(rest))
	for i, m := range rest {
		msgs[i] = anthropicMessage{Role: string(m.Role), Content: m.Content}
	}
	return anthropicRequest{
		Model:     model,
		System:    system,
		Messages:  msgs,
		MaxTokens: maxTokens,
		Stream:    true,
	}
}

type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeAnthropicEvent(data string) (*StreamChunk, error) {
	var event anthropicEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return nil, nil
	}

	switch event.Type {
	case "content_block_delta":
		if event.Delta.Type != "text_delta" || event.Delta.Text == "" {
			return nil, nil
		}
		return &StreamChunk{Delta: event.Delta.Text}, nil
	case "message_delta":
		if event.Delta.StopReason == "" {
			return nil, nil
		}
		return &StreamChunk{FinishReason: event.Delta.StopReason}, nil
	case "message_stop":
		return &StreamChunk{Done: true}, nil
	case "error":
		msg := "unknown"
		if event.Error != nil {
			msg = event.Error.Message
			if event.Error.Type == "overloaded_error" {
				return nil, &APIError{StatusCode: 529, Message: msg, Code: event.Error.Type, Provider: providerAnthropic}
			}
		}
		return nil, fmt.Errorf("stream error: %s", msg)
	default:
		return nil, nil
	}
}

var _ Model = (*Anthropic)(nil)
