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

// Client is the OpenAI-compatible streaming backend.
// Works with OpenAI, the managed proxy, Groq and local Ollama-style servers.
type Client struct {
	baseURL string
	apiKey  string
	config  *Config
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a new inference client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		config:  cfg,
		http:    cfg.HTTP,
		logger:  cfg.Logger.With("component", "inference."+cfg.Name),
	}, nil
}

// Name returns the provider label.
func (c *Client) Name() string { return c.config.Name }

// StreamReply starts a streaming chat completion over history.
func (c *Client) StreamReply(ctx context.Context, history []Message) (Stream, error) {
	if len(history) == 0 {
		return nil, WrapError(c.config.Name, ErrEmptyHistory)
	}

	payload := chatRequest{
		Model:       c.config.Model,
		Messages:    toOpenAIMessages(history),
		Stream:      true,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	}

	resp, err := c.post(ctx, "/chat/completions", payload)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, parseError(c.config.Name, resp)
	}

	c.logger.Debug("stream opened", "model", c.config.Model, "messages", len(history))
	return newSSEStream(c.config.Name, resp.Body, decodeOpenAIEvent), nil
}

// ValidateCredential lists models with the configured key.
func (c *Client) ValidateCredential(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("credential check failed", "error", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(c.config.Name, fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(c.config.Name, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, WrapError(c.config.Name, fmt.Errorf("stream request: %w", err))
	}
	return resp, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// parseError reads and parses an error response. Both OpenAI and Anthropic
// nest the message under "error".
func parseError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
		} `json:"error"`
	}

	message := strings.TrimSpace(string(body))
	code := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		switch v := errResp.Error.Code.(type) {
		case string:
			code = v
		case nil:
			code = errResp.Error.Type
		default:
			code = fmt.Sprint(v)
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   provider,
	}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Stream      bool            `json:"stream"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

// toOpenAIMessages keeps system messages inline, in order.
func toOpenAIMessages(history []Message) []openAIMessage {
	out := make([]openAIMessage, len(history))
	for i, m := range history {
		out[i] = openAIMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}

// Verify Client implements Model at compile time.
var _ Model = (*Client)(nil)
