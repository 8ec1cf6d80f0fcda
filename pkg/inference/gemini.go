package inference

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"google.golang.org/genai"
)

const providerGemini = "gemini"

// Gemini streams replies through the Google Gen AI SDK.
type Gemini struct {
	client *genai.Client
	config *Config
	logger *slog.Logger
}

// NewGemini creates a Gemini provider.
func NewGemini(ctx context.Context, opts ...Option) (*Gemini, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = ""
	cfg.Model = "gemini-2.0-flash"
	cfg.Name = providerGemini
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, WrapError(providerGemini, ErrNoAPIKey)
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTP,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, WrapError(providerGemini, fmt.Errorf("create client: %w", err))
	}

	return &Gemini{
		client: client,
		config: cfg,
		logger: cfg.Logger.With("component", "inference.gemini"),
	}, nil
}

// StreamReply starts a streaming generation over history.
func (g *Gemini) StreamReply(ctx context.Context, history []Message) (Stream, error) {
	if len(history) == 0 {
		return nil, WrapError(providerGemini, ErrEmptyHistory)
	}

	system, contents := toGeminiContents(history)
	gc := &genai.GenerateContentConfig{}
	if system != "" {
		gc.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if g.config.Temperature > 0 {
		t := float32(g.config.Temperature)
		gc.Temperature = &t
	}
	if g.config.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(g.config.MaxTokens)
	}

	ctx, cancel := context.WithCancel(ctx)
	seq := g.client.Models.GenerateContentStream(ctx, g.config.Model, contents, gc)
	g.logger.Debug("stream opened", "model", g.config.Model, "messages", len(history))
	return newGeminiStream(seq, cancel), nil
}

// ValidateCredential fetches the configured model's metadata.
func (g *Gemini) ValidateCredential(ctx context.Context) bool {
	_, err := g.client.Models.Get(ctx, g.config.Model, nil)
	if err != nil {
		g.logger.Debug("credential check failed", "error", err)
		return false
	}
	return true
}

// toGeminiContents separates the system instruction and maps assistant turns
// to the "model" role.
func toGeminiContents(history []Message) (string, []*genai.Content) {
	system, rest := splitSystem(history)
	contents := make([]*genai.Content, 0, len(rest))
	for _, m := range rest {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return system, contents
}

// geminiStream adapts the SDK's push iterator to Stream.
type geminiStream struct {
	mu     sync.Mutex
	next   func() (*genai.GenerateContentResponse, error, bool)
	stop   func()
	cancel context.CancelFunc
	done   bool
	closed bool
}

func newGeminiStream(seq iter.Seq2[*genai.GenerateContentResponse, error], cancel context.CancelFunc) *geminiStream {
	next, stop := iter.Pull2(seq)
	return &geminiStream{next: next, stop: stop, cancel: cancel}
}

func (s *geminiStream) Recv() (*StreamChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStreamClosed
	}
	for !s.done {
		resp, err, ok := s.next()
		if !ok {
			s.done = true
			break
		}
		if err != nil {
			return nil, WrapError(providerGemini, convertGeminiError(err))
		}
		if resp == nil {
			continue
		}

		chunk := &StreamChunk{Delta: resp.Text()}
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
			chunk.FinishReason = string(resp.Candidates[0].FinishReason)
		}
		if chunk.Delta == "" && chunk.FinishReason == "" {
			continue
		}
		return chunk, nil
	}
	return &StreamChunk{Done: true}, nil
}

func (s *geminiStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.stop()
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// convertGeminiError lifts SDK API errors into APIError so status-based
// classification applies.
func convertGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
			Code:       apiErr.Status,
			Provider:   providerGemini,
		}
	}
	return err
}

var _ Model = (*Gemini)(nil)
