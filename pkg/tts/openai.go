package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	openAITTSURL   = "https://api.openai.com/v1/audio/speech"
	providerOpenAI = "openai"

	DefaultOpenAIModel = "tts-1"
	DefaultOpenAIVoice = "shimmer"

	// VoiceNova is the brighter alternative to the default voice.
	VoiceNova = "nova"
)

// OpenAI synthesizes with /v1/audio/speech. Audio is requested as raw
// 24kHz PCM16 so it can go straight to the sink.
type OpenAI struct {
	config *Config
	logger *slog.Logger
	url    string
}

func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.ModelID = DefaultOpenAIModel
	cfg.VoiceID = DefaultOpenAIVoice
	cfg.Apply(opts...)
	cfg.OutputFormat = EncodingPCM24
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &OpenAI{config: cfg, logger: cfg.Logger.With("component", "tts.openai"), url: openAITTSURL}
	if cfg.BaseURL != "" {
		o.url = cfg.BaseURL
	}
	return o, nil
}

func (o *OpenAI) Name() string    { return providerOpenAI }
func (o *OpenAI) VoiceID() string { return o.config.VoiceID }

// Synthesize returns the whole utterance; the endpoint does not stream PCM.
func (o *OpenAI) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()

	body, err := json.Marshal(struct {
		Model  string `json:"model"`
		Voice  string `json:"voice"`
		Input  string `json:"input"`
		Format string `json:"response_format"`
	}{o.config.ModelID, o.config.VoiceID, text, "pcm"})
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("encode request: %w", err))
	}

	auth := func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+o.config.APIKey) }
	resp, err := postJSON(ctx, o.config, o.logger, providerOpenAI, o.url, body, auth, openAIErrorBody)
	if err != nil {
		return nil, err
	}
	pcm, err := readAudio(providerOpenAI, resp)
	if err != nil {
		return nil, err
	}

	format := PCMFormat(EncodingPCM24)
	res := &AudioResult{
		Audio:     pcm,
		Format:    format,
		Duration:  pcmDuration(len(pcm), format.SampleRate),
		CharCount: len(text),
		LatencyMs: time.Since(start).Milliseconds(),
	}
	o.logger.Debug("synthesized", "chars", res.CharCount, "bytes", len(pcm), "latency_ms", res.LatencyMs, "voice", o.config.VoiceID)
	return res, nil
}

var _ Provider = (*OpenAI)(nil)
