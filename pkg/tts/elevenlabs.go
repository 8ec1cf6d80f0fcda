package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	elevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
	providerElevenLabs = "elevenlabs"

	// DefaultElevenLabsModel is the low-latency English model.
	DefaultElevenLabsModel = "eleven_turbo_v2_5"
)

// ElevenLabs synthesizes with the text-to-speech endpoint, requesting PCM
// at the configured output rate.
type ElevenLabs struct {
	config *Config
	logger *slog.Logger
	base   string
}

// NewElevenLabs resolves preset names such as "charlotte" to voice IDs.
func NewElevenLabs(opts ...Option) (*ElevenLabs, error) {
	cfg := DefaultConfig()
	cfg.ModelID = DefaultElevenLabsModel
	cfg.VoiceID = DefaultElevenLabsVoice
	cfg.Apply(opts...)
	cfg.VoiceID = ResolveElevenLabsVoice(cfg.VoiceID)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.VoiceID == "" {
		return nil, ErrNoVoiceID
	}

	e := &ElevenLabs{config: cfg, logger: cfg.Logger.With("component", "tts.elevenlabs"), base: elevenLabsBaseURL}
	if cfg.BaseURL != "" {
		e.base = cfg.BaseURL
	}
	return e, nil
}

func (e *ElevenLabs) Name() string    { return providerElevenLabs }
func (e *ElevenLabs) VoiceID() string { return e.config.VoiceID }

type elevenLabsRequest struct {
	Text     string `json:"text"`
	ModelID  string `json:"model_id"`
	Settings struct {
		Stability       float64 `json:"stability"`
		SimilarityBoost float64 `json:"similarity_boost"`
		Style           float64 `json:"style"`
		SpeakerBoost    bool    `json:"use_speaker_boost"`
	} `json:"voice_settings"`
}

func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()

	req := elevenLabsRequest{Text: text, ModelID: e.config.ModelID}
	vs := e.config.VoiceSettings
	req.Settings.Stability, req.Settings.SimilarityBoost = vs.Stability, vs.SimilarityBoost
	req.Settings.Style, req.Settings.SpeakerBoost = vs.Style, vs.SpeakerBoost
	body, err := json.Marshal(req)
	if err != nil {
		return nil, WrapError(providerElevenLabs, fmt.Errorf("encode request: %w", err))
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s",
		e.base, url.PathEscape(e.config.VoiceID), e.config.OutputFormat)
	headers := func(r *http.Request) {
		r.Header.Set("xi-api-key", e.config.APIKey)
		r.Header.Set("Accept", "audio/pcm")
	}
	resp, err := postJSON(ctx, e.config, e.logger, providerElevenLabs, endpoint, body, headers, elevenLabsErrorBody)
	if err != nil {
		return nil, err
	}
	pcm, err := readAudio(providerElevenLabs, resp)
	if err != nil {
		return nil, err
	}

	format := PCMFormat(e.config.OutputFormat)
	res := &AudioResult{
		Audio:     pcm,
		Format:    format,
		Duration:  pcmDuration(len(pcm), format.SampleRate),
		CharCount: len(text),
		LatencyMs: time.Since(start).Milliseconds(),
	}
	e.logger.Debug("synthesized", "chars", res.CharCount, "bytes", len(pcm), "latency_ms", res.LatencyMs, "model", e.config.ModelID)
	return res, nil
}

// elevenLabsErrorBody matches {"detail":{"status","message"}}.
func elevenLabsErrorBody(body []byte) (string, string) {
	var v struct {
		Detail struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"detail"`
	}
	if json.Unmarshal(body, &v) != nil {
		return "", ""
	}
	return v.Detail.Message, v.Detail.Status
}

var _ Provider = (*ElevenLabs)(nil)
