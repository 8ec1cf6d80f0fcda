// Package tts turns assistant text into audible speech.
//
// Two layers live here. Provider engines (OpenAI, ElevenLabs, Google Cloud)
// synthesize text into PCM16 over the network. Speakers play speech and are
// what the voice pipelines drive: NetworkSpeaker plays a Provider's output
// through an audio sink, LocalSpeaker drives an on-device engine, and
// Fallback pairs the two so a network failure is spoken locally.
//
//	provider, _ := tts.NewOpenAI(tts.WithAPIKey(key), tts.WithVoice(tts.VoiceNova))
//	speaker := tts.NewFallback(
//	    tts.NewNetworkSpeaker(provider, sink, logger),
//	    tts.NewLocalSpeaker(tts.NewCommandEngine(logger), logger),
//	    logger,
//	)
//	_ = speaker.Speak(ctx, "Hello there.")
package tts

import (
	"context"
	"time"
)

// Speaker plays speech for the voice pipelines.
type Speaker interface {
	// Speak blocks until text has been spoken, ctx is done, or the speaker
	// is stopped.
	Speak(ctx context.Context, text string) error

	// Stop halts current speech. It is safe to call at any time.
	Stop() error

	// IsSpeaking reports whether a Speak call is in progress.
	IsSpeaking() bool
}

// Provider synthesizes text to audio over the network.
type Provider interface {
	// Synthesize converts text to audio, returning the complete buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Name identifies the engine ("openai", "elevenlabs", "google").
	Name() string
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	// Audio contains raw little-endian PCM16 samples.
	Audio []byte

	// Format describes the audio encoding and sample rate.
	Format AudioFormat

	// Duration is the playback length of Audio.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the request round trip in milliseconds.
	LatencyMs int64
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int
}

// Encoding represents audio encoding types.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm_16000" // 16kHz mono PCM16
	EncodingPCM22 Encoding = "pcm_22050" // 22.05kHz mono PCM16
	EncodingPCM24 Encoding = "pcm_24000" // 24kHz mono PCM16 (matches OpenAI Realtime)
	EncodingPCM44 Encoding = "pcm_44100" // 44.1kHz mono PCM16
)

// PCMFormat returns a mono PCM16 format at sampleRate.
func PCMFormat(enc Encoding) AudioFormat {
	return AudioFormat{
		Encoding:   enc,
		SampleRate: SampleRateFromEncoding(enc),
		Channels:   1,
		BitDepth:   16,
	}
}

// VoiceSettings controls voice characteristics for providers that support it.
type VoiceSettings struct {
	// Stability controls voice consistency (0.0-1.0).
	Stability float64

	// SimilarityBoost controls how closely the voice matches the original (0.0-1.0).
	SimilarityBoost float64

	// Style controls style exaggeration (0.0-1.0).
	Style float64

	// SpeakerBoost enhances speaker clarity.
	SpeakerBoost bool
}

// DefaultVoiceSettings returns sensible defaults for voice synthesis.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.75,
		SpeakerBoost:    true,
	}
}

// SampleRateFromEncoding extracts the sample rate from an encoding type.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16:
		return 16000
	case EncodingPCM22:
		return 22050
	case EncodingPCM44:
		return 44100
	default:
		return 24000
	}
}

// pcmDuration returns the playback length of n PCM16 mono bytes.
func pcmDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n/2) * time.Second / time.Duration(sampleRate)
}
