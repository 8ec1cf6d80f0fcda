// Package audioio provides audio capture, playback and sample conversion.
//
// Backends:
//   - malgo (miniaudio) for real devices on Linux, macOS and Windows
//   - mock for CI and tests
//
// Pipelines talk to Source and Sink; the Player wraps a Sink with the
// ordering guarantees barge-in needs.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto selects malgo when a device context is supplied, mock otherwise.
	BackendAuto Backend = "auto"
	// BackendMalgo uses miniaudio via github.com/gen2brain/malgo.
	BackendMalgo Backend = "malgo"
	// BackendMock uses an in-memory implementation.
	BackendMock Backend = "mock"
)

// Standard rates.
const (
	// RealtimeSampleRate is what the realtime protocol expects on the wire.
	RealtimeSampleRate = 24000
	// RecognizerSampleRate is what the speech recognizer is fed.
	RecognizerSampleRate = 16000
	// CaptureSampleRate is the native capture rate requested from devices.
	CaptureSampleRate = 48000
)

// Config holds audio configuration.
type Config struct {
	Backend Backend `mapstructure:"backend" json:"backend"`

	// SampleRate is the device sample rate in Hz.
	SampleRate int `mapstructure:"sample_rate" json:"sample_rate"`

	// Channels is the number of interleaved channels.
	Channels int `mapstructure:"channels" json:"channels"`

	// BufferDuration is the size of one device period.
	BufferDuration time.Duration `mapstructure:"buffer_duration" json:"buffer_duration"`

	// Device is a case-insensitive substring of the device name.
	// Empty selects the system default.
	Device string `mapstructure:"device" json:"device"`
}

// DefaultConfig returns a Config with sensible defaults for playback of
// realtime audio: 24 kHz mono, 20 ms buffers.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     RealtimeSampleRate,
		Channels:       1,
		BufferDuration: 20 * time.Millisecond,
	}
}

// CaptureConfig returns defaults for microphone capture at the device's
// native rate.
func CaptureConfig() Config {
	cfg := DefaultConfig()
	cfg.SampleRate = CaptureSampleRate
	return cfg
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	return nil
}

// BufferSize returns the number of frames per buffer.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the size of a buffer in bytes of PCM16.
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2
}
