package audioio

import (
	"context"
	"io"
	"time"
)

// AudioChunk is a run of interleaved PCM16 samples.
type AudioChunk struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// ChunkFromBytes decodes little-endian PCM16 bytes into a chunk.
func ChunkFromBytes(data []byte, sampleRate, channels int) AudioChunk {
	return AudioChunk{
		Samples:    BytesToSamples(data),
		SampleRate: sampleRate,
		Channels:   channels,
	}
}

// Bytes encodes the chunk as little-endian PCM16.
func (c AudioChunk) Bytes() []byte {
	return SamplesToBytes(c.Samples)
}

// Frames returns the number of sample frames.
func (c AudioChunk) Frames() int {
	if c.Channels == 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// Duration returns the playback length of the chunk.
func (c AudioChunk) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(c.Frames()) * time.Second / time.Duration(c.SampleRate)
}

// Source captures audio from a microphone or other input device.
type Source interface {
	// Start begins capture. Chunks are then available via Stream.
	Start(ctx context.Context) error

	// Stop halts capture and closes the stream channel.
	// It is safe to call Stop multiple times.
	Stop() error

	// Stream returns the channel of captured chunks for the current run.
	Stream() <-chan AudioChunk

	// Config returns the audio configuration.
	Config() Config

	// Name returns the backend name.
	Name() string

	io.Closer
}

// Sink plays audio to a speaker or other output device.
type Sink interface {
	// Start begins playback. Audio written before Start is rejected.
	Start(ctx context.Context) error

	// Stop halts playback. Buffered audio is kept until Clear.
	Stop() error

	// Write queues a chunk for playback. It does not wait for playback.
	Write(ctx context.Context, chunk AudioChunk) error

	// Flush waits for queued audio to finish playing.
	Flush(ctx context.Context) error

	// Clear discards queued audio immediately.
	Clear() error

	Config() Config
	Name() string
	io.Closer
}
