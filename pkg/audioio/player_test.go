package audioio

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunk(v int16) AudioChunk {
	return AudioChunk{Samples: []int16{v, v}, SampleRate: RealtimeSampleRate, Channels: 1}
}

func TestPlayer_EnqueueInOrder(t *testing.T) {
	sink := NewMockSink(DefaultConfig(), nil)
	p := NewPlayer(sink, nil)
	ctx := context.Background()
	require.NoError(t, p.Start(ctx))

	for i := int16(1); i <= 3; i++ {
		require.NoError(t, p.Enqueue(ctx, chunk(i)))
	}
	q := sink.Queued()
	require.Len(t, q, 3)
	for i, c := range q {
		assert.Equal(t, int16(i+1), c.Samples[0])
	}
}

func TestPlayer_ClearDropsEarlierAudio(t *testing.T) {
	sink := NewMockSink(DefaultConfig(), nil)
	p := NewPlayer(sink, nil)
	ctx := context.Background()
	require.NoError(t, p.Start(ctx))

	require.NoError(t, p.Enqueue(ctx, chunk(1)))
	require.NoError(t, p.Enqueue(ctx, chunk(2)))
	require.NoError(t, p.Clear())
	require.NoError(t, p.Enqueue(ctx, chunk(3)))

	require.NoError(t, p.Flush(ctx))
	played := sink.Played()
	require.Len(t, played, 1)
	assert.Equal(t, int16(3), played[0].Samples[0])
	assert.True(t, p.Running())

	assert.Equal(t, []string{"start", "write", "write", "stop", "clear", "start", "write"}, sink.Ops())
}

func TestPlayer_ClearAfterBurst(t *testing.T) {
	sink := NewMockSink(DefaultConfig(), nil)
	p := NewPlayer(sink, nil)
	ctx := context.Background()
	require.NoError(t, p.Start(ctx))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = p.Enqueue(ctx, chunk(1))
		}
	}()
	wg.Wait()

	require.NoError(t, p.Clear())
	require.NoError(t, p.Enqueue(ctx, chunk(2)))

	for _, c := range sink.Queued() {
		assert.Equal(t, int16(2), c.Samples[0], "audio from before the clear is still queued")
	}
}

func TestPlayer_ConvertsToSinkFormat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Channels = 2
	cfg.SampleRate = 48000
	sink := NewMockSink(cfg, nil)
	p := NewPlayer(sink, nil)
	ctx := context.Background()
	require.NoError(t, p.Start(ctx))

	in := AudioChunk{Samples: make([]int16, 480), SampleRate: RealtimeSampleRate, Channels: 1}
	require.NoError(t, p.Enqueue(ctx, in))

	q := sink.Queued()
	require.Len(t, q, 1)
	assert.Equal(t, 2, q[0].Channels)
	assert.Equal(t, 48000, q[0].SampleRate)
	assert.Len(t, q[0].Samples, 960*2)
}

func TestPlayer_StopIdempotent(t *testing.T) {
	p := NewPlayer(NewMockSink(DefaultConfig(), nil), nil)
	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())
	assert.Error(t, p.Enqueue(ctx, chunk(1)))
}
