package audioio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Player schedules chunks on a Sink in arrival order and supports
// clearing queued audio for barge-in.
//
// Enqueue and Clear share one mutex. A Clear stops the sink, discards its
// buffer and restarts it before returning, so audio enqueued before the
// Clear is never audible after it, and audio enqueued after the Clear is
// always scheduled on the restarted sink.
type Player struct {
	sink   Sink
	logger *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	running bool
	clears  int
}

// NewPlayer wraps sink.
func NewPlayer(sink Sink, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{sink: sink, logger: logger.With("component", "audioio.player")}
}

// Start starts the underlying sink.
func (p *Player) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	if err := p.sink.Start(ctx); err != nil {
		return fmt.Errorf("start sink: %w", err)
	}
	p.ctx = ctx
	p.running = true
	return nil
}

// Enqueue schedules chunk for immediate playback after anything already queued.
func (p *Player) Enqueue(ctx context.Context, chunk AudioChunk) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return fmt.Errorf("player not running")
	}
	return p.sink.Write(ctx, ConvertTo(chunk, p.sink.Config()))
}

// Clear drops everything queued and leaves the player running.
func (p *Player) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return p.sink.Clear()
	}

	if err := p.sink.Stop(); err != nil {
		return fmt.Errorf("stop sink: %w", err)
	}
	if err := p.sink.Clear(); err != nil {
		return fmt.Errorf("clear sink: %w", err)
	}
	if err := p.sink.Start(p.ctx); err != nil {
		p.running = false
		return fmt.Errorf("restart sink: %w", err)
	}
	p.clears++
	p.logger.Debug("playback cleared", "clears", p.clears)
	return nil
}

// Flush waits for queued audio to finish.
func (p *Player) Flush(ctx context.Context) error {
	return p.sink.Flush(ctx)
}

// Stop discards queued audio and stops the sink. Safe to call repeatedly.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return nil
	}
	p.running = false
	_ = p.sink.Clear()
	return p.sink.Stop()
}

// Running reports whether the player accepts audio.
func (p *Player) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
