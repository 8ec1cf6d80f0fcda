package session

import (
	"log/slog"
	"sync"
)

// Broadcaster fans values out to subscribers, each with its own buffered
// channel. In lossless mode a subscriber whose buffer is full is dropped
// and its channel closed, so every value it did receive arrived in order.
// In lossy mode the value is skipped for that subscriber instead.
type Broadcaster[T any] struct {
	name   string
	lossy  bool
	buffer int
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[chan T]struct{}
	closed bool
}

// NewBroadcaster creates a broadcaster. buffer is the per-subscriber
// channel capacity.
func NewBroadcaster[T any](name string, buffer int, lossy bool, logger *slog.Logger) *Broadcaster[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster[T]{
		name:   name,
		lossy:  lossy,
		buffer: buffer,
		logger: logger,
		subs:   make(map[chan T]struct{}),
	}
}

// Subscribe returns a new channel. If the broadcaster is already closed
// the channel is returned closed.
func (b *Broadcaster[T]) Subscribe() <-chan T {
	ch := make(chan T, b.buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes ch.
func (b *Broadcaster[T]) Unsubscribe(ch <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.subs {
		if c == ch {
			delete(b.subs, c)
			close(c)
			return
		}
	}
}

// Publish delivers v to every subscriber without blocking.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for ch := range b.subs {
		select {
		case ch <- v:
		default:
			if b.lossy {
				continue
			}
			delete(b.subs, ch)
			close(ch)
			b.logger.Warn("dropped slow subscriber", "stream", b.name)
		}
	}
}

// Len returns the subscriber count.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
