package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimedOut is returned by Once.Wait when the watchdog fires first.
var ErrTimedOut = errors.New("session: completion timed out")

// Once is a completion that resolves exactly once. It bridges callback
// style engines to blocking callers: the engine calls Resolve from its
// completion callback, the caller blocks in Wait. Late or duplicate
// resolutions are ignored and reported through Resolve's return value.
type Once[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
}

// NewOnce returns an unresolved completion.
func NewOnce[T any]() *Once[T] {
	return &Once[T]{done: make(chan struct{})}
}

// Resolve completes with v. It returns false if already resolved.
func (o *Once[T]) Resolve(v T) bool {
	resolved := false
	o.once.Do(func() {
		o.val = v
		close(o.done)
		resolved = true
	})
	return resolved
}

// Done is closed once resolved.
func (o *Once[T]) Done() <-chan struct{} {
	return o.done
}

// Resolved reports whether Resolve has been called.
func (o *Once[T]) Resolved() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}

// Wait blocks until resolved, ctx is done, or timeout elapses. On timeout
// or cancellation the completion is force-resolved with the zero value so
// a late engine callback cannot resolve it again. A zero timeout waits
// indefinitely.
func (o *Once[T]) Wait(ctx context.Context, timeout time.Duration) (T, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	var zero T
	select {
	case <-o.done:
		return o.val, nil
	case <-ctx.Done():
		o.Resolve(zero)
		return zero, ctx.Err()
	case <-expired:
		if o.Resolve(zero) {
			return zero, ErrTimedOut
		}
		return o.val, nil
	}
}
