package audiosession

import (
	"fmt"
	"sync"
	"time"
)

// FakeHardware records every call. Route changes it makes are reported
// on RouteChanges like real hardware would.
type FakeHardware struct {
	// RevertNext makes the next speaker override silently fall back to
	// the receiver, as some platforms do right after activation.
	RevertNext bool

	mu            sync.Mutex
	ops           []string
	route         Route
	active        bool
	category      Category
	opts          Options
	closed        bool
	interruptions chan Interruption
	routes        chan RouteChange
}

// NewFakeHardware starts on the receiver route.
func NewFakeHardware() *FakeHardware {
	return &FakeHardware{
		route:         RouteReceiver,
		interruptions: make(chan Interruption, 8),
		routes:        make(chan RouteChange, 8),
	}
}

func (f *FakeHardware) SetCategory(category Category, mode Mode, opts Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.category, f.opts = category, opts
	f.ops = append(f.ops, fmt.Sprintf("category %s %s %s", category, mode, opts))
	return nil
}

func (f *FakeHardware) SetActive(active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = active
	f.ops = append(f.ops, fmt.Sprintf("active %t", active))
	return nil
}

func (f *FakeHardware) OverrideToSpeaker(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, fmt.Sprintf("override %t", on))

	next := RouteReceiver
	if on {
		next = RouteSpeaker
		if f.RevertNext {
			f.RevertNext = false
			next = RouteReceiver
		}
	}
	f.setRouteLocked(next, "override")
	return nil
}

func (f *FakeHardware) CurrentRoute() Route {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.route
}

// SetRoute simulates an external route change such as a headset plug.
func (f *FakeHardware) SetRoute(r Route, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setRouteLocked(r, reason)
}

func (f *FakeHardware) setRouteLocked(r Route, reason string) {
	if r == f.route {
		return
	}
	ev := RouteChange{Previous: f.route, Current: r, Reason: reason, At: time.Now()}
	f.route = r
	if f.closed {
		return
	}
	select {
	case f.routes <- ev:
	default:
	}
}

// Interrupt simulates another party taking or returning the hardware.
func (f *FakeHardware) Interrupt(kind InterruptionKind, shouldResume bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.interruptions <- Interruption{Kind: kind, ShouldResume: shouldResume, At: time.Now()}
}

func (f *FakeHardware) Interruptions() <-chan Interruption { return f.interruptions }
func (f *FakeHardware) RouteChanges() <-chan RouteChange   { return f.routes }

func (f *FakeHardware) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.interruptions)
	close(f.routes)
	return nil
}

// Ops returns the recorded calls in order.
func (f *FakeHardware) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

// ResetOps clears the recorded calls.
func (f *FakeHardware) ResetOps() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = nil
}

// IsActive reports the last SetActive value.
func (f *FakeHardware) IsActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

var _ Hardware = (*FakeHardware)(nil)
