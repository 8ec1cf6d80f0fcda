package audiosession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/voicecore/pkg/metrics"
	"github.com/teslashibe/voicecore/pkg/session"
)

// OutputMode is the user's listening output preference.
type OutputMode string

const (
	OutputAutomatic    OutputMode = "automatic"
	OutputSpeakerphone OutputMode = "speakerphone"
)

// ParseOutputMode parses s, defaulting to automatic.
func ParseOutputMode(s string) (OutputMode, error) {
	switch OutputMode(s) {
	case "", OutputAutomatic:
		return OutputAutomatic, nil
	case OutputSpeakerphone:
		return OutputSpeakerphone, nil
	}
	return OutputAutomatic, fmt.Errorf("audiosession: unknown output mode %q", s)
}

// OutputModeSource supplies the current output preference.
type OutputModeSource interface {
	OutputMode(ctx context.Context) (OutputMode, error)
}

// OutputModeStore also persists the preference.
type OutputModeStore interface {
	OutputModeSource
	SetOutputMode(ctx context.Context, mode OutputMode) error
}

// StaticMode is an OutputModeSource that always returns itself.
type StaticMode OutputMode

// OutputMode returns m.
func (m StaticMode) OutputMode(context.Context) (OutputMode, error) { return OutputMode(m), nil }

// DefaultRecheckDelay is how long after activation the speaker route is
// verified in speakerphone mode.
const DefaultRecheckDelay = 300 * time.Millisecond

type purpose int

const (
	purposeNone purpose = iota
	purposeListening
	purposeSpeaking
)

type profile struct {
	purpose purpose
	mode    OutputMode
}

// Option configures a Manager.
type Option func(*Manager)

// WithRecheckDelay overrides DefaultRecheckDelay.
func WithRecheckDelay(d time.Duration) Option {
	return func(m *Manager) { m.recheckDelay = d }
}

// Manager applies audio session configurations to one Hardware handle.
// All mutation is serialized by its mutex.
type Manager struct {
	hw           Hardware
	modes        OutputModeSource
	recheckDelay time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	current profile
	active  bool
	gen     uint64
	recheck *time.Timer
	closed  bool

	interruptions *session.Broadcaster[Interruption]
	routes        *session.Broadcaster[RouteChange]
	done          chan struct{}
	wg            sync.WaitGroup
}

// NewManager takes ownership of hw.
func NewManager(hw Hardware, modes OutputModeSource, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if modes == nil {
		modes = StaticMode(OutputAutomatic)
	}
	logger = logger.With("component", "audiosession.manager")
	m := &Manager{
		hw:            hw,
		modes:         modes,
		recheckDelay:  DefaultRecheckDelay,
		logger:        logger,
		interruptions: session.NewBroadcaster[Interruption]("interruptions", 8, true, logger),
		routes:        session.NewBroadcaster[RouteChange]("route_changes", 8, true, logger),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.wg.Add(1)
	go m.forward()
	return m
}

func (m *Manager) forward() {
	defer m.wg.Done()
	interruptions := m.hw.Interruptions()
	routes := m.hw.RouteChanges()
	for interruptions != nil || routes != nil {
		select {
		case <-m.done:
			return
		case ev, ok := <-interruptions:
			if !ok {
				interruptions = nil
				continue
			}
			metrics.AudioInterruptions.WithLabelValues(string(ev.Kind)).Inc()
			m.logger.Info("audio interruption", "kind", ev.Kind, "should_resume", ev.ShouldResume)
			m.interruptions.Publish(ev)
		case ev, ok := <-routes:
			if !ok {
				routes = nil
				continue
			}
			m.logger.Info("audio route changed", "from", ev.Previous, "to", ev.Current, "reason", ev.Reason)
			m.routes.Publish(ev)
		}
	}
}

func (m *Manager) outputMode(ctx context.Context) OutputMode {
	m.mu.Lock()
	modes := m.modes
	m.mu.Unlock()

	mode, err := modes.OutputMode(ctx)
	if err != nil {
		m.logger.Warn("output mode unavailable, using automatic", "error", err)
		return OutputAutomatic
	}
	if mode == "" {
		return OutputAutomatic
	}
	return mode
}

// ConfigureForListening prepares duplex capture according to the output
// mode. Calling it again with nothing changed does not touch the hardware.
func (m *Manager) ConfigureForListening(ctx context.Context) error {
	mode := m.outputMode(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.configureListeningLocked(mode, false)
}

func (m *Manager) configureListeningLocked(mode OutputMode, force bool) error {
	if m.closed {
		return errors.New("audiosession: manager closed")
	}
	want := profile{purpose: purposeListening, mode: mode}
	if !force && m.active && m.current == want {
		return nil
	}
	m.cancelRecheckLocked()

	speaker := mode == OutputSpeakerphone
	opts := OptionAllowBluetooth
	if speaker {
		opts = OptionDefaultToSpeaker
	}

	if err := m.hw.SetCategory(CategoryPlayAndRecord, ModeVoiceChat, opts); err != nil {
		return fmt.Errorf("audiosession: set category: %w", err)
	}
	if err := m.hw.OverrideToSpeaker(speaker); err != nil {
		return fmt.Errorf("audiosession: override route: %w", err)
	}
	if err := m.hw.SetActive(true); err != nil {
		return fmt.Errorf("audiosession: activate: %w", err)
	}
	m.current = want
	m.active = true
	m.logger.Debug("configured for listening", "mode", mode, "options", opts, "route", m.hw.CurrentRoute())

	if speaker {
		gen := m.gen
		m.recheck = time.AfterFunc(m.recheckDelay, func() { m.recheckSpeaker(gen) })
	}
	return nil
}

// recheckSpeaker re-applies the speaker override if the platform silently
// moved output off the speaker after activation.
func (m *Manager) recheckSpeaker(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.closed || !m.active {
		return
	}
	if m.current != (profile{purpose: purposeListening, mode: OutputSpeakerphone}) {
		return
	}
	m.recheck = nil

	route := m.hw.CurrentRoute()
	if route == RouteSpeaker {
		return
	}
	m.logger.Warn("speaker route reverted, re-applying override", "route", route)
	if err := m.hw.OverrideToSpeaker(true); err != nil {
		m.logger.Error("re-apply speaker override", "error", err)
		return
	}
	metrics.RouteOverrides.Inc()
}

// ConfigureForSpeaking prepares playback-only output, always on the speaker.
func (m *Manager) ConfigureForSpeaking(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("audiosession: manager closed")
	}
	want := profile{purpose: purposeSpeaking}
	if m.active && m.current == want {
		return nil
	}
	m.cancelRecheckLocked()

	if err := m.hw.SetCategory(CategoryPlayback, ModeSpokenAudio, 0); err != nil {
		return fmt.Errorf("audiosession: set category: %w", err)
	}
	if err := m.hw.OverrideToSpeaker(true); err != nil {
		return fmt.Errorf("audiosession: override route: %w", err)
	}
	if err := m.hw.SetActive(true); err != nil {
		return fmt.Errorf("audiosession: activate: %w", err)
	}
	m.current = want
	m.active = true
	m.logger.Debug("configured for speaking", "route", m.hw.CurrentRoute())
	return nil
}

// Deactivate cancels any pending recheck and releases the hardware.
func (m *Manager) Deactivate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelRecheckLocked()
	if !m.active {
		return nil
	}
	m.active = false
	m.current = profile{}
	if err := m.hw.SetActive(false); err != nil {
		return fmt.Errorf("audiosession: deactivate: %w", err)
	}
	m.logger.Debug("deactivated")
	return nil
}

// SetOutputMode persists mode when the source can store it and applies it
// at once if the session is currently listening.
func (m *Manager) SetOutputMode(ctx context.Context, mode OutputMode) error {
	m.mu.Lock()
	modes := m.modes
	m.mu.Unlock()

	if store, ok := modes.(OutputModeStore); ok {
		if err := store.SetOutputMode(ctx, mode); err != nil {
			return fmt.Errorf("audiosession: persist output mode: %w", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.modes.(OutputModeStore); !ok {
		m.modes = StaticMode(mode)
	}
	if m.active && m.current.purpose == purposeListening && m.current.mode != mode {
		return m.configureListeningLocked(mode, true)
	}
	return nil
}

// Active reports whether the hardware session is active.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Route returns the hardware's current output route.
func (m *Manager) Route() Route {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hw.CurrentRoute()
}

// Interruptions subscribes to interruption notifications.
func (m *Manager) Interruptions() <-chan Interruption { return m.interruptions.Subscribe() }

// RouteChanges subscribes to route change notifications.
func (m *Manager) RouteChanges() <-chan RouteChange { return m.routes.Subscribe() }

// Close deactivates, stops forwarding and closes the hardware.
func (m *Manager) Close() error {
	err := m.Deactivate()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return err
	}
	m.closed = true
	m.mu.Unlock()

	close(m.done)
	m.wg.Wait()
	m.interruptions.Close()
	m.routes.Close()
	return errors.Join(err, m.hw.Close())
}

func (m *Manager) cancelRecheckLocked() {
	m.gen++
	if m.recheck != nil {
		m.recheck.Stop()
		m.recheck = nil
	}
}
