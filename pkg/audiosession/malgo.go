package audiosession

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/voicecore/pkg/audioio"
)

// DeviceLister enumerates audio endpoints. *audioio.MalgoContext satisfies it.
type DeviceLister interface {
	Devices(kind audioio.DeviceKind) ([]audioio.DeviceInfo, error)
}

// PlaybackTarget is a sink that can be moved between devices.
type PlaybackTarget interface {
	SetDevice(name string) error
}

// CaptureTarget is a source that can be moved between devices and reports
// when its device stops underneath it.
type CaptureTarget interface {
	SetDevice(name string)
	OnDeviceStop(fn func())
}

// DefaultPollInterval is how often MalgoHardware checks for device changes.
const DefaultPollInterval = time.Second

// MalgoHardware maps session configuration onto miniaudio device
// selection. Routes are inferred from device names; interruptions are
// reported when the capture device stops unexpectedly.
type MalgoHardware struct {
	devices DeviceLister
	sink    PlaybackTarget
	source  CaptureTarget
	logger  *slog.Logger

	mu       sync.Mutex
	category Category
	opts     Options
	override bool
	active   bool
	device   string
	route    Route
	closed   bool

	interruptions chan Interruption
	routes        chan RouteChange
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewMalgoHardware starts polling devices every interval. sink and source
// may be nil.
func NewMalgoHardware(devices DeviceLister, sink PlaybackTarget, source CaptureTarget, interval time.Duration, logger *slog.Logger) (*MalgoHardware, error) {
	if devices == nil {
		return nil, errors.New("audiosession: device lister required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	h := &MalgoHardware{
		devices:       devices,
		sink:          sink,
		source:        source,
		logger:        logger.With("component", "audiosession.malgo"),
		interruptions: make(chan Interruption, 4),
		routes:        make(chan RouteChange, 4),
	}
	h.route = h.resolveRoute("")

	if source != nil {
		source.OnDeviceStop(h.ReportDeviceStopped)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.wg.Add(1)
	go h.poll(ctx, interval)
	return h, nil
}

// ClassifyDevice infers a route from a device name.
func ClassifyDevice(name string) Route {
	n := strings.ToLower(name)
	switch {
	case n == "":
		return RouteUnknown
	case containsAny(n, "bluetooth", "airpods", "a2dp", "hands-free", "bt "):
		return RouteBluetooth
	case containsAny(n, "carplay", "car audio"):
		return RouteCar
	case containsAny(n, "headphone", "headset", "usb", "wired"):
		return RouteWired
	case containsAny(n, "receiver", "earpiece"):
		return RouteReceiver
	case containsAny(n, "speaker", "built-in", "internal", "analog"):
		return RouteSpeaker
	}
	return RouteUnknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func (h *MalgoHardware) SetCategory(category Category, mode Mode, opts Options) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.category, h.opts = category, opts
	h.logger.Debug("category", "category", category, "mode", mode, "options", opts)
	return h.applyLocked("category")
}

func (h *MalgoHardware) SetActive(active bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = active
	return nil
}

func (h *MalgoHardware) OverrideToSpeaker(on bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.override = on
	return h.applyLocked("override")
}

func (h *MalgoHardware) CurrentRoute() Route {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.route
}

// applyLocked picks the playback device implied by the current options
// and moves the sink and source to it.
func (h *MalgoHardware) applyLocked(reason string) error {
	playback, err := h.devices.Devices(audioio.DevicePlayback)
	if err != nil {
		return err
	}

	target := ""
	switch {
	case h.override || h.opts.Has(OptionDefaultToSpeaker):
		target = pick(playback, RouteSpeaker)
	case h.opts.Has(OptionAllowBluetooth):
		target = pick(playback, RouteBluetooth)
	}

	if target != h.device {
		if h.sink != nil {
			if err := h.sink.SetDevice(target); err != nil {
				return err
			}
		}
		if h.source != nil && h.category == CategoryPlayAndRecord && ClassifyDevice(target) == RouteBluetooth {
			h.source.SetDevice(target)
		} else if h.source != nil {
			h.source.SetDevice("")
		}
		h.device = target
	}
	h.setRouteLocked(h.routeFor(playback), reason)
	return nil
}

func pick(devices []audioio.DeviceInfo, want Route) string {
	for _, d := range devices {
		if ClassifyDevice(d.Name) == want {
			return d.Name
		}
	}
	return ""
}

func (h *MalgoHardware) routeFor(playback []audioio.DeviceInfo) Route {
	name := h.device
	if name == "" {
		for _, d := range playback {
			if d.IsDefault {
				name = d.Name
				break
			}
		}
	} else {
		present := false
		for _, d := range playback {
			if d.Name == name {
				present = true
				break
			}
		}
		if !present {
			return RouteUnknown
		}
	}
	return ClassifyDevice(name)
}

func (h *MalgoHardware) resolveRoute(device string) Route {
	playback, err := h.devices.Devices(audioio.DevicePlayback)
	if err != nil {
		return RouteUnknown
	}
	h.device = device
	return h.routeFor(playback)
}

func (h *MalgoHardware) setRouteLocked(r Route, reason string) {
	if r == h.route {
		return
	}
	ev := RouteChange{Previous: h.route, Current: r, Reason: reason, At: time.Now()}
	h.route = r
	if h.closed {
		return
	}
	select {
	case h.routes <- ev:
	default:
		h.logger.Warn("route change dropped", "route", r)
	}
}

func (h *MalgoHardware) poll(ctx context.Context, interval time.Duration) {
	defer h.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.mu.Lock()
			playback, err := h.devices.Devices(audioio.DevicePlayback)
			if err != nil {
				h.logger.Debug("device poll failed", "error", err)
			} else {
				route := h.routeFor(playback)
				if route == RouteUnknown && h.device != "" {
					// selected device went away
					h.device = ""
					if h.sink != nil {
						if err := h.sink.SetDevice(""); err != nil {
							h.logger.Warn("fall back to default device", "error", err)
						}
					}
					route = h.routeFor(playback)
				}
				h.setRouteLocked(route, "device_list_changed")
			}
			h.mu.Unlock()
		}
	}
}

// ReportDeviceStopped raises an interruption for a device that stopped
// without being asked to.
func (h *MalgoHardware) ReportDeviceStopped() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || !h.active {
		return
	}
	select {
	case h.interruptions <- Interruption{Kind: InterruptionBegan, At: time.Now()}:
	default:
	}
}

func (h *MalgoHardware) Interruptions() <-chan Interruption { return h.interruptions }
func (h *MalgoHardware) RouteChanges() <-chan RouteChange   { return h.routes }

func (h *MalgoHardware) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	h.cancel()
	h.wg.Wait()
	close(h.interruptions)
	close(h.routes)
	return nil
}

var _ Hardware = (*MalgoHardware)(nil)
