package audioio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// DeviceKind selects capture or playback devices.
type DeviceKind int

const (
	DeviceCapture DeviceKind = iota
	DevicePlayback
)

func (k DeviceKind) malgo() malgo.DeviceType {
	if k == DeviceCapture {
		return malgo.Capture
	}
	return malgo.Playback
}

// DeviceInfo describes an audio endpoint.
type DeviceInfo struct {
	Name      string
	IsDefault bool
}

// MalgoContext owns one miniaudio context. Sources and sinks created from
// it share the context; Close it after closing them.
type MalgoContext struct {
	ctx    *malgo.AllocatedContext
	logger *slog.Logger
}

// NewMalgoContext initializes miniaudio with the platform default backends.
func NewMalgoContext(logger *slog.Logger) (*MalgoContext, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "audioio.malgo")

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		logger.Debug("miniaudio", "msg", strings.TrimSpace(msg))
	})
	if err != nil {
		return nil, fmt.Errorf("init miniaudio context: %w", err)
	}
	return &MalgoContext{ctx: ctx, logger: logger}, nil
}

// Devices lists endpoints of the given kind.
func (m *MalgoContext) Devices(kind DeviceKind) ([]DeviceInfo, error) {
	infos, err := m.ctx.Devices(kind.malgo())
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	out := make([]DeviceInfo, len(infos))
	for i := range infos {
		out[i] = DeviceInfo{Name: infos[i].Name(), IsDefault: infos[i].IsDefault != 0}
	}
	return out, nil
}

// find returns the ID of the first device whose name contains name.
// An empty name returns nil, meaning the system default.
func (m *MalgoContext) find(kind DeviceKind, name string) (*malgo.DeviceID, error) {
	if name == "" {
		return nil, nil
	}
	infos, err := m.ctx.Devices(kind.malgo())
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	needle := strings.ToLower(name)
	for i := range infos {
		if strings.Contains(strings.ToLower(infos[i].Name()), needle) {
			id := infos[i].ID
			return &id, nil
		}
	}
	return nil, fmt.Errorf("no device matching %q", name)
}

// Close releases the context.
func (m *MalgoContext) Close() error {
	if m.ctx == nil {
		return nil
	}
	err := m.ctx.Uninit()
	m.ctx.Free()
	m.ctx = nil
	return err
}

// MalgoSource captures PCM16 from a miniaudio device.
type MalgoSource struct {
	mctx   *MalgoContext
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	device   *malgo.Device
	streamCh chan AudioChunk
	onStop   func()
	stopping bool
	closed   bool
}

// NewMalgoSource prepares a capture source. The device opens on Start.
func NewMalgoSource(mctx *MalgoContext, cfg Config, logger *slog.Logger) (*MalgoSource, error) {
	if mctx == nil {
		return nil, errors.New("audioio: malgo source needs a context")
	}
	if logger == nil {
		logger = slog.Default()
	}
	ch := make(chan AudioChunk)
	close(ch)
	return &MalgoSource{
		mctx:     mctx,
		cfg:      cfg,
		logger:   logger.With("component", "audioio.malgo_source"),
		streamCh: ch,
	}, nil
}

// OnDeviceStop registers a callback for when the device stops without
// being asked to, e.g. unplugged or taken by another process.
func (s *MalgoSource) OnDeviceStop(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStop = fn
}

// SetDevice selects the capture device for the next Start.
func (s *MalgoSource) SetDevice(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Device = name
}

// Start opens the device and begins capture.
func (s *MalgoSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	if s.device != nil {
		return nil
	}

	id, err := s.mctx.find(DeviceCapture, s.cfg.Device)
	if err != nil {
		return err
	}

	dc := malgo.DefaultDeviceConfig(malgo.Capture)
	dc.SampleRate = uint32(s.cfg.SampleRate)
	dc.Capture.Format = malgo.FormatS16
	dc.Capture.Channels = uint32(s.cfg.Channels)
	if id != nil {
		dc.Capture.DeviceID = id.Pointer()
	}
	dc.Alsa.NoMMap = 1
	dc.PerformanceProfile = malgo.LowLatency
	dc.PeriodSizeInFrames = uint32(s.cfg.BufferSize())

	out := make(chan AudioChunk, 32)
	bytesPerFrame := malgo.SampleSizeInBytes(malgo.FormatS16) * s.cfg.Channels
	rate, channels := s.cfg.SampleRate, s.cfg.Channels

	device, err := malgo.InitDevice(s.mctx.ctx.Context, dc, malgo.DeviceCallbacks{
		Data: func(_, input []byte, frames uint32) {
			n := int(frames) * bytesPerFrame
			if n == 0 || len(input) < n {
				return
			}
			select {
			case out <- ChunkFromBytes(input[:n], rate, channels):
			default:
			}
		},
		Stop: func() {
			s.mu.Lock()
			fn := s.onStop
			if s.stopping {
				fn = nil
			}
			s.mu.Unlock()
			if fn != nil {
				fn()
			}
		},
	})
	if err != nil {
		return fmt.Errorf("init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start capture device: %w", err)
	}

	s.device = device
	s.streamCh = out
	s.logger.Info("capture started", "sample_rate", rate, "channels", channels, "device", s.cfg.Device)
	return nil
}

// Stop closes the device and the stream.
func (s *MalgoSource) Stop() error {
	s.mu.Lock()
	device := s.device
	s.device = nil
	out := s.streamCh
	s.stopping = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.stopping = false
		s.mu.Unlock()
	}()

	if device == nil {
		return nil
	}
	// Uninit waits for in-flight callbacks, so closing out afterwards is safe.
	device.Uninit()
	close(out)
	s.logger.Info("capture stopped")
	return nil
}

// Stream returns the chunk channel of the current run.
func (s *MalgoSource) Stream() <-chan AudioChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

func (s *MalgoSource) Config() Config { return s.cfg }
func (s *MalgoSource) Name() string   { return string(BackendMalgo) }

// Close stops capture for good.
func (s *MalgoSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

// MalgoSink plays PCM16 through a miniaudio device. Written audio is kept
// in a byte queue drained by the device callback.
type MalgoSink struct {
	mctx   *MalgoContext
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	device *malgo.Device
	closed bool

	bufMu sync.Mutex
	buf   []byte
}

// NewMalgoSink prepares a playback sink. The device opens on first Start.
func NewMalgoSink(mctx *MalgoContext, cfg Config, logger *slog.Logger) (*MalgoSink, error) {
	if mctx == nil {
		return nil, errors.New("audioio: malgo sink needs a context")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MalgoSink{mctx: mctx, cfg: cfg, logger: logger.With("component", "audioio.malgo_sink")}, nil
}

func (s *MalgoSink) open() error {
	id, err := s.mctx.find(DevicePlayback, s.cfg.Device)
	if err != nil {
		return err
	}

	dc := malgo.DefaultDeviceConfig(malgo.Playback)
	dc.SampleRate = uint32(s.cfg.SampleRate)
	dc.Playback.Format = malgo.FormatS16
	dc.Playback.Channels = uint32(s.cfg.Channels)
	if id != nil {
		dc.Playback.DeviceID = id.Pointer()
	}
	dc.Alsa.NoMMap = 1
	dc.PeriodSizeInFrames = uint32(s.cfg.BufferSize())
	dc.Periods = 4

	bytesPerFrame := malgo.SampleSizeInBytes(malgo.FormatS16) * s.cfg.Channels
	device, err := malgo.InitDevice(s.mctx.ctx.Context, dc, malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frames uint32) {
			need := int(frames) * bytesPerFrame
			s.bufMu.Lock()
			n := copy(output[:need], s.buf)
			s.buf = s.buf[n:]
			s.bufMu.Unlock()
			clear(output[n:need])
		},
	})
	if err != nil {
		return fmt.Errorf("init playback device: %w", err)
	}
	s.device = device
	return nil
}

// Start opens the device if needed and starts playback.
func (s *MalgoSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	if s.device == nil {
		if err := s.open(); err != nil {
			return err
		}
	}
	if s.device.IsStarted() {
		return nil
	}
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("start playback device: %w", err)
	}
	return nil
}

// Stop pauses the device. Queued audio stays until Clear.
func (s *MalgoSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil || !s.device.IsStarted() {
		return nil
	}
	if err := s.device.Stop(); err != nil {
		return fmt.Errorf("stop playback device: %w", err)
	}
	return nil
}

// Write appends chunk to the playback queue.
func (s *MalgoSink) Write(ctx context.Context, chunk AudioChunk) error {
	s.mu.Lock()
	started := s.device != nil && s.device.IsStarted()
	s.mu.Unlock()
	if !started {
		return errors.New("audioio: playback device not started")
	}
	data := chunk.Bytes()
	s.bufMu.Lock()
	s.buf = append(s.buf, data...)
	s.bufMu.Unlock()
	return nil
}

// Flush waits for the queue to drain.
func (s *MalgoSink) Flush(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		s.bufMu.Lock()
		remaining := len(s.buf)
		s.bufMu.Unlock()
		if remaining == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Clear drops queued audio.
func (s *MalgoSink) Clear() error {
	s.bufMu.Lock()
	s.buf = nil
	s.bufMu.Unlock()
	return nil
}

// SetDevice retargets playback to the device matching name. A running
// device is reopened on the new endpoint; queued audio is kept.
func (s *MalgoSink) SetDevice(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.Device == name {
		return nil
	}
	s.cfg.Device = name
	if s.device == nil {
		return nil
	}
	wasStarted := s.device.IsStarted()
	s.device.Uninit()
	s.device = nil
	if !wasStarted {
		return nil
	}
	if err := s.open(); err != nil {
		return err
	}
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("start playback device: %w", err)
	}
	return nil
}

func (s *MalgoSink) Config() Config { return s.cfg }
func (s *MalgoSink) Name() string   { return string(BackendMalgo) }

// Close releases the device.
func (s *MalgoSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	return nil
}

var (
	_ Source = (*MalgoSource)(nil)
	_ Sink   = (*MalgoSink)(nil)
)
