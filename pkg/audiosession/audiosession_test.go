package audiosession

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/voicecore/pkg/audioio"
	"github.com/teslashibe/voicecore/pkg/metrics"
)

type memoryModes struct {
	mu   sync.Mutex
	mode OutputMode
	err  error
}

func (m *memoryModes) OutputMode(context.Context) (OutputMode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode, m.err
}

func (m *memoryModes) SetOutputMode(_ context.Context, mode OutputMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
	return nil
}

func newManager(t *testing.T, mode OutputMode) (*Manager, *FakeHardware) {
	t.Helper()
	hw := NewFakeHardware()
	m := NewManager(hw, StaticMode(mode), nil, WithRecheckDelay(10*time.Millisecond))
	t.Cleanup(func() { _ = m.Close() })
	return m, hw
}

func TestConfigureForListening(t *testing.T) {
	tests := []struct {
		name  string
		mode  OutputMode
		ops   []string
		route Route
	}{
		{
			name:  "automatic",
			mode:  OutputAutomatic,
			ops:   []string{"category play_and_record voice_chat allow_bluetooth", "override false", "active true"},
			route: RouteReceiver,
		},
		{
			name:  "speakerphone",
			mode:  OutputSpeakerphone,
			ops:   []string{"category play_and_record voice_chat default_to_speaker", "override true", "active true"},
			route: RouteSpeaker,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, hw := newManager(t, tt.mode)
			require.NoError(t, m.ConfigureForListening(context.Background()))
			assert.Equal(t, tt.ops, hw.Ops())
			assert.Equal(t, tt.route, m.Route())
			assert.True(t, m.Active())
		})
	}
}

func TestConfigureForListeningIdempotent(t *testing.T) {
	m, hw := newManager(t, OutputAutomatic)
	ctx := context.Background()

	require.NoError(t, m.ConfigureForListening(ctx))
	hw.ResetOps()
	require.NoError(t, m.ConfigureForListening(ctx))
	assert.Empty(t, hw.Ops())

	require.NoError(t, m.ConfigureForSpeaking(ctx))
	assert.Equal(t, []string{"category playback spoken_audio none", "override true", "active true"}, hw.Ops())
	hw.ResetOps()
	require.NoError(t, m.ConfigureForSpeaking(ctx))
	assert.Empty(t, hw.Ops())
}

func TestSpeakerOverrideReapplied(t *testing.T) {
	m, hw := newManager(t, OutputSpeakerphone)
	hw.RevertNext = true
	before := testutil.ToFloat64(metrics.RouteOverrides)

	require.NoError(t, m.ConfigureForListening(context.Background()))
	assert.Equal(t, RouteReceiver, hw.CurrentRoute())

	assert.Eventually(t, func() bool {
		return hw.CurrentRoute() == RouteSpeaker
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RouteOverrides))
}

func TestDeactivateCancelsRecheck(t *testing.T) {
	m, hw := newManager(t, OutputSpeakerphone)
	hw.RevertNext = true

	require.NoError(t, m.ConfigureForListening(context.Background()))
	require.NoError(t, m.Deactivate())
	hw.ResetOps()

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, hw.Ops())
	assert.Equal(t, RouteReceiver, hw.CurrentRoute())
	assert.False(t, hw.IsActive())
}

func TestSetOutputModeReconfiguresListening(t *testing.T) {
	hw := NewFakeHardware()
	modes := &memoryModes{mode: OutputAutomatic}
	m := NewManager(hw, modes, nil, WithRecheckDelay(time.Hour))
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.ConfigureForListening(ctx))
	hw.ResetOps()

	require.NoError(t, m.SetOutputMode(ctx, OutputSpeakerphone))
	got, _ := modes.OutputMode(ctx)
	assert.Equal(t, OutputSpeakerphone, got)
	assert.Contains(t, hw.Ops(), "override true")
	assert.Equal(t, RouteSpeaker, m.Route())

	// not listening: persisted only
	require.NoError(t, m.ConfigureForSpeaking(ctx))
	hw.ResetOps()
	require.NoError(t, m.SetOutputMode(ctx, OutputAutomatic))
	assert.Empty(t, hw.Ops())
}

func TestOutputModeErrorFallsBackToAutomatic(t *testing.T) {
	hw := NewFakeHardware()
	m := NewManager(hw, &memoryModes{err: errors.New("store down")}, nil)
	defer m.Close()

	require.NoError(t, m.ConfigureForListening(context.Background()))
	assert.Contains(t, hw.Ops(), "override false")
}

func TestNotificationsForwarded(t *testing.T) {
	m, hw := newManager(t, OutputAutomatic)
	interruptions := m.Interruptions()
	routes := m.RouteChanges()
	before := testutil.ToFloat64(metrics.AudioInterruptions.WithLabelValues(string(InterruptionBegan)))

	hw.Interrupt(InterruptionBegan, false)
	select {
	case ev := <-interruptions:
		assert.Equal(t, InterruptionBegan, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("interruption not forwarded")
	}
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.AudioInterruptions.WithLabelValues(string(InterruptionBegan))))

	hw.SetRoute(RouteWired, "new_device")
	select {
	case ev := <-routes:
		assert.Equal(t, RouteReceiver, ev.Previous)
		assert.Equal(t, RouteWired, ev.Current)
		assert.Equal(t, "new_device", ev.Reason)
	case <-time.After(time.Second):
		t.Fatal("route change not forwarded")
	}
}

func TestCloseRejectsConfigure(t *testing.T) {
	hw := NewFakeHardware()
	m := NewManager(hw, nil, nil)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Error(t, m.ConfigureForListening(context.Background()))
	assert.Error(t, m.ConfigureForSpeaking(context.Background()))
}

func TestParseOutputMode(t *testing.T) {
	for in, want := range map[string]OutputMode{"": OutputAutomatic, "automatic": OutputAutomatic, "speakerphone": OutputSpeakerphone} {
		got, err := ParseOutputMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseOutputMode("loud")
	assert.Error(t, err)
}

func TestClassifyDevice(t *testing.T) {
	tests := []struct {
		name string
		want Route
	}{
		{"MacBook Pro Speakers", RouteSpeaker},
		{"Built-in Audio Analog Stereo", RouteSpeaker},
		{"AirPods Pro", RouteBluetooth},
		{"USB Headset", RouteWired},
		{"Receiver", RouteReceiver},
		{"Mystery Box", RouteUnknown},
		{"", RouteUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyDevice(tt.name))
		})
	}
}

type fakeDevices struct {
	mu       sync.Mutex
	playback []audioio.DeviceInfo
}

func (f *fakeDevices) Devices(kind audioio.DeviceKind) ([]audioio.DeviceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if kind == audioio.DeviceCapture {
		return nil, nil
	}
	return append([]audioio.DeviceInfo(nil), f.playback...), nil
}

func (f *fakeDevices) set(devs ...audioio.DeviceInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playback = devs
}

type fakeSink struct {
	mu      sync.Mutex
	devices []string
}

func (f *fakeSink) SetDevice(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = append(f.devices, name)
	return nil
}

func (f *fakeSink) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.devices) == 0 {
		return ""
	}
	return f.devices[len(f.devices)-1]
}

type fakeSource struct {
	device string
	onStop func()
}

func (f *fakeSource) SetDevice(name string)  { f.device = name }
func (f *fakeSource) OnDeviceStop(fn func()) { f.onStop = fn }

func TestMalgoHardwareRouting(t *testing.T) {
	devs := &fakeDevices{}
	devs.set(
		audioio.DeviceInfo{Name: "Receiver", IsDefault: true},
		audioio.DeviceInfo{Name: "MacBook Pro Speakers"},
		audioio.DeviceInfo{Name: "AirPods Pro"},
	)
	sink := &fakeSink{}
	src := &fakeSource{}

	hw, err := NewMalgoHardware(devs, sink, src, 10*time.Millisecond, nil)
	require.NoError(t, err)
	defer hw.Close()
	assert.Equal(t, RouteReceiver, hw.CurrentRoute())

	require.NoError(t, hw.SetCategory(CategoryPlayAndRecord, ModeVoiceChat, OptionAllowBluetooth))
	assert.Equal(t, "AirPods Pro", sink.last())
	assert.Equal(t, "AirPods Pro", src.device)
	assert.Equal(t, RouteBluetooth, hw.CurrentRoute())

	require.NoError(t, hw.OverrideToSpeaker(true))
	assert.Equal(t, "MacBook Pro Speakers", sink.last())
	assert.Equal(t, "", src.device)
	assert.Equal(t, RouteSpeaker, hw.CurrentRoute())

	changes := hw.RouteChanges()
	for len(changes) > 0 {
		<-changes
	}

	// speakers disappear; the poller falls back to the default device
	devs.set(audioio.DeviceInfo{Name: "Receiver", IsDefault: true})
	select {
	case ev := <-changes:
		assert.Equal(t, RouteReceiver, ev.Current)
		assert.Equal(t, "device_list_changed", ev.Reason)
	case <-time.After(time.Second):
		t.Fatal("no route change from poll")
	}
	assert.Equal(t, "", sink.last())
}

func TestMalgoHardwareDeviceStopped(t *testing.T) {
	devs := &fakeDevices{}
	src := &fakeSource{}
	hw, err := NewMalgoHardware(devs, nil, src, time.Hour, nil)
	require.NoError(t, err)
	defer hw.Close()
	require.NotNil(t, src.onStop)

	// inactive sessions are not interrupted
	src.onStop()
	assert.Len(t, hw.Interruptions(), 0)

	require.NoError(t, hw.SetActive(true))
	src.onStop()
	ev := <-hw.Interruptions()
	assert.Equal(t, InterruptionBegan, ev.Kind)
}
