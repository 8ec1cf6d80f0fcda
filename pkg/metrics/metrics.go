// Package metrics holds the prometheus collectors voicecore exports.
//
// Collectors are registered on a package-level registry so tests can read
// them without touching the global default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voicecore"

// Registry is the registry all voicecore collectors live on.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

var (
	// StateTransitions counts session state changes.
	StateTransitions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_state_transitions_total",
		Help:      "Session state transitions by pipeline and target state.",
	}, []string{"pipeline", "state"})

	// Resolutions counts backend resolutions and the reason for any fallback.
	Resolutions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_resolutions_total",
		Help:      "Backend resolutions by requested backend, effective backend and fallback reason.",
	}, []string{"requested", "effective", "reason"})

	// SynthesisFallbacks counts network synthesis failures served by the local voice.
	SynthesisFallbacks = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "synthesis_fallbacks_total",
		Help:      "Network synthesis failures that fell back to the on-device voice.",
	}, []string{"engine"})

	// SynthesisWatchdog counts speak calls force-completed by the watchdog.
	SynthesisWatchdog = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "synthesis_watchdog_fired_total",
		Help:      "Speak calls force-completed because the engine never signalled completion.",
	})

	// TurnLatency observes per-stage latency inside a conversational turn.
	TurnLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "turn_stage_seconds",
		Help:      "Latency of turn stages: first_token, first_audio, turn.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"pipeline", "stage"})

	// RealtimeEvents counts inbound realtime events by type.
	RealtimeEvents = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "realtime_events_total",
		Help:      "Inbound realtime protocol events by type.",
	}, []string{"type"})

	// BargeIns counts playback clears caused by user speech or Interrupt.
	BargeIns = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "barge_ins_total",
		Help:      "Playback clears by pipeline and cause.",
	}, []string{"pipeline", "cause"})

	// RouteOverrides counts speaker overrides re-applied after the route reverted.
	RouteOverrides = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audio_route_overrides_reapplied_total",
		Help:      "Speaker overrides re-applied by the delayed route recheck.",
	})

	// AudioInterruptions counts hardware interruptions by kind.
	AudioInterruptions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audio_interruptions_total",
		Help:      "Audio session interruptions by kind.",
	}, []string{"kind"})
)
