package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsRegistered(t *testing.T) {
	Resolutions.WithLabelValues("openai", "managed", "missing_configuration").Inc()
	StateTransitions.WithLabelValues("turn", "listening").Inc()

	families, err := Registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["voicecore_backend_resolutions_total"])
	assert.True(t, names["voicecore_session_state_transitions_total"])
}

func TestCounterIncrements(t *testing.T) {
	c := SynthesisFallbacks.WithLabelValues("test-engine")
	before := testutil.ToFloat64(c)
	c.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}
