package access

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/voicecore/pkg/backend"
)

func only(ids ...backend.ID) func(backend.ID) bool {
	set := make(map[backend.ID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return func(id backend.ID) bool { return set[id] }
}

func except(ids ...backend.ID) func(backend.ID) bool {
	in := only(ids...)
	return func(id backend.ID) bool { return !in(id) }
}

func TestResolve_RequestedUsable(t *testing.T) {
	res, err := Resolve(Request{
		Requested:       backend.OpenAI,
		Tier:            backend.TierFree,
		Surface:         backend.SurfacePhone,
		PlatformVersion: 18,
	}, Probes{})
	require.NoError(t, err)
	assert.Equal(t, backend.OpenAI, res.Effective)
	assert.Equal(t, ReasonNone, res.Reason)
	assert.False(t, res.FellBack())
	assert.Empty(t, res.Message)
}

func TestResolve_FallbackReasons(t *testing.T) {
	tests := []struct {
		name   string
		req    Request
		probes Probes
		reason Reason
		want   backend.ID
	}{
		{
			name:   "premium only backend on free tier",
			req:    Request{Requested: backend.OpenAIRealtime, Tier: backend.TierFree, Surface: backend.SurfacePhone, PlatformVersion: 26},
			reason: ReasonTierRestricted,
			want:   backend.Managed,
		},
		{
			name:   "tier beats platform",
			req:    Request{Requested: backend.OnDevice, Tier: backend.TierFree, Surface: backend.SurfaceHeadUnit, PlatformVersion: 10},
			reason: ReasonTierRestricted,
			want:   backend.Managed,
		},
		{
			name:   "on-device below version gate",
			req:    Request{Requested: backend.OnDevice, Tier: backend.TierPlus, Surface: backend.SurfacePhone, PlatformVersion: 25},
			reason: ReasonPlatformUnsupported,
			want:   backend.Managed,
		},
		{
			name:   "on-device on head unit",
			req:    Request{Requested: backend.OnDevice, Tier: backend.TierPro, Surface: backend.SurfaceHeadUnit, PlatformVersion: 30},
			reason: ReasonPlatformUnsupported,
			want:   backend.Managed,
		},
		{
			name:   "statically retired",
			req:    Request{Requested: backend.Groq, Tier: backend.TierPro, Surface: backend.SurfacePhone, PlatformVersion: 26},
			reason: ReasonBackendUnavailable,
			want:   backend.Managed,
		},
		{
			name:   "runtime probe beats configuration",
			req:    Request{Requested: backend.Anthropic, Tier: backend.TierPlus, Surface: backend.SurfacePhone, PlatformVersion: 26},
			probes: Probes{IsConfigured: except(backend.Anthropic), IsRuntimeAvailable: except(backend.Anthropic)},
			reason: ReasonBackendUnavailable,
			want:   backend.Managed,
		},
		{
			name:   "missing key",
			req:    Request{Requested: backend.Gemini, Tier: backend.TierPlus, Surface: backend.SurfacePhone, PlatformVersion: 26},
			probes: Probes{IsConfigured: except(backend.Gemini)},
			reason: ReasonMissingConfiguration,
			want:   backend.Managed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Resolve(tt.req, tt.probes)
			require.NoError(t, err)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Equal(t, tt.want, res.Effective)
			assert.True(t, res.FellBack())
			assert.NotEmpty(t, res.Message)
		})
	}
}

func TestResolve_CandidateOrder(t *testing.T) {
	base := Request{
		Requested:       backend.Gemini,
		Tier:            backend.TierPro,
		Surface:         backend.SurfacePhone,
		PlatformVersion: 26,
	}
	missingGemini := Probes{IsConfigured: except(backend.Gemini)}

	t.Run("last working first", func(t *testing.T) {
		req := base
		req.LastWorking = backend.Anthropic
		req.LastChosen = backend.OpenAI
		res, err := Resolve(req, missingGemini)
		require.NoError(t, err)
		assert.Equal(t, backend.Anthropic, res.Effective)
	})

	t.Run("last chosen second", func(t *testing.T) {
		req := base
		req.LastWorking = backend.Groq
		req.LastChosen = backend.OpenAI
		res, err := Resolve(req, missingGemini)
		require.NoError(t, err)
		assert.Equal(t, backend.OpenAI, res.Effective)
	})

	t.Run("gated on-device last chosen skipped", func(t *testing.T) {
		req := base
		req.LastChosen = backend.OnDevice
		probes := Probes{IsConfigured: only(backend.OnDevice, backend.Anthropic)}
		res, err := Resolve(req, probes)
		require.NoError(t, err)
		assert.Equal(t, backend.Anthropic, res.Effective)
	})

	t.Run("requested never returned as candidate", func(t *testing.T) {
		req := base
		req.LastWorking = backend.Gemini
		req.LastChosen = backend.Gemini
		res, err := Resolve(req, missingGemini)
		require.NoError(t, err)
		assert.NotEqual(t, backend.Gemini, res.Effective)
	})
}

func TestResolve_NothingUsable(t *testing.T) {
	res, err := Resolve(Request{
		Requested:       backend.OpenAI,
		Tier:            backend.TierFree,
		Surface:         backend.SurfacePhone,
		PlatformVersion: 26,
	}, Probes{IsConfigured: func(backend.ID) bool { return false }})

	require.Error(t, err)
	assert.ErrorIs(t, err, backend.ErrConfigurationMissing)
	assert.Equal(t, ReasonMissingConfiguration, res.Reason)
	assert.Empty(t, res.Effective)
}

func TestCandidates_Deduplicated(t *testing.T) {
	got := candidates(Request{
		Requested:   backend.Managed,
		LastWorking: backend.OpenAI,
		LastChosen:  backend.OpenAI,
	})
	assert.Equal(t, []backend.ID{
		backend.OpenAI, backend.Anthropic, backend.Gemini,
		backend.OnDevice, backend.OpenAIRealtime, backend.Groq,
	}, got)
}

type fakeCreds map[backend.ID]string

func (f fakeCreds) Get(_ context.Context, id backend.ID) (string, error) {
	v, ok := f[id]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func TestConfiguredByCredentials(t *testing.T) {
	probe := ConfiguredByCredentials(context.Background(), fakeCreds{
		backend.OpenAI:    "sk-test",
		backend.Anthropic: "   ",
	})
	assert.True(t, probe(backend.OpenAI))
	assert.False(t, probe(backend.Anthropic))
	assert.False(t, probe(backend.Gemini))
	assert.True(t, probe(backend.Managed))
	assert.True(t, probe(backend.OnDevice))
}

func TestResolver_RecordsAndLogs(t *testing.T) {
	r := NewResolver(Probes{IsConfigured: except(backend.OpenAI)}, nil)
	res, err := r.Resolve(Request{
		Requested:       backend.OpenAI,
		Tier:            backend.TierFree,
		Surface:         backend.SurfacePhone,
		PlatformVersion: 26,
	})
	require.NoError(t, err)
	assert.Equal(t, backend.Managed, res.Effective)
}
