package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/voicecore/internal/config"
	"github.com/teslashibe/voicecore/internal/log"
	"github.com/teslashibe/voicecore/pkg/access"
	"github.com/teslashibe/voicecore/pkg/backend"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	for _, name := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY", "GROQ_API_KEY"} {
		t.Setenv(name, "")
	}
	cfg := &config.Config{}
	cfg.Session.Tier = string(backend.TierFree)
	cfg.Session.Surface = string(backend.SurfacePhone)
	cfg.Session.PlatformVersion = 26
	cfg.Providers.ManagedURL = "http://127.0.0.1:1"
	cfg.Speech.Engine = "local"
	cfg.STT.APIKey = "dg-test"
	cfg.Audio.Hardware = "fake"
	cfg.Store.Backend = "memory"
	return cfg
}

func initApp(t *testing.T, cfg *config.Config) (*App, error) {
	t.Helper()
	a, err := New(cfg, log.Discard())
	require.NoError(t, err)
	t.Cleanup(a.Shutdown)
	return a, a.Init(context.Background())
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Store.Backend = "etcd"
	_, err = New(cfg, nil)
	assert.Error(t, err)
}

func TestInit_TurnPipeline(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg := testConfig(t)
	cfg.Session.Backend = "openai"
	cfg.Web.Enabled = true
	cfg.Web.Addr = "127.0.0.1:0"

	a, err := initApp(t, cfg)
	require.NoError(t, err)

	assert.Equal(t, backend.OpenAI, a.Resolution().Effective)
	assert.False(t, a.Resolution().FellBack())
	assert.Equal(t, config.PipelineTurn, a.pipeline)
	assert.NotNil(t, a.web)

	live, ok := a.registry.Active(backend.SurfacePhone)
	require.True(t, ok)
	assert.Same(t, a.session, live)

	prefs, err := a.settings.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, backend.OpenAI, prefs.LastChosen)
}

func TestInit_RealtimePipeline(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg := testConfig(t)
	cfg.Session.Backend = "openai_realtime"
	cfg.Session.Tier = string(backend.TierPro)

	a, err := initApp(t, cfg)
	require.NoError(t, err)

	assert.Equal(t, backend.OpenAIRealtime, a.Resolution().Effective)
	assert.Equal(t, config.PipelineRealtime, a.pipeline)
	assert.Nil(t, a.web)
}

func TestInit_FallsBackWithoutCredential(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.Backend = "openai_realtime"
	cfg.Session.Tier = string(backend.TierPro)

	a, err := initApp(t, cfg)
	require.NoError(t, err)

	res := a.Resolution()
	assert.Equal(t, backend.OpenAIRealtime, res.Requested)
	assert.Equal(t, backend.Managed, res.Effective)
	assert.Equal(t, access.ReasonMissingConfiguration, res.Reason)
	assert.Equal(t, config.PipelineTurn, a.pipeline)
}

func TestInit_FallsBackWhenLocalServerDown(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.Backend = "on_device"
	cfg.Session.Tier = string(backend.TierPlus)
	cfg.Providers.LocalURL = "http://127.0.0.1:1"

	a, err := initApp(t, cfg)
	require.NoError(t, err)

	res := a.Resolution()
	assert.Equal(t, backend.OnDevice, res.Requested)
	assert.Equal(t, backend.Managed, res.Effective)
	assert.Equal(t, access.ReasonBackendUnavailable, res.Reason)
}

func TestInit_UsesStoredSelection(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"selected_backend":"anthropic"}`), 0o600))

	cfg := testConfig(t)
	cfg.Session.Tier = string(backend.TierPlus)
	cfg.Store.Backend = "file"
	cfg.Store.SettingsPath = path

	a, err := initApp(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, backend.Anthropic, a.Resolution().Effective)
}

func TestInit_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		is     error
	}{
		{
			name:   "managed backend without url",
			mutate: func(c *config.Config) { c.Providers.ManagedURL = "" },
			is:     backend.ErrConfigurationMissing,
		},
		{
			name:   "missing recognizer key",
			mutate: func(c *config.Config) { c.STT.APIKey = "" },
		},
		{
			name:   "bad output mode",
			mutate: func(c *config.Config) { c.Audio.OutputMode = "earpiece" },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			_, err := initApp(t, cfg)
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestRun_RequiresInit(t *testing.T) {
	a, err := New(testConfig(t), log.Discard())
	require.NoError(t, err)
	assert.Error(t, a.Run(context.Background()))
}

func TestShutdown_StopsSession(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg := testConfig(t)
	cfg.Session.Backend = "openai"

	a, err := New(cfg, log.Discard())
	require.NoError(t, err)
	require.NoError(t, a.Init(context.Background()))
	a.Shutdown()

	_, ok := a.registry.Active(backend.SurfacePhone)
	assert.False(t, ok)
	assert.False(t, a.audio.Active())
	assert.Error(t, a.session.Start(context.Background(), "sys"))
}
