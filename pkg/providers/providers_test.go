package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/voicecore/pkg/audioio"
	"github.com/teslashibe/voicecore/pkg/backend"
	"github.com/teslashibe/voicecore/pkg/inference"
	"github.com/teslashibe/voicecore/pkg/store"
	"github.com/teslashibe/voicecore/pkg/tts"
)

func hitCounter(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestNewModelRejectsBlankCredential(t *testing.T) {
	srv, hits := hitCounter(t)
	ctx := context.Background()

	for _, id := range []backend.ID{backend.OpenAI, backend.Anthropic, backend.Gemini, backend.Groq} {
		for _, cred := range []string{"", "   ", "\t\n"} {
			t.Run(string(id), func(t *testing.T) {
				m, err := NewModel(ctx, id, cred, "", WithBaseURL(srv.URL))
				assert.Nil(t, m)
				assert.ErrorIs(t, err, backend.ErrInvalidCredential)
			})
		}
	}

	_, err := NewRealtime("  ")
	assert.ErrorIs(t, err, backend.ErrInvalidCredential)
	assert.Zero(t, hits.Load())
}

func TestNewModelBuilds(t *testing.T) {
	srv, hits := hitCounter(t)
	ctx := context.Background()

	tests := []struct {
		id   backend.ID
		cred string
		name string
	}{
		{backend.OpenAI, "sk", "openai"},
		{backend.Groq, "gsk", "groq"},
		{backend.Managed, "", "managed"},
		{backend.OnDevice, "", "on_device"},
	}
	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			m, err := NewModel(ctx, tt.id, tt.cred, "m", WithBaseURL(srv.URL))
			require.NoError(t, err)
			c, ok := m.(*inference.Client)
			require.True(t, ok)
			assert.Equal(t, tt.name, c.Name())
		})
	}

	m, err := NewModel(ctx, backend.Anthropic, "sk-ant", "", WithBaseURL(srv.URL))
	require.NoError(t, err)
	assert.IsType(t, &inference.Anthropic{}, m)

	assert.Zero(t, hits.Load())
}

func TestNewModelConfigurationMissing(t *testing.T) {
	ctx := context.Background()

	_, err := NewModel(ctx, backend.Managed, "", "")
	assert.ErrorIs(t, err, backend.ErrConfigurationMissing)

	_, err = NewModel(ctx, backend.OpenAIRealtime, "sk", "")
	assert.ErrorIs(t, err, backend.ErrConfigurationMissing)

	_, err = NewModel(ctx, backend.ID("mystery"), "sk", "")
	assert.ErrorIs(t, err, backend.ErrConfigurationMissing)
}

func TestModelFromStore(t *testing.T) {
	ctx := context.Background()
	creds := store.NewMemoryCredentials(map[backend.ID]string{backend.OpenAI: "sk"})

	m, err := ModelFromStore(ctx, creds, backend.OpenAI, "")
	require.NoError(t, err)
	assert.NotNil(t, m)

	_, err = ModelFromStore(ctx, creds, backend.Anthropic, "")
	assert.ErrorIs(t, err, backend.ErrInvalidCredential)
}

func TestRuntimeProbe(t *testing.T) {
	ctx := context.Background()
	var paths atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths.Store(r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	t.Cleanup(srv.Close)

	up := RuntimeProbe(ctx, time.Second, WithLocalURL(srv.URL))
	assert.True(t, up(backend.OnDevice))
	assert.Equal(t, "/models", paths.Load())

	down := RuntimeProbe(ctx, 200*time.Millisecond, WithLocalURL("http://127.0.0.1:1"))
	assert.False(t, down(backend.OnDevice))
	for _, id := range []backend.ID{backend.Managed, backend.OpenAI, backend.OpenAIRealtime} {
		assert.True(t, down(id), id)
	}
}

func TestWithLocalURLKeepsDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Apply(WithLocalURL(""))
	assert.Equal(t, inference.LocalBaseURL, cfg.LocalURL)
}

func TestNewRealtime(t *testing.T) {
	d, err := NewRealtime(" sk ")
	require.NoError(t, err)
	assert.Contains(t, d.Endpoint(), "model=")
}

func TestNewSpeaker(t *testing.T) {
	ctx := context.Background()
	sink := audioio.NewMockSink(audioio.DefaultConfig(), nil)
	engine := &tts.MockEngine{}

	tests := []struct {
		name   string
		engine SpeechEngine
		cred   string
		sink   audioio.Sink
		want   any
	}{
		{"local", EngineLocal, "", sink, &tts.LocalSpeaker{}},
		{"openai", EngineOpenAI, "sk", sink, &tts.Fallback{}},
		{"elevenlabs", EngineElevenLabs, "xi", sink, &tts.Fallback{}},
		{"missing key", EngineOpenAI, " ", sink, &tts.LocalSpeaker{}},
		{"no sink", EngineOpenAI, "sk", nil, &tts.LocalSpeaker{}},
		{"unknown", SpeechEngine("polly"), "k", sink, &tts.LocalSpeaker{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSpeaker(ctx, tt.engine, tt.cred, "", tt.sink, WithLocalEngine(engine))
			require.NotNil(t, s)
			assert.IsType(t, tt.want, s)
		})
	}
}

func TestLocalSpeakerFromFactorySpeaks(t *testing.T) {
	engine := &tts.MockEngine{}
	s := NewSpeaker(context.Background(), EngineLocal, "", "", nil, WithLocalEngine(engine), WithLocalVoice("Samantha"))

	require.NoError(t, s.Speak(context.Background(), "hello"))
	assert.Equal(t, []string{"hello"}, engine.Texts())
}
