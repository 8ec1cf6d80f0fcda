// Package app wires configuration, stores, audio, backend resolution and
// the selected pipeline into a running voice assistant.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/voicecore/internal/config"
	"github.com/teslashibe/voicecore/pkg/access"
	"github.com/teslashibe/voicecore/pkg/audioio"
	"github.com/teslashibe/voicecore/pkg/audiosession"
	"github.com/teslashibe/voicecore/pkg/backend"
	"github.com/teslashibe/voicecore/pkg/providers"
	"github.com/teslashibe/voicecore/pkg/realtime"
	"github.com/teslashibe/voicecore/pkg/session"
	"github.com/teslashibe/voicecore/pkg/store"
	"github.com/teslashibe/voicecore/pkg/stt"
	"github.com/teslashibe/voicecore/pkg/voice"
	"github.com/teslashibe/voicecore/pkg/web"
)

// App is the voicecore process. Call Init, then Run, then Shutdown.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	creds    store.Credentials
	settings store.Settings
	redis    *store.Redis

	mctx   *audioio.MalgoContext
	source audioio.Source
	sink   audioio.Sink
	audio  *audiosession.Manager

	surface    backend.Surface
	resolution access.Result
	pipeline   string
	session    session.Session
	registry   *session.Registry
	web        *web.Server
}

// New validates cfg and creates an uninitialized App.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		cfg:      cfg,
		logger:   logger.With("component", "app", "session_id", uuid.NewString()),
		registry: session.NewRegistry(logger),
	}, nil
}

// Init opens stores and devices, resolves the backend and builds the
// session. A resolution that finds no usable backend returns an error
// matching backend.ErrConfigurationMissing.
func (a *App) Init(ctx context.Context) error {
	if err := a.initStores(); err != nil {
		return fmt.Errorf("stores: %w", err)
	}
	if err := a.initAudio(ctx); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	if err := a.resolve(ctx); err != nil {
		return err
	}
	if err := a.initSession(ctx); err != nil {
		return fmt.Errorf("session: %w", err)
	}

	surface, _ := backend.ParseSurface(a.cfg.Session.Surface)
	a.surface = surface
	a.registry.Claim(surface, a.session)

	if a.cfg.Web.Enabled {
		a.web = web.NewServer(a.cfg.Web.Config, a.logger)
		a.web.SetResolution(a.resolution)
		a.web.Attach(a.session, a.pipeline)
	}
	return nil
}

// Run starts the session and the dashboard and blocks until ctx is done
// or the dashboard fails.
func (a *App) Run(ctx context.Context) error {
	if a.session == nil {
		return errors.New("app: not initialized")
	}
	g, gctx := errgroup.WithContext(ctx)

	if a.web != nil {
		g.Go(func() error { return a.web.Start(gctx) })
	}

	states := a.session.States()
	g.Go(func() error {
		a.watch(gctx, states)
		return nil
	})

	if err := a.session.Start(gctx, a.cfg.Session.SystemPrompt); err != nil {
		a.logger.Error("session failed to start", "pipeline", a.pipeline, "error", err)
	} else {
		a.logger.Info("listening", "pipeline", a.pipeline, "backend", a.resolution.Effective)
	}

	return g.Wait()
}

// watch logs error states until ctx ends.
func (a *App) watch(ctx context.Context, states <-chan session.State) {
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			if st.IsError() {
				a.logger.Error("session error", "pipeline", a.pipeline, "message", st.Message)
			}
		}
	}
}

// Shutdown stops the session and releases devices and stores.
func (a *App) Shutdown() {
	if a.web != nil {
		a.web.Detach()
	}
	a.registry.StopAll()
	if a.audio != nil {
		_ = a.audio.Close()
	}
	if c, ok := a.source.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	if c, ok := a.sink.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	if a.mctx != nil {
		_ = a.mctx.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.logger.Info("shut down")
}

// Resolution returns the backend resolution made by Init.
func (a *App) Resolution() access.Result { return a.resolution }

func (a *App) initStores() error {
	env := store.NewEnvCredentials()
	switch a.cfg.Store.Backend {
	case "redis":
		r, err := store.NewRedis(a.cfg.Store.Redis)
		if err != nil {
			return err
		}
		a.redis = r
		a.creds = store.NewLayered(r, env)
		a.settings = r.Settings()
	case "file":
		a.creds = store.NewLayered(store.NewMemoryCredentials(nil), env)
		a.settings = store.NewFileSettings(a.cfg.Store.SettingsPath)
	default:
		a.creds = store.NewLayered(store.NewMemoryCredentials(nil), env)
		a.settings = store.NewMemorySettings(store.Preferences{})
	}
	return nil
}

func (a *App) initAudio(ctx context.Context) error {
	capture := audioio.CaptureConfig()
	capture.Device = a.cfg.Audio.CaptureDevice
	playback := audioio.DefaultConfig()
	playback.Device = a.cfg.Audio.PlayDevice

	var hw audiosession.Hardware
	if a.cfg.Audio.Hardware == "fake" {
		capture.Backend, playback.Backend = audioio.BackendMock, audioio.BackendMock
		a.source = audioio.NewMockSource(capture, a.logger)
		a.sink = audioio.NewMockSink(playback, a.logger)
		hw = audiosession.NewFakeHardware()
	} else {
		mctx, err := audioio.NewMalgoContext(a.logger)
		if err != nil {
			return err
		}
		a.mctx = mctx
		src, err := audioio.NewMalgoSource(mctx, capture, a.logger)
		if err != nil {
			return err
		}
		sink, err := audioio.NewMalgoSink(mctx, playback, a.logger)
		if err != nil {
			return err
		}
		a.source, a.sink = src, sink
		mhw, err := audiosession.NewMalgoHardware(mctx, sink, src, a.cfg.Audio.PollInterval, a.logger)
		if err != nil {
			return err
		}
		hw = mhw
	}

	var opts []audiosession.Option
	if a.cfg.Audio.RecheckDelay > 0 {
		opts = append(opts, audiosession.WithRecheckDelay(a.cfg.Audio.RecheckDelay))
	}
	a.audio = audiosession.NewManager(hw, store.OutputModes(a.settings), a.logger, opts...)

	prefs, err := a.settings.Load(ctx)
	if err != nil {
		return fmt.Errorf("load preferences: %w", err)
	}
	if prefs.OutputMode == "" && a.cfg.Audio.OutputMode != "" {
		mode, err := audiosession.ParseOutputMode(a.cfg.Audio.OutputMode)
		if err != nil {
			return err
		}
		if err := a.audio.SetOutputMode(ctx, mode); err != nil {
			a.logger.Warn("store output mode", "error", err)
		}
	}
	return nil
}

func (a *App) resolve(ctx context.Context) error {
	prefs, err := a.settings.Load(ctx)
	if err != nil {
		return fmt.Errorf("load preferences: %w", err)
	}

	requested := prefs.SelectedBackend
	if a.cfg.Session.Backend != "" {
		id, err := backend.Parse(a.cfg.Session.Backend)
		if err != nil {
			return err
		}
		requested = id
		if id != prefs.LastChosen {
			if err := store.RecordChosen(ctx, a.settings, id); err != nil {
				a.logger.Warn("record chosen backend", "error", err)
			}
			prefs.LastChosen = id
		}
	}
	if requested == "" {
		// highest static priority
		requested = backend.All()[0]
	}

	tier, _ := backend.ParseTier(a.cfg.Session.Tier)
	surface, _ := backend.ParseSurface(a.cfg.Session.Surface)
	resolver := access.NewResolver(access.Probes{
		IsConfigured: access.ConfiguredByCredentials(ctx, a.creds),
		IsRuntimeAvailable: providers.RuntimeProbe(ctx, providers.DefaultProbeTimeout,
			providers.WithLocalURL(a.cfg.Providers.LocalURL),
			providers.WithLogger(a.logger),
		),
	}, a.logger)

	res, err := resolver.Resolve(access.Request{
		Requested:       requested,
		Tier:            tier,
		Surface:         surface,
		PlatformVersion: a.cfg.Session.PlatformVersion,
		LastWorking:     prefs.LastWorking,
		LastChosen:      prefs.LastChosen,
	})
	if err != nil {
		return err
	}
	a.resolution = res
	return nil
}

func (a *App) initSession(ctx context.Context) error {
	effective := a.resolution.Effective
	if effective == backend.OpenAIRealtime {
		return a.initRealtime(ctx)
	}
	return a.initTurn(ctx, effective)
}

func (a *App) initRealtime(ctx context.Context) error {
	credential, _ := a.creds.Get(ctx, backend.OpenAIRealtime)
	var opts []realtime.Option
	opts = append(opts, realtime.WithLogger(a.logger))
	if a.cfg.Session.Model != "" {
		opts = append(opts, realtime.WithModel(a.cfg.Session.Model))
	}
	dialer, err := providers.NewRealtime(credential, opts...)
	if err != nil {
		return err
	}

	p, err := voice.NewRealtimePipeline(voice.RealtimeDeps{
		Dialer: dialer,
		Source: a.source,
		Sink:   a.sink,
		Audio:  a.audio,
		Logger: a.logger,
	}, voice.WithVoice(a.cfg.Session.Voice))
	if err != nil {
		return err
	}
	a.session, a.pipeline = p, config.PipelineRealtime
	return nil
}

func (a *App) initTurn(ctx context.Context, id backend.ID) error {
	model, err := providers.ModelFromStore(ctx, a.creds, id, a.cfg.Session.Model,
		providers.WithManagedURL(a.cfg.Providers.ManagedURL),
		providers.WithLocalURL(a.cfg.Providers.LocalURL),
		providers.WithMaxTokens(a.cfg.Providers.MaxTokens),
		providers.WithTemperature(a.cfg.Providers.Temperature),
		providers.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}

	rec, err := stt.NewDeepgram(stt.DeepgramConfig{
		APIKey:      a.cfg.STT.APIKey,
		Model:       a.cfg.STT.Model,
		Language:    a.cfg.STT.Language,
		Endpointing: a.cfg.STT.Endpointing,
		Logger:      a.logger,
	}, a.source)
	if err != nil {
		return err
	}

	engine := providers.SpeechEngine(a.cfg.Speech.Engine)
	speaker := providers.NewSpeaker(ctx, engine, a.speechCredential(ctx, engine), a.cfg.Speech.Voice, a.sink,
		providers.WithLocalVoice(a.cfg.Speech.LocalVoice),
		providers.WithSpeakerLogger(a.logger),
	)

	settings := a.settings
	p, err := voice.NewTurnPipeline(voice.TurnDeps{
		Recognizer: rec,
		Model:      model,
		Speaker:    speaker,
		Audio:      a.audio,
		Logger:     a.logger,
	}, voice.WithReplyHook(func(_, _ string) {
		if err := store.RecordWorking(context.Background(), settings, id); err != nil {
			a.logger.Warn("record working backend", "error", err)
		}
	}))
	if err != nil {
		return err
	}
	a.session, a.pipeline = p, config.PipelineTurn
	return nil
}

// speechCredential returns the configured synthesis key, falling back to
// the key of the matching model backend.
func (a *App) speechCredential(ctx context.Context, engine providers.SpeechEngine) string {
	if a.cfg.Speech.APIKey != "" {
		return a.cfg.Speech.APIKey
	}
	var key string
	switch engine {
	case providers.EngineOpenAI:
		key, _ = a.creds.Get(ctx, backend.OpenAI)
	case providers.EngineGoogle:
		key, _ = a.creds.Get(ctx, backend.Gemini)
	case providers.EngineElevenLabs:
		key = os.Getenv("ELEVENLABS_API_KEY")
	}
	return key
}
