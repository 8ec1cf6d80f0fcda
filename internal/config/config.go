// Package config loads the voicecore process configuration from a YAML
// file, VOICECORE_* environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/teslashibe/voicecore/pkg/audiosession"
	"github.com/teslashibe/voicecore/pkg/backend"
	"github.com/teslashibe/voicecore/pkg/store"
	"github.com/teslashibe/voicecore/pkg/web"
)

// Pipeline names.
const (
	PipelineTurn     = "turn"
	PipelineRealtime = "realtime"
)

// Config is the root configuration.
type Config struct {
	Session   SessionConfig   `mapstructure:"session"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Speech    SpeechConfig    `mapstructure:"speech"`
	STT       STTConfig       `mapstructure:"stt"`
	Audio     AudioConfig     `mapstructure:"audio"`
	Store     StoreConfig     `mapstructure:"store"`
	Web       WebConfig       `mapstructure:"web"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SessionConfig describes who is talking and to which backend.
type SessionConfig struct {
	Backend         string `mapstructure:"backend"` // empty uses the stored selection
	Model           string `mapstructure:"model"`
	Tier            string `mapstructure:"tier"`
	Surface         string `mapstructure:"surface"`
	PlatformVersion int    `mapstructure:"platform_version"`
	SystemPrompt    string `mapstructure:"system_prompt"`
	Voice           string `mapstructure:"voice"` // realtime voice
}

// ProvidersConfig holds endpoints that have no fixed public URL.
type ProvidersConfig struct {
	ManagedURL  string  `mapstructure:"managed_url"`
	LocalURL    string  `mapstructure:"local_url"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// SpeechConfig selects the synthesis engine for the turn pipeline.
type SpeechConfig struct {
	Engine     string `mapstructure:"engine"` // openai, elevenlabs, google, local
	APIKey     string `mapstructure:"api_key"`
	Voice      string `mapstructure:"voice"`
	LocalVoice string `mapstructure:"local_voice"`
}

// STTConfig configures Deepgram.
type STTConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Language    string        `mapstructure:"language"`
	Endpointing time.Duration `mapstructure:"endpointing"`
}

// AudioConfig selects devices and routing.
type AudioConfig struct {
	Hardware      string        `mapstructure:"hardware"` // malgo, fake
	OutputMode    string        `mapstructure:"output_mode"`
	CaptureDevice string        `mapstructure:"capture_device"`
	PlayDevice    string        `mapstructure:"play_device"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RecheckDelay  time.Duration `mapstructure:"recheck_delay"`
}

// StoreConfig selects where credentials and preferences live.
type StoreConfig struct {
	Backend      string            `mapstructure:"backend"` // memory, file, redis
	SettingsPath string            `mapstructure:"settings_path"`
	Redis        store.RedisConfig `mapstructure:"redis"`
}

// WebConfig configures the dashboard.
type WebConfig struct {
	Enabled bool `mapstructure:"enabled"`

	web.Config `mapstructure:",squash"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Load reads the configuration. If configFile is empty the standard search
// order applies: ./voicecore.yaml, ./configs/voicecore.yaml,
// /etc/voicecore/voicecore.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("voicecore")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/voicecore")
	}

	// VOICECORE_SESSION_BACKEND, VOICECORE_STORE_REDIS_ADDR, ...
	v.SetEnvPrefix("VOICECORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Debug("no config file found, using defaults and environment variables")
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.STT.APIKey = resolveEnvRef(cfg.STT.APIKey)
	cfg.Speech.APIKey = resolveEnvRef(cfg.Speech.APIKey)
	cfg.Store.Redis.Password = resolveEnvRef(cfg.Store.Redis.Password)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("session.backend", "")
	v.SetDefault("session.model", "")
	v.SetDefault("session.voice", "")
	v.SetDefault("session.tier", string(backend.TierFree))
	v.SetDefault("session.surface", string(backend.SurfacePhone))
	v.SetDefault("session.platform_version", 26)
	v.SetDefault("session.system_prompt", "You are a helpful voice assistant. Keep answers short and conversational.")
	v.SetDefault("providers.managed_url", "")
	v.SetDefault("providers.local_url", "")
	v.SetDefault("providers.max_tokens", 1024)
	v.SetDefault("providers.temperature", 0.7)
	v.SetDefault("speech.engine", "local")
	v.SetDefault("speech.api_key", "")
	v.SetDefault("speech.voice", "")
	v.SetDefault("speech.local_voice", "")
	v.SetDefault("stt.api_key", "${DEEPGRAM_API_KEY}")
	v.SetDefault("stt.model", "nova-3")
	v.SetDefault("stt.language", "en-US")
	v.SetDefault("stt.endpointing", 300*time.Millisecond)
	v.SetDefault("audio.hardware", "malgo")
	v.SetDefault("audio.output_mode", string(audiosession.OutputAutomatic))
	v.SetDefault("audio.capture_device", "")
	v.SetDefault("audio.play_device", "")
	v.SetDefault("audio.poll_interval", time.Second)
	v.SetDefault("audio.recheck_delay", audiosession.DefaultRecheckDelay)
	v.SetDefault("store.backend", "file")
	v.SetDefault("store.settings_path", "voicecore-settings.json")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.key_prefix", "voicecore:")
	v.SetDefault("web.enabled", true)
	v.SetDefault("web.addr", web.DefaultConfig().Addr)
	v.SetDefault("web.static_dir", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	if c.Session.Backend != "" {
		if _, err := backend.Parse(c.Session.Backend); err != nil {
			return fmt.Errorf("config: session.backend: %w", err)
		}
	}
	if _, err := backend.ParseTier(c.Session.Tier); err != nil {
		return fmt.Errorf("config: session.tier: %w", err)
	}
	if _, err := backend.ParseSurface(c.Session.Surface); err != nil {
		return fmt.Errorf("config: session.surface: %w", err)
	}
	switch c.Store.Backend {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("config: unknown store.backend %q", c.Store.Backend)
	}
	switch c.Audio.Hardware {
	case "malgo", "fake":
	default:
		return fmt.Errorf("config: unknown audio.hardware %q", c.Audio.Hardware)
	}
	return nil
}

// resolveEnvRef replaces a "${VAR}" value with the variable's contents.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		return os.Getenv(val[2 : len(val)-1])
	}
	return val
}
