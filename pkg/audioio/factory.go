package audioio

import (
	"fmt"
	"log/slog"
)

// resolveBackend picks the concrete backend for cfg.
func resolveBackend(cfg Config, mctx *MalgoContext) Backend {
	if cfg.Backend != BackendAuto && cfg.Backend != "" {
		return cfg.Backend
	}
	if mctx != nil {
		return BackendMalgo
	}
	return BackendMock
}

// NewSource creates a capture source. mctx may be nil for the mock backend.
func NewSource(cfg Config, mctx *MalgoContext, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend := resolveBackend(cfg, mctx)
	logger.Info("creating audio source",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"buffer_ms", cfg.BufferDuration.Milliseconds(),
	)

	switch backend {
	case BackendMock:
		return NewMockSource(cfg, logger), nil
	case BackendMalgo:
		return NewMalgoSource(mctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// NewSink creates a playback sink. mctx may be nil for the mock backend.
func NewSink(cfg Config, mctx *MalgoContext, logger *slog.Logger) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend := resolveBackend(cfg, mctx)
	logger.Info("creating audio sink",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
	)

	switch backend {
	case BackendMock:
		return NewMockSink(cfg, logger), nil
	case BackendMalgo:
		return NewMalgoSink(mctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}
