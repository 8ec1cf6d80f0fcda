// voicecore runs a single voice-assistant session against the backend
// selected by configuration and stored preferences.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/voicecore/internal/app"
	"github.com/teslashibe/voicecore/internal/config"
	"github.com/teslashibe/voicecore/internal/log"
)

func main() {
	configFile := flag.String("config", "", "Path to voicecore.yaml (default: search ./, ./configs, /etc/voicecore)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	backendName := flag.String("backend", "", "Backend to request (overrides session.backend)")
	fakeAudio := flag.Bool("fake-audio", false, "Use in-memory audio instead of real devices")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *debug {
		cfg.Logging.Level = "debug"
	}
	if *backendName != "" {
		cfg.Session.Backend = *backendName
	}
	if *fakeAudio {
		cfg.Audio.Hardware = "fake"
	}

	log.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger := log.L()

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Init(ctx); err != nil {
		logger.Error("initialization failed", "error", err)
		a.Shutdown()
		os.Exit(1)
	}
	defer a.Shutdown()

	if err := a.Run(ctx); err != nil {
		logger.Error("runtime error", "error", err)
	}
}
