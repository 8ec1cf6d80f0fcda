// Package web serves the voice session dashboard: status and history over
// HTTP, live events and levels over websockets, and prometheus metrics.
package web

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/voicecore/pkg/access"
	"github.com/teslashibe/voicecore/pkg/hub"
	"github.com/teslashibe/voicecore/pkg/metrics"
	"github.com/teslashibe/voicecore/pkg/session"
)

const (
	maxConversation = 100
	shutdownTimeout = 5 * time.Second
)

// Config configures the dashboard server.
type Config struct {
	Addr      string `mapstructure:"addr"`
	StaticDir string `mapstructure:"static_dir"`
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{Addr: ":8080"}
}

// Status is the body of GET /api/status.
type Status struct {
	Pipeline   string         `json:"pipeline,omitempty"`
	State      session.State  `json:"state"`
	Resolution *access.Result `json:"resolution,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Event is one frame on /ws/events.
type Event struct {
	Type       string              `json:"type"` // state, transcript
	Pipeline   string              `json:"pipeline,omitempty"`
	State      *session.State      `json:"state,omitempty"`
	Transcript *session.Transcript `json:"transcript,omitempty"`
	Time       time.Time           `json:"time"`
}

// ConversationEntry is one final transcript in the history.
type ConversationEntry struct {
	Time time.Time    `json:"time"`
	Role session.Role `json:"role"`
	Text string       `json:"text"`
}

// Server is the dashboard server.
type Server struct {
	app    *fiber.App
	cfg    Config
	logger *slog.Logger

	events *hub.Hub
	levels *hub.Hub

	mu           sync.RWMutex
	status       Status
	conversation []ConversationEntry
	current      session.Session
	detach       context.CancelFunc
	wg           sync.WaitGroup
}

// NewServer creates a dashboard server. Call Start to serve.
func NewServer(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "web.server")
	s := &Server{
		cfg:          cfg,
		logger:       logger,
		events:       hub.New("events", logger),
		levels:       hub.New("levels", logger),
		status:       Status{State: session.Idle, UpdatedAt: time.Now()},
		conversation: make([]ConversationEntry, 0, maxConversation),
	}

	app := fiber.New(fiber.Config{
		AppName:               "voicecore",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())
	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/conversation", s.handleConversation)
	api.Post("/interrupt", s.handleInterrupt)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))
	app.Get("/ws/levels", websocket.New(s.handleLevelsWS))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Start runs the hubs and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.events.Run(ctx)
	go s.levels.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "addr", s.cfg.Addr)
		errCh <- s.app.Listen(s.cfg.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.Detach()
	if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// SetResolution records the backend resolution shown by /api/status.
func (s *Server) SetResolution(res access.Result) {
	s.mu.Lock()
	s.status.Resolution = &res
	s.status.UpdatedAt = time.Now()
	s.mu.Unlock()
}

// Attach starts mirroring sess on the dashboard, replacing any previously
// attached session.
func (s *Server) Attach(sess session.Session, pipeline string) {
	s.Detach()

	ctx, cancel := context.WithCancel(context.Background())
	states, transcripts, levels := sess.States(), sess.Transcripts(), sess.Levels()

	s.mu.Lock()
	s.current = sess
	s.detach = cancel
	s.status.Pipeline = pipeline
	s.status.State = sess.State()
	s.status.UpdatedAt = time.Now()
	s.mu.Unlock()

	s.wg.Add(3)
	go s.forwardStates(ctx, pipeline, states)
	go s.forwardTranscripts(ctx, pipeline, transcripts)
	go s.forwardLevels(ctx, levels)
	s.logger.Debug("session attached", "pipeline", pipeline)
}

// Detach stops mirroring the current session.
func (s *Server) Detach() {
	s.mu.Lock()
	cancel := s.detach
	s.detach = nil
	s.current = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
}

func (s *Server) forwardStates(ctx context.Context, pipeline string, ch <-chan session.State) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-ch:
			if !ok {
				return
			}
			now := time.Now()
			s.mu.Lock()
			s.status.State = st
			s.status.UpdatedAt = now
			s.mu.Unlock()
			s.publish(Event{Type: "state", Pipeline: pipeline, State: &st, Time: now})
		}
	}
}

func (s *Server) forwardTranscripts(ctx context.Context, pipeline string, ch <-chan session.Transcript) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case tr, ok := <-ch:
			if !ok {
				return
			}
			now := time.Now()
			if tr.IsFinal && tr.Text != "" {
				s.addConversation(ConversationEntry{Time: now, Role: tr.Role, Text: tr.Text})
			}
			s.publish(Event{Type: "transcript", Pipeline: pipeline, Transcript: &tr, Time: now})
		}
	}
}

func (s *Server) forwardLevels(ctx context.Context, ch <-chan float64) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case lvl, ok := <-ch:
			if !ok {
				return
			}
			_ = s.levels.BroadcastJSON(fiber.Map{"level": lvl})
		}
	}
}

func (s *Server) publish(ev Event) {
	if err := s.events.BroadcastJSON(ev); err != nil {
		s.logger.Warn("encode event", "error", err)
	}
}

func (s *Server) addConversation(entry ConversationEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversation = append(s.conversation, entry)
	if len(s.conversation) > maxConversation {
		s.conversation = s.conversation[1:]
	}
}
