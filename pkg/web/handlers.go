package web

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/voicecore/pkg/hub"
)

func (s *Server) handleStatus(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return c.JSON(s.status)
}

func (s *Server) handleConversation(c *fiber.Ctx) error {
	s.mu.RLock()
	entries := append([]ConversationEntry(nil), s.conversation...)
	s.mu.RUnlock()
	return c.JSON(entries)
}

// handleInterrupt cuts the attached session's reply short.
func (s *Server) handleInterrupt(c *fiber.Ctx) error {
	s.mu.RLock()
	sess := s.current
	s.mu.RUnlock()
	if sess == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no active session"})
	}
	sess.Interrupt()
	return c.SendStatus(fiber.StatusNoContent)
}

// handleEventsWS sends the current state, then every state and transcript.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	s.mu.RLock()
	st := s.status
	s.mu.RUnlock()

	snapshot, err := hub.JSON(Event{Type: "state", Pipeline: st.Pipeline, State: &st.State, Time: time.Now()})
	if err != nil {
		return
	}
	client, err := hub.NewClient(s.events, c, snapshot)
	if err != nil {
		s.logger.Debug("events client rejected", "error", err)
		return
	}
	client.Run()
}

func (s *Server) handleLevelsWS(c *websocket.Conn) {
	client, err := hub.NewClient(s.levels, c)
	if err != nil {
		s.logger.Debug("levels client rejected", "error", err)
		return
	}
	client.Run()
}
