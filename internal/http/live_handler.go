package http

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/karloscodes/cartridge"

	"docpulse/internal/dashboard"
)

const (
	localsDashboard   = "dashboard"
	localsDashboardID = "dashboard_id"
)

// liveCommand is a message sent by a live client.
type liveCommand struct {
	Type       string `json:"type"`
	DocumentID string `json:"document_id"`
	RangeDays  int    `json:"range_days"`
}

// liveMessage is a message sent to a live client.
type liveMessage struct {
	Type      string         `json:"type"`
	Dashboard *DashboardView `json:"dashboard,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// LiveUpgrade resolves the dashboard and only lets WebSocket upgrades through.
// It runs as route middleware ahead of LiveStreamAction.
func (h *DashboardHandler) LiveUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	id, coordinator, err := h.lookup(c)
	if err != nil {
		return h.renderError(c, err)
	}

	c.Locals(localsDashboard, coordinator)
	c.Locals(localsDashboardID, id)
	return c.Next()
}

// LiveStreamAction hands the upgraded connection to LiveAction.
func (h *DashboardHandler) LiveStreamAction() cartridge.HandlerFunc {
	stream := websocket.New(h.LiveAction)
	return func(ctx *cartridge.Context) error {
		return stream(ctx.Ctx)
	}
}

// LiveAction streams every state change of a dashboard and accepts select
// and refresh commands from the client.
func (h *DashboardHandler) LiveAction(conn *websocket.Conn) {
	coordinator, ok := conn.Locals(localsDashboard).(*dashboard.Coordinator)
	if !ok {
		conn.Close()
		return
	}
	id, _ := conn.Locals(localsDashboardID).(uuid.UUID)
	logger := h.logger.With(slog.String("dashboard_id", id.String()))
	logger.Debug("Live connection established")

	defer func() {
		conn.Close()
		logger.Debug("Live connection closed")
	}()

	updates, stop := coordinator.Watch()
	defer stop()

	replies := make(chan liveMessage, 4)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			var cmd liveCommand
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			if reply, ok := h.handleCommand(coordinator, cmd); !ok {
				select {
				case replies <- reply:
				default:
				}
			}
		}
	}()

	for {
		select {
		case state, ok := <-updates:
			if !ok {
				return
			}
			view := NewDashboardView(id, state)
			if err := conn.WriteJSON(liveMessage{Type: "state", Dashboard: &view}); err != nil {
				logger.Debug("Failed to write live state", slog.Any("error", err))
				return
			}
		case reply := <-replies:
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// handleCommand applies cmd. It returns an error reply and false when the
// command could not be applied.
func (h *DashboardHandler) handleCommand(coordinator *dashboard.Coordinator, cmd liveCommand) (liveMessage, bool) {
	switch cmd.Type {
	case "refresh":
		coordinator.Refresh()
		return liveMessage{}, true
	case "select":
		err := h.applySelection(coordinator, SelectionRequest{DocumentID: cmd.DocumentID, RangeDays: cmd.RangeDays})
		if err == nil {
			return liveMessage{}, true
		}
		if errors.Is(err, dashboard.ErrInvalidRange) || errors.Is(err, dashboard.ErrClosed) {
			return liveMessage{Type: "error", Error: err.Error()}, false
		}
		h.logger.Error("Live selection failed", slog.Any("error", err))
		return liveMessage{Type: "error", Error: "Internal server error"}, false
	default:
		return liveMessage{Type: "error", Error: "Unknown command"}, false
	}
}
