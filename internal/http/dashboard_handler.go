package http

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/karloscodes/cartridge"

	"docpulse/internal/analytics"
	"docpulse/internal/config"
	"docpulse/internal/dashboard"
)

// DashboardHandler exposes dashboard contexts over JSON.
type DashboardHandler struct {
	registry         *dashboard.Registry
	logger           *slog.Logger
	defaultRangeDays int
}

func NewDashboardHandler(registry *dashboard.Registry, cfg *config.Config, logger *slog.Logger) *DashboardHandler {
	defaultRange := cfg.DefaultRangeDays
	if defaultRange < 1 || defaultRange > config.MaxRangeDays {
		defaultRange = 30
	}
	return &DashboardHandler{
		registry:         registry,
		logger:           logger,
		defaultRangeDays: defaultRange,
	}
}

// SelectionRequest is the body of PUT /api/dashboards/:id/selection. An
// empty document_id clears the selection; a zero range_days uses the
// default range.
type SelectionRequest struct {
	DocumentID string `json:"document_id"`
	RangeDays  int    `json:"range_days"`
}

// CreateAction opens a new dashboard, optionally with an initial selection.
func (h *DashboardHandler) CreateAction(ctx *cartridge.Context) error {
	var req SelectionRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	id, coordinator := h.registry.Create()
	h.logger.Info("Dashboard created", slog.String("dashboard_id", id.String()))

	if req.DocumentID != "" {
		if err := h.applySelection(coordinator, req); err != nil {
			_ = h.registry.Remove(id)
			return h.renderError(ctx.Ctx, err)
		}
	}

	return ctx.Status(fiber.StatusCreated).JSON(NewDashboardView(id, coordinator.State()))
}

// ShowAction returns the current state of a dashboard.
func (h *DashboardHandler) ShowAction(ctx *cartridge.Context) error {
	id, coordinator, err := h.lookup(ctx.Ctx)
	if err != nil {
		return h.renderError(ctx.Ctx, err)
	}
	return ctx.JSON(NewDashboardView(id, coordinator.State()))
}

// SelectAction changes the selection of a dashboard.
func (h *DashboardHandler) SelectAction(ctx *cartridge.Context) error {
	id, coordinator, err := h.lookup(ctx.Ctx)
	if err != nil {
		return h.renderError(ctx.Ctx, err)
	}

	var req SelectionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := h.applySelection(coordinator, req); err != nil {
		return h.renderError(ctx.Ctx, err)
	}

	return ctx.JSON(NewDashboardView(id, coordinator.State()))
}

// RefreshAction re-runs the fetch cycle; it is the retry affordance of the
// error state.
func (h *DashboardHandler) RefreshAction(ctx *cartridge.Context) error {
	id, coordinator, err := h.lookup(ctx.Ctx)
	if err != nil {
		return h.renderError(ctx.Ctx, err)
	}

	coordinator.Refresh()
	return ctx.Status(fiber.StatusAccepted).JSON(NewDashboardView(id, coordinator.State()))
}

// DeleteAction closes a dashboard and releases its subscriptions.
func (h *DashboardHandler) DeleteAction(ctx *cartridge.Context) error {
	id, err := parseDashboardID(ctx.Ctx)
	if err != nil {
		return h.renderError(ctx.Ctx, err)
	}

	if err := h.registry.Remove(id); err != nil {
		return h.renderError(ctx.Ctx, err)
	}

	h.logger.Info("Dashboard closed", slog.String("dashboard_id", id.String()))
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (h *DashboardHandler) applySelection(coordinator *dashboard.Coordinator, req SelectionRequest) error {
	rangeDays := req.RangeDays
	if req.DocumentID != "" && rangeDays == 0 {
		rangeDays = h.defaultRangeDays
	}
	return coordinator.Select(analytics.DocumentID(req.DocumentID), rangeDays)
}

func (h *DashboardHandler) lookup(c *fiber.Ctx) (uuid.UUID, *dashboard.Coordinator, error) {
	id, err := parseDashboardID(c)
	if err != nil {
		return uuid.Nil, nil, err
	}
	coordinator, err := h.registry.Get(id)
	if err != nil {
		return uuid.Nil, nil, err
	}
	return id, coordinator, nil
}

func parseDashboardID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, dashboard.ErrDashboardNotFound
	}
	return id, nil
}

func (h *DashboardHandler) renderError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, dashboard.ErrDashboardNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Dashboard not found",
		})
	case errors.Is(err, dashboard.ErrInvalidRange):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, dashboard.ErrClosed):
		return c.Status(fiber.StatusGone).JSON(fiber.Map{
			"error": "Dashboard closed",
		})
	default:
		h.logger.Error("Dashboard request failed", slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
		})
	}
}
