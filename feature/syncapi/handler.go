package syncapi

import (
	"strconv"

	"identity-sync/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// JoinedHeader is set on trigger responses that joined a run already in flight.
const JoinedHeader = "X-Sync-Joined"

// Handler handles HTTP requests for the sync status API.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the sync routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	app.Get("/health", h.HandleHealth)
	app.Get("/sync/report", h.HandleReport)
	app.Post("/sync", h.HandleTrigger)
}

// HandleHealth reports liveness and whether a run is in progress.
func (h *Handler) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"running": h.service.Running(),
	})
}

// HandleReport returns the report of the last run.
func (h *Handler) HandleReport(c *fiber.Ctx) error {
	last := h.service.Last()
	if last == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "No sync run has completed yet"})
	}
	if last.Err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":       last.Err.Error(),
			"finished_at": last.FinishedAt,
		})
	}
	return c.JSON(last.Report)
}

// HandleTrigger runs a sync and returns its report. Concurrent triggers share one run.
func (h *Handler) HandleTrigger(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	l.Info("Sync requested")

	report, shared, err := h.service.Trigger()
	c.Set(JoinedHeader, strconv.FormatBool(shared))
	if err != nil {
		l.Error("Requested sync failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(report)
}
