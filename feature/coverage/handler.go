package coverage

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"record-sync/core/logger"
	"record-sync/core/reconcile"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TimeLayout is the accepted format of the start and end query parameters.
const TimeLayout = "2006-01-02 15:04"

// DefaultMaxWindow caps request windows when the handler is given no limit.
const DefaultMaxWindow = 31 * 24 * time.Hour

// Handler handles HTTP requests for coverage reports.
type Handler struct {
	service *Service
	// location interprets window bounds given without a zone.
	location  *time.Location
	maxWindow time.Duration
}

// NewHandler creates a new HTTP handler. Windows longer than maxWindow are rejected;
// a non-positive maxWindow means DefaultMaxWindow.
func NewHandler(service *Service, location *time.Location, maxWindow time.Duration) *Handler {
	if location == nil {
		location = time.Local
	}
	if maxWindow <= 0 {
		maxWindow = DefaultMaxWindow
	}
	return &Handler{service: service, location: location, maxWindow: maxWindow}
}

// RegisterRoutes registers the coverage routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/api")
	group.Get("/coverage", h.HandleGetCoverage)
}

// HandleGetCoverage returns the coverage report of a window.
// Query parameters: stream_type (audio|video), stream_id (optional), start and end
// in "YYYY-MM-DD HH:mm".
func (h *Handler) HandleGetCoverage(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	kind, err := reconcile.ParseKind(c.Query("stream_type"))
	if err != nil {
		return badRequest(c, err)
	}
	streamID := -1
	if raw := c.Query("stream_id"); raw != "" {
		if streamID, err = strconv.Atoi(raw); err != nil {
			return badRequest(c, errors.New("stream_id must be an integer"))
		}
	}
	start, err := time.ParseInLocation(TimeLayout, c.Query("start"), h.location)
	if err != nil {
		return badRequest(c, errors.New("start must use the format YYYY-MM-DD HH:mm"))
	}
	end, err := time.ParseInLocation(TimeLayout, c.Query("end"), h.location)
	if err != nil {
		return badRequest(c, errors.New("end must use the format YYYY-MM-DD HH:mm"))
	}
	if end.Sub(start) > h.maxWindow {
		return badRequest(c, fmt.Errorf("window exceeds %s", h.maxWindow))
	}

	report, err := h.service.Report(c.Context(), kind, streamID, start, end)
	if errors.Is(err, reconcile.ErrValidation) {
		return badRequest(c, err)
	}
	if err != nil {
		l.Error("Coverage report failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(report)
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": err.Error(),
	})
}
