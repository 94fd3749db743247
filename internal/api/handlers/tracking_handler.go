package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/welldanyogia/webrana-crm-mail/internal/tracking"
)

// TrackingHandler serves the public open pixel and click redirect.
// Every token, valid or not, gets the same response shape.
type TrackingHandler struct {
	tracker *tracking.Tracker
}

// NewTrackingHandler creates a new TrackingHandler
func NewTrackingHandler(tracker *tracking.Tracker) *TrackingHandler {
	return &TrackingHandler{tracker: tracker}
}

// Open handles GET /t/o/:token
func (h *TrackingHandler) Open(c echo.Context) error {
	h.tracker.Open(c.Request().Context(), c.Param("token"), c.RealIP())

	header := c.Response().Header()
	header.Set(echo.HeaderCacheControl, "no-cache, no-store, must-revalidate")
	header.Set("Pragma", "no-cache")
	header.Set("Expires", "0")
	return c.Blob(http.StatusOK, "image/gif", tracking.Pixel)
}

// Click handles GET /t/c/:token
func (h *TrackingHandler) Click(c echo.Context) error {
	target, _ := h.tracker.Click(c.Request().Context(), c.Param("token"), c.RealIP())
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.Redirect(http.StatusFound, target)
}
