package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chatpipeai/chatpipe/internal/healthcheck"
)

// HealthHandler exposes dependency checks on the admin surface.
type HealthHandler struct {
	registry *healthcheck.Registry
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(registry *healthcheck.Registry) *HealthHandler {
	return &HealthHandler{registry: registry}
}

// Register registers the dependency health route.
func (h *HealthHandler) Register(e *echo.Echo) {
	e.GET("/api/health", h.Checks)
}

// Checks probes every registered dependency. A failing dependency turns
// the overall status to error and the response to 503 so upstream
// monitors can alert on it.
func (h *HealthHandler) Checks(c echo.Context) error {
	results := h.registry.Run(c.Request().Context())
	status := healthcheck.StatusOK
	code := http.StatusOK
	if !healthcheck.Healthy(results) {
		status = healthcheck.StatusError
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, map[string]any{
		"status": status,
		"checks": results,
	})
}
