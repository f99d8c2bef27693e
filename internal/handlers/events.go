package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chatpipeai/chatpipe/internal/notify"
)

// EventsHandler streams pipeline state transitions to admin observers
// over server-sent events.
type EventsHandler struct {
	hub    *notify.Hub
	logger *slog.Logger
}

// NewEventsHandler creates an EventsHandler.
func NewEventsHandler(log *slog.Logger, hub *notify.Hub) *EventsHandler {
	return &EventsHandler{
		hub:    hub,
		logger: log.With(slog.String("handler", "events")),
	}
}

// Register registers the SSE route.
func (h *EventsHandler) Register(e *echo.Echo) {
	e.GET("/api/events", h.Stream)
}

// Stream subscribes the caller to pipeline events until disconnect.
func (h *EventsHandler) Stream(c echo.Context) error {
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	events, cancel := h.hub.Subscribe()
	defer cancel()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			payload, err := json.Marshal(event)
			if err != nil {
				h.logger.Warn("marshal event failed", slog.Any("error", err))
				continue
			}
			if _, err := fmt.Fprintf(resp, "data: %s\n\n", payload); err != nil {
				return nil
			}
			resp.Flush()
		}
	}
}
