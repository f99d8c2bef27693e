package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/chatpipeai/chatpipe/internal/channel"
	"github.com/chatpipeai/chatpipe/internal/pipeline"
)

// WebhookHandler receives raw inbound events from the channel.
type WebhookHandler struct {
	pipeline *pipeline.Pipeline
	validate *validator.Validate
	logger   *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(log *slog.Logger, p *pipeline.Pipeline) *WebhookHandler {
	return &WebhookHandler{
		pipeline: p,
		validate: validator.New(),
		logger:   log.With(slog.String("handler", "webhook")),
	}
}

// Register registers the webhook route. The route is public: the channel
// platform does not authenticate with our JWT.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhook", h.Receive)
}

type webhookRequest struct {
	Events []channel.InboundEvent `json:"events" validate:"required,dive"`
}

// Receive ingests a batch of raw events. Individual malformed events are
// logged and skipped; the endpoint answers 200 so the channel platform
// does not re-deliver the whole batch.
func (h *WebhookHandler) Receive(c echo.Context) error {
	var req webhookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid webhook payload")
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid webhook payload")
	}

	accepted := 0
	for _, ev := range req.Events {
		if err := h.pipeline.HandleEvent(c.Request().Context(), ev); err != nil {
			if errors.Is(err, pipeline.ErrValidation) {
				h.logger.Warn("malformed inbound event skipped",
					slog.String("sender_id", ev.SenderID),
					slog.Any("error", err))
				continue
			}
			h.logger.Error("inbound event failed",
				slog.String("sender_id", ev.SenderID),
				slog.Any("error", err))
			continue
		}
		accepted++
	}
	return c.JSON(http.StatusOK, map[string]int{"accepted": accepted})
}
