package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/chatpipeai/chatpipe/internal/delivery"
	"github.com/chatpipeai/chatpipe/internal/history"
)

// MessageHandler exposes admin-originated delivery endpoints.
type MessageHandler struct {
	deliverer *delivery.Deliverer
	store     *history.Store
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewMessageHandler creates a MessageHandler. store may be nil when
// Postgres is not configured; the history route then answers 404.
func NewMessageHandler(log *slog.Logger, deliverer *delivery.Deliverer, store *history.Store) *MessageHandler {
	return &MessageHandler{
		deliverer: deliverer,
		store:     store,
		validate:  validator.New(),
		logger:    log.With(slog.String("handler", "message")),
	}
}

// Register registers the admin messaging routes.
func (h *MessageHandler) Register(e *echo.Echo) {
	e.POST("/api/messages/push", h.Push)
	e.POST("/api/messages/broadcast", h.Broadcast)
	e.GET("/api/messages/:sender_id", h.History)
}

type pushRequest struct {
	To      string `json:"to" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// Push sends admin-authored content to one recipient.
func (h *MessageHandler) Push(c echo.Context) error {
	var req pushRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	messageID := uuid.NewString()
	if err := h.deliverer.Send(c.Request().Context(), req.To, req.Content, messageID, true); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message_id": messageID,
		"status":     "accepted",
	})
}

type broadcastRequest struct {
	Recipients []string `json:"recipients" validate:"required,min=1,dive,required"`
	Content    string   `json:"content" validate:"required"`
}

// Broadcast sends content to many recipients; one failure never aborts
// the batch and the response carries per-recipient outcomes.
func (h *MessageHandler) Broadcast(c echo.Context) error {
	var req broadcastRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result := h.deliverer.Broadcast(c.Request().Context(), req.Recipients, req.Content)
	return c.JSON(http.StatusOK, result)
}

// History lists the newest persisted messages for a sender.
func (h *MessageHandler) History(c echo.Context) error {
	if h.store == nil {
		return echo.NewHTTPError(http.StatusNotFound, "history store not configured")
	}
	senderID := c.Param("sender_id")
	entries, err := h.store.ListRecent(c.Request().Context(), senderID, 50)
	if err != nil {
		h.logger.Error("list history failed",
			slog.String("sender_id", senderID),
			slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "list history failed")
	}
	return c.JSON(http.StatusOK, entries)
}
