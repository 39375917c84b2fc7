package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Ladkan/MeChat/internal/core"
	"github.com/Ladkan/MeChat/internal/store"
)

// MessageHandlers serves room history and message deletion.
type MessageHandlers struct {
	hub      *core.Hub
	messages store.MessageStore
	log      *zerolog.Logger
}

// NewMessageHandlers creates message handlers.
func NewMessageHandlers(hub *core.Hub, messages store.MessageStore, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{hub: hub, messages: messages, log: logger}
}

// MessageResponse is a stored message as returned by the history endpoint.
type MessageResponse struct {
	ID        string     `json:"id"`
	RoomID    string     `json:"roomId"`
	UserID    string     `json:"userId"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
	DeletedAt *time.Time `json:"deletedAt"`
	Sender    string     `json:"sender"`
}

// SuccessResponse acknowledges a mutation.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// History handles GET /api/rooms/:roomId/messages.
func (h *MessageHandlers) History(c *gin.Context) {
	roomID := c.Param("roomId")

	entries, err := h.messages.History(c.Request.Context(), roomID)
	if err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Msg("failed to load history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	resp := make([]MessageResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, MessageResponse{
			ID:        e.ID,
			RoomID:    e.RoomID,
			UserID:    e.UserID,
			Content:   e.Content,
			CreatedAt: e.CreatedAt,
			DeletedAt: e.DeletedAt,
			Sender:    e.Sender,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// Delete handles PATCH /api/messages/:messageId. Only the author may delete.
func (h *MessageHandlers) Delete(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return
	}
	messageID := c.Param("messageId")

	_, err := h.hub.DeleteMessage(c.Request.Context(), messageID, identity.ID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, SuccessResponse{Success: true})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Message not found"})
	case errors.Is(err, store.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "Forbidden"})
	case errors.Is(err, store.ErrAlreadyDeleted):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "Message already deleted"})
	default:
		h.log.Error().Err(err).Str("message_id", messageID).Msg("failed to delete message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
