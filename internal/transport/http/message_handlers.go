package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/sonicspectrum/msghub/internal/core"
	"github.com/sonicspectrum/msghub/internal/utils"
)

// MessageHandlers provides the REST endpoints for direct messages.
type MessageHandlers struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewMessageHandlers creates message handlers backed by hub.
func NewMessageHandlers(hub *core.Hub, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{hub: hub, log: logger}
}

// SendRequest is the body of POST /api/messages/send.
type SendRequest struct {
	SenderID   string  `json:"senderId" binding:"required"`
	ReceiverID string  `json:"receiverId" binding:"required"`
	Content    *string `json:"content" binding:"required"`
}

// Send persists a message and broadcasts it to connected sockets.
// POST /api/messages/send
func (h *MessageHandlers) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if userID, ok := authenticatedUser(c); ok && userID != req.SenderID {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "sender does not match token"})
		return
	}

	ctx := c.Request.Context()
	msg, err := h.hub.Service().Send(ctx, req.SenderID, req.ReceiverID, *req.Content)
	if err != nil {
		if errors.Is(err, core.ErrUnknownUser) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Str("sender_id", req.SenderID).Msg("failed to send message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.hub.Dispatcher().Broadcast(ctx, msg)

	c.JSON(http.StatusOK, core.ToOutbound(msg))
}

// Conversation lists messages between two users, newest first.
// GET /api/messages/:userId/:otherUserId?fromDate=
func (h *MessageHandlers) Conversation(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userId"))
	otherUserID := strings.TrimSpace(c.Param("otherUserId"))
	if userID == "" || otherUserID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "user ids are required"})
		return
	}

	if authID, ok := authenticatedUser(c); ok && authID != userID && authID != otherUserID {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a participant"})
		return
	}

	since, err := parseFromDate(c.Query("fromDate"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid fromDate"})
		return
	}

	msgs, err := h.hub.Service().ListConversation(c.Request.Context(), userID, otherUserID, since)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Str("other_user_id", otherUserID).Msg("failed to list conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, core.ToOutboundList(msgs))
}

// MarkRead flags a message as read. The body is the message id as a JSON string.
// POST /api/messages/mark-as-read
func (h *MessageHandlers) MarkRead(c *gin.Context) {
	var raw string
	if err := c.ShouldBindJSON(&raw); err != nil {
		h.log.Debug().Err(err).Msg("invalid mark-as-read request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid message id"})
		return
	}
	messageID, ok := utils.ParseID(raw)
	if !ok {
		h.log.Debug().Str("message_id", raw).Msg("invalid mark-as-read id")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid message id"})
		return
	}

	if err := h.hub.Service().MarkRead(c.Request.Context(), messageID); err != nil {
		h.log.Error().Err(err).Str("message_id", messageID).Msg("failed to mark message read")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.Status(http.StatusOK)
}
