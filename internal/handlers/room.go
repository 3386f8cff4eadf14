package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"course-chat/internal/fanout"
	"course-chat/internal/middleware"
	"course-chat/internal/models"
	"course-chat/internal/observability"
	"course-chat/internal/repositories"
	"course-chat/internal/telemetry"
	"course-chat/pkg/chatapi"
	"course-chat/pkg/content"
)

// RoomHandler serves room history reads and message posts.
type RoomHandler struct {
	rooms           repositories.RoomRepository
	messages        repositories.MessageRepository
	notifier        fanout.Notifier
	audit           *telemetry.AuditEmitter
	logger          zerolog.Logger
	defaultPageSize int
	maxPageSize     int
}

// NewRoomHandler constructs a RoomHandler. Non-positive page sizes fall back
// to the chatapi defaults.
func NewRoomHandler(rooms repositories.RoomRepository, messages repositories.MessageRepository, notifier fanout.Notifier, audit *telemetry.AuditEmitter, logger zerolog.Logger, defaultPageSize, maxPageSize int) *RoomHandler {
	if maxPageSize <= 0 {
		maxPageSize = chatapi.MaxPageSize
	}
	if defaultPageSize <= 0 || defaultPageSize > maxPageSize {
		defaultPageSize = min(chatapi.DefaultPageSize, maxPageSize)
	}
	return &RoomHandler{
		rooms:           rooms,
		messages:        messages,
		notifier:        notifier,
		audit:           audit,
		logger:          logger,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
	}
}

// GetMessages handles GET /rooms/:room_id/messages?cursor=&limit=.
func (h *RoomHandler) GetMessages(c *gin.Context) {
	roomID := c.Param("room_id")
	if !h.joinRoom(c, roomID) {
		return
	}

	requested, _ := strconv.Atoi(c.Query("limit"))
	limit := chatapi.ClampLimit(requested, h.defaultPageSize, h.maxPageSize)

	page, err := h.messages.ListPage(c.Request.Context(), roomID, c.Query("cursor"), limit)
	if err != nil {
		if errors.Is(err, repositories.ErrCursorNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown cursor"})
			return
		}
		h.logger.Error().Err(err).Str("room_id", roomID).Msg("list messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, page)
}

// PostMessage handles POST /rooms/:room_id/messages. A repeated
// Idempotency-Key returns the message stored by the first attempt.
func (h *RoomHandler) PostMessage(c *gin.Context) {
	roomID := c.Param("room_id")

	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, telemetry.LevelError, "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	text := strings.TrimSpace(req.Content)
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}
	if len(text) > chatapi.MaxContentBytes {
		h.emitAudit(c, telemetry.LevelWarn, "message too large")
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "message too large"})
		return
	}

	clientKey := strings.TrimSpace(c.GetHeader(chatapi.IdempotencyHeader))
	if len(clientKey) > chatapi.MaxIdempotencyKeyLen {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idempotency key too long"})
		return
	}

	if !h.joinRoom(c, roomID) {
		return
	}

	senderName := strings.TrimSpace(c.GetString(middleware.UserNameKey))
	if senderName == "" {
		senderName = chatapi.FallbackSenderName
	}

	msg, created, err := h.messages.Create(c.Request.Context(), models.NewMessage{
		RoomID:     roomID,
		SenderID:   c.GetString(middleware.UserIDKey),
		SenderName: senderName,
		Content:    text,
		ClientKey:  clientKey,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("room_id", roomID).Msg("create message")
		h.emitAudit(c, telemetry.LevelError, "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send message"})
		return
	}

	if !created {
		observability.IncMessageDeduplicated()
		c.JSON(http.StatusOK, chatapi.SendResponse{Message: msg})
		return
	}

	kind := content.Kind(content.Decode(msg.Content, msg.ID))
	observability.IncMessageCreated(kind)
	if err := h.notifier.Publish(c.Request.Context(), msg); err != nil {
		// Subscribers recover through polling.
		h.logger.Warn().Err(err).Str("room_id", roomID).Str("message_id", msg.ID).Msg("fanout failed")
	}
	_ = observability.PublishEvent(c.Request.Context(), observability.RoutingKeyMessageEvents, observability.EventEnvelope{
		EventType: "message_events",
		EventName: "message_created",
		Payload: observability.MessageCreated{
			MessageID: msg.ID,
			RoomID:    msg.RoomID,
			SenderID:  msg.SenderID,
			Kind:      kind,
			SizeBytes: len(msg.Content),
		},
	}, observability.BuildHeaders(requestIDFromContext(c), ""))
	h.emitAudit(c, telemetry.LevelInfo, "Room message sent")

	c.JSON(http.StatusCreated, chatapi.SendResponse{Message: msg})
}

// joinRoom checks the room exists and enrolls the caller. It writes the error
// response and returns false on failure.
func (h *RoomHandler) joinRoom(c *gin.Context, roomID string) bool {
	ctx := c.Request.Context()
	if _, err := h.rooms.GetRoom(ctx, roomID); err != nil {
		if errors.Is(err, repositories.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return false
		}
		h.logger.Error().Err(err).Str("room_id", roomID).Msg("load room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load room"})
		return false
	}

	if err := h.rooms.EnsureMember(ctx, roomID, c.GetString(middleware.UserIDKey)); err != nil {
		h.logger.Error().Err(err).Str("room_id", roomID).Msg("ensure membership")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to join room"})
		return false
	}
	return true
}

func (h *RoomHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), auditEvent(c, level, text))
}
