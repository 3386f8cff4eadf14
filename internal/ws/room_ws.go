package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"course-chat/internal/middleware"
	"course-chat/internal/observability"
	"course-chat/internal/repositories"
)

// RoomWebSocketHandler serves the per-room push subscription.
type RoomWebSocketHandler struct {
	hub       *Hub
	rooms     repositories.RoomRepository
	validator middleware.TokenValidator
	logger    zerolog.Logger
}

// NewRoomWebSocketHandler constructs a RoomWebSocketHandler.
func NewRoomWebSocketHandler(hub *Hub, rooms repositories.RoomRepository, validator middleware.TokenValidator, logger zerolog.Logger) *RoomWebSocketHandler {
	return &RoomWebSocketHandler{hub: hub, rooms: rooms, validator: validator, logger: logger}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates the caller, upgrades the connection and registers it
// with the hub until the peer goes away.
func (h *RoomWebSocketHandler) Handle(c *gin.Context) {
	roomID := c.Param("room_id")

	ctx, span := otel.Tracer("course-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	span.SetAttributes(attribute.String("room.id", roomID))
	c.Request = c.Request.WithContext(ctx)

	token, ok := middleware.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		token = c.Query("token")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	identity, err := h.validator.Validate(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	if _, err := h.rooms.GetRoom(ctx, roomID); err != nil {
		if errors.Is(err, repositories.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		span.SetStatus(codes.Error, err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load room"})
		return
	}
	if err := h.rooms.EnsureMember(ctx, roomID, identity.UserID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to join room"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug().Err(err).Str("room_id", roomID).Msg("websocket upgrade failed")
		return
	}

	traceID := span.SpanContext().TraceID().String()
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      identity.UserID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	h.hub.AddClient(roomID, conn, info)
	observability.IncWSActive(wsKind)
	publishWSEvent(ctx, "ws_connect", roomID, info, "")

	go h.readLoop(context.WithoutCancel(ctx), roomID, conn, info)
}

// readLoop drains inbound frames so close and ping frames are processed.
func (h *RoomWebSocketHandler) readLoop(ctx context.Context, roomID string, conn *websocket.Conn, info ConnInfo) {
	var closeReason string
	defer func() {
		h.hub.RemoveClient(roomID, conn)
		observability.DecWSActive(wsKind)
		publishWSEvent(ctx, "ws_disconnect", roomID, info, closeReason)
		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				publishWSEvent(ctx, "ws_error", roomID, info, closeReason)
			}
			return
		}
	}
}
