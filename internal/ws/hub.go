package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"course-chat/internal/observability"
	"course-chat/pkg/chatapi"
)

const (
	wsKind    = "room"
	writeWait = 10 * time.Second
)

// client is one subscriber. gorilla connections allow a single concurrent
// writer, so every write goes through mu.
type client struct {
	conn *websocket.Conn
	info ConnInfo
	mu   sync.Mutex
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub maintains the push subscribers of every room.
type Hub struct {
	rooms  map[string]map[*websocket.Conn]*client
	mu     sync.RWMutex
	logger zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*websocket.Conn]*client),
		logger: logger,
	}
}

// AddClient registers a websocket connection to a room.
func (h *Hub) AddClient(roomID string, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*websocket.Conn]*client)
	}
	h.rooms[roomID][conn] = &client{conn: conn, info: info}
}

// RemoveClient removes a websocket connection from a room.
func (h *Hub) RemoveClient(roomID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[roomID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// ClientCount reports the number of subscribers in a room.
func (h *Hub) ClientCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// BroadcastMessage sends an insert event to every subscriber of the message's room.
func (h *Hub) BroadcastMessage(roomID string, msg chatapi.Message) {
	payload, err := json.Marshal(chatapi.RoomEvent{Type: chatapi.EventInsert, RoomID: roomID, Message: &msg})
	if err != nil {
		h.logger.Error().Err(err).Str("room_id", roomID).Msg("marshal room event")
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.rooms[roomID]))
	for _, c := range h.rooms[roomID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(payload); err != nil {
			h.logger.Warn().Err(err).Str("room_id", roomID).Str("conn_id", c.info.ConnID).Msg("websocket write error")
			_ = c.conn.Close()
			h.RemoveClient(roomID, c.conn)
			h.publishWSError(roomID, c.info, err)
		}
	}
}

func (h *Hub) publishWSError(roomID string, info ConnInfo, err error) {
	publishWSEvent(context.Background(), "ws_error", roomID, info, err.Error())
}

// publishWSEvent reports a connection lifecycle event to the event bus.
func publishWSEvent(ctx context.Context, event, roomID string, info ConnInfo, reason string) {
	var durationMS int64
	if event != "ws_connect" {
		durationMS = time.Since(info.ConnectedAt).Milliseconds()
	}

	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        wsKind,
			"resource_id": roomID,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": durationMS,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	_ = observability.PublishEvent(ctx, observability.RoutingKeyWSEvents, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
	observability.IncWSEvent(wsKind, event)
}
