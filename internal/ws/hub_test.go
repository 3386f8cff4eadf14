package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"course-chat/internal/auth"
	"course-chat/internal/mocks"
	"course-chat/internal/models"
	"course-chat/internal/repositories"
	"course-chat/pkg/chatapi"
)

func TestHubAddAndRemoveClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	hub.AddClient("global-chat", nil, ConnInfo{})
	assert.Equal(t, 1, hub.ClientCount("global-chat"))

	hub.RemoveClient("global-chat", nil)
	assert.Equal(t, 0, hub.ClientCount("global-chat"))
	assert.Empty(t, hub.rooms)
}

func TestHubBroadcastWithoutClients(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	assert.NotPanics(t, func() {
		hub.BroadcastMessage("empty", chatapi.Message{ID: "m1", RoomID: "empty"})
	})
}

func newRoomServer(t *testing.T, hub *Hub, rooms *mocks.RoomRepositoryMock, validator *mocks.TokenValidatorMock) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws/rooms/:room_id", NewRoomWebSocketHandler(hub, rooms, validator, zerolog.Nop()).Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestRoomWebSocketDeliversInserts(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	rooms := new(mocks.RoomRepositoryMock)
	validator := new(mocks.TokenValidatorMock)
	validator.On("Validate", "tok").Return(auth.Identity{UserID: "u-1"}, nil)
	rooms.On("GetRoom", mock.Anything, "global-chat").Return(models.Room{ID: "global-chat"}, nil)
	rooms.On("EnsureMember", mock.Anything, "global-chat", "u-1").Return(nil)

	srv := newRoomServer(t, hub, rooms, validator)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/rooms/global-chat?token=tok"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount("global-chat") == 1 }, time.Second, 10*time.Millisecond)

	msg := chatapi.Message{ID: "m1", RoomID: "global-chat", SenderID: "u-2", Content: "hi"}
	hub.BroadcastMessage("global-chat", msg)
	hub.BroadcastMessage("other-room", chatapi.Message{ID: "m2", RoomID: "other-room"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event chatapi.RoomEvent
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, chatapi.EventInsert, event.Type)
	require.NotNil(t, event.Message)
	assert.Equal(t, "m1", event.Message.ID)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return hub.ClientCount("global-chat") == 0 }, time.Second, 10*time.Millisecond)
}

func TestRoomWebSocketRejectsBadToken(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	rooms := new(mocks.RoomRepositoryMock)
	validator := new(mocks.TokenValidatorMock)
	validator.On("Validate", "bad").Return(nil, auth.ErrInvalidToken)

	srv := newRoomServer(t, hub, rooms, validator)
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/rooms/global-chat?token=bad"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	rooms.AssertNotCalled(t, "GetRoom", mock.Anything, mock.Anything)
}

func TestRoomWebSocketUnknownRoom(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	rooms := new(mocks.RoomRepositoryMock)
	validator := new(mocks.TokenValidatorMock)
	validator.On("Validate", "tok").Return(auth.Identity{UserID: "u-1"}, nil)
	rooms.On("GetRoom", mock.Anything, "nope").Return(nil, repositories.ErrRoomNotFound)

	srv := newRoomServer(t, hub, rooms, validator)
	header := http.Header{"Authorization": []string{"Bearer tok"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/rooms/nope"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
