package chatclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"course-chat/pkg/chatapi"
)

func TestReadPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rooms/global-chat/messages", r.URL.Path)
		assert.Equal(t, "m9", r.URL.Query().Get("cursor"))
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		cursor := "m1"
		_ = json.NewEncoder(w).Encode(chatapi.Page{
			Messages:   []chatapi.Message{{ID: "m1", RoomID: "global-chat", Content: "hi", CreatedAt: time.Now().UTC()}},
			NextCursor: &cursor,
		})
	}))
	defer srv.Close()

	page, err := New(srv.URL, "tok").ReadPage(context.Background(), "global-chat", "m9", 20)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "hi", page.Messages[0].Content)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, "m1", *page.NextCursor)
}

func TestSendCarriesIdempotencyKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "k-1", r.Header.Get(IdempotencyHeader))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"content": "hello"}, body)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(chatapi.SendResponse{Message: chatapi.Message{ID: "m2", RoomID: "r", Content: "hello"}})
	}))
	defer srv.Close()

	msg, err := New(srv.URL, "tok").Send(context.Background(), "r", chatapi.SendRequest{Content: "hello", IdempotencyKey: "k-1"})
	require.NoError(t, err)
	assert.Equal(t, "m2", msg.ID)
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"room not found"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "").ReadPage(context.Background(), "nope", "", 0)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "room not found", apiErr.Message)
}
