// Package chatclient talks to the course-chat server over HTTP and
// WebSocket. Client and Push plug into syncengine as its Transport and
// PushChannel.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"course-chat/pkg/chatapi"
)

// IdempotencyHeader carries the client key that deduplicates retried sends.
const IdempotencyHeader = chatapi.IdempotencyHeader

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chat api error %d", e.Status)
	}
	return fmt.Sprintf("chat api error %d: %s", e.Status, e.Message)
}

// Client is the HTTP side of the chat API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// New creates a client for baseURL authenticating with a bearer token.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ReadPage fetches one page of room history.
func (c *Client) ReadPage(ctx context.Context, roomID, cursor string, limit int) (chatapi.Page, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := roomPath(roomID)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	body, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return chatapi.Page{}, err
	}

	var page chatapi.Page
	if err := json.Unmarshal(body, &page); err != nil {
		return chatapi.Page{}, fmt.Errorf("decode page: %w", err)
	}
	return page, nil
}

// Send posts a message and returns the stored row.
func (c *Client) Send(ctx context.Context, roomID string, req chatapi.SendRequest) (chatapi.Message, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return chatapi.Message{}, err
	}

	header := http.Header{}
	if req.IdempotencyKey != "" {
		header.Set(IdempotencyHeader, req.IdempotencyKey)
	}

	body, err := c.doRequest(ctx, http.MethodPost, roomPath(roomID), payload, header)
	if err != nil {
		return chatapi.Message{}, err
	}

	var resp chatapi.SendResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return chatapi.Message{}, fmt.Errorf("decode send response: %w", err)
	}
	return resp.Message, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte, header http.Header) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}

	for k, v := range header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &errResp)
		return nil, &APIError{Status: resp.StatusCode, Message: errResp.Error}
	}
	return respBody, nil
}

func roomPath(roomID string) string {
	return "/rooms/" + url.PathEscape(roomID) + "/messages"
}
