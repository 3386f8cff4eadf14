// Package chatapi holds the wire types shared by the chat server and its clients.
package chatapi

import "time"

const (
	// DefaultPageSize is used when a read omits or garbles its limit.
	DefaultPageSize = 30
	// MaxPageSize caps the limit of a single read.
	MaxPageSize = 100
	// MaxContentBytes caps the size of a message's content.
	MaxContentBytes = 2 << 20
	// FallbackSenderName is shown when the sender has no display name.
	FallbackSenderName = "Classmate"
	// IdempotencyHeader carries the client key of a send.
	IdempotencyHeader = "Idempotency-Key"
	// MaxIdempotencyKeyLen caps the client key length.
	MaxIdempotencyKeyLen = 128
)

// ClampLimit maps a requested page size onto (0, max], falling back to def.
func ClampLimit(requested, def, max int) int {
	if requested <= 0 {
		return def
	}
	if requested > max {
		return max
	}
	return requested
}

// Message is a persisted room message. Messages are immutable once created.
type Message struct {
	ID         string    `db:"id" json:"id"`
	RoomID     string    `db:"room_id" json:"room_id"`
	SenderID   string    `db:"sender_id" json:"sender_id"`
	SenderName string    `db:"sender_name" json:"sender_name"`
	Content    string    `db:"content" json:"content"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Before reports whether m sorts before other in (created_at, id) order.
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}

// Page is one page of room history, ordered oldest to newest.
// NextCursor is set only when older messages exist beyond the page.
type Page struct {
	Messages   []Message `json:"messages"`
	NextCursor *string   `json:"next_cursor"`
}

// HasMore reports whether an older page can be requested.
func (p Page) HasMore() bool {
	return p.NextCursor != nil && *p.NextCursor != ""
}

// PageFromNewest builds a page from rows fetched newest-first with a
// limit+1 lookahead. The extra row only signals that more history exists.
func PageFromNewest(rows []Message, limit int) Page {
	hasMore := limit > 0 && len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	messages := make([]Message, len(rows))
	for i, m := range rows {
		messages[len(rows)-1-i] = m
	}

	page := Page{Messages: messages}
	if hasMore {
		cursor := rows[len(rows)-1].ID
		page.NextCursor = &cursor
	}
	return page
}

// SendRequest is the body of a message post.
type SendRequest struct {
	Content        string `json:"content"`
	IdempotencyKey string `json:"-"`
}

// SendResponse wraps the stored message returned by a post.
type SendResponse struct {
	Message Message `json:"message"`
}

// EventInsert is the only push event type: a newly persisted row.
const EventInsert = "insert"

// RoomEvent is broadcast to push subscribers of a room.
type RoomEvent struct {
	Type    string   `json:"type"`
	RoomID  string   `json:"room_id"`
	Message *Message `json:"message,omitempty"`
}
