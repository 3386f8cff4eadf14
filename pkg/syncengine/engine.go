// Package syncengine reads, merges and delivers the messages of one chat room.
// It keeps no room state between calls; callers own the message set.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"course-chat/pkg/chatapi"
)

// DefaultPollInterval is the fallback refresh period when no push channel is connected.
const DefaultPollInterval = 3 * time.Second

var (
	// ErrLoadInFlight is returned when an older page is already loading for the room.
	ErrLoadInFlight = errors.New("older page already loading")
	// ErrNoPushChannel is returned by Subscribe when no push channel is configured.
	ErrNoPushChannel = errors.New("no push channel configured")
	// ErrNoCursor is returned by LoadOlder without a cursor.
	ErrNoCursor = errors.New("cursor is required")
)

// Transport is the read/write contract of the chat server.
type Transport interface {
	ReadPage(ctx context.Context, roomID, cursor string, limit int) (chatapi.Page, error)
	Send(ctx context.Context, roomID string, req chatapi.SendRequest) (chatapi.Message, error)
}

// Subscription is a live push registration for one room.
type Subscription interface {
	// Done is closed once the subscription stops delivering.
	Done() <-chan struct{}
	// Err reports why Done was closed; nil after Close.
	Err() error
	Close() error
}

// PushChannel delivers newly persisted messages. Subscribe returns only
// after the channel is connected.
type PushChannel interface {
	Subscribe(ctx context.Context, roomID string, onInsert func(chatapi.Message)) (Subscription, error)
}

// Engine performs room reads and writes over a Transport, with an optional
// PushChannel for low-latency delivery.
type Engine struct {
	transport    Transport
	push         PushChannel
	pollInterval time.Duration
	logger       zerolog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithPush enables push delivery.
func WithPush(p PushChannel) Option {
	return func(e *Engine) { e.push = p }
}

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine.
func New(t Transport, opts ...Option) *Engine {
	e := &Engine{
		transport:    t,
		pollInterval: DefaultPollInterval,
		logger:       zerolog.Nop(),
		inflight:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PushConfigured reports whether a push channel was supplied.
func (e *Engine) PushConfigured() bool {
	return e.push != nil
}

// LoadLatest returns the newest page of the room, oldest to newest.
func (e *Engine) LoadLatest(ctx context.Context, roomID string, limit int) (chatapi.Page, error) {
	page, err := e.transport.ReadPage(ctx, roomID, "", limit)
	if err != nil {
		return chatapi.Page{}, fmt.Errorf("load latest %s: %w", roomID, err)
	}
	return normalize(page, roomID, "", limit), nil
}

// LoadOlder returns the page strictly older than cursor. Only one call per
// room may be pending; a concurrent call returns ErrLoadInFlight at once.
func (e *Engine) LoadOlder(ctx context.Context, roomID, cursor string, limit int) (chatapi.Page, error) {
	if cursor == "" {
		return chatapi.Page{}, ErrNoCursor
	}
	if !e.acquire(roomID) {
		return chatapi.Page{}, ErrLoadInFlight
	}
	defer e.release(roomID)

	page, err := e.transport.ReadPage(ctx, roomID, cursor, limit)
	if err != nil {
		return chatapi.Page{}, fmt.Errorf("load older %s: %w", roomID, err)
	}
	return normalize(page, roomID, cursor, limit), nil
}

// RefreshLatest reads the newest page for a poll tick. Callers merge the
// result into what they hold rather than replacing it.
func (e *Engine) RefreshLatest(ctx context.Context, roomID string, limit int) (chatapi.Page, error) {
	page, err := e.transport.ReadPage(ctx, roomID, "", limit)
	if err != nil {
		return chatapi.Page{}, fmt.Errorf("refresh %s: %w", roomID, err)
	}
	return normalize(page, roomID, "", limit), nil
}

// Subscribe registers onInsert for new messages in roomID. Events for other
// rooms are filtered out.
func (e *Engine) Subscribe(ctx context.Context, roomID string, onInsert func(chatapi.Message)) (Subscription, error) {
	if e.push == nil {
		return nil, ErrNoPushChannel
	}
	sub, err := e.push.Subscribe(ctx, roomID, func(m chatapi.Message) {
		if m.RoomID == roomID {
			onInsert(m)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", roomID, err)
	}
	return sub, nil
}

// Send persists content in the room and returns the stored message.
func (e *Engine) Send(ctx context.Context, roomID string, req chatapi.SendRequest) (chatapi.Message, error) {
	msg, err := e.transport.Send(ctx, roomID, req)
	if err != nil {
		return chatapi.Message{}, fmt.Errorf("send %s: %w", roomID, err)
	}
	return msg, nil
}

func (e *Engine) acquire(roomID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[roomID]; busy {
		return false
	}
	e.inflight[roomID] = struct{}{}
	return true
}

func (e *Engine) release(roomID string) {
	e.mu.Lock()
	delete(e.inflight, roomID)
	e.mu.Unlock()
}

// normalize makes a server page safe to merge: rows from other rooms and
// the cursor row are removed, rows are sorted ascending and at most limit
// of the newest are kept.
func normalize(page chatapi.Page, roomID, cursor string, limit int) chatapi.Page {
	rows := make([]chatapi.Message, 0, len(page.Messages))
	for _, m := range page.Messages {
		if m.RoomID != roomID || (cursor != "" && m.ID == cursor) {
			continue
		}
		rows = append(rows, m)
	}
	sortMessages(rows)

	out := chatapi.Page{Messages: rows, NextCursor: page.NextCursor}
	if limit > 0 && len(rows) > limit {
		out.Messages = rows[len(rows)-limit:]
		next := out.Messages[0].ID
		out.NextCursor = &next
	}
	if out.NextCursor != nil && *out.NextCursor == "" {
		out.NextCursor = nil
	}
	return out
}

// Merge unions two message lists by id and sorts the result by
// (created_at, id). It is commutative and idempotent, so any interleaving
// of page, poll and push results converges on the same list.
func Merge(current, incoming []chatapi.Message) []chatapi.Message {
	byID := make(map[string]chatapi.Message, len(current)+len(incoming))
	for _, m := range current {
		byID[m.ID] = m
	}
	for _, m := range incoming {
		byID[m.ID] = m
	}

	out := make([]chatapi.Message, 0, len(byID))
	for _, m := range byID {
		out = append(out, m)
	}
	sortMessages(out)
	return out
}

func sortMessages(rows []chatapi.Message) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Before(rows[j]) })
}
