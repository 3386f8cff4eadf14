package roomsession

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"course-chat/pkg/chatapi"
	"course-chat/pkg/content"
	"course-chat/pkg/syncengine"
)

var t0 = time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC)

func row(room string, n int, sender string, p content.Payload) chatapi.Message {
	return chatapi.Message{
		ID:         fmt.Sprintf("%s-%03d", room, n),
		RoomID:     room,
		SenderID:   sender,
		SenderName: sender,
		Content:    content.Encode(p),
		CreatedAt:  t0.Add(time.Duration(n) * time.Second),
	}
}

func text(s string) content.Payload { return content.PlainText{Text: s} }

type server struct {
	mu      sync.Mutex
	rows    []chatapi.Message
	readErr error
	sendErr error
	// gateRoom blocks latest reads of that room until gate is closed.
	gateRoom string
	// gateOlder blocks cursor reads until gate is closed.
	gateOlder bool
	gate      chan struct{}
	entered   chan struct{}
	sendGate  chan struct{}
	sent      []chatapi.SendRequest
	seq       int
}

func newServer() *server {
	return &server{entered: make(chan struct{}, 8)}
}

func (f *server) add(m ...chatapi.Message) {
	f.mu.Lock()
	f.rows = append(f.rows, m...)
	f.mu.Unlock()
}

func (f *server) setReadErr(err error) {
	f.mu.Lock()
	f.readErr = err
	f.mu.Unlock()
}

func (f *server) sends() []chatapi.SendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chatapi.SendRequest(nil), f.sent...)
}

func (f *server) ReadPage(ctx context.Context, roomID, cursor string, limit int) (chatapi.Page, error) {
	f.mu.Lock()
	blocked := f.gate != nil && ((cursor == "" && f.gateRoom == roomID) || (cursor != "" && f.gateOlder))
	gate := f.gate
	f.mu.Unlock()

	if blocked {
		f.entered <- struct{}{}
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return chatapi.Page{}, f.readErr
	}

	var rows []chatapi.Message
	for _, m := range f.rows {
		if m.RoomID == roomID {
			rows = append(rows, m)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[j].Before(rows[i]) })
	if cursor != "" {
		for i, m := range rows {
			if m.ID == cursor {
				rows = rows[i+1:]
				break
			}
		}
	}
	if len(rows) > limit+1 {
		rows = rows[:limit+1]
	}
	return chatapi.PageFromNewest(rows, limit), nil
}

func (f *server) Send(ctx context.Context, roomID string, req chatapi.SendRequest) (chatapi.Message, error) {
	f.mu.Lock()
	gate := f.sendGate
	f.sent = append(f.sent, req)
	f.mu.Unlock()

	if gate != nil {
		f.entered <- struct{}{}
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return chatapi.Message{}, f.sendErr
	}
	f.seq++
	m := chatapi.Message{
		ID:        fmt.Sprintf("%s-sent-%03d", roomID, f.seq),
		RoomID:    roomID,
		SenderID:  "me",
		Content:   req.Content,
		CreatedAt: t0.Add(time.Hour + time.Duration(f.seq)*time.Second),
	}
	f.rows = append(f.rows, m)
	return m, nil
}

type sub struct {
	roomID   string
	onInsert func(chatapi.Message)
	done     chan struct{}
	once     sync.Once
}

func (s *sub) Done() <-chan struct{} { return s.done }
func (s *sub) Err() error            { return nil }
func (s *sub) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *sub) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

type push struct {
	mu   sync.Mutex
	subs []*sub
	// connecting, when set, holds Subscribe until it is closed.
	connecting chan struct{}
}

func (p *push) Subscribe(ctx context.Context, roomID string, onInsert func(chatapi.Message)) (syncengine.Subscription, error) {
	p.mu.Lock()
	gate := p.connecting
	p.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	s := &sub{roomID: roomID, onInsert: onInsert, done: make(chan struct{})}
	p.subs = append(p.subs, s)
	return s, nil
}

func (p *push) open() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.subs {
		if !s.closed() {
			n++
		}
	}
	return n
}

func (p *push) last() *sub {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.subs) == 0 {
		return nil
	}
	return p.subs[len(p.subs)-1]
}
