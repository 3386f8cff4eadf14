package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"course-chat/pkg/chatapi"
)

var base = time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC)

func msg(room string, n int) chatapi.Message {
	return chatapi.Message{
		ID:         fmt.Sprintf("m%03d", n),
		RoomID:     room,
		SenderID:   "u1",
		SenderName: "Ada",
		Content:    fmt.Sprintf("message %d", n),
		CreatedAt:  base.Add(time.Duration(n) * time.Second),
	}
}

// fakeTransport pages over an in-memory table the way the server does.
type fakeTransport struct {
	mu       sync.Mutex
	rows     []chatapi.Message
	reads    int
	readErr  error
	sent     []chatapi.SendRequest
	gate     chan struct{}
	entered  chan struct{}
	override *chatapi.Page
}

func (f *fakeTransport) add(m ...chatapi.Message) {
	f.mu.Lock()
	f.rows = append(f.rows, m...)
	f.mu.Unlock()
}

func (f *fakeTransport) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func (f *fakeTransport) ReadPage(ctx context.Context, roomID, cursor string, limit int) (chatapi.Page, error) {
	f.mu.Lock()
	f.reads++
	gate, entered := f.gate, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return chatapi.Page{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return chatapi.Page{}, f.readErr
	}
	if f.override != nil {
		return *f.override, nil
	}

	var rows []chatapi.Message
	for _, m := range f.rows {
		if m.RoomID == roomID {
			rows = append(rows, m)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[j].Before(rows[i]) })

	if cursor != "" {
		idx := -1
		for i, m := range rows {
			if m.ID == cursor {
				idx = i
			}
		}
		if idx < 0 {
			return chatapi.Page{}, errors.New("cursor not found")
		}
		rows = rows[idx+1:]
	}
	if len(rows) > limit+1 {
		rows = rows[:limit+1]
	}
	return chatapi.PageFromNewest(rows, limit), nil
}

func (f *fakeTransport) Send(ctx context.Context, roomID string, req chatapi.SendRequest) (chatapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	m := chatapi.Message{
		ID:        fmt.Sprintf("s%03d", len(f.sent)),
		RoomID:    roomID,
		Content:   req.Content,
		CreatedAt: base.Add(time.Hour),
	}
	f.rows = append(f.rows, m)
	return m, nil
}

type fakeSub struct {
	once   sync.Once
	done   chan struct{}
	mu     sync.Mutex
	err    error
	closed bool
}

func (s *fakeSub) Done() <-chan struct{} { return s.done }

func (s *fakeSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSub) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *fakeSub) drop(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.once.Do(func() { close(s.done) })
}

func (s *fakeSub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakePush struct {
	mu         sync.Mutex
	connectErr error
	sub        *fakeSub
	onInsert   func(chatapi.Message)
}

func (p *fakePush) Subscribe(ctx context.Context, roomID string, onInsert func(chatapi.Message)) (Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connectErr != nil {
		return nil, p.connectErr
	}
	p.sub = &fakeSub{done: make(chan struct{})}
	p.onInsert = onInsert
	return p.sub, nil
}

func (p *fakePush) insert(m chatapi.Message) {
	p.mu.Lock()
	fn := p.onInsert
	p.mu.Unlock()
	fn(m)
}

func (p *fakePush) current() *fakeSub {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sub
}

// collector gathers delivered batches behind a lock.
type collector struct {
	mu       sync.Mutex
	messages []chatapi.Message
	errs     []error
}

func (c *collector) onMessages(batch []chatapi.Message) {
	c.mu.Lock()
	c.messages = Merge(c.messages, batch)
	c.mu.Unlock()
}

func (c *collector) onErr(err error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
}

func (c *collector) snapshot() []chatapi.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]chatapi.Message(nil), c.messages...)
}

func (c *collector) errCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errs)
}
