package roomsession

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"course-chat/pkg/chatapi"
	"course-chat/pkg/content"
	"course-chat/pkg/polls"
	"course-chat/pkg/syncengine"
)

// Session owns the message set of the active room. All mutations of that
// set go through syncengine.Merge.
type Session struct {
	engine   *syncengine.Engine
	pageSize int
	logger   zerolog.Logger
	observer func(View)

	mu       sync.Mutex
	act      *activation
	draft    content.Payload
	draftKey string
	sending  bool
}

// activation is one open room. It is replaced, never reused, on room switch
// so late results can be recognised by identity.
type activation struct {
	roomID     string
	state      State
	messages   []chatapi.Message
	nextCursor *string
	err        error
	loaded     bool
	paginating bool
	delivery   *syncengine.Delivery
	decoded    map[string]content.Payload
	tallies    polls.Cache
	// dispatching counts delivery callbacks in progress, observer included.
	dispatching atomic.Int32
}

// Option configures a Session.
type Option func(*Session)

// WithPageSize sets the page size used for loads and poll refreshes.
func WithPageSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithLogger sets the logger for load and send failures.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithObserver registers fn to receive a fresh View after every change.
// fn is called without the session lock held and may call back into it,
// including Activate and Deactivate from a delivery callback.
func WithObserver(fn func(View)) Option {
	return func(s *Session) { s.observer = fn }
}

// New creates an idle Session.
func New(engine *syncengine.Engine, opts ...Option) *Session {
	s := &Session{
		engine:   engine,
		pageSize: chatapi.DefaultPageSize,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Activate switches the session to roomID. The previous room's delivery is
// stopped before the new room is loaded. Delivery for the new room starts
// before the first page is read, and reads the latest page again once push
// connects, so inserts racing the load are merged either way.
func (s *Session) Activate(ctx context.Context, roomID string) error {
	a := &activation{
		roomID:  roomID,
		state:   Loading,
		decoded: make(map[string]content.Payload),
	}

	// A concurrent Activate may install its room between our stop and our
	// install; loop until the slot is empty under the lock.
	for {
		s.mu.Lock()
		if s.act == nil {
			s.act = a
			a.delivery = s.engine.StartDelivery(context.WithoutCancel(ctx), roomID, s.pageSize, s.delivered(a), s.failed(a))
			s.mu.Unlock()
			break
		}
		old := s.act
		s.act = nil
		s.mu.Unlock()
		old.stop()
	}
	s.notify()

	log := s.logger.With().Str("room_id", roomID).Logger()
	page, err := s.engine.LoadLatest(ctx, roomID, s.pageSize)

	s.mu.Lock()
	if s.act != a {
		s.mu.Unlock()
		return ErrInactive
	}
	if err != nil {
		a.fail(err)
		s.mu.Unlock()
		log.Warn().Err(err).Msg("initial load failed")
		s.notify()
		return err
	}
	a.messages = syncengine.Merge(a.messages, page.Messages)
	a.nextCursor = page.NextCursor
	a.loaded = true
	a.state = Ready
	a.err = nil
	s.mu.Unlock()

	log.Debug().Int("messages", len(page.Messages)).Msg("room loaded")
	s.notify()
	return nil
}

// Deactivate stops delivery for the active room. Results of calls still in
// flight are discarded.
func (s *Session) Deactivate() {
	s.mu.Lock()
	old := s.act
	s.act = nil
	s.mu.Unlock()
	if old == nil {
		return
	}
	old.stop()
	s.notify()
}

// PaginateOlder loads the page before the oldest loaded message. It
// returns nil when there is no older history and syncengine.ErrLoadInFlight
// when a page is already loading.
func (s *Session) PaginateOlder(ctx context.Context) error {
	s.mu.Lock()
	a := s.act
	switch {
	case a == nil:
		s.mu.Unlock()
		return ErrNoActiveRoom
	case !a.loaded || (a.state != Ready && a.state != Error):
		s.mu.Unlock()
		return ErrNotReady
	case a.paginating:
		s.mu.Unlock()
		return syncengine.ErrLoadInFlight
	case a.nextCursor == nil:
		s.mu.Unlock()
		return nil
	}
	cursor := *a.nextCursor
	a.paginating = true
	s.mu.Unlock()
	s.notify()

	page, err := s.engine.LoadOlder(ctx, a.roomID, cursor, s.pageSize)

	s.mu.Lock()
	a.paginating = false
	if s.act != a {
		s.mu.Unlock()
		return ErrInactive
	}
	if err != nil {
		if !errors.Is(err, syncengine.ErrLoadInFlight) {
			a.fail(err)
		}
		s.mu.Unlock()
		s.notify()
		return err
	}
	a.messages = syncengine.Merge(a.messages, page.Messages)
	a.nextCursor = page.NextCursor
	a.recover()
	s.mu.Unlock()

	s.notify()
	return nil
}

// SetDraft replaces the composer content. Each new draft gets a fresh
// idempotency key that is reused by every retry of that draft.
func (s *Session) SetDraft(p content.Payload) {
	s.mu.Lock()
	s.draft = p
	s.draftKey = uuid.NewString()
	s.mu.Unlock()
	s.notify()
}

// Draft returns the composer content.
func (s *Session) Draft() content.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Send posts the draft to the active room. The draft is cleared only on
// success; a rejected or failed send leaves it for the user to retry.
func (s *Session) Send(ctx context.Context) (chatapi.Message, error) {
	s.mu.Lock()
	draft := s.draft
	if poll, ok := draft.(content.PollDefinition); ok {
		poll = content.NormalizePoll(poll)
		if poll.ID == "" {
			poll.ID = uuid.NewString()
		}
		draft = poll
		s.draft = poll
	}
	key := s.draftKey
	s.mu.Unlock()

	msg, err := s.send(ctx, draft, key)
	if err != nil {
		return chatapi.Message{}, err
	}

	s.mu.Lock()
	if s.draftKey == key {
		s.draft = nil
		s.draftKey = ""
	}
	s.mu.Unlock()
	s.notify()
	return msg, nil
}

// Vote casts the current user's choice in a poll of the active room.
func (s *Session) Vote(ctx context.Context, pollID string, optionIndex int) (chatapi.Message, error) {
	s.mu.Lock()
	if s.act != nil {
		st, ok := s.act.pollStates()[pollID]
		if !ok {
			s.mu.Unlock()
			return chatapi.Message{}, &content.ValidationError{Field: "vote", Reason: fmt.Sprintf("unknown poll %q", pollID)}
		}
		if optionIndex >= len(st.Counts) {
			s.mu.Unlock()
			return chatapi.Message{}, &content.ValidationError{Field: "vote", Reason: "option out of range"}
		}
	}
	s.mu.Unlock()

	return s.send(ctx, content.PollVote{PollID: pollID, OptionIndex: optionIndex}, uuid.NewString())
}

func (s *Session) send(ctx context.Context, p content.Payload, key string) (chatapi.Message, error) {
	s.mu.Lock()
	a := s.act
	if a == nil {
		s.mu.Unlock()
		return chatapi.Message{}, ErrNoActiveRoom
	}
	if s.sending {
		s.mu.Unlock()
		return chatapi.Message{}, ErrSendInFlight
	}
	if err := content.Validate(p); err != nil {
		s.mu.Unlock()
		return chatapi.Message{}, err
	}
	s.sending = true
	s.mu.Unlock()
	s.notify()

	msg, err := s.engine.Send(ctx, a.roomID, chatapi.SendRequest{
		Content:        content.Encode(p),
		IdempotencyKey: key,
	})

	s.mu.Lock()
	s.sending = false
	if err != nil {
		if s.act == a {
			a.fail(err)
		}
		s.mu.Unlock()
		s.logger.Warn().Err(err).Str("room_id", a.roomID).Msg("send failed")
		s.notify()
		return chatapi.Message{}, err
	}
	// With push connected the insert event delivers the row; Merge would
	// absorb the duplicate either way.
	if s.act == a {
		if !a.delivery.PushActive() {
			a.messages = syncengine.Merge(a.messages, []chatapi.Message{msg})
		}
		if a.loaded {
			a.recover()
		}
	}
	s.mu.Unlock()

	s.notify()
	return msg, nil
}

// View returns a snapshot of the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		State:   Idle,
		Sending: s.sending,
		Draft:   s.draft,
	}
	a := s.act
	if a == nil {
		return v
	}

	v.RoomID = a.roomID
	v.State = a.state
	v.Err = a.err
	v.Paginating = a.paginating
	v.PushActive = a.delivery.PushActive()
	if a.nextCursor != nil {
		cursor := *a.nextCursor
		v.NextCursor = &cursor
	}
	v.Messages = make([]Message, len(a.messages))
	for i, m := range a.messages {
		v.Messages[i] = Message{Message: m, Payload: a.payload(m)}
	}
	v.Polls = a.pollStates()
	return v
}

func (s *Session) notify() {
	if s.observer == nil {
		return
	}
	s.observer(s.View())
}

// delivered merges a pushed row or polled page into a, if a is still active.
func (s *Session) delivered(a *activation) func([]chatapi.Message) {
	return func(batch []chatapi.Message) {
		a.dispatching.Add(1)
		defer a.dispatching.Add(-1)

		s.mu.Lock()
		if s.act != a {
			s.mu.Unlock()
			return
		}
		a.messages = syncengine.Merge(a.messages, batch)
		if a.state != Loading {
			if !a.loaded && !a.delivery.PushActive() {
				// a poll page after a failed first load stands in for it
				a.loaded = true
				if len(batch) >= s.pageSize {
					cursor := batch[0].ID
					a.nextCursor = &cursor
				}
			}
			if a.loaded {
				a.recover()
			}
		}
		s.mu.Unlock()
		s.notify()
	}
}

func (s *Session) failed(a *activation) func(error) {
	return func(err error) {
		a.dispatching.Add(1)
		defer a.dispatching.Add(-1)

		s.mu.Lock()
		if s.act != a {
			s.mu.Unlock()
			return
		}
		a.fail(err)
		s.mu.Unlock()
		s.notify()
	}
}

// stop ends a's delivery. From inside one of a's callbacks it cannot wait
// for the delivery goroutine, which is the caller, so it only cancels.
func (a *activation) stop() {
	if a == nil || a.delivery == nil {
		return
	}
	if a.dispatching.Load() > 0 {
		a.delivery.Cancel()
		return
	}
	a.delivery.Stop()
}

// fail records err and keeps the last good message set.
func (a *activation) fail(err error) {
	a.err = err
	a.state = Error
}

func (a *activation) recover() {
	if a.state == Error {
		a.state = Ready
		a.err = nil
	}
}

// payload decodes m once per message id.
func (a *activation) payload(m chatapi.Message) content.Payload {
	if p, ok := a.decoded[m.ID]; ok {
		return p
	}
	p := content.Decode(m.Content, m.ID)
	a.decoded[m.ID] = p
	return p
}

func (a *activation) pollStates() map[string]*polls.State {
	entries := make([]polls.Entry, len(a.messages))
	for i, m := range a.messages {
		entries[i] = polls.Entry{MessageID: m.ID, SenderID: m.SenderID, Payload: a.payload(m)}
	}
	return a.tallies.Get(entries)
}
