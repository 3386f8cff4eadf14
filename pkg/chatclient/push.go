package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"course-chat/pkg/chatapi"
	"course-chat/pkg/syncengine"
)

// Push subscribes to room insert events over WebSocket.
type Push struct {
	BaseURL string
	Token   string
	Dialer  *websocket.Dialer
	Logger  zerolog.Logger
}

// NewPush creates a push channel for the server at baseURL (http or https).
func NewPush(baseURL, token string) *Push {
	return &Push{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		Logger:  zerolog.Nop(),
	}
}

// Subscribe dials the room's socket. It returns once the handshake has
// completed; onInsert then runs on the subscription's read goroutine.
func (p *Push) Subscribe(ctx context.Context, roomID string, onInsert func(chatapi.Message)) (syncengine.Subscription, error) {
	target, err := p.socketURL(roomID)
	if err != nil {
		return nil, err
	}

	conn, _, err := p.Dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, err
	}

	s := &subscription{conn: conn, done: make(chan struct{})}
	go s.read(roomID, onInsert, p.Logger)
	return s, nil
}

func (p *Push) socketURL(roomID string) (string, error) {
	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/rooms/" + url.PathEscape(roomID)
	if p.Token != "" {
		u.RawQuery = url.Values{"token": {p.Token}}.Encode()
	}
	return u.String(), nil
}

type subscription struct {
	conn *websocket.Conn
	done chan struct{}

	mu      sync.Mutex
	err     error
	closing bool
}

func (s *subscription) read(roomID string, onInsert func(chatapi.Message), log zerolog.Logger) {
	defer close(s.done)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			if !s.closing {
				s.err = err
			}
			s.mu.Unlock()
			return
		}

		var event chatapi.RoomEvent
		if err := json.Unmarshal(data, &event); err != nil {
			log.Debug().Err(err).Msg("skipping undecodable push frame")
			continue
		}
		if event.Type != chatapi.EventInsert || event.Message == nil || event.Message.RoomID != roomID {
			continue
		}
		onInsert(*event.Message)
	}
}

func (s *subscription) Done() <-chan struct{} {
	return s.done
}

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close shuts the socket and waits for the read goroutine to exit.
func (s *subscription) Close() error {
	s.mu.Lock()
	already := s.closing
	s.closing = true
	s.mu.Unlock()
	if already {
		<-s.done
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	err := s.conn.Close()
	<-s.done
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
