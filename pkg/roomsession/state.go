// Package roomsession drives the view of the chat room a user has open:
// loading, paging, live delivery, sending and poll tallies.
package roomsession

import (
	"errors"

	"course-chat/pkg/chatapi"
	"course-chat/pkg/content"
	"course-chat/pkg/polls"
)

// State is the lifecycle of an activated room.
type State int

const (
	Idle State = iota
	Loading
	Ready
	Error
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Error:
		return "error"
	default:
		return "idle"
	}
}

var (
	ErrNoActiveRoom = errors.New("no active room")
	ErrNotReady     = errors.New("room is not ready")
	ErrSendInFlight = errors.New("a message is already sending")
	// ErrInactive is returned when the room was switched or closed before a
	// call completed. Its result has been discarded.
	ErrInactive = errors.New("room is no longer active")
)

// Message is a stored message with its decoded payload.
type Message struct {
	chatapi.Message
	Payload content.Payload
}

// View is a snapshot of the session. Polls is shared with later views and
// must be treated as read-only.
type View struct {
	RoomID     string
	State      State
	Messages   []Message
	Polls      map[string]*polls.State
	NextCursor *string
	Err        error
	Sending    bool
	Paginating bool
	PushActive bool
	Draft      content.Payload
}

// HasOlder reports whether PaginateOlder can fetch more history.
func (v View) HasOlder() bool {
	return v.NextCursor != nil
}
