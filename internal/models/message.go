package models

// NewMessage is a message about to be stored. The server assigns the id and
// timestamp.
type NewMessage struct {
	RoomID     string
	SenderID   string
	SenderName string
	Content    string
	// ClientKey deduplicates retried sends of the same draft; empty disables it.
	ClientKey string
}
