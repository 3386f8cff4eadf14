package models

import "time"

// Room is a chat room, one per course plus the global room.
type Room struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Member records that a user has joined a room.
type Member struct {
	RoomID   string    `db:"room_id" json:"room_id"`
	UserID   string    `db:"user_id" json:"user_id"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}
